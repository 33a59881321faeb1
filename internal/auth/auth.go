// Package auth authenticates requests to the HTTP surface with bearer
// API keys or bcrypt-hashed basic-auth users. All state is in memory
// and comes from configuration.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyPrefix distinguishes API keys from other bearer tokens.
	APIKeyPrefix = "lu_"

	// APIKeyMinLen is the minimum total length including the prefix.
	APIKeyMinLen = len(APIKeyPrefix) + 32

	// MinPasswordLen is enforced by HashPassword.
	MinPasswordLen = 8
)

// APIKey binds a static key to a user.
type APIKey struct {
	UserID string
	Key    string
}

// UserCredentials maps usernames to bcrypt password hashes.
type UserCredentials map[string]string

// ValidateAPIKeyFormat checks the prefix, length, and hex suffix.
func ValidateAPIKeyFormat(key string) error {
	if !strings.HasPrefix(key, APIKeyPrefix) {
		return fmt.Errorf("API key must start with %q", APIKeyPrefix)
	}

	if len(key) < APIKeyMinLen {
		return fmt.Errorf("API key too short (minimum %d characters)", APIKeyMinLen)
	}

	if _, err := hex.DecodeString(key[len(APIKeyPrefix):]); err != nil {
		return fmt.Errorf("API key contains non-hex characters after %q", APIKeyPrefix)
	}

	return nil
}

// HashPassword returns a bcrypt hash suitable for MCP_AUTH_USERS.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLen {
		return "", fmt.Errorf("password must be at least %d characters", MinPasswordLen)
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	return string(h), nil
}

// Authenticator validates credentials against configured keys and users.
type Authenticator struct {
	keys      map[[sha256.Size]byte]string
	users     UserCredentials
	dummyHash []byte
	limiter   *loginRateLimiter
	logger    *slog.Logger
}

// NewAuthenticator builds an authenticator. Keys are stored hashed.
func NewAuthenticator(keys []APIKey, users UserCredentials, logger *slog.Logger) (*Authenticator, error) {
	a := &Authenticator{
		keys:    make(map[[sha256.Size]byte]string, len(keys)),
		users:   users,
		limiter: newLoginRateLimiter(),
		logger:  logger,
	}

	for _, k := range keys {
		a.keys[sha256.Sum256([]byte(k.Key))] = k.UserID
	}

	if len(users) > 0 {
		// Unknown users are compared against this hash so the response
		// time does not reveal which usernames exist.
		h, err := bcrypt.GenerateFromPassword([]byte("\x00invalid"), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("preparing auth: %w", err)
		}

		a.dummyHash = h
	}

	return a, nil
}

// Enabled reports whether any credentials are configured.
func (a *Authenticator) Enabled() bool {
	return len(a.keys) > 0 || len(a.users) > 0
}

// CheckAPIKey returns the user bound to key.
func (a *Authenticator) CheckAPIKey(key string) (string, bool) {
	if !strings.HasPrefix(key, APIKeyPrefix) {
		return "", false
	}

	user, ok := a.keys[sha256.Sum256([]byte(key))]

	return user, ok
}

var errBadCredentials = errors.New("invalid username or password")

// CheckPassword verifies a basic-auth username and password.
func (a *Authenticator) CheckPassword(username, password string) error {
	hash, ok := a.users[username]
	if !ok {
		if a.dummyHash != nil {
			_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(password))
		}

		return errBadCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return errBadCredentials
	}

	return nil
}
