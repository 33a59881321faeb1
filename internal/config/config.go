package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/alexjbarnes/ledger-upload/internal/auth"
	"github.com/alexjbarnes/ledger-upload/internal/ledger"
	"github.com/alexjbarnes/ledger-upload/internal/models"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Conflict policies for unattended (watch mode) submissions.
const (
	ConflictPolicyRename = "rename"
	ConflictPolicyCancel = "cancel"
)

// Config holds all environment-based configuration for ledger-upload.
type Config struct {
	// Backend service that hashes, stores, and attests uploaded files.
	BackendURL  string        `env:"BACKEND_URL" envDefault:"http://localhost:8000"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"60s"`

	// Identity sent with each upload. The backend records "unknown" when empty.
	UploaderID string `env:"UPLOADER_ID"`

	// Default destinations when a command does not pick any explicitly.
	UploadS3    bool `env:"UPLOAD_S3" envDefault:"false"`
	UploadAzure bool `env:"UPLOAD_AZURE" envDefault:"false"`

	// Ledger network used to build transaction explorer links.
	LedgerNetwork     string `env:"LEDGER_NETWORK" envDefault:"sepolia"`
	LedgerExplorerURL string `env:"LEDGER_EXPLORER_URL"`

	// Upper bound on rename-and-restart cycles within one submission.
	MaxConflictRetries int `env:"MAX_CONFLICT_RETRIES" envDefault:"3"`

	// Path of the local history database. Defaults to ~/.ledger-upload/state.db.
	StatePath string `env:"STATE_PATH"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`

	// MCP / HTTP surface used by the serve command.
	EnableMCP     bool   `env:"ENABLE_MCP" envDefault:"false"`
	MCPListenAddr string `env:"MCP_LISTEN_ADDR" envDefault:":8090"`
	MCPAPIKeys    string `env:"MCP_API_KEYS"`
	MCPAuthUsers  string `env:"MCP_AUTH_USERS"`

	// Drop folder watched by the serve command. Empty disables watching.
	WatchDir            string `env:"WATCH_DIR"`
	WatchConflictPolicy string `env:"WATCH_CONFLICT_POLICY" envDefault:"rename"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
	cfg.LedgerNetwork = strings.ToLower(strings.TrimSpace(cfg.LedgerNetwork))
	cfg.WatchConflictPolicy = strings.ToLower(strings.TrimSpace(cfg.WatchConflictPolicy))

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.WatchDir != "" {
		absDir, err := filepath.Abs(cfg.WatchDir)
		if err != nil {
			return nil, fmt.Errorf("resolving watch dir to absolute path: %w", err)
		}

		cfg.WatchDir = absDir
	}

	if cfg.StatePath == "" {
		p, err := DefaultStatePath()
		if err != nil {
			return nil, err
		}

		cfg.StatePath = p
	}

	return cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an http(s) URL with a host, got %q", c.BackendURL)
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}

	if c.MaxConflictRetries < 1 {
		return fmt.Errorf("MAX_CONFLICT_RETRIES must be at least 1")
	}

	if c.LedgerExplorerURL == "" && !ledger.KnownNetwork(c.LedgerNetwork) {
		return fmt.Errorf("LEDGER_NETWORK %q is not known, set LEDGER_EXPLORER_URL or use one of: %s",
			c.LedgerNetwork, strings.Join(ledger.Networks(), ", "))
	}

	switch c.WatchConflictPolicy {
	case ConflictPolicyRename, ConflictPolicyCancel:
	default:
		return fmt.Errorf("WATCH_CONFLICT_POLICY must be %q or %q", ConflictPolicyRename, ConflictPolicyCancel)
	}

	if c.EnableMCP && c.MCPAPIKeys == "" && c.MCPAuthUsers == "" {
		return fmt.Errorf("at least one auth method required when MCP is enabled: MCP_API_KEYS or MCP_AUTH_USERS")
	}

	return nil
}

// DefaultStatePath returns ~/.ledger-upload/state.db.
func DefaultStatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".ledger-upload", "state.db"), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// DefaultDestinations returns the destinations enabled by UPLOAD_S3 and
// UPLOAD_AZURE. The set may be empty.
func (c *Config) DefaultDestinations() models.Destinations {
	var d models.Destinations
	if c.UploadS3 {
		d = d.With(models.DestinationS3)
	}

	if c.UploadAzure {
		d = d.With(models.DestinationAzure)
	}

	return d
}

// Explorer returns the transaction explorer for the configured network.
func (c *Config) Explorer() ledger.Explorer {
	if c.LedgerExplorerURL != "" {
		return ledger.NewExplorer(c.LedgerExplorerURL)
	}

	e, _ := ledger.ExplorerFor(c.LedgerNetwork)

	return e
}

// ParseMCPAPIKeys parses the MCP_API_KEYS string.
// Format: "user1:lu_key1,user2:lu_key2"
func (c *Config) ParseMCPAPIKeys() ([]auth.APIKey, error) {
	if c.MCPAPIKeys == "" {
		return nil, nil
	}

	seenUsers := make(map[string]struct{})

	var entries []auth.APIKey

	for _, pair := range strings.Split(c.MCPAPIKeys, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		idx := strings.Index(pair, ":")
		if idx < 0 {
			return nil, fmt.Errorf("invalid API key entry (missing ':')")
		}

		userID := pair[:idx]

		key := pair[idx+1:]
		if userID == "" || key == "" {
			return nil, fmt.Errorf("empty user or key in entry %d", len(entries)+1)
		}

		if err := auth.ValidateAPIKeyFormat(key); err != nil {
			return nil, fmt.Errorf("entry %d: %w", len(entries)+1, err)
		}

		if _, dup := seenUsers[userID]; dup {
			return nil, fmt.Errorf("duplicate user_id %q in MCP_API_KEYS", userID)
		}

		seenUsers[userID] = struct{}{}
		entries = append(entries, auth.APIKey{UserID: userID, Key: key})
	}

	return entries, nil
}

// ParseMCPUsers parses the MCP_AUTH_USERS string into a UserCredentials map.
// Format: "user1:<bcrypt hash>,user2:<bcrypt hash>"
func (c *Config) ParseMCPUsers() (auth.UserCredentials, error) {
	users := make(auth.UserCredentials)
	if c.MCPAuthUsers == "" {
		return users, nil
	}

	for _, pair := range strings.Split(c.MCPAuthUsers, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		idx := strings.Index(pair, ":")
		if idx < 0 {
			return nil, fmt.Errorf("invalid user entry (missing ':')")
		}

		username := pair[:idx]

		hash := pair[idx+1:]
		if username == "" || hash == "" {
			return nil, fmt.Errorf("empty username or password hash in entry %d", len(users)+1)
		}

		if !strings.HasPrefix(hash, "$2") {
			return nil, fmt.Errorf("password for %q must be a bcrypt hash (run hash-password)", username)
		}

		if _, dup := users[username]; dup {
			return nil, fmt.Errorf("duplicate username %q in MCP_AUTH_USERS", username)
		}

		users[username] = hash
	}

	return users, nil
}
