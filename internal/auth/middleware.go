package auth

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

type contextKey int

const (
	ctxUserID contextKey = iota
	ctxRemoteIP
)

// RequestUserID returns the authenticated user ID from the context, or "".
func RequestUserID(ctx context.Context) string {
	v, _ := ctx.Value(ctxUserID).(string)
	return v
}

// RequestRemoteIP returns the client IP from the context, or "".
func RequestRemoteIP(ctx context.Context) string {
	v, _ := ctx.Value(ctxRemoteIP).(string)
	return v
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

const wwwAuthenticate = `Bearer realm="ledger-upload", Basic realm="ledger-upload"`

// Middleware rejects requests without a valid API key (Authorization:
// Bearer lu_...) or basic-auth user. Repeated basic-auth failures from
// one IP are rate limited.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := remoteIP(r)
		header := r.Header.Get("Authorization")

		var user string

		switch {
		case strings.HasPrefix(header, "Bearer "):
			u, ok := a.CheckAPIKey(strings.TrimPrefix(header, "Bearer "))
			if !ok {
				a.logger.Debug("middleware: invalid API key",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				a.unauthorized(w)

				return
			}

			user = u

		case strings.HasPrefix(header, "Basic "):
			if a.limiter.check(ip) {
				a.logger.Warn("login rate limited", slog.String("ip", ip))
				http.Error(w, "too many failed login attempts, try again later", http.StatusTooManyRequests)

				return
			}

			username, password, ok := r.BasicAuth()
			if !ok || a.CheckPassword(username, password) != nil {
				a.logger.Warn("login failed",
					slog.String("username", username),
					slog.String("ip", ip),
				)
				a.limiter.record(ip)
				a.unauthorized(w)

				return
			}

			user = username

		default:
			a.logger.Debug("middleware: no credentials",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			a.unauthorized(w)

			return
		}

		a.logger.Debug("middleware: authenticated",
			slog.String("user_id", user),
			slog.String("ip", ip),
		)

		ctx := r.Context()
		ctx = context.WithValue(ctx, ctxUserID, user)
		ctx = context.WithValue(ctx, ctxRemoteIP, ip)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", wwwAuthenticate)
	w.WriteHeader(http.StatusUnauthorized)
}
