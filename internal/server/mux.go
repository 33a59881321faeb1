// Package server provides HTTP server construction for ledger-upload.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexjbarnes/ledger-upload/internal/auth"
	"github.com/alexjbarnes/ledger-upload/internal/metrics"
	"github.com/alexjbarnes/ledger-upload/internal/models"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// progressWriteTimeout bounds a single progress frame write so a stalled
// client cannot hold the subscription open.
const progressWriteTimeout = 5 * time.Second

// ProgressSource is the subset of upload.ProgressTracker the progress
// feed needs.
type ProgressSource interface {
	Snapshot() models.ProgressState
	Subscribe() (<-chan models.ProgressState, func())
}

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Auth       *auth.Authenticator
	MCPHandler http.Handler
	Progress   ProgressSource
	Logger     *slog.Logger

	// OriginPatterns are host patterns allowed to open the progress
	// websocket from a browser. Empty allows same-origin only.
	OriginPatterns []string
}

// NewMux builds the HTTP mux. /mcp and /progress require credentials;
// /metrics and /healthz are open.
func NewMux(cfg MuxConfig) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/mcp", cfg.Auth.Middleware(cfg.MCPHandler))
	mux.Handle("/progress", cfg.Auth.Middleware(progressHandler(cfg)))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}

// progressHandler streams ProgressState as JSON text frames: the
// current state on connect, then every change.
func progressHandler(cfg MuxConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.OriginPatterns,
		})
		if err != nil {
			cfg.Logger.Debug("progress websocket accept failed", slog.String("error", err.Error()))
			return
		}
		defer conn.CloseNow()

		updates, unsubscribe := cfg.Progress.Subscribe()
		defer unsubscribe()

		// The feed is write-only; CloseRead handles control frames and
		// cancels ctx when the client goes away.
		ctx := conn.CloseRead(r.Context())

		cfg.Logger.Debug("progress subscriber connected",
			slog.String("user_id", auth.RequestUserID(r.Context())),
		)

		if err := writeProgress(ctx, conn, cfg.Progress.Snapshot()); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				return
			case state, ok := <-updates:
				if !ok {
					conn.Close(websocket.StatusGoingAway, "")
					return
				}

				if err := writeProgress(ctx, conn, state); err != nil {
					return
				}
			}
		}
	}
}

func writeProgress(ctx context.Context, conn *websocket.Conn, state models.ProgressState) error {
	ctx, cancel := context.WithTimeout(ctx, progressWriteTimeout)
	defer cancel()

	return wsjson.Write(ctx, conn, state)
}
