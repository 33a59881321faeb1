package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexjbarnes/ledger-upload/internal/auth"
	"github.com/alexjbarnes/ledger-upload/internal/mcpserver"
	"github.com/alexjbarnes/ledger-upload/internal/server"
	"github.com/alexjbarnes/ledger-upload/internal/watch"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
)

// serve runs the MCP HTTP server and the drop-folder watcher until ctx
// is cancelled.
func (a *app) serve(ctx context.Context) error {
	a.logger.Info("ledger-upload starting",
		slog.String("version", Version),
		slog.String("backend", a.cfg.BackendURL),
		slog.Bool("mcp", a.cfg.EnableMCP),
		slog.String("watch_dir", a.cfg.WatchDir),
	)

	if !a.cfg.EnableMCP && a.cfg.WatchDir == "" {
		return fmt.Errorf("nothing to serve: set ENABLE_MCP or WATCH_DIR")
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.EnableMCP {
		g.Go(func() error {
			return a.runMCP(gctx)
		})
	}

	if a.cfg.WatchDir != "" {
		g.Go(func() error {
			return a.runWatch(gctx)
		})
	}

	return g.Wait()
}

// runWatch uploads files dropped into WATCH_DIR. It has its own
// workflow so MCP clients never see dropped files in their pending set.
func (a *app) runWatch(ctx context.Context) error {
	logger := a.logger.With(slog.String("service", "watch"))

	w := watch.New(watch.Config{
		Dir:          a.cfg.WatchDir,
		Destinations: a.cfg.DefaultDestinations(),
		Prompter:     watch.PrompterForPolicy(a.cfg.WatchConflictPolicy),
	}, a.newWorkflow(nil, nil), logger)

	return w.Watch(ctx)
}

// runMCP starts the MCP HTTP server.
func (a *app) runMCP(ctx context.Context) error {
	mcpLogger := a.logger.With(slog.String("service", "mcp"))

	keys, err := a.cfg.ParseMCPAPIKeys()
	if err != nil {
		return fmt.Errorf("parsing MCP API keys: %w", err)
	}

	users, err := a.cfg.ParseMCPUsers()
	if err != nil {
		return fmt.Errorf("parsing MCP auth users: %w", err)
	}

	authenticator, err := auth.NewAuthenticator(keys, users, mcpLogger)
	if err != nil {
		return fmt.Errorf("building authenticator: %w", err)
	}

	if !authenticator.Enabled() {
		return fmt.Errorf("MCP requires MCP_API_KEYS or MCP_AUTH_USERS")
	}

	wf := a.newWorkflow(nil, nil)

	mcpServer := mcp.NewServer(
		&mcp.Implementation{Name: "ledger-upload", Version: Version},
		nil,
	)
	mcpserver.RegisterTools(mcpServer, mcpserver.Deps{
		Workflow: wf,
		History:  a.state,
		Explorer: a.cfg.Explorer(),
		Defaults: a.cfg.DefaultDestinations(),
		Logger:   mcpLogger,
	})

	mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	mux := server.NewMux(server.MuxConfig{
		Auth:       authenticator,
		MCPHandler: mcpHandler,
		Progress:   wf.Progress(),
		Logger:     mcpLogger,
	})

	srv := &http.Server{
		Addr:         a.cfg.MCPListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	mcpLogger.Info("starting MCP server",
		slog.String("listen", a.cfg.MCPListenAddr),
		slog.Int("api_keys", len(keys)),
		slog.Int("users", len(users)),
	)

	// Shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		mcpLogger.Info("shutting down MCP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("MCP server error: %w", err)
	}

	return nil
}
