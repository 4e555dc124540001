package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/alexjbarnes/mdnotes/internal/auth"
	"github.com/alexjbarnes/mdnotes/internal/mcpserver"
	"github.com/alexjbarnes/mdnotes/internal/server"
	"github.com/alexjbarnes/mdnotes/internal/watcher"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

func newMCPServer(a *app) *mcp.Server {
	s := mcp.NewServer(
		&mcp.Implementation{Name: "mdnotes", Version: Version},
		nil,
	)
	mcpserver.RegisterTools(s, a.ws)

	return s
}

// runServe serves the HTTP API and MCP endpoint and keeps the content
// baseline fresh until ctx is cancelled.
func runServe(ctx context.Context, watch bool) error {
	a, err := openApp(os.Stdout, false)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.cfg.ParseAPIKeys()
	if err != nil {
		return fmt.Errorf("parsing API keys: %w", err)
	}

	keys := auth.NewKeyStore(entries)
	if !keys.Enabled() {
		a.logger.Warn("API_KEYS is empty, the HTTP API is unauthenticated")
	}

	mcpServer := newMCPServer(a)
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	srv := &http.Server{
		Addr: a.cfg.ListenAddr,
		Handler: server.NewMux(server.MuxConfig{
			Workspace:  a.ws,
			Keys:       keys,
			MCPHandler: mcpHandler,
			Logger:     a.logger.With(slog.String("service", "http")),
		}),
		ReadTimeout: 30 * time.Second,
		// Websocket event streams outlive any write timeout.
		IdleTimeout: 120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting server",
			slog.String("listen", a.cfg.ListenAddr),
			slog.Int("api_keys", len(entries)),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	if watch {
		g.Go(func() error {
			w := watcher.New(a.cfg.ContentDir, watcher.DefaultDebounce, a.logger.With(slog.String("service", "watcher")))

			err := w.Watch(gctx, func(context.Context) {
				if err := a.reload(); err != nil {
					a.logger.Warn("content reload failed", slog.String("error", err.Error()))
				}
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		})
	}

	return g.Wait()
}

// runMCP serves the MCP tools over stdio. stdout belongs to the
// protocol, so logs go to stderr.
func runMCP(ctx context.Context) error {
	a, err := openApp(os.Stderr, false)
	if err != nil {
		return err
	}
	defer a.Close()

	a.logger.Info("serving MCP over stdio")

	if err := newMCPServer(a).Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("running MCP server: %w", err)
	}

	return nil
}
