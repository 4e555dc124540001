// Package server provides the HTTP API for mdnotes.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alexjbarnes/mdnotes/internal/auth"
	"github.com/alexjbarnes/mdnotes/internal/notes"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// MuxConfig holds dependencies for building the HTTP router.
type MuxConfig struct {
	Workspace  *notes.Workspace
	Keys       *auth.KeyStore
	MCPHandler http.Handler
	Logger     *slog.Logger
}

// NewMux builds the router: /health unauthenticated, the JSON API under
// /api and the MCP endpoint at /mcp, both behind the API-key middleware.
func NewMux(cfg MuxConfig) chi.Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	h := &handler{ws: cfg.Workspace, logger: cfg.Logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(cfg.Logger))

	r.Get("/health", h.health)

	authMiddleware := auth.Middleware(cfg.Keys, cfg.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware)

		r.Get("/tree", h.tree)
		r.Post("/notes", h.createNote)
		r.Get("/notes/{id}", h.getNote)
		r.Patch("/notes/{id}", h.updateNote)
		r.Post("/folders", h.createFolder)
		r.Delete("/items", h.deleteItem)
		r.Get("/changes", h.changes)
		r.Get("/changes/diff", h.diff)
		r.Post("/sync", h.sync)
		r.Post("/reconcile", h.reconcile)
		r.Get("/credentials", h.credentialStatus)
		r.Put("/credentials", h.setCredentials)
		r.Get("/search", h.search)
		r.Get("/tags", h.tags)
		r.Get("/routes", h.routes)
		r.Get("/events", h.events)
	})

	if cfg.MCPHandler != nil {
		r.With(authMiddleware).Handle("/mcp", cfg.MCPHandler)
	}

	return r
}

// requestLogger logs one line per request at debug level.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Debug("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
