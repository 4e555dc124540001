package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/alexjbarnes/mdnotes/internal/config"
	"github.com/alexjbarnes/mdnotes/internal/github"
	"github.com/alexjbarnes/mdnotes/internal/logging"
	"github.com/alexjbarnes/mdnotes/internal/models"
	"github.com/alexjbarnes/mdnotes/internal/notes"
	"github.com/alexjbarnes/mdnotes/internal/state"
	"github.com/alexjbarnes/mdnotes/internal/tree"
)

// app holds everything a command needs. Close releases the state
// database lock.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	state  *state.State
	ws     *notes.Workspace
}

// openApp loads config, opens the state database and the content
// directory, and builds the workspace. Logs go to logOut; one-shot
// commands default to warnings only.
func openApp(logOut io.Writer, quiet bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level := cfg.LogLevel
	if level == "" && quiet {
		level = "warn"
	}

	logger := logging.NewLoggerTo(logOut, cfg.Environment, level)

	st, err := state.LoadAt(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}

	treeOpts := tree.Options{CascadeDelete: cfg.CascadeDelete}

	content, err := tree.LoadContent(cfg.ContentDir, treeOpts)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("loading content: %w", err)
	}

	client := github.New(github.Config{
		BaseURL: cfg.GitHubAPIURL,
		Branch:  cfg.GitHubBranch,
		Logger:  logger.With(slog.String("component", "github")),
	})

	ws, err := notes.New(notes.Options{
		Store:              st,
		Remote:             client,
		Credentials:        state.NewCredentialStore(st, cfg.CredentialsPassphrase),
		DefaultCredentials: models.Credentials{Token: cfg.GitHubToken, Repo: cfg.GitHubRepo},
		Content:            content,
		Prefix:             cfg.ContentPrefix,
		Tree:               treeOpts,
		Logger:             logger,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("opening workspace: %w", err)
	}

	logger.Debug("workspace ready",
		slog.String("content_dir", cfg.ContentDir),
		slog.String("state", cfg.StatePath),
		slog.Int("items", content.Len()),
	)

	return &app{cfg: cfg, logger: logger, state: st, ws: ws}, nil
}

func (a *app) Close() error {
	return a.state.Close()
}

// reload re-reads the content directory into the workspace.
func (a *app) reload() error {
	content, err := tree.LoadContent(a.cfg.ContentDir, tree.Options{CascadeDelete: a.cfg.CascadeDelete})
	if err != nil {
		return fmt.Errorf("loading content: %w", err)
	}

	return a.ws.Reload(content)
}
