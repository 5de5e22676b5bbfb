// Package app wires the workspace pieces shared by the CLI and the server:
// environment, config, logging and the record provider.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"workinbox/internal/config"
	"workinbox/internal/db"
	"workinbox/internal/inbox"
	"workinbox/internal/migrate"
	"workinbox/internal/provider"
	"workinbox/internal/repo"
)

// Provider sources.
const (
	SourceSample = "sample"
	SourceStore  = "store"
	SourceFile   = "file"
)

// LoadEnv reads <workspace>/.env when present. Variables already set in
// the process environment win.
func LoadEnv(workspace string) error {
	if workspace == "" {
		workspace = "."
	}
	path := filepath.Join(workspace, ".env")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// NewLogger builds a slog logger. Format is text or json; level is
// debug, info, warn or error.
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		lvl = slog.LevelInfo
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// ResolveConfig loads the workspace config, or the explicit file when
// path is set. A workspace without inbox.yml gets the defaults.
func ResolveConfig(workspace, path string) (*config.Config, error) {
	if path != "" {
		return config.FromFile(path)
	}
	return config.LoadOptional(workspace)
}

// OpenStore opens and migrates the workspace snapshot store.
func OpenStore(ctx context.Context, workspace string) (*sql.DB, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// NewProvider returns the provider for source. The returned closer
// releases the store when one was opened and is never nil.
func NewProvider(ctx context.Context, source, workspace, file string) (inbox.Provider, func() error, error) {
	noop := func() error { return nil }
	switch source {
	case "", SourceSample:
		return provider.Sample(), noop, nil
	case SourceFile:
		if file == "" {
			return nil, noop, fmt.Errorf("source %s requires a snapshot file", SourceFile)
		}
		return provider.File{Path: file}, noop, nil
	case SourceStore:
		conn, err := OpenStore(ctx, workspace)
		if err != nil {
			return nil, noop, err
		}
		return repo.Repo{DB: conn}, conn.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown source %q (want %s, %s or %s)", source, SourceSample, SourceStore, SourceFile)
}

// NewAggregator builds an aggregator over p using cfg and logger.
func NewAggregator(cfg *config.Config, p inbox.Provider, logger *slog.Logger) inbox.Aggregator {
	agg := inbox.New(cfg, p)
	if logger != nil {
		agg.Logger = logger
	}
	return agg
}
