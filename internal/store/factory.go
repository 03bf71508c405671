package store

import (
	"context"
	"log/slog"
	"strings"
)

// Options selects and configures the backing store.
type Options struct {
	DatabaseURL  string
	SQLitePath   string
	EmbeddingDim int
	Logger       *slog.Logger
}

// NewStore picks postgres when a database URL is set, sqlite when a path is
// set, and the in-memory stub otherwise.
func NewStore(ctx context.Context, opts Options) (Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(opts.DatabaseURL) != "" {
		return NewPostgresStore(ctx, opts.DatabaseURL, opts.EmbeddingDim, logger)
	}
	if path := strings.TrimSpace(opts.SQLitePath); path != "" {
		return NewSQLiteStore(path, logger)
	}
	logger.Warn("no database configured, using in-memory store; history will not survive a restart")
	return NewInMemoryStore(), nil
}
