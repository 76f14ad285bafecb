package storage

import (
	"context"
	"fmt"
)

// Options selects and locates a storage backend
type Options struct {
	Backend string // "sqlite" (default) or "postgres"
	Path    string // SQLite database file, or ":memory:"
	URL     string // PostgreSQL connection string
}

// Open returns the Storage named by opts.Backend
func Open(ctx context.Context, opts Options) (Storage, error) {
	switch opts.Backend {
	case "", BackendSQLite:
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite backend requires a database path")
		}
		return NewSQLiteStorage(opts.Path)
	case BackendPostgres:
		if opts.URL == "" {
			return nil, fmt.Errorf("postgres backend requires a database URL")
		}
		return NewPostgresStorage(ctx, opts.URL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
