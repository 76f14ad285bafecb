package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/dupscan/internal/config"
	"github.com/dshills/dupscan/internal/embedder"
	"github.com/dshills/dupscan/internal/searcher"
	"github.com/dshills/dupscan/internal/storage"
)

var (
	flagJSON    bool
	flagDB      string
	flagBackend string
	flagVerbose bool

	// shared by analyze and search
	flagLimit         int
	flagMinSimilarity float64
	flagPreview       int
)

var rootCmd = &cobra.Command{
	Use:   "dupscan",
	Short: "Find near-duplicate code blocks using embeddings",
	Long: `dupscan slides a fixed window over every source file in a workspace,
embeds each window and reports groups of windows whose embeddings are
nearly identical. Analysis is incremental: unchanged files are skipped.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "print machine-readable JSON instead of a report")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite index path (default ~/.dupscan/index.db or $DUPSCAN_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "index backend: sqlite or postgres (default $DUPSCAN_BACKEND)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log at debug level")
}

// app holds the dependencies of one command invocation
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  storage.Storage
	emb    embedder.Embedder
}

// loadConfig reads configuration and applies command-line overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.DBPath = flagDB
	}
	if flagBackend != "" {
		cfg.Backend = flagBackend
	}
	if flagVerbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp loads config and opens the index. The embedder is only built
// for commands that analyse files.
func openApp(ctx context.Context, withEmbedder bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	// Logs go to stderr; stdout carries reports and the MCP protocol
	logger := cfg.NewLogger(os.Stderr)

	if cfg.Backend == storage.BackendSQLite && cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, store: store}
	if withEmbedder {
		emb, err := embedder.New(cfg.EmbedderConfig())
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		a.emb = emb
		logger.Debug("embedder ready", "provider", emb.Provider(), "model", emb.Model(), "dimension", emb.Dimension())
	}
	return a, nil
}

func (a *app) Close() {
	if a.emb != nil {
		_ = a.emb.Close()
	}
	_ = a.store.Close()
}

// searchOptions applies --limit and --min-similarity to the workspace config.
// A fine threshold looser than the coarse cap widens the cap.
func searchOptions(cfg *config.Config, workspace string) searcher.Options {
	opts := cfg.SearchOptions(workspace)
	if flagLimit > 0 {
		opts.Limit = flagLimit
	}
	if flagMinSimilarity > 0 {
		opts.MinSimilarity = flagMinSimilarity
		if 1-flagMinSimilarity > opts.MaxDistance {
			opts.MaxDistance = 1 - flagMinSimilarity
		}
	}
	return opts
}

// addSearchFlags registers the flags shared by analyze and search
func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&flagLimit, "limit", 0, "maximum similar pairs merged into groups (default $DUPSCAN_RESULT_LIMIT)")
	cmd.Flags().Float64Var(&flagMinSimilarity, "min-similarity", 0, "report pairs strictly more similar than this (default $DUPSCAN_FINE_SIMILARITY)")
	cmd.Flags().IntVar(&flagPreview, "preview", 80, "characters of content shown per chunk (0 disables)")
}
