package indexer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/dupscan/internal/chunker"
	"github.com/dshills/dupscan/internal/embedder"
	"github.com/dshills/dupscan/internal/storage"
	"github.com/dshills/dupscan/internal/walker"
	"github.com/dshills/dupscan/pkg/types"
)

// ErrAnalysisInProgress is returned when a second run starts while one is
// still writing to the index
var ErrAnalysisInProgress = errors.New("analysis already in progress")

// Defaults for Config
const (
	DefaultBatchSize = 10
	DefaultWorkers   = 4
)

// Indexer runs the incremental pipeline: stat -> read -> chunk -> embed -> replace
type Indexer struct {
	storage  storage.Storage
	embedder embedder.Embedder
	chunker  *chunker.Chunker
	logger   *slog.Logger

	batchSize   int
	workers     int
	maxFileSize int64
	walk        walker.Options

	lock *IndexLock
}

// Config contains configuration for the indexer
type Config struct {
	WindowSize int            // lines per chunk (default: types.DefaultWindowSize)
	BatchSize  int            // texts per embedding call (default: 10)
	Workers    int            // concurrent embedding calls per file (default: 4)
	Walk       walker.Options // include/exclude patterns and size cap
	Logger     *slog.Logger   // default: slog.Default()
	Lock       *IndexLock     // shared between indexers over the same store; default: private
}

// RunOptions controls one workspace run
type RunOptions struct {
	Force bool // reanalyse every file regardless of its modification time
	Prune bool // delete index entries for files no longer on disk
}

// Statistics summarizes one workspace run
type Statistics struct {
	RunID     string
	Workspace string
	Analyzed  int
	Skipped   int
	Failed    int
	Removed   int
	Chunks    int
	Duration  time.Duration
	Errors    []string
	Outcomes  []types.FileOutcome
}

// record folds one outcome into the totals
func (s *Statistics) record(o types.FileOutcome) {
	s.Outcomes = append(s.Outcomes, o)
	switch o.Status {
	case types.StatusAnalyzed:
		s.Analyzed++
		s.Chunks += o.Chunks
	case types.StatusSkipped:
		s.Skipped++
	case types.StatusFailed:
		s.Failed++
	}
	if o.Err != nil {
		s.Errors = append(s.Errors, o.Err.Error())
	}
}

// New creates a new Indexer instance
func New(store storage.Storage, emb embedder.Embedder, cfg Config) *Indexer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Lock == nil {
		cfg.Lock = &IndexLock{}
	}
	maxSize := cfg.Walk.MaxFileSize
	if maxSize <= 0 {
		maxSize = walker.DefaultMaxFileSize
	}

	return &Indexer{
		storage:     store,
		embedder:    emb,
		chunker:     chunker.New(cfg.WindowSize),
		logger:      cfg.Logger,
		batchSize:   cfg.BatchSize,
		workers:     cfg.Workers,
		maxFileSize: maxSize,
		walk:        cfg.Walk,
		lock:        cfg.Lock,
	}
}

// WindowSize returns the chunk window used by this indexer
func (idx *Indexer) WindowSize() int {
	return idx.chunker.WindowSize()
}

// Running reports whether a workspace run currently holds the index lock
func (idx *Indexer) Running() bool {
	return idx.lock.Held()
}

// AnalyzeWorkspace walks root and analyses every matching file in turn.
// Per-file failures are recorded in the statistics and never stop the run;
// store unavailability and cancellation do. The returned statistics are
// valid even when an error is returned.
func (idx *Indexer) AnalyzeWorkspace(ctx context.Context, root string, opts RunOptions) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrAnalysisInProgress
	}
	defer idx.lock.Release()

	startTime := time.Now()

	workspace, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}

	files, err := walker.Walk(ctx, workspace, idx.walk)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	sess, err := idx.NewSession(ctx, workspace)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{RunID: sess.ID, Workspace: workspace}
	logger := idx.logger.With("run", sess.ID, "workspace", workspace)
	logger.Info("analysis started", "files", len(files), "force", opts.Force)

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(startTime)
			logger.Warn("analysis cancelled", "analyzed", stats.Analyzed)
			return stats, err
		}
		seen[f.Path] = true

		outcome := idx.AnalyzeFile(ctx, sess, f.Path, opts.Force)
		stats.record(outcome)
		idx.logOutcome(logger, outcome)

		if errors.Is(outcome.Err, storage.ErrUnavailable) {
			stats.Duration = time.Since(startTime)
			return stats, fmt.Errorf("analysis aborted: %w", outcome.Err)
		}
	}

	if opts.Prune {
		if err := idx.prune(ctx, sess, seen, stats); err != nil {
			stats.Duration = time.Since(startTime)
			return stats, err
		}
	}

	stats.Duration = time.Since(startTime)
	logger.Info("analysis finished",
		"analyzed", stats.Analyzed,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"removed", stats.Removed,
		"chunks", stats.Chunks,
		"duration", stats.Duration)
	return stats, nil
}

// AnalyzeFile brings the index entry for one file up to date. It never
// panics on bad input; every problem is reported in the outcome.
func (idx *Indexer) AnalyzeFile(ctx context.Context, sess *Session, path string, force bool) types.FileOutcome {
	info, err := os.Stat(path)
	if err != nil {
		return types.SkippedWithError(path, types.ReasonStatError, types.NewFileError(path, types.OpStat, err))
	}
	if info.Size() > idx.maxFileSize {
		return types.Skipped(path, types.ReasonTooLarge)
	}

	modified := info.ModTime()
	if !force && !sess.IsStale(path, modified) {
		return types.Skipped(path, types.ReasonUnchanged)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return types.Failed(path, types.NewFileError(path, types.OpRead, err))
	}

	chunks, err := idx.chunker.ChunkFile(path, sess.Workspace, content)
	if err != nil {
		return types.Failed(path, err)
	}

	if err := idx.embedChunks(ctx, chunks); err != nil {
		return types.Failed(path, types.NewFileError(path, types.OpEmbed, err))
	}

	err = idx.storage.ReplaceFile(ctx, &storage.ReplaceRequest{
		Workspace:   sess.Workspace,
		FilePath:    path,
		ModifiedAt:  modified,
		SizeBytes:   info.Size(),
		ContentHash: sha256.Sum256(content),
		Chunks:      chunks,
		WindowSize:  idx.chunker.WindowSize(),
		Provider:    idx.embedder.Provider(),
		Model:       idx.embedder.Model(),
	})
	if err != nil {
		return types.Failed(path, types.NewFileError(path, types.OpReplace, err))
	}

	sess.markIndexed(path, modified)
	return types.Analyzed(path, len(chunks))
}

// embedChunks fills in chunk embeddings, running up to idx.workers
// batches of idx.batchSize at once. Each batch writes only its own slots.
func (idx *Indexer) embedChunks(ctx context.Context, chunks []*types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)

	for start := 0; start < len(chunks); start += idx.batchSize {
		end := min(start+idx.batchSize, len(chunks))
		batch := chunks[start:end]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Content
			}

			vectors, err := idx.embedder.Embed(gctx, texts)
			if err != nil {
				return err
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("%w: sent %d texts, got %d vectors", types.ErrBatchMismatch, len(batch), len(vectors))
			}
			for i, c := range batch {
				c.Embedding = vectors[i]
			}
			return nil
		})
	}

	return g.Wait()
}

// prune removes index entries for files of the workspace that were not
// seen on disk during this run
func (idx *Indexer) prune(ctx context.Context, sess *Session, seen map[string]bool, stats *Statistics) error {
	for _, path := range sess.Paths() {
		if seen[path] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		err := idx.storage.DeleteFile(ctx, path)
		switch {
		case err == nil:
			stats.Removed++
			sess.forget(path)
			idx.logger.Debug("pruned stale file", "path", path)
		case errors.Is(err, storage.ErrNotFound):
			sess.forget(path)
		case errors.Is(err, storage.ErrUnavailable):
			return fmt.Errorf("analysis aborted: %w", err)
		default:
			ferr := types.NewFileError(path, types.OpPrune, err)
			stats.Errors = append(stats.Errors, ferr.Error())
			idx.logger.Warn("failed to prune file", "path", path, "op", types.OpPrune, "error", err)
		}
	}
	return nil
}

func (idx *Indexer) logOutcome(logger *slog.Logger, o types.FileOutcome) {
	switch o.Status {
	case types.StatusAnalyzed:
		logger.Debug("file analyzed", "path", o.Path, "chunks", o.Chunks)
	case types.StatusSkipped:
		if o.Err != nil {
			logger.Warn("file skipped", "path", o.Path, "reason", o.Reason, "error", o.Err)
			return
		}
		logger.Debug("file skipped", "path", o.Path, "reason", o.Reason)
	case types.StatusFailed:
		op := ""
		var ferr *types.FileError
		if errors.As(o.Err, &ferr) {
			op = ferr.Op
		}
		logger.Warn("file failed", "path", o.Path, "op", op, "error", o.Err)
	}
}
