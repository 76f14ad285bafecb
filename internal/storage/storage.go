package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/dupscan/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrUnavailable is returned when the store cannot be reached or cannot
	// start a transaction. Callers treat it as fatal for the whole run.
	ErrUnavailable = errors.New("storage unavailable")
)

// Storage defines the interface for persisting and querying the chunk index
type Storage interface {
	// File operations
	GetFile(ctx context.Context, filePath string) (*File, error)
	ListFiles(ctx context.Context, workspace string) ([]*File, error)
	DeleteFile(ctx context.Context, filePath string) error

	// ReplaceFile atomically swaps the chunks stored for a file and updates
	// its modification time. On error nothing is written.
	ReplaceFile(ctx context.Context, req *ReplaceRequest) error
	ListChunksByFile(ctx context.Context, filePath string) ([]*types.Chunk, error)

	// Search operations
	SearchCandidates(ctx context.Context, q CandidateQuery) ([]Candidate, error)

	// Status operations
	ListWorkspaces(ctx context.Context) ([]string, error)
	GetStatus(ctx context.Context, workspace string) (*Status, error)

	// Database operations
	DeleteDatabase(ctx context.Context) error
	Close() error
}

// File is the tracked state of one source file
type File struct {
	ID            int64
	Workspace     string
	FilePath      string
	ModifiedAt    time.Time // millisecond precision
	SizeBytes     int64
	ContentHash   [32]byte
	ChunkCount    int
	LastIndexedAt time.Time
}

// ReplaceRequest carries everything ReplaceFile writes for one file.
// Every chunk must already hold its embedding.
type ReplaceRequest struct {
	Workspace   string
	FilePath    string
	ModifiedAt  time.Time
	SizeBytes   int64
	ContentHash [32]byte
	Chunks      []*types.Chunk
	WindowSize  int // when > 0, every chunk must span exactly this many lines
	Provider    string
	Model       string
}

// CandidateQuery selects chunk pairs of one workspace for similarity search
type CandidateQuery struct {
	Workspace   string
	MaxDistance float64 // cosine distance must be strictly below this
	WindowSize  int     // same-file pairs within this many lines are skipped
	Limit       int     // safety cap on returned pairs
}

// Candidate is a chunk pair whose cosine distance passed the coarse filter.
// A.ID < B.ID always holds.
type Candidate struct {
	A        types.Chunk
	B        types.Chunk
	Distance float64
}

// Status contains statistics about an indexed workspace
type Status struct {
	Workspace     string
	Backend       string
	BuildMode     string
	FilesCount    int
	ChunksCount   int
	Dimension     int // 0 until the first embedding is stored
	LastIndexedAt time.Time
	Health        HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible       bool
	VectorExtensionAvailable bool
}

// toMillis and fromMillis store timestamps as Unix milliseconds
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
