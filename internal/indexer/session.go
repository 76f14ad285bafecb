package indexer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Session is the state private to one workspace run: the modification
// times the index holds for the workspace, loaded once at run start and
// updated as files are written. It is discarded when the run ends.
type Session struct {
	ID        string
	Workspace string
	StartedAt time.Time

	mtimes map[string]time.Time
}

// NewSession loads the file records of workspace into a fresh session
func (idx *Indexer) NewSession(ctx context.Context, workspace string) (*Session, error) {
	files, err := idx.storage.ListFiles(ctx, workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to load file records: %w", err)
	}

	sess := &Session{
		ID:        uuid.NewString(),
		Workspace: workspace,
		StartedAt: time.Now(),
		mtimes:    make(map[string]time.Time, len(files)),
	}
	for _, f := range files {
		sess.mtimes[f.FilePath] = f.ModifiedAt
	}
	return sess, nil
}

// IsStale reports whether path must be reanalysed: it has no record, or
// its on-disk modification time is newer than the recorded one. Times are
// compared at millisecond resolution; equal means unchanged.
func (s *Session) IsStale(path string, modified time.Time) bool {
	recorded, ok := s.mtimes[path]
	if !ok {
		return true
	}
	return modified.UnixMilli() > recorded.UnixMilli()
}

// Paths returns the recorded file paths in sorted order
func (s *Session) Paths() []string {
	paths := make([]string, 0, len(s.mtimes))
	for p := range s.mtimes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (s *Session) markIndexed(path string, modified time.Time) {
	s.mtimes[path] = modified
}

func (s *Session) forget(path string) {
	delete(s.mtimes, path)
}
