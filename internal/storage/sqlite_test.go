package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/dupscan/pkg/types"
)

const testWorkspace = "/ws"

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func testChunk(start int, content string, vec ...float32) *types.Chunk {
	c := &types.Chunk{
		StartLine: start,
		EndLine:   start + types.DefaultWindowSize - 1,
		Content:   content,
		Embedding: vec,
	}
	c.ComputeContentHash()
	return c
}

func replaceReq(path string, modified time.Time, chunks ...*types.Chunk) *ReplaceRequest {
	return &ReplaceRequest{
		Workspace:  testWorkspace,
		FilePath:   path,
		ModifiedAt: modified,
		SizeBytes:  42,
		Chunks:     chunks,
		WindowSize: types.DefaultWindowSize,
		Provider:   "test",
		Model:      "test-model",
	}
}

func TestNewSQLiteStorage_File(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "index.db")
	storage, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	defer storage.Close()

	assert.FileExists(t, dbPath)
}

func TestReplaceFile_InsertsChunks(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	modified := time.UnixMilli(1700000000123)

	c1 := testChunk(1, "a b c", 1, 0, 0)
	c2 := testChunk(2, "b c d", 0, 1, 0)
	require.NoError(t, storage.ReplaceFile(ctx, replaceReq("/ws/a.go", modified, c1, c2)))

	assert.Greater(t, c1.ID, int64(0))
	assert.Greater(t, c2.ID, c1.ID)
	assert.Equal(t, c1.FileID, c2.FileID)
	assert.Equal(t, "/ws/a.go", c1.FilePath)
	assert.Equal(t, testWorkspace, c1.Workspace)

	file, err := storage.GetFile(ctx, "/ws/a.go")
	require.NoError(t, err)
	assert.Equal(t, modified.UnixMilli(), file.ModifiedAt.UnixMilli())
	assert.Equal(t, 2, file.ChunkCount)
	assert.Equal(t, int64(42), file.SizeBytes)
	assert.False(t, file.LastIndexedAt.IsZero())

	chunks, err := storage.ListChunksByFile(ctx, "/ws/a.go")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "a b c", chunks[0].Content)
	assert.Equal(t, []float32{1, 0, 0}, chunks[0].Embedding)
	assert.Equal(t, c1.ContentHash, chunks[0].ContentHash)
	assert.Equal(t, 2, chunks[1].StartLine)
}

func TestReplaceFile_ReplacesPreviousChunks(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	first := testChunk(1, "old", 1, 0, 0)
	require.NoError(t, storage.ReplaceFile(ctx, replaceReq("/ws/a.go", time.UnixMilli(1000), first,
		testChunk(2, "old two", 0, 1, 0))))

	second := testChunk(1, "new", 0, 0, 1)
	require.NoError(t, storage.ReplaceFile(ctx, replaceReq("/ws/a.go", time.UnixMilli(2000), second)))

	assert.Equal(t, first.FileID, second.FileID, "file row is updated in place")

	chunks, err := storage.ListChunksByFile(ctx, "/ws/a.go")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "new", chunks[0].Content)

	file, err := storage.GetFile(ctx, "/ws/a.go")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), file.ModifiedAt.UnixMilli())
	assert.Equal(t, 1, file.ChunkCount)
}

func TestReplaceFile_NoChunks(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, storage.ReplaceFile(ctx, replaceReq("/ws/short.go", time.UnixMilli(1000))))

	file, err := storage.GetFile(ctx, "/ws/short.go")
	require.NoError(t, err)
	assert.Equal(t, 0, file.ChunkCount)
}

// snapshot captures everything stored for one file
type snapshot struct {
	file   *File
	chunks []*types.Chunk
}

func takeSnapshot(t *testing.T, s Storage, path string) snapshot {
	t.Helper()
	ctx := context.Background()
	file, err := s.GetFile(ctx, path)
	require.NoError(t, err)
	chunks, err := s.ListChunksByFile(ctx, path)
	require.NoError(t, err)
	return snapshot{file: file, chunks: chunks}
}

func TestReplaceFile_DimensionMismatchRollsBack(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, storage.ReplaceFile(ctx, replaceReq("/ws/a.go", time.UnixMilli(1000),
		testChunk(1, "kept", 1, 0, 0))))
	before := takeSnapshot(t, storage, "/ws/a.go")

	err := storage.ReplaceFile(ctx, replaceReq("/ws/a.go", time.UnixMilli(5000),
		testChunk(1, "fine", 0, 1, 0),
		testChunk(2, "wrong size", 0, 1, 0, 0)))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)

	after := takeSnapshot(t, storage, "/ws/a.go")
	assert.Equal(t, before.file.ModifiedAt, after.file.ModifiedAt)
	assert.Equal(t, before.file.ChunkCount, after.file.ChunkCount)
	require.Len(t, after.chunks, 1)
	assert.Equal(t, "kept", after.chunks[0].Content)
	assert.Equal(t, before.chunks[0].ID, after.chunks[0].ID)
}

func TestReplaceFile_FailureLeavesNewFileUntracked(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	bad := testChunk(1, "bad span", 1, 0, 0)
	bad.EndLine = bad.StartLine + 1

	err := storage.ReplaceFile(ctx, replaceReq("/ws/new.go", time.UnixMilli(1000), bad))
	assert.ErrorIs(t, err, types.ErrInvalidChunk)
	assert.Zero(t, bad.ID, "ids are assigned only after commit")

	_, err = storage.GetFile(ctx, "/ws/new.go")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceFile_PinsDimension(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	status, err := storage.GetStatus(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, status.Dimension)

	require.NoError(t, storage.ReplaceFile(ctx, replaceReq("/ws/a.go", time.UnixMilli(1000),
		testChunk(1, "x", 1, 2, 3, 4))))

	status, err = storage.GetStatus(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, status.Dimension)

	err = storage.ReplaceFile(ctx, replaceReq("/ws/b.go", time.UnixMilli(1000),
		testChunk(1, "y", 1, 2, 3)))
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
}

func TestReplaceFile_Validation(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	req := replaceReq("/ws/a.go", time.UnixMilli(1000))
	req.Workspace = ""
	assert.ErrorIs(t, storage.ReplaceFile(ctx, req), types.ErrNoWorkspace)

	assert.ErrorIs(t, storage.ReplaceFile(ctx, nil), types.ErrInvalidChunk)

	noEmbedding := testChunk(1, "x")
	assert.ErrorIs(t, storage.ReplaceFile(ctx, replaceReq("/ws/a.go", time.UnixMilli(1000), noEmbedding)),
		types.ErrInvalidChunk)
}

func TestReplaceFile_ClosedDatabase(t *testing.T) {
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, storage.Close())

	err = storage.ReplaceFile(context.Background(), replaceReq("/ws/a.go", time.UnixMilli(1000),
		testChunk(1, "x", 1)))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestReplaceFile_CancelledContext(t *testing.T) {
	storage := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := storage.ReplaceFile(ctx, replaceReq("/ws/a.go", time.UnixMilli(1000), testChunk(1, "x", 1)))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = storage.GetFile(context.Background(), "/ws/a.go")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteFile(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, storage.ReplaceFile(ctx, replaceReq("/ws/a.go", time.UnixMilli(1000),
		testChunk(1, "x", 1, 0))))
	require.NoError(t, storage.DeleteFile(ctx, "/ws/a.go"))

	_, err := storage.GetFile(ctx, "/ws/a.go")
	assert.ErrorIs(t, err, ErrNotFound)

	chunks, err := storage.ListChunksByFile(ctx, "/ws/a.go")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	assert.ErrorIs(t, storage.DeleteFile(ctx, "/ws/a.go"), ErrNotFound)
}

func TestListFilesAndWorkspaces(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	for _, ws := range []string{"/one", "/two"} {
		for _, name := range []string{"b.go", "a.go"} {
			req := replaceReq(ws+"/"+name, time.UnixMilli(1000))
			req.Workspace = ws
			require.NoError(t, storage.ReplaceFile(ctx, req))
		}
	}

	files, err := storage.ListFiles(ctx, "/one")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "/one/a.go", files[0].FilePath)
	assert.Equal(t, "/one/b.go", files[1].FilePath)

	all, err := storage.ListFiles(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	workspaces, err := storage.ListWorkspaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/one", "/two"}, workspaces)
}

// seedCandidates stores a small workspace where:
//   - a.go:1 and b.go:1 are identical
//   - a.go:1 and a.go:6 are identical but adjacent
//   - a.go:1 and a.go:7 are identical and far enough apart
//   - c.go:1 is orthogonal to everything
func seedCandidates(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.ReplaceFile(ctx, replaceReq("/ws/a.go", time.UnixMilli(1000),
		testChunk(1, "dup", 1, 0, 0),
		testChunk(6, "dup adjacent", 1, 0, 0),
		testChunk(7, "dup far", 1, 0, 0))))
	require.NoError(t, s.ReplaceFile(ctx, replaceReq("/ws/b.go", time.UnixMilli(1000),
		testChunk(1, "dup other file", 1, 0, 0))))
	require.NoError(t, s.ReplaceFile(ctx, replaceReq("/ws/c.go", time.UnixMilli(1000),
		testChunk(1, "unrelated", 0, 0, 1))))
}

func pairKeys(candidates []Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = fmt.Sprintf("%s:%d-%s:%d", filepath.Base(c.A.FilePath), c.A.StartLine,
			filepath.Base(c.B.FilePath), c.B.StartLine)
	}
	return out
}

func TestSearchCandidates(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	seedCandidates(t, storage)

	candidates, err := storage.SearchCandidates(ctx, CandidateQuery{
		Workspace:   testWorkspace,
		MaxDistance: 0.5,
		WindowSize:  types.DefaultWindowSize,
		Limit:       100,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"a.go:1-a.go:7",
		"a.go:1-b.go:1",
		"a.go:6-b.go:1",
		"a.go:7-b.go:1",
	}, pairKeys(candidates))

	for i, c := range candidates {
		assert.Less(t, c.A.ID, c.B.ID)
		assert.InDelta(t, 0, c.Distance, 1e-6)
		assert.Equal(t, testWorkspace, c.A.Workspace)
		if i > 0 {
			prev := candidates[i-1]
			assert.True(t, prev.A.ID < c.A.ID || (prev.A.ID == c.A.ID && prev.B.ID < c.B.ID))
		}
	}
}

func TestSearchCandidates_Limit(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	seedCandidates(t, storage)

	candidates, err := storage.SearchCandidates(ctx, CandidateQuery{
		Workspace:   testWorkspace,
		MaxDistance: 0.5,
		WindowSize:  types.DefaultWindowSize,
		Limit:       2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go:1-a.go:7", "a.go:1-b.go:1"}, pairKeys(candidates))
}

func TestSearchCandidates_OtherWorkspace(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	seedCandidates(t, storage)

	candidates, err := storage.SearchCandidates(ctx, CandidateQuery{
		Workspace:   "/elsewhere",
		MaxDistance: 0.5,
		WindowSize:  types.DefaultWindowSize,
		Limit:       100,
	})
	require.NoError(t, err)
	assert.Empty(t, candidates)

	_, err = storage.SearchCandidates(ctx, CandidateQuery{MaxDistance: 0.5})
	assert.ErrorIs(t, err, types.ErrNoWorkspace)
}

func TestGetStatus(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	seedCandidates(t, storage)

	status, err := storage.GetStatus(ctx, testWorkspace)
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, status.Backend)
	assert.Equal(t, BuildMode, status.BuildMode)
	assert.Equal(t, 3, status.FilesCount)
	assert.Equal(t, 5, status.ChunksCount)
	assert.Equal(t, 3, status.Dimension)
	assert.True(t, status.Health.DatabaseAccessible)
	assert.Equal(t, VectorExtensionAvailable, status.Health.VectorExtensionAvailable)
	assert.False(t, status.LastIndexedAt.IsZero())

	empty, err := storage.GetStatus(ctx, "/none")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.FilesCount)
	assert.True(t, empty.LastIndexedAt.IsZero())
}

func TestDeleteDatabase(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	seedCandidates(t, storage)

	require.NoError(t, storage.DeleteDatabase(ctx))

	status, err := storage.GetStatus(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, status.FilesCount)
	assert.Equal(t, 0, status.ChunksCount)
	assert.Equal(t, 0, status.Dimension, "dimension is unpinned")

	// The schema is usable again
	require.NoError(t, storage.ReplaceFile(ctx, replaceReq("/ws/a.go", time.UnixMilli(1000),
		testChunk(1, "x", 1, 2))))
}

func TestMigrations(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	v, err := currentVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())

	require.NoError(t, RollbackMigration(ctx, storage.db))
	v, err = currentVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v.String())

	require.NoError(t, ApplyMigrations(ctx, storage.db))
	v, err = currentVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())

	// Applying again is a no-op
	require.NoError(t, ApplyMigrations(ctx, storage.db))

	for range AllMigrations {
		require.NoError(t, RollbackMigration(ctx, storage.db))
	}
	assert.ErrorIs(t, RollbackMigration(ctx, storage.db), ErrNotFound)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Options{Backend: "sqlite"})
	assert.Error(t, err)

	_, err = Open(ctx, Options{Backend: "postgres"})
	assert.Error(t, err)

	_, err = Open(ctx, Options{Backend: "mongo"})
	assert.Error(t, err)
}
