package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dshills/dupscan/pkg/types"
)

// newPostgresStorage starts a pgvector container and connects to it. The
// test is skipped in -short mode or when Docker is not available.
func newPostgresStorage(t *testing.T) *PostgresStorage {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:0.8.1-pg18",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "dupscan",
			"POSTGRES_PASSWORD": "dupscan",
			"POSTGRES_DB":       "dupscan",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	url := fmt.Sprintf("postgres://dupscan:dupscan@%s:%s/dupscan?sslmode=disable", host, port.Port())
	storage, err := NewPostgresStorage(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func TestPostgresStorage(t *testing.T) {
	storage := newPostgresStorage(t)
	ctx := context.Background()

	t.Run("replace and search", func(t *testing.T) {
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

		chunks, err := storage.ListChunksByFile(ctx, "/ws/a.go")
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		assert.Equal(t, []float32{1, 0, 0}, chunks[0].Embedding)
	})

	t.Run("dimension mismatch rolls back", func(t *testing.T) {
		before := takeSnapshot(t, storage, "/ws/b.go")

		err := storage.ReplaceFile(ctx, replaceReq("/ws/b.go", time.UnixMilli(9000),
			testChunk(1, "ok", 1, 0, 0),
			testChunk(2, "bad", 1, 0)))
		assert.ErrorIs(t, err, types.ErrDimensionMismatch)

		after := takeSnapshot(t, storage, "/ws/b.go")
		assert.Equal(t, before.file.ModifiedAt, after.file.ModifiedAt)
		assert.Equal(t, len(before.chunks), len(after.chunks))
	})

	t.Run("status", func(t *testing.T) {
		status, err := storage.GetStatus(ctx, testWorkspace)
		require.NoError(t, err)
		assert.Equal(t, BackendPostgres, status.Backend)
		assert.Equal(t, 3, status.FilesCount)
		assert.Equal(t, 5, status.ChunksCount)
		assert.Equal(t, 3, status.Dimension)
		assert.True(t, status.Health.VectorExtensionAvailable)
	})

	t.Run("delete file", func(t *testing.T) {
		require.NoError(t, storage.DeleteFile(ctx, "/ws/c.go"))
		assert.ErrorIs(t, storage.DeleteFile(ctx, "/ws/c.go"), ErrNotFound)
	})

	t.Run("delete database", func(t *testing.T) {
		require.NoError(t, storage.DeleteDatabase(ctx))
		workspaces, err := storage.ListWorkspaces(ctx)
		require.NoError(t, err)
		assert.Empty(t, workspaces)
	})
}
