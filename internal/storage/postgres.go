package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/dshills/dupscan/pkg/types"
)

const (
	// BackendPostgres names the PostgreSQL backend in Status
	BackendPostgres = "postgres"

	postgresBuildMode = "pgvector"
)

// PostgresStorage implements the Storage interface on PostgreSQL with the
// pgvector extension. Distances are computed by the <=> operator.
type PostgresStorage struct {
	pool *pgxpool.Pool
	url  string
}

// pgQuerier is implemented by both *pgxpool.Pool and pgx.Tx
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgresStorage connects to databaseURL, applies migrations and
// returns a ready store
func NewPostgresStorage(ctx context.Context, databaseURL string) (*PostgresStorage, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create connection pool: %v", ErrUnavailable, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %v", ErrUnavailable, err)
	}

	if err := runPostgresMigrations(databaseURL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStorage{pool: pool, url: databaseURL}, nil
}

// Close releases the connection pool
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStorage) withTx(ctx context.Context, fn func(q pgQuerier) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: begin transaction: %v", ErrUnavailable, err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const pgFileColumns = `
	f.id, f.workspace, f.file_path, f.modified_at, f.size_bytes, f.content_hash, f.last_indexed_at,
	(SELECT COUNT(*) FROM chunks c WHERE c.file_id = f.id)
`

func (s *PostgresStorage) GetFile(ctx context.Context, filePath string) (*File, error) {
	file, err := scanFile(s.pool.QueryRow(ctx,
		`SELECT `+pgFileColumns+` FROM files f WHERE f.file_path = $1`, filePath).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return file, nil
}

func (s *PostgresStorage) ListFiles(ctx context.Context, workspace string) ([]*File, error) {
	query := `SELECT ` + pgFileColumns + ` FROM files f`
	var args []any
	if workspace != "" {
		query += ` WHERE f.workspace = $1`
		args = append(args, workspace)
	}
	query += ` ORDER BY f.file_path`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		file, err := scanFile(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (s *PostgresStorage) DeleteFile(ctx context.Context, filePath string) error {
	return s.withTx(ctx, func(q pgQuerier) error {
		tag, err := q.Exec(ctx, "DELETE FROM files WHERE file_path = $1", filePath)
		if err != nil {
			return fmt.Errorf("failed to delete file: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func pgPinnedDimension(ctx context.Context, q pgQuerier) (int, error) {
	var value string
	err := q.QueryRow(ctx, "SELECT value FROM meta WHERE key = $1", metaDimensionKey).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read index dimension: %w", err)
	}
	return strconv.Atoi(value)
}

// ReplaceFile swaps the chunks of one file in a single transaction
func (s *PostgresStorage) ReplaceFile(ctx context.Context, req *ReplaceRequest) error {
	if err := validateReplace(req); err != nil {
		return err
	}

	var (
		fileID   int64
		chunkIDs = make([]int64, len(req.Chunks))
	)

	err := s.withTx(ctx, func(q pgQuerier) error {
		dim, err := pgPinnedDimension(ctx, q)
		if err != nil {
			return err
		}

		if _, err := q.Exec(ctx, `
			DELETE FROM chunks WHERE file_id IN (SELECT id FROM files WHERE file_path = $1)`,
			req.FilePath); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}

		err = q.QueryRow(ctx, `
			INSERT INTO files (workspace, file_path, modified_at, size_bytes, content_hash, last_indexed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (file_path) DO UPDATE SET
				workspace = EXCLUDED.workspace,
				modified_at = EXCLUDED.modified_at,
				size_bytes = EXCLUDED.size_bytes,
				content_hash = EXCLUDED.content_hash,
				last_indexed_at = EXCLUDED.last_indexed_at
			RETURNING id`,
			req.Workspace, req.FilePath, toMillis(req.ModifiedAt), req.SizeBytes, req.ContentHash[:],
			toMillis(time.Now())).Scan(&fileID)
		if err != nil {
			return fmt.Errorf("failed to upsert file: %w", err)
		}

		for i, chunk := range req.Chunks {
			if err := chunk.Validate(req.WindowSize); err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			if dim == 0 {
				dim = len(chunk.Embedding)
				if _, err := q.Exec(ctx, `
					INSERT INTO meta (key, value) VALUES ($1, $2)
					ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
					metaDimensionKey, strconv.Itoa(dim)); err != nil {
					return fmt.Errorf("failed to pin index dimension: %w", err)
				}
			}
			if len(chunk.Embedding) != dim {
				return fmt.Errorf("chunk %d: %w: got %d, index uses %d",
					i, types.ErrDimensionMismatch, len(chunk.Embedding), dim)
			}

			err := q.QueryRow(ctx, `
				INSERT INTO chunks (file_id, workspace, start_line, end_line, content, content_hash, embedding, provider, model)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				RETURNING id`,
				fileID, req.Workspace, chunk.StartLine, chunk.EndLine, chunk.Content, chunk.ContentHash[:],
				pgvector.NewVector(chunk.Embedding), req.Provider, req.Model).Scan(&chunkIDs[i])
			if err != nil {
				return fmt.Errorf("failed to insert chunk %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for i, chunk := range req.Chunks {
		chunk.ID = chunkIDs[i]
		chunk.FileID = fileID
		chunk.FilePath = req.FilePath
		chunk.Workspace = req.Workspace
	}
	return nil
}

func (s *PostgresStorage) ListChunksByFile(ctx context.Context, filePath string) ([]*types.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.file_id, c.workspace, f.file_path, c.start_line, c.end_line,
		       c.content, c.content_hash, c.embedding::text
		FROM chunks c
		JOIN files f ON c.file_id = f.id
		WHERE f.file_path = $1
		ORDER BY c.start_line, c.id`, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*types.Chunk
	for rows.Next() {
		var (
			chunk  types.Chunk
			hash   []byte
			vector string
		)
		if err := rows.Scan(&chunk.ID, &chunk.FileID, &chunk.Workspace, &chunk.FilePath,
			&chunk.StartLine, &chunk.EndLine, &chunk.Content, &hash, &vector); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		copy(chunk.ContentHash[:], hash)

		var v pgvector.Vector
		if err := v.Scan(vector); err != nil {
			return nil, fmt.Errorf("failed to parse embedding: %w", err)
		}
		chunk.Embedding = v.Slice()
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

// SearchCandidates self-joins the workspace chunks on the pgvector cosine
// distance operator
func (s *PostgresStorage) SearchCandidates(ctx context.Context, q CandidateQuery) ([]Candidate, error) {
	if q.Workspace == "" {
		return nil, types.ErrNoWorkspace
	}

	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT
			a.id, a.file_id, fa.file_path, a.start_line, a.end_line, a.content,
			b.id, b.file_id, fb.file_path, b.start_line, b.end_line, b.content,
			a.embedding <=> b.embedding AS distance
		FROM chunks a
		JOIN files fa ON fa.id = a.file_id
		JOIN chunks b ON b.workspace = a.workspace AND b.id > a.id
		JOIN files fb ON fb.id = b.file_id
		WHERE a.workspace = $1
		  AND NOT (a.file_id = b.file_id AND abs(a.start_line - b.start_line) <= $2)
		  AND (a.embedding <=> b.embedding) < $3
		ORDER BY a.id, b.id
		LIMIT $4`,
		q.Workspace, q.WindowSize, q.MaxDistance, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute candidate search: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(
			&c.A.ID, &c.A.FileID, &c.A.FilePath, &c.A.StartLine, &c.A.EndLine, &c.A.Content,
			&c.B.ID, &c.B.FileID, &c.B.FilePath, &c.B.StartLine, &c.B.EndLine, &c.B.Content,
			&c.Distance,
		); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		c.A.Workspace = q.Workspace
		c.B.Workspace = q.Workspace
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func (s *PostgresStorage) ListWorkspaces(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT DISTINCT workspace FROM files ORDER BY workspace")
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []string
	for rows.Next() {
		var ws string
		if err := rows.Scan(&ws); err != nil {
			return nil, err
		}
		workspaces = append(workspaces, ws)
	}
	return workspaces, rows.Err()
}

func (s *PostgresStorage) GetStatus(ctx context.Context, workspace string) (*Status, error) {
	if err := s.pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	status := &Status{
		Workspace: workspace,
		Backend:   BackendPostgres,
		BuildMode: postgresBuildMode,
		Health:    HealthStatus{DatabaseAccessible: true},
	}

	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')").
		Scan(&status.Health.VectorExtensionAvailable); err != nil {
		return nil, fmt.Errorf("failed to check vector extension: %w", err)
	}

	where, args := "", []any{}
	if workspace != "" {
		where, args = " WHERE workspace = $1", append(args, workspace)
	}

	var lastIndexed *int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*), MAX(last_indexed_at) FROM files"+where, args...).
		Scan(&status.FilesCount, &lastIndexed); err != nil {
		return nil, fmt.Errorf("failed to count files: %w", err)
	}
	if lastIndexed != nil {
		status.LastIndexedAt = fromMillis(*lastIndexed)
	}

	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM chunks"+where, args...).
		Scan(&status.ChunksCount); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	dim, err := pgPinnedDimension(ctx, s.pool)
	if err != nil {
		return nil, err
	}
	status.Dimension = dim

	return status, nil
}

// DeleteDatabase rolls the schema all the way down and back up
func (s *PostgresStorage) DeleteDatabase(ctx context.Context) error {
	if err := resetPostgresSchema(s.url); err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}
	return nil
}
