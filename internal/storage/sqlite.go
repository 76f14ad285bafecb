package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dshills/dupscan/pkg/types"
)

const (
	// BackendSQLite names the SQLite backend in Status
	BackendSQLite = "sqlite"

	metaDimensionKey = "embedding_dimension"
)

// SQLiteStorage is the default Storage, one database file shared by every
// workspace. Which driver backs it is decided at build time.
type SQLiteStorage struct {
	db *sql.DB
}

var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
}

func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite has a single writer, and a ":memory:" database
	// lives only as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range sqlitePragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

// NewSQLiteStorage opens or creates the index at dbPath and migrates it
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnavailable, dbPath, err)
	}
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", dbPath, err)
	}
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction, committing on success and rolling back
// on any error. A transaction that cannot be started reports ErrUnavailable.
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: begin transaction: %v", ErrUnavailable, err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const fileColumns = `
	f.id, f.workspace, f.file_path, f.modified_at, f.size_bytes, f.content_hash, f.last_indexed_at,
	(SELECT COUNT(*) FROM chunks c WHERE c.file_id = f.id)
`

func scanFile(scan func(dest ...interface{}) error) (*File, error) {
	var (
		file          File
		modifiedAt    int64
		lastIndexedAt int64
		hash          []byte
	)
	if err := scan(&file.ID, &file.Workspace, &file.FilePath, &modifiedAt, &file.SizeBytes,
		&hash, &lastIndexedAt, &file.ChunkCount); err != nil {
		return nil, err
	}
	file.ModifiedAt = fromMillis(modifiedAt)
	file.LastIndexedAt = fromMillis(lastIndexedAt)
	copy(file.ContentHash[:], hash)
	return &file, nil
}

// getFileWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getFileWithQuerier(ctx context.Context, q querier, filePath string) (*File, error) {
	query := `SELECT ` + fileColumns + ` FROM files f WHERE f.file_path = ?`
	file, err := scanFile(q.QueryRowContext(ctx, query, filePath).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return file, nil
}

func (s *SQLiteStorage) GetFile(ctx context.Context, filePath string) (*File, error) {
	return s.getFileWithQuerier(ctx, s.db, filePath)
}

// ListFiles returns the tracked files of a workspace, or of every
// workspace when workspace is empty
func (s *SQLiteStorage) ListFiles(ctx context.Context, workspace string) ([]*File, error) {
	query := `SELECT ` + fileColumns + ` FROM files f`
	var args []interface{}
	if workspace != "" {
		query += ` WHERE f.workspace = ?`
		args = append(args, workspace)
	}
	query += ` ORDER BY f.file_path`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

// DeleteFile removes a file record together with its chunks and embeddings
func (s *SQLiteStorage) DeleteFile(ctx context.Context, filePath string) error {
	return s.withTx(ctx, func(q querier) error {
		if err := deleteChunksByPath(ctx, q, filePath); err != nil {
			return err
		}
		result, err := q.ExecContext(ctx, "DELETE FROM files WHERE file_path = ?", filePath)
		if err != nil {
			return fmt.Errorf("failed to delete file: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func deleteChunksByPath(ctx context.Context, q querier, filePath string) error {
	if _, err := q.ExecContext(ctx, `
		DELETE FROM embeddings WHERE chunk_id IN (
			SELECT c.id FROM chunks c JOIN files f ON c.file_id = f.id WHERE f.file_path = ?
		)`, filePath); err != nil {
		return fmt.Errorf("failed to delete embeddings: %w", err)
	}
	if _, err := q.ExecContext(ctx, `
		DELETE FROM chunks WHERE file_id IN (SELECT id FROM files WHERE file_path = ?)`, filePath); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// pinnedDimension reads the index embedding dimension, 0 when unset
func pinnedDimension(ctx context.Context, q querier) (int, error) {
	var value string
	err := q.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", metaDimensionKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read index dimension: %w", err)
	}
	return strconv.Atoi(value)
}

func pinDimension(ctx context.Context, q querier, dim int) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		metaDimensionKey, strconv.Itoa(dim))
	if err != nil {
		return fmt.Errorf("failed to pin index dimension: %w", err)
	}
	return nil
}

// ReplaceFile deletes the file's chunks, upserts its record and inserts
// the new chunks in one transaction
func (s *SQLiteStorage) ReplaceFile(ctx context.Context, req *ReplaceRequest) error {
	if err := validateReplace(req); err != nil {
		return err
	}

	var (
		fileID   int64
		chunkIDs = make([]int64, len(req.Chunks))
	)

	err := s.withTx(ctx, func(q querier) error {
		dim, err := pinnedDimension(ctx, q)
		if err != nil {
			return err
		}

		if err := deleteChunksByPath(ctx, q, req.FilePath); err != nil {
			return err
		}

		err = q.QueryRowContext(ctx, `
			INSERT INTO files (workspace, file_path, modified_at, size_bytes, content_hash, last_indexed_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(file_path) DO UPDATE SET
				workspace = excluded.workspace,
				modified_at = excluded.modified_at,
				size_bytes = excluded.size_bytes,
				content_hash = excluded.content_hash,
				last_indexed_at = excluded.last_indexed_at
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
				if err := pinDimension(ctx, q, dim); err != nil {
					return err
				}
			}
			if len(chunk.Embedding) != dim {
				return fmt.Errorf("chunk %d: %w: got %d, index uses %d",
					i, types.ErrDimensionMismatch, len(chunk.Embedding), dim)
			}

			result, err := q.ExecContext(ctx, `
				INSERT INTO chunks (file_id, workspace, start_line, end_line, content, content_hash)
				VALUES (?, ?, ?, ?, ?, ?)`,
				fileID, req.Workspace, chunk.StartLine, chunk.EndLine, chunk.Content, chunk.ContentHash[:])
			if err != nil {
				return fmt.Errorf("failed to insert chunk %d: %w", i, err)
			}
			id, err := result.LastInsertId()
			if err != nil {
				return err
			}

			if _, err := q.ExecContext(ctx, `
				INSERT INTO embeddings (chunk_id, vector, dimension, provider, model)
				VALUES (?, ?, ?, ?, ?)`,
				id, EncodeVector(chunk.Embedding), len(chunk.Embedding), req.Provider, req.Model); err != nil {
				return fmt.Errorf("failed to insert embedding %d: %w", i, err)
			}
			chunkIDs[i] = id
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

// validateReplace checks the request fields that do not need the database
func validateReplace(req *ReplaceRequest) error {
	if req == nil || req.FilePath == "" {
		return fmt.Errorf("%w: file path is required", types.ErrInvalidChunk)
	}
	if req.Workspace == "" {
		return types.ErrNoWorkspace
	}
	return nil
}

// ListChunksByFile returns the chunks of a file with their embeddings, by start line
func (s *SQLiteStorage) ListChunksByFile(ctx context.Context, filePath string) ([]*types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.file_id, c.workspace, f.file_path, c.start_line, c.end_line,
		       c.content, c.content_hash, e.vector
		FROM chunks c
		JOIN files f ON c.file_id = f.id
		LEFT JOIN embeddings e ON e.chunk_id = c.id
		WHERE f.file_path = ?
		ORDER BY c.start_line, c.id`, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []*types.Chunk
	for rows.Next() {
		var (
			chunk  types.Chunk
			hash   []byte
			vector []byte
		)
		if err := rows.Scan(&chunk.ID, &chunk.FileID, &chunk.Workspace, &chunk.FilePath,
			&chunk.StartLine, &chunk.EndLine, &chunk.Content, &hash, &vector); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		copy(chunk.ContentHash[:], hash)
		if vector != nil {
			chunk.Embedding = DecodeVector(vector)
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

// SearchCandidates returns chunk pairs of one workspace closer than
// q.MaxDistance, ordered by (A.ID, B.ID) and cut at q.Limit
func (s *SQLiteStorage) SearchCandidates(ctx context.Context, q CandidateQuery) ([]Candidate, error) {
	if q.Workspace == "" {
		return nil, types.ErrNoWorkspace
	}
	return searchCandidates(ctx, s.db, q)
}

// ListWorkspaces returns every workspace with tracked files
func (s *SQLiteStorage) ListWorkspaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT workspace FROM files ORDER BY workspace")
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

// GetStatus reports counts for one workspace, or for all when workspace is empty
func (s *SQLiteStorage) GetStatus(ctx context.Context, workspace string) (*Status, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	status := &Status{
		Workspace: workspace,
		Backend:   BackendSQLite,
		BuildMode: BuildMode,
		Health: HealthStatus{
			DatabaseAccessible:       true,
			VectorExtensionAvailable: VectorExtensionAvailable,
		},
	}

	where, args := "", []interface{}{}
	if workspace != "" {
		where, args = " WHERE workspace = ?", append(args, workspace)
	}

	var lastIndexed sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), MAX(last_indexed_at) FROM files"+where, args...).
		Scan(&status.FilesCount, &lastIndexed)
	if err != nil {
		return nil, fmt.Errorf("failed to count files: %w", err)
	}
	if lastIndexed.Valid {
		status.LastIndexedAt = fromMillis(lastIndexed.Int64)
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks"+where, args...).Scan(&status.ChunksCount); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	dim, err := pinnedDimension(ctx, s.db)
	if err != nil {
		return nil, err
	}
	status.Dimension = dim

	return status, nil
}

// DeleteDatabase drops every table and recreates an empty schema
func (s *SQLiteStorage) DeleteDatabase(ctx context.Context) error {
	if err := ResetSchema(ctx, s.db); err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}
	return nil
}
