// Package storage persists the chunk index: tracked files, their line
// window chunks and one embedding per chunk.
//
// Two backends implement Storage:
//   - SQLiteStorage, the default, one database file per index
//   - PostgresStorage, PostgreSQL with the pgvector extension
//
// # Database Schema
//
// Tables:
//   - files: one row per tracked path with its modification time (Unix ms)
//   - chunks: line windows, foreign key to files
//   - embeddings: little-endian float32 vectors (SQLite only; PostgreSQL
//     keeps a vector column on chunks)
//   - meta: index settings such as the pinned embedding dimension
//
// SQLite schema versions are tracked in schema_version and compared with
// semver. PostgreSQL migrations are embedded SQL files applied with
// golang-migrate.
//
// # Replacing a File
//
// ReplaceFile is the only write path for chunks. It deletes the file's
// previous chunks, upserts the file row and inserts the new chunks with
// their embeddings inside one transaction:
//
//	err := store.ReplaceFile(ctx, &storage.ReplaceRequest{
//	    Workspace:  "/src/app",
//	    FilePath:   "/src/app/main.go",
//	    ModifiedAt: info.ModTime(),
//	    Chunks:     chunks,
//	    WindowSize: 5,
//	})
//
// The first stored embedding pins the index dimension. A chunk of any other
// dimension fails the whole replacement with types.ErrDimensionMismatch and
// nothing is written.
//
// # Candidate Search
//
// SearchCandidates returns every pair of chunks in a workspace whose cosine
// distance is below CandidateQuery.MaxDistance, skipping pairs from the same
// file whose start lines are within WindowSize of each other. Pairs are
// ordered by (A.ID, B.ID) and cut at Limit.
//
// # Build Tags
//
// CGO Build (sqlite_vec tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Distances computed by the sqlite-vec extension
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default, or purego tag):
//
//   - Uses modernc.org/sqlite driver
//
//   - Pairs compared in Go
//
//     CGO_ENABLED=0 go build -tags "purego"
package storage
