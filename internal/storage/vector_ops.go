package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dshills/dupscan/pkg/types"
)

// searchCandidates scores pairs inside SQLite when sqlite-vec is linked in
// and in Go otherwise. Both paths apply the same filters and ordering.
func searchCandidates(ctx context.Context, db *sql.DB, q CandidateQuery) ([]Candidate, error) {
	if VectorExtensionAvailable {
		return searchCandidatesOptimized(ctx, db, q)
	}
	return searchCandidatesFallback(ctx, db, q)
}

// searchCandidatesOptimized self-joins the workspace chunks and lets
// sqlite-vec compute the cosine distance of every pair
func searchCandidatesOptimized(ctx context.Context, db *sql.DB, q CandidateQuery) ([]Candidate, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = -1 // no limit
	}

	query := `
		SELECT
			a.id, a.file_id, fa.file_path, a.start_line, a.end_line, a.content,
			b.id, b.file_id, fb.file_path, b.start_line, b.end_line, b.content,
			vec_distance_cosine(ea.vector, eb.vector) AS distance
		FROM chunks a
		INNER JOIN embeddings ea ON ea.chunk_id = a.id
		INNER JOIN files fa ON fa.id = a.file_id
		INNER JOIN chunks b ON b.workspace = a.workspace AND b.id > a.id
		INNER JOIN embeddings eb ON eb.chunk_id = b.id
		INNER JOIN files fb ON fb.id = b.file_id
		WHERE a.workspace = ?
		  AND NOT (a.file_id = b.file_id AND abs(a.start_line - b.start_line) <= ?)
		  AND vec_distance_cosine(ea.vector, eb.vector) < ?
		ORDER BY a.id, b.id
		LIMIT ?
	`

	rows, err := db.QueryContext(ctx, query, q.Workspace, q.WindowSize, q.MaxDistance, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute candidate search: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return candidates, nil
}

// indexedChunk is a chunk loaded for brute-force comparison
type indexedChunk struct {
	chunk  types.Chunk
	vector []float32
	norm   float64
}

// searchCandidatesFallback loads every chunk of the workspace and compares
// all pairs in Go. This is used when sqlite-vec is not available (purego builds)
func searchCandidatesFallback(ctx context.Context, db *sql.DB, q CandidateQuery) ([]Candidate, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.id, c.file_id, f.file_path, c.start_line, c.end_line, c.content, e.vector
		FROM chunks c
		INNER JOIN embeddings e ON e.chunk_id = c.id
		INNER JOIN files f ON f.id = c.file_id
		WHERE c.workspace = ?
		ORDER BY c.id
	`, q.Workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}

	var chunks []indexedChunk
	for rows.Next() {
		var (
			ic   indexedChunk
			blob []byte
		)
		if err := rows.Scan(&ic.chunk.ID, &ic.chunk.FileID, &ic.chunk.FilePath,
			&ic.chunk.StartLine, &ic.chunk.EndLine, &ic.chunk.Content, &blob); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		ic.chunk.Workspace = q.Workspace
		ic.vector = DecodeVector(blob)
		ic.norm = vectorNorm(ic.vector)
		chunks = append(chunks, ic)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	return comparePairs(ctx, chunks, q)
}

// comparePairs emits every pair (i < j) below the distance threshold in
// (A.ID, B.ID) order, stopping at the limit
func comparePairs(ctx context.Context, chunks []indexedChunk, q CandidateQuery) ([]Candidate, error) {
	var candidates []Candidate
	for i := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a := &chunks[i]
		for j := i + 1; j < len(chunks); j++ {
			b := &chunks[j]
			if a.chunk.FileID == b.chunk.FileID && absInt(a.chunk.StartLine-b.chunk.StartLine) <= q.WindowSize {
				continue
			}

			distance := 1 - cosineWithNorms(a.vector, b.vector, a.norm, b.norm)
			if !(distance < q.MaxDistance) {
				continue
			}

			candidates = append(candidates, Candidate{A: a.chunk, B: b.chunk, Distance: distance})
			if q.Limit > 0 && len(candidates) >= q.Limit {
				return candidates, nil
			}
		}
	}
	return candidates, nil
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// EncodeVector packs v as little-endian float32, the layout sqlite-vec reads
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 0, 4*len(v))
	for _, x := range v {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(x))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector. Trailing bytes that do not
// form a whole float32 are ignored.
func DecodeVector(blob []byte) []float32 {
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return v
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosineWithNorms takes precomputed norms so the fallback scan computes each
// vector's norm once. Mismatched lengths and zero vectors score 0.
func cosineWithNorms(a, b []float32, normA, normB float64) float64 {
	if len(a) != len(b) || normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i, x := range a {
		dot += float64(x) * float64(b[i])
	}
	return dot / (normA * normB)
}

func CosineSimilarity(a, b []float32) float64 {
	return cosineWithNorms(a, b, vectorNorm(a), vectorNorm(b))
}

// CosineDistance matches sqlite-vec's vec_distance_cosine and pgvector's <=>
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}
