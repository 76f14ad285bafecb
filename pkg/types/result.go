package types

import "errors"

// Result validation errors
var (
	ErrInvalidSimilarity = errors.New("similarity must be in (0, 1]")
	ErrNonCanonicalPair  = errors.New("pair must have chunk A id below chunk B id")
	ErrAdjacentPair      = errors.New("pair windows are adjacent in the same file")
	ErrGroupTooSmall     = errors.New("group must hold at least 2 chunks")
)

// SimilarityPair is two chunks whose embeddings are close enough to report.
// A is always the chunk with the lower ID.
type SimilarityPair struct {
	A          Chunk
	B          Chunk
	Similarity float64
}

// NewSimilarityPair orders the chunks canonically.
func NewSimilarityPair(a, b Chunk, similarity float64) SimilarityPair {
	if b.ID < a.ID {
		a, b = b, a
	}
	return SimilarityPair{A: a, B: b, Similarity: similarity}
}

// Adjacent reports whether both windows sit in the same file no more than
// window lines apart.
func (p *SimilarityPair) Adjacent(window int) bool {
	if p.A.FilePath != p.B.FilePath {
		return false
	}
	d := p.A.StartLine - p.B.StartLine
	if d < 0 {
		d = -d
	}
	return d <= window
}

// Validate checks the pair invariants for the given window size.
func (p *SimilarityPair) Validate(window int) error {
	if p.Similarity <= 0 || p.Similarity > 1 {
		return ErrInvalidSimilarity
	}
	if p.A.ID >= p.B.ID {
		return ErrNonCanonicalPair
	}
	if p.Adjacent(window) {
		return ErrAdjacentPair
	}
	return nil
}

// SimilarityGroup is a set of mutually similar chunks produced by merging
// pairs that share an endpoint.
type SimilarityGroup struct {
	Similarity float64 // similarity of the pair that seeded the group
	Chunks     []Chunk
}

// Validate checks the group holds at least two chunks.
func (g *SimilarityGroup) Validate() error {
	if len(g.Chunks) < 2 {
		return ErrGroupTooSmall
	}
	if g.Similarity <= 0 || g.Similarity > 1 {
		return ErrInvalidSimilarity
	}
	return nil
}

// Files returns the distinct file paths in the group, in chunk order.
func (g *SimilarityGroup) Files() []string {
	seen := make(map[string]bool, len(g.Chunks))
	files := make([]string, 0, len(g.Chunks))
	for _, c := range g.Chunks {
		if !seen[c.FilePath] {
			seen[c.FilePath] = true
			files = append(files, c.FilePath)
		}
	}
	return files
}
