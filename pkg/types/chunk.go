package types

import (
	"crypto/sha256"
	"fmt"
)

// DefaultWindowSize is the number of source lines covered by one chunk.
const DefaultWindowSize = 5

// Chunk is one normalized, fixed-size window of source lines together with
// its location and embedding.
type Chunk struct {
	// Identification (ID is zero until the chunk is persisted)
	ID        int64
	FileID    int64
	Workspace string
	FilePath  string

	// Location, 1-based and inclusive
	StartLine int
	EndLine   int

	// Content
	Content     string   // normalized window text
	ContentHash [32]byte // SHA-256 of Content

	Embedding []float32
}

// Lines returns the number of source lines the chunk spans.
func (c *Chunk) Lines() int {
	return c.EndLine - c.StartLine + 1
}

// ValidateContent checks the line range and content of the chunk
func (c *Chunk) ValidateContent() error {
	if c.Content == "" {
		return fmt.Errorf("%w: content cannot be empty", ErrInvalidChunk)
	}

	if c.StartLine <= 0 {
		return fmt.Errorf("%w: start line must be >= 1, got %d", ErrInvalidChunk, c.StartLine)
	}

	if c.StartLine > c.EndLine {
		return fmt.Errorf("%w: start line %d after end line %d", ErrInvalidChunk, c.StartLine, c.EndLine)
	}

	return nil
}

// Validate performs full validation of a chunk about to be persisted.
// windowSize <= 0 skips the span check.
func (c *Chunk) Validate(windowSize int) error {
	if err := c.ValidateContent(); err != nil {
		return err
	}

	if windowSize > 0 && c.Lines() != windowSize {
		return fmt.Errorf("%w: chunk spans %d lines, window is %d", ErrInvalidChunk, c.Lines(), windowSize)
	}

	if len(c.Embedding) == 0 {
		return fmt.Errorf("%w: embedding is required", ErrInvalidChunk)
	}

	var zeroHash [32]byte
	if c.ContentHash == zeroHash {
		return fmt.Errorf("%w: content hash must be computed", ErrInvalidChunk)
	}

	return nil
}

// ComputeContentHash computes the SHA-256 hash of the chunk content
func (c *Chunk) ComputeContentHash() {
	c.ContentHash = sha256.Sum256([]byte(c.Content))
}

// Location formats the chunk position as path:start-end.
func (c *Chunk) Location() string {
	return fmt.Sprintf("%s:%d-%d", c.FilePath, c.StartLine, c.EndLine)
}
