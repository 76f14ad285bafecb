package chunker

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dshills/dupscan/pkg/types"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	tagGap        = regexp.MustCompile(`>\s+<`)
)

// Window is one sliding window position over a file's lines.
type Window struct {
	StartLine int // 1-based
	EndLine   int // inclusive
	Text      string
}

// Chunker cuts source text into fixed-size overlapping line windows
type Chunker struct {
	windowSize int
}

// New creates a Chunker. A window size <= 0 selects types.DefaultWindowSize.
func New(windowSize int) *Chunker {
	if windowSize <= 0 {
		windowSize = types.DefaultWindowSize
	}
	return &Chunker{windowSize: windowSize}
}

// WindowSize returns the number of lines per chunk
func (c *Chunker) WindowSize() int {
	return c.windowSize
}

// Chunk returns the normalized text of every window [i, i+w) for i in
// [0, lines-w]. Fewer lines than the window yields an empty slice.
func Chunk(text string, windowSize int) ([]string, error) {
	if windowSize <= 0 {
		return nil, types.ErrInvalidWindow
	}

	windows := slide(SplitLines(text), windowSize)
	out := make([]string, len(windows))
	for i, w := range windows {
		out[i] = w.Text
	}
	return out, nil
}

// Windows returns the windows of text with their line ranges.
func (c *Chunker) Windows(text string) []Window {
	return slide(SplitLines(text), c.windowSize)
}

// ChunkFile decodes raw file bytes and builds the chunks to persist for it.
// Windows whose normalized text is empty carry nothing to compare and are
// left out. Embeddings are filled in later by the caller.
func (c *Chunker) ChunkFile(filePath, workspace string, content []byte) ([]*types.Chunk, error) {
	if !utf8.Valid(content) {
		return nil, types.NewFileError(filePath, types.OpDecode, types.ErrUndecodable)
	}

	text := strings.TrimPrefix(string(content), "\uFEFF")
	windows := c.Windows(text)

	chunks := make([]*types.Chunk, 0, len(windows))
	for _, w := range windows {
		if w.Text == "" {
			continue
		}
		chunk := &types.Chunk{
			Workspace: workspace,
			FilePath:  filePath,
			StartLine: w.StartLine,
			EndLine:   w.EndLine,
			Content:   w.Text,
		}
		chunk.ComputeContentHash()
		if err := chunk.ValidateContent(); err != nil {
			return nil, types.NewFileError(filePath, types.OpChunk, fmt.Errorf("window at line %d: %w", w.StartLine, err))
		}
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

// slide builds the windows over already split lines
func slide(lines []string, windowSize int) []Window {
	if len(lines) < windowSize {
		return []Window{}
	}

	windows := make([]Window, 0, len(lines)-windowSize+1)
	for i := 0; i+windowSize <= len(lines); i++ {
		windows = append(windows, Window{
			StartLine: i + 1,
			EndLine:   i + windowSize,
			Text:      Normalize(strings.Join(lines[i:i+windowSize], "\n")),
		})
	}
	return windows
}

// SplitLines splits text on "\n". A trailing newline produces a final empty line.
func SplitLines(text string) []string {
	return strings.Split(text, "\n")
}

// Normalize collapses whitespace runs to one space, removes whitespace
// between adjacent tags ("> <" becomes "><") and trims the result.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = tagGap.ReplaceAllString(s, "><")
	return strings.TrimSpace(s)
}

// ComputeChunkHash computes the SHA-256 hash for a chunk's content
func ComputeChunkHash(content string) [32]byte {
	return sha256.Sum256([]byte(content))
}
