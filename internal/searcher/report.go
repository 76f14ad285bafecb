package searcher

import (
	"path/filepath"
	"strings"

	"github.com/dshills/dupscan/pkg/types"
)

// ChunkRef locates one member of a duplicate group
type ChunkRef struct {
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Preview   string `json:"preview,omitempty"`
}

// GroupReport is the presentation form of a SimilarityGroup shared by the
// CLI and the MCP tools
type GroupReport struct {
	Similarity float64    `json:"similarity"`
	Files      int        `json:"files"`
	Chunks     []ChunkRef `json:"chunks"`
}

// Report converts groups for display. Paths under workspace are made
// relative to it. previewLen > 0 attaches the first previewLen runes of
// each chunk's normalized content.
func Report(groups []types.SimilarityGroup, workspace string, previewLen int) []GroupReport {
	out := make([]GroupReport, 0, len(groups))
	for i := range groups {
		g := &groups[i]
		rep := GroupReport{
			Similarity: g.Similarity,
			Files:      len(g.Files()),
			Chunks:     make([]ChunkRef, 0, len(g.Chunks)),
		}
		for _, c := range g.Chunks {
			rep.Chunks = append(rep.Chunks, ChunkRef{
				File:      relativePath(workspace, c.FilePath),
				StartLine: c.StartLine,
				EndLine:   c.EndLine,
				Preview:   preview(c.Content, previewLen),
			})
		}
		out = append(out, rep)
	}
	return out
}

func relativePath(workspace, path string) string {
	if workspace == "" {
		return path
	}
	rel, err := filepath.Rel(workspace, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func preview(content string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(content)
	if len(runes) <= n {
		return content
	}
	return string(runes[:n]) + "..."
}
