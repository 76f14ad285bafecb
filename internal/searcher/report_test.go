package searcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/dupscan/pkg/types"
)

func TestReport(t *testing.T) {
	a := chunk(1, "/ws/pkg/a.go", 3)
	a.Content = "func validate(input string) error { return nil }"
	b := chunk(2, "/ws/b.go", 10)
	b.Content = "short"
	outside := chunk(3, "/elsewhere/c.go", 1)

	groups := []types.SimilarityGroup{{Similarity: 0.97, Chunks: []types.Chunk{a, b, outside}}}

	reports := Report(groups, "/ws", 8)
	require.Len(t, reports, 1)

	rep := reports[0]
	assert.InDelta(t, 0.97, rep.Similarity, 1e-9)
	assert.Equal(t, 3, rep.Files)
	require.Len(t, rep.Chunks, 3)

	assert.Equal(t, ChunkRef{File: "pkg/a.go", StartLine: 3, EndLine: 7, Preview: "func val..."}, rep.Chunks[0])
	assert.Equal(t, ChunkRef{File: "b.go", StartLine: 10, EndLine: 14, Preview: "short"}, rep.Chunks[1])
	assert.Equal(t, "/elsewhere/c.go", rep.Chunks[2].File)
}

func TestReport_NoPreview(t *testing.T) {
	a := chunk(1, "a.go", 1)
	a.Content = "body"
	reports := Report([]types.SimilarityGroup{{Similarity: 0.9, Chunks: []types.Chunk{a, chunk(2, "b.go", 1)}}}, "", 0)

	require.Len(t, reports, 1)
	assert.Equal(t, "a.go", reports[0].Chunks[0].File)
	assert.Empty(t, reports[0].Chunks[0].Preview)
	assert.Empty(t, Report(nil, "/ws", 10))
}
