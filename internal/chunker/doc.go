// Package chunker splits source text into fixed-size, overlapping line
// windows and normalizes each window for embedding.
//
// # Basic Usage
//
//	c := chunker.New(5)
//	chunks, err := c.ChunkFile("/path/to/file.js", "ws1", raw)
//	if err != nil {
//	    return err
//	}
//
//	for _, chunk := range chunks {
//	    fmt.Printf("%s %q\n", chunk.Location(), chunk.Content)
//	}
//
// The pure form returns only the normalized strings:
//
//	texts, err := chunker.Chunk(text, 5)
//
// # Windows
//
// A file with n lines yields max(0, n-w+1) windows; window i covers lines
// i+1 through i+w. Lines are split on "\n" only, so "\r" is treated as
// whitespace by the normalizer.
//
// # Normalization
//
// Whitespace runs collapse to a single space, whitespace between adjacent
// angle-bracket tags is removed and the result is trimmed. No parsing is
// done, so the chunker works the same for every language.
package chunker
