// Package types provides the domain types shared by dupscan components.
//
// # Core Types
//
// Chunk is a normalized window of source lines plus its embedding:
//
//	chunk := &types.Chunk{
//	    FilePath:  "/src/a.go",
//	    Workspace: "ws1",
//	    StartLine: 10,
//	    EndLine:   14,
//	    Content:   "func a() { return 1 }",
//	}
//	chunk.ComputeContentHash()
//
// SimilarityPair is a transient match between two chunks, always stored with
// the lower chunk ID first. SimilarityGroup is the merged result shown to
// users: two or more chunks with a representative similarity.
//
// # Outcomes
//
// Every file a run looks at produces a FileOutcome: Analyzed, Skipped or
// Failed. Runners aggregate outcomes instead of aborting on per-file errors.
//
// # Errors
//
// Per-file failures are wrapped in FileError, which carries the path and the
// operation. Sentinel errors (ErrUndecodable, ErrDimensionMismatch, ...) work
// with errors.Is through the wrapper.
package types
