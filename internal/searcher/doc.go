// Package searcher turns the index into a short list of duplicated code.
//
// A search runs in three stages:
//
//  1. The store returns candidate chunk pairs of one workspace whose cosine
//     distance is below a coarse threshold (default 0.20), capped at
//     CandidateCap pairs.
//  2. RankPairs applies the policy: adjacent windows of the same file are
//     dropped, similarity is 1 - distance and must exceed MinSimilarity
//     (default 0.80), only the best pair per (file pair, line bucket) is
//     kept, and the survivors are sorted by similarity and cut at Limit.
//  3. MergeGroups coalesces pairs sharing a chunk into SimilarityGroups.
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store)
//
//	result, err := s.FindDuplicates(ctx, searcher.Options{
//	    Workspace: "/path/to/project",
//	})
//
//	for _, g := range result.Groups {
//	    fmt.Printf("%.2f %v\n", g.Similarity, g.Files())
//	}
//
// # Caching
//
// With Options.UseCache set, results are kept in an LRU cache keyed by the
// options. The indexer calls InvalidateCache after every run that wrote to
// the index.
package searcher
