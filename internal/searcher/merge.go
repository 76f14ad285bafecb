package searcher

import "github.com/dshills/dupscan/pkg/types"

// MergeGroups coalesces ranked pairs that share a chunk into groups.
//
// Each pair starts as its own cluster, in input order. For every cluster i
// still holding two or more chunks, each later cluster j holding exactly two
// chunks is examined: if j's first chunk is already in i, j's second chunk
// joins i; if j's second chunk is in i, j's first chunk joins i. A cluster
// that gave up a chunk is emptied and dropped.
//
// This is a single forward pass. Pairs (A,B),(B,C),(C,D) give one group
// [A B C D] but (A,B),(C,D),(B,C) give [A B C] and [C D], because (C,D) is
// examined before (B,C) has joined C to the first cluster.
//
// The input is not modified.
func MergeGroups(pairs []types.SimilarityPair) []types.SimilarityGroup {
	clusters := make([][]types.Chunk, len(pairs))
	for i, p := range pairs {
		clusters[i] = []types.Chunk{p.A, p.B}
	}

	for i := range clusters {
		if len(clusters[i]) < 2 {
			continue
		}

		members := make(map[int64]bool, len(clusters[i]))
		for _, c := range clusters[i] {
			members[c.ID] = true
		}

		for j := i + 1; j < len(clusters); j++ {
			if len(clusters[j]) != 2 {
				continue
			}
			first, second := clusters[j][0], clusters[j][1]
			hasFirst, hasSecond := members[first.ID], members[second.ID]
			if !hasFirst && !hasSecond {
				continue
			}

			if hasFirst && !members[second.ID] {
				clusters[i] = append(clusters[i], second)
				members[second.ID] = true
			}
			if hasSecond && !members[first.ID] {
				clusters[i] = append(clusters[i], first)
				members[first.ID] = true
			}
			clusters[j] = nil
		}
	}

	var groups []types.SimilarityGroup
	for i, chunks := range clusters {
		if len(chunks) < 2 {
			continue
		}
		groups = append(groups, types.SimilarityGroup{
			Similarity: pairs[i].Similarity,
			Chunks:     chunks,
		})
	}
	return groups
}
