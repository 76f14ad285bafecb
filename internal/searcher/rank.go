package searcher

import (
	"sort"

	"github.com/dshills/dupscan/internal/storage"
	"github.com/dshills/dupscan/pkg/types"
)

// bucketKey identifies one structural dedup bucket: an unordered file pair
// and the line bucket of the earlier window
type bucketKey struct {
	fileLo, fileHi string
	line           int
}

func newBucketKey(p *types.SimilarityPair, bucketSize int) bucketKey {
	lo, hi := p.A.FilePath, p.B.FilePath
	if hi < lo {
		lo, hi = hi, lo
	}
	start := min(p.A.StartLine, p.B.StartLine)
	if bucketSize > 0 {
		start = (start / bucketSize) * bucketSize
	}
	return bucketKey{fileLo: lo, fileHi: hi, line: start}
}

// RankPairs turns coarse candidates into the final pair list:
//  1. drop adjacent same-file windows
//  2. similarity = 1 - distance, keep similarity > MinSimilarity
//  3. keep the best pair per bucket
//  4. sort by similarity descending and cut at Limit
//
// Ties are broken by (A.ID, B.ID) so the output is deterministic.
func RankPairs(candidates []storage.Candidate, opts Options) []types.SimilarityPair {
	opts = opts.withDefaults()

	best := make(map[bucketKey]int)
	var kept []types.SimilarityPair

	for _, c := range candidates {
		similarity := 1 - c.Distance
		if similarity > 1 {
			similarity = 1
		}
		if !(similarity > opts.MinSimilarity) {
			continue
		}

		pair := types.NewSimilarityPair(c.A, c.B, similarity)
		if pair.A.ID == pair.B.ID || pair.Adjacent(opts.WindowSize) {
			continue
		}

		key := newBucketKey(&pair, opts.BucketSize)
		if idx, ok := best[key]; ok {
			if pairLess(&pair, &kept[idx]) {
				kept[idx] = pair
			}
			continue
		}
		best[key] = len(kept)
		kept = append(kept, pair)
	}

	sort.Slice(kept, func(i, j int) bool {
		return pairLess(&kept[i], &kept[j])
	})

	if opts.Limit > 0 && len(kept) > opts.Limit {
		kept = kept[:opts.Limit]
	}
	return kept
}

// pairLess orders by similarity descending, then by chunk ids
func pairLess(a, b *types.SimilarityPair) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	if a.A.ID != b.A.ID {
		return a.A.ID < b.A.ID
	}
	return a.B.ID < b.B.ID
}
