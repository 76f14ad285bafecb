package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/dupscan/internal/storage"
	"github.com/dshills/dupscan/pkg/types"
)

// Defaults for the similarity policy
const (
	DefaultMaxDistance   = 0.20
	DefaultMinSimilarity = 0.80
	DefaultBucketSize    = 5
	DefaultCandidateCap  = 100000
	DefaultLimit         = 50

	cacheEntries = 256
)

// ErrInvalidOptions is returned for thresholds or sizes out of range
var ErrInvalidOptions = errors.New("invalid search options")

// Options controls one duplicate search over a workspace
type Options struct {
	Workspace     string
	MaxDistance   float64 // coarse filter, cosine distance strictly below
	MinSimilarity float64 // fine filter, similarity strictly above
	WindowSize    int     // same-file pairs closer than this are adjacent
	BucketSize    int     // line bucket for structural dedup
	CandidateCap  int     // safety cap on candidate pairs
	Limit         int     // pairs returned after ranking
	UseCache      bool
}

// withDefaults fills every zero field with its default
func (o Options) withDefaults() Options {
	if o.MaxDistance == 0 {
		o.MaxDistance = DefaultMaxDistance
	}
	if o.MinSimilarity == 0 {
		o.MinSimilarity = DefaultMinSimilarity
	}
	if o.WindowSize == 0 {
		o.WindowSize = types.DefaultWindowSize
	}
	if o.BucketSize == 0 {
		o.BucketSize = DefaultBucketSize
	}
	if o.CandidateCap == 0 {
		o.CandidateCap = DefaultCandidateCap
	}
	if o.Limit == 0 {
		o.Limit = DefaultLimit
	}
	return o
}

// Validate checks options after defaults have been applied
func (o Options) Validate() error {
	if o.Workspace == "" {
		return types.ErrNoWorkspace
	}
	if o.MaxDistance <= 0 || o.MaxDistance >= 1 {
		return fmt.Errorf("%w: max distance %.2f outside (0, 1)", ErrInvalidOptions, o.MaxDistance)
	}
	if o.MinSimilarity <= 0 || o.MinSimilarity >= 1 {
		return fmt.Errorf("%w: min similarity %.2f outside (0, 1)", ErrInvalidOptions, o.MinSimilarity)
	}
	if o.WindowSize < 0 || o.BucketSize < 0 || o.CandidateCap < 0 || o.Limit < 0 {
		return fmt.Errorf("%w: sizes must not be negative", ErrInvalidOptions)
	}
	return nil
}

// Result holds the ranked pairs and merged groups of one search
type Result struct {
	Workspace  string
	Pairs      []types.SimilarityPair
	Groups     []types.SimilarityGroup
	Candidates int  // candidate pairs read from the store
	Truncated  bool // the candidate cap was reached
	Duration   time.Duration
	CacheHit   bool
}

// Searcher runs duplicate searches against a store and caches results
// until the index changes
type Searcher struct {
	storage storage.Storage
	cache   *lru.Cache[[32]byte, *Result]
	cacheMu sync.RWMutex
}

// NewSearcher creates a new Searcher instance
func NewSearcher(store storage.Storage) *Searcher {
	cache, err := lru.New[[32]byte, *Result](cacheEntries)
	if err != nil {
		// This should never happen with valid size parameter
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	return &Searcher{
		storage: store,
		cache:   cache,
	}
}

// FindDuplicates searches one workspace for duplicated windows, ranks the
// pairs and merges them into groups. Errors return no partial result.
func (s *Searcher) FindDuplicates(ctx context.Context, opts Options) (*Result, error) {
	startTime := time.Now()

	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	key := cacheKey(opts)
	if opts.UseCache {
		if cached := s.checkCache(key); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	candidates, err := s.storage.SearchCandidates(ctx, storage.CandidateQuery{
		Workspace:   opts.Workspace,
		MaxDistance: opts.MaxDistance,
		WindowSize:  opts.WindowSize,
		Limit:       opts.CandidateCap,
	})
	if err != nil {
		return nil, fmt.Errorf("candidate search failed: %w", err)
	}

	pairs := RankPairs(candidates, opts)
	result := &Result{
		Workspace:  opts.Workspace,
		Pairs:      pairs,
		Groups:     MergeGroups(pairs),
		Candidates: len(candidates),
		Truncated:  opts.CandidateCap > 0 && len(candidates) >= opts.CandidateCap,
	}
	result.Duration = time.Since(startTime)

	if opts.UseCache {
		s.storeInCache(key, result)
	}
	return result, nil
}

// InvalidateCache drops every cached result. Call after the index changes.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

func (s *Searcher) checkCache(key [32]byte) *Result {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	entry, found := s.cache.Get(key)
	if !found {
		return nil
	}
	return copyResult(entry)
}

func (s *Searcher) storeInCache(key [32]byte, result *Result) {
	s.cacheMu.Lock()
	s.cache.Add(key, copyResult(result))
	s.cacheMu.Unlock()
}

// copyResult deep copies the slices of a result. Chunk embeddings are
// shared; nothing in this package mutates them.
func copyResult(src *Result) *Result {
	dst := *src
	dst.Pairs = append([]types.SimilarityPair(nil), src.Pairs...)
	dst.Groups = make([]types.SimilarityGroup, len(src.Groups))
	for i, g := range src.Groups {
		dst.Groups[i] = types.SimilarityGroup{
			Similarity: g.Similarity,
			Chunks:     append([]types.Chunk(nil), g.Chunks...),
		}
	}
	return &dst
}

// cacheKey hashes every option that changes the result
func cacheKey(o Options) [32]byte {
	data := fmt.Sprintf("%s|%g|%g|%d|%d|%d|%d",
		o.Workspace, o.MaxDistance, o.MinSimilarity, o.WindowSize, o.BucketSize, o.CandidateCap, o.Limit)
	return sha256.Sum256([]byte(data))
}
