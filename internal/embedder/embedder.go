package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/dshills/dupscan/pkg/types"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnknownProvider   = errors.New("unknown embedding provider")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// Embedder turns a batch of texts into one vector per text.
// Implementations preserve length and order and return vectors of
// Dimension() elements.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Provider() string
	Model() string
	Close() error
}

// Cache holds vectors keyed by the SHA-256 of the embedded text. Vectors are
// copied on the way in and out so callers may modify what they receive.
type Cache struct {
	lru *lru.Cache[string, []float32]
}

// NewCache returns a cache holding at most size vectors
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	// lru.New only fails for a non-positive size
	l, _ := lru.New[string, []float32](size)
	return &Cache{lru: l}
}

func (c *Cache) Get(key string) ([]float32, bool) {
	vec, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return slices.Clone(vec), true
}

func (c *Cache) Set(key string, vec []float32) {
	c.lru.Add(key, slices.Clone(vec))
}

func (c *Cache) Size() int { return c.lru.Len() }

func (c *Cache) Clear() { c.lru.Purge() }

// ComputeHash is the cache key for text
func ComputeHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ValidateBatch validates the texts of an embedding call
func ValidateBatch(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}

	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}

	return nil
}

// batchFunc calls a provider for texts that were not found in the cache.
type batchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// base carries what every provider shares: identity, cache, rate limit and
// retry policy.
type base struct {
	provider  string
	model     string
	dimension int
	cache     *Cache
	limiter   *rate.Limiter
	retry     RetryConfig
	maxBatch  int
}

func (b *base) Dimension() int   { return b.dimension }
func (b *base) Provider() string { return b.provider }
func (b *base) Model() string    { return b.model }

// embed serves texts from the cache and sends the misses to call in one
// batch, retrying with backoff. Results are checked for count and dimension.
func (b *base) embed(ctx context.Context, texts []string, call batchFunc) ([][]float32, error) {
	if err := ValidateBatch(texts); err != nil {
		return nil, err
	}
	if b.maxBatch > 0 && len(texts) > b.maxBatch {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, b.maxBatch)
	}

	out := make([][]float32, len(texts))
	hashes := make([]string, len(texts))
	missing := make([]string, 0, len(texts))
	missingIdx := make([]int, 0, len(texts))

	for i, text := range texts {
		hashes[i] = ComputeHash(text)
		if b.cache != nil {
			if vec, ok := b.cache.Get(hashes[i]); ok {
				out[i] = vec
				continue
			}
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := retryWithBackoff(ctx, b.retry, func() ([][]float32, error) {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return call(ctx, missing)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrProviderFailed, b.provider, err)
	}

	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts", types.ErrBatchMismatch, b.provider, len(vectors), len(missing))
	}

	for j, vec := range vectors {
		if b.dimension > 0 && len(vec) != b.dimension {
			return nil, fmt.Errorf("%w: %s returned %d, expected %d", types.ErrDimensionMismatch, b.provider, len(vec), b.dimension)
		}
		i := missingIdx[j]
		out[i] = vec
		if b.cache != nil {
			b.cache.Set(hashes[i], vec)
		}
	}

	return out, nil
}

// newLimiter returns nil when rps is not positive, meaning unlimited.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
