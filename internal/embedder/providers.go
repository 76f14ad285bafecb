package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
	ProviderOllama = "ollama"

	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultOllamaModel = "all-minilm"
	DefaultLocalModel  = "local-feature-hash"

	// Native output sizes; OpenAI and Jina accept a smaller requested dimension.
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	DefaultBatchSize = 10
	MaxBatchSize     = 100 // per provider call
	DefaultCacheSize = 10000

	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0

	jinaEndpoint = "https://api.jina.ai/v1/embeddings"
)

// JinaProvider implements Embedder using the Jina AI API
type JinaProvider struct {
	base
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewJinaProvider creates a new Jina AI embedder
func NewJinaProvider(cfg Config, cache *Cache) (*JinaProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: jina API key not set", ErrNoProviderEnabled)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultJinaModel
	}
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = JinaDimension
	}
	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = jinaEndpoint
	}

	return &JinaProvider{
		base: base{
			provider:  ProviderJina,
			model:     model,
			dimension: dimension,
			cache:     cache,
			limiter:   newLimiter(cfg.RequestsPerSecond),
			retry:     DefaultRetryConfig(),
			maxBatch:  MaxBatchSize,
		},
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Embed generates embeddings for texts
func (j *JinaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return j.embed(ctx, texts, j.callAPI)
}

type jinaRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions"`
}

type jinaResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (j *JinaProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(jinaRequest{Model: j.model, Input: texts, Dimensions: j.dimension})
	if err != nil {
		return nil, fmt.Errorf("jina: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("jina: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+j.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jina: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(msg)}
	}

	var out jinaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("jina: decode response: %w", err)
	}

	// Results carry their input index; fall back to position when it is out of range.
	vectors := make([][]float32, len(out.Data))
	for pos, d := range out.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			pos = d.Index
		}
		vectors[pos] = d.Embedding
	}
	return vectors, nil
}

func (j *JinaProvider) Close() error {
	j.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider embeds text offline by feature hashing tokens and token
// bigrams into a fixed number of buckets. Identical texts map to identical
// vectors and texts sharing most tokens map to close vectors.
type LocalProvider struct {
	base
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(cfg Config, cache *Cache) (*LocalProvider, error) {
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = LocalDimension
	}
	model := cfg.Model
	if model == "" {
		model = DefaultLocalModel
	}

	return &LocalProvider{
		base: base{
			provider:  ProviderLocal,
			model:     model,
			dimension: dimension,
			cache:     cache,
			retry:     RetryConfig{MaxRetries: 1},
		},
	}, nil
}

// Embed generates embeddings for texts
func (l *LocalProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return l.embed(ctx, texts, func(ctx context.Context, missing []string) ([][]float32, error) {
		vectors := make([][]float32, len(missing))
		for i, text := range missing {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			vectors[i] = l.hashText(text)
		}
		return vectors, nil
	})
}

func (l *LocalProvider) hashText(text string) []float32 {
	vector := make([]float32, l.dimension)
	tokens := tokenize(text)

	add := func(feature string, weight float32) {
		h := xxhash.Sum64String(feature)
		idx := h % uint64(l.dimension)
		if h>>63 == 1 {
			weight = -weight
		}
		vector[idx] += weight
	}

	for i, tok := range tokens {
		add(tok, 1)
		if i > 0 {
			add(tokens[i-1]+"\x00"+tok, 0.5)
		}
	}

	return NormalizeVector(vector)
}

func (l *LocalProvider) Close() error { return nil }

// tokenize splits text into identifier/number runs and single punctuation
// characters. Whitespace separates tokens and is dropped.
func tokenize(text string) []string {
	tokens := make([]string, 0, len(text)/3)
	start := -1
	for i, r := range text {
		word := unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
		if word {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, text[start:i])
			start = -1
		}
		if !unicode.IsSpace(r) {
			tokens = append(tokens, string(r))
		}
	}
	if start >= 0 {
		tokens = append(tokens, text[start:])
	}
	return tokens
}

// NormalizeVector returns v scaled to unit length. A zero vector is
// returned unchanged.
func NormalizeVector(v []float32) []float32 {
	norm := 0.0
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}

	scale := 1 / math.Sqrt(norm)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * scale)
	}
	return out
}
