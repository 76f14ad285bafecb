package embedder

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Embedder using the OpenAI embeddings API
type OpenAIProvider struct {
	base
	client *openai.Client
}

// NewOpenAIProvider creates a new OpenAI embedder
func NewOpenAIProvider(cfg Config, cache *Cache) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai API key not set", ErrNoProviderEnabled)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = OpenAIDimension
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}

	return &OpenAIProvider{
		base: base{
			provider:  ProviderOpenAI,
			model:     model,
			dimension: dimension,
			cache:     cache,
			limiter:   newLimiter(cfg.RequestsPerSecond),
			retry:     DefaultRetryConfig(),
			maxBatch:  MaxBatchSize,
		},
		client: openai.NewClientWithConfig(clientCfg),
	}, nil
}

// Embed generates embeddings for texts
func (o *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return o.embed(ctx, texts, o.callAPI)
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(o.model),
		Dimensions: o.dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		idx := data.Index
		if idx < 0 || idx >= len(vectors) {
			idx = i
		}
		vectors[idx] = data.Embedding
	}

	return vectors, nil
}

func (o *OpenAIProvider) Close() error {
	return nil
}
