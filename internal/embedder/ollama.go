package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultOllamaURL is the address of a local Ollama server.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaProvider implements Embedder using a local Ollama server
type OllamaProvider struct {
	base
	baseURL    string
	httpClient *http.Client
}

// NewOllamaProvider creates a new Ollama embedder. The dimension must match
// the model; Ollama does not resize vectors.
func NewOllamaProvider(cfg Config, cache *Cache) (*OllamaProvider, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultOllamaModel
	}
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = LocalDimension
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}

	return &OllamaProvider{
		base: base{
			provider:  ProviderOllama,
			model:     model,
			dimension: dimension,
			cache:     cache,
			limiter:   newLimiter(cfg.RequestsPerSecond),
			retry:     DefaultRetryConfig(),
			maxBatch:  MaxBatchSize,
		},
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

// Embed generates embeddings for texts
func (o *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return o.embed(ctx, texts, o.callAPI)
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (o *OllamaProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var apiResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return apiResp.Embeddings, nil
}

func (o *OllamaProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}
