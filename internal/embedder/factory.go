package embedder

import (
	"fmt"
	"strings"
)

// Config holds embedder configuration
type Config struct {
	Provider          string // jina, openai, ollama, local; empty means detect
	APIKey            string
	Model             string
	BaseURL           string
	Dimension         int
	CacheSize         int
	RequestsPerSecond float64

	// Keys used when Provider is empty
	JinaAPIKey   string
	OpenAIAPIKey string
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := DetectProvider(cfg)
	if cfg.APIKey == "" {
		switch provider {
		case ProviderJina:
			cfg.APIKey = cfg.JinaAPIKey
		case ProviderOpenAI:
			cfg.APIKey = cfg.OpenAIAPIKey
		}
	}

	switch provider {
	case ProviderJina:
		return NewJinaProvider(cfg, cache)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg, cache)
	case ProviderOllama:
		return NewOllamaProvider(cfg, cache)
	case ProviderLocal:
		return NewLocalProvider(cfg, cache)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// DetectProvider returns the provider New would use for cfg.
// Priority:
// 1. cfg.Provider when set
// 2. jina, then openai, when their API key is present
// 3. local
func DetectProvider(cfg Config) string {
	if cfg.Provider != "" {
		return strings.ToLower(cfg.Provider)
	}

	if cfg.JinaAPIKey != "" {
		return ProviderJina
	}
	if cfg.OpenAIAPIKey != "" {
		return ProviderOpenAI
	}

	return ProviderLocal
}
