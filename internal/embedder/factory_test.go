package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name           string
		cfg            Config
		expectedResult string
	}{
		{"explicit jina provider", Config{Provider: "jina"}, ProviderJina},
		{"explicit openai provider", Config{Provider: "OpenAI"}, ProviderOpenAI},
		{"explicit ollama provider", Config{Provider: "ollama"}, ProviderOllama},
		{"explicit local provider", Config{Provider: "local", JinaAPIKey: "k"}, ProviderLocal},
		{"jina key present", Config{JinaAPIKey: "k"}, ProviderJina},
		{"openai key present", Config{OpenAIAPIKey: "k"}, ProviderOpenAI},
		{"jina preferred over openai", Config{JinaAPIKey: "k", OpenAIAPIKey: "k"}, ProviderJina},
		{"no keys", Config{}, ProviderLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedResult, DetectProvider(tt.cfg))
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("local", func(t *testing.T) {
		emb, err := New(Config{Provider: "local", CacheSize: 10})
		require.NoError(t, err)
		assert.Equal(t, ProviderLocal, emb.Provider())
		assert.Equal(t, LocalDimension, emb.Dimension())
	})

	t.Run("openai from detected key", func(t *testing.T) {
		emb, err := New(Config{OpenAIAPIKey: "sk-test", Dimension: 384})
		require.NoError(t, err)
		assert.Equal(t, ProviderOpenAI, emb.Provider())
		assert.Equal(t, 384, emb.Dimension())
	})

	t.Run("jina without key", func(t *testing.T) {
		_, err := New(Config{Provider: "jina"})
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})

	t.Run("ollama defaults", func(t *testing.T) {
		emb, err := New(Config{Provider: "ollama"})
		require.NoError(t, err)
		assert.Equal(t, DefaultOllamaModel, emb.Model())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(Config{Provider: "nope"})
		assert.ErrorIs(t, err, ErrUnknownProvider)
	})
}
