package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/dupscan/pkg/types"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

// dataResponse writes an OpenAI/Jina style response with one vector per input.
func dataResponse(t *testing.T, w http.ResponseWriter, r *http.Request, dim int) {
	t.Helper()
	var req struct {
		Input []string `json:"input"`
	}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

	data := make([]map[string]interface{}, len(req.Input))
	for i := range req.Input {
		vec := make([]float32, dim)
		vec[i%dim] = 1
		data[i] = map[string]interface{}{
			"object":    "embedding",
			"index":     i,
			"embedding": vec,
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"object": "list",
		"model":  "test-model",
		"data":   data,
	})
}

func TestJinaProvider(t *testing.T) {
	t.Run("successful batch", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			dataResponse(t, w, r, 8)
		}))
		defer server.Close()

		provider, err := NewJinaProvider(Config{APIKey: "test-key", BaseURL: server.URL, Dimension: 8}, NewCache(10))
		require.NoError(t, err)
		defer provider.Close()

		vecs, err := provider.Embed(context.Background(), []string{"a", "b", "c"})
		require.NoError(t, err)
		require.Len(t, vecs, 3)
		assert.Equal(t, float32(1), vecs[2][2])
		assert.Equal(t, int32(1), calls.Load())

		// served from cache
		_, err = provider.Embed(context.Background(), []string{"b", "a"})
		require.NoError(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := NewJinaProvider(Config{}, nil)
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				http.Error(w, "busy", http.StatusServiceUnavailable)
				return
			}
			dataResponse(t, w, r, 4)
		}))
		defer server.Close()

		provider, err := NewJinaProvider(Config{APIKey: "k", BaseURL: server.URL, Dimension: 4}, nil)
		require.NoError(t, err)
		provider.retry = fastRetry()

		vecs, err := provider.Embed(context.Background(), []string{"x"})
		require.NoError(t, err)
		assert.Len(t, vecs, 1)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer server.Close()

		provider, err := NewJinaProvider(Config{APIKey: "k", BaseURL: server.URL, Dimension: 4}, nil)
		require.NoError(t, err)
		provider.retry = fastRetry()

		_, err = provider.Embed(context.Background(), []string{"x"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("client error is not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "bad key", http.StatusUnauthorized)
		}))
		defer server.Close()

		provider, err := NewJinaProvider(Config{APIKey: "k", BaseURL: server.URL, Dimension: 4}, nil)
		require.NoError(t, err)
		provider.retry = fastRetry()

		_, err = provider.Embed(context.Background(), []string{"x"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Contains(t, err.Error(), "401")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("wrong dimension", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			dataResponse(t, w, r, 3)
		}))
		defer server.Close()

		provider, err := NewJinaProvider(Config{APIKey: "k", BaseURL: server.URL, Dimension: 4}, nil)
		require.NoError(t, err)

		_, err = provider.Embed(context.Background(), []string{"x"})
		assert.ErrorIs(t, err, types.ErrDimensionMismatch)
	})
}

func TestOpenAIProvider(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		dataResponse(t, w, r, 6)
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Dimension: 6}, nil)
	require.NoError(t, err)
	defer provider.Close()

	assert.Equal(t, ProviderOpenAI, provider.Provider())
	assert.Equal(t, DefaultOpenAIModel, provider.Model())
	assert.Equal(t, 6, provider.Dimension())

	vecs, err := provider.Embed(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, float32(1), vecs[1][1])
	assert.Equal(t, int32(1), calls.Load())

	_, err = NewOpenAIProvider(Config{}, nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestOllamaProvider(t *testing.T) {
	t.Run("embed endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/embed", r.URL.Path)

			var req ollamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "nomic", req.Model)

			resp := ollamaEmbedResponse{Embeddings: make([][]float32, len(req.Input))}
			for i := range req.Input {
				resp.Embeddings[i] = []float32{float32(i), 1}
			}
			_ = json.NewEncoder(w).Encode(resp)
		}))
		defer server.Close()

		provider, err := NewOllamaProvider(Config{BaseURL: server.URL + "/", Model: "nomic", Dimension: 2}, nil)
		require.NoError(t, err)
		defer provider.Close()

		vecs, err := provider.Embed(context.Background(), []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{0, 1}, {1, 1}}, vecs)
	})

	t.Run("batch size mismatch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1, 0}}})
		}))
		defer server.Close()

		provider, err := NewOllamaProvider(Config{BaseURL: server.URL, Dimension: 2}, nil)
		require.NoError(t, err)

		_, err = provider.Embed(context.Background(), []string{"a", "b"})
		assert.ErrorIs(t, err, types.ErrBatchMismatch)
	})
}

func TestBatchTooLarge(t *testing.T) {
	provider, err := NewJinaProvider(Config{APIKey: "k"}, nil)
	require.NoError(t, err)

	texts := make([]string, MaxBatchSize+1)
	for i := range texts {
		texts[i] = fmt.Sprintf("t%d", i)
	}
	_, err = provider.Embed(context.Background(), texts)
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestRateLimiter(t *testing.T) {
	assert.Nil(t, newLimiter(0))
	assert.Nil(t, newLimiter(-1))

	l := newLimiter(0.5)
	require.NotNil(t, l)
	assert.Equal(t, 1, l.Burst())
}

func TestRetryWithBackoff(t *testing.T) {
	t.Run("succeeds after transient error", func(t *testing.T) {
		callCount := 0
		result, err := retryWithBackoff(context.Background(), fastRetry(), func() (string, error) {
			callCount++
			if callCount < 2 {
				return "", fmt.Errorf("transient error")
			}
			return "success", nil
		})
		assert.NoError(t, err)
		assert.Equal(t, "success", result)
		assert.Equal(t, 2, callCount)
	})

	t.Run("returns last error", func(t *testing.T) {
		callCount := 0
		_, err := retryWithBackoff(context.Background(), fastRetry(), func() (bool, error) {
			callCount++
			return false, fmt.Errorf("error %d", callCount)
		})
		assert.Error(t, err)
		assert.Equal(t, 3, callCount)
		assert.Contains(t, err.Error(), "error 3")
	})

	t.Run("context cancellation during retry", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		config := RetryConfig{
			MaxRetries: 10,
			BaseDelay:  50 * time.Millisecond,
			MaxDelay:   100 * time.Millisecond,
			Multiplier: 2.0,
		}

		callCount := 0
		_, err := retryWithBackoff(ctx, config, func() (string, error) {
			callCount++
			if callCount == 2 {
				cancel()
			}
			return "", fmt.Errorf("error")
		})
		assert.Equal(t, context.Canceled, err)
		assert.LessOrEqual(t, callCount, 3)
	})

	t.Run("zero retries still calls once", func(t *testing.T) {
		callCount := 0
		v, err := retryWithBackoff(context.Background(), RetryConfig{}, func() (int, error) {
			callCount++
			return 7, nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 7, v)
		assert.Equal(t, 1, callCount)
	})

	t.Run("stops on non-retryable error", func(t *testing.T) {
		callCount := 0
		_, err := retryWithBackoff(context.Background(), fastRetry(), func() (int, error) {
			callCount++
			return 0, &APIError{StatusCode: http.StatusBadRequest, Body: "bad input"}
		})
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Equal(t, 1, callCount)
	})

	t.Run("default config", func(t *testing.T) {
		config := DefaultRetryConfig()
		assert.Equal(t, MaxRetries, config.MaxRetries)
		assert.Equal(t, 100*time.Millisecond, config.BaseDelay)
		assert.Equal(t, 5000*time.Millisecond, config.MaxDelay)
		assert.Equal(t, 2.0, config.Multiplier)
	})
}

func TestProviderCaching(t *testing.T) {
	cache := NewCache(100)
	provider, err := NewLocalProvider(Config{}, cache)
	require.NoError(t, err)

	ctx := context.Background()
	texts := []string{"code1", "code2", "code3"}

	first, err := provider.Embed(ctx, texts)
	require.NoError(t, err)
	assert.Equal(t, 3, cache.Size())

	for _, text := range texts {
		_, ok := cache.Get(ComputeHash(text))
		assert.True(t, ok, "expected cache hit for %s", text)
	}

	second, err := provider.Embed(ctx, []string{"code3", "code1"})
	require.NoError(t, err)
	assert.Equal(t, first[2], second[0])
	assert.Equal(t, first[0], second[1])
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network error", fmt.Errorf("api call: connection reset"), true},
		{"server error", &APIError{StatusCode: http.StatusBadGateway}, true},
		{"rate limited", &APIError{StatusCode: http.StatusTooManyRequests}, true},
		{"timeout", &APIError{StatusCode: http.StatusRequestTimeout}, true},
		{"bad request", &APIError{StatusCode: http.StatusBadRequest}, false},
		{"wrapped unauthorized", fmt.Errorf("jina: %w", &APIError{StatusCode: http.StatusUnauthorized}), false},
		{"openai rate limited", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, true},
		{"openai not found", &openai.APIError{HTTPStatusCode: http.StatusNotFound}, false},
		{"openai request error", &openai.RequestError{HTTPStatusCode: http.StatusServiceUnavailable}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}

func TestRetryDelay(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	for attempt, want := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second} {
		d := cfg.delay(attempt)
		assert.GreaterOrEqual(t, d, want/2, "attempt %d", attempt)
		assert.Less(t, d, want, "attempt %d", attempt)
	}

	assert.Zero(t, RetryConfig{}.delay(3))
}
