// Package embedder generates vector embeddings for normalized code windows.
//
// Every provider implements the narrow Embedder interface: one vector per
// input text, in input order, each Dimension() long.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "local", CacheSize: 10000})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	vectors, err := emb.Embed(ctx, []string{chunkA.Content, chunkB.Content})
//
// # Providers
//
//   - local: offline feature hashing of tokens and token bigrams (xxhash)
//   - openai: OpenAI embeddings via go-openai, honouring Dimension
//   - jina: Jina AI embeddings over HTTP
//   - ollama: a local Ollama server's /api/embed endpoint
//
// When Config.Provider is empty, DetectProvider picks jina, then openai when
// their API keys are set, and falls back to local.
//
// # Caching, Retries and Rate Limits
//
// Vectors are cached in an LRU keyed by the SHA-256 of the text, so only
// cache misses reach the provider. Remote calls are retried with exponential
// backoff (3 attempts, 100ms doubling to 5s) and can be throttled with
// Config.RequestsPerSecond.
//
// # Errors
//
// A provider returning the wrong number of vectors fails with
// types.ErrBatchMismatch, a wrong vector length with
// types.ErrDimensionMismatch, and exhausted retries with ErrProviderFailed.
package embedder
