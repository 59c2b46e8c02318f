// Package embedding turns free text into dense vectors for product
// similarity search.
//
// Two providers are available, selected by Config.Provider:
//
//   - "inference": an OpenAI-compatible /embeddings endpoint called directly
//     with a bearer service token.
//   - "openai": the eino OpenAI embedding component.
//
// Both are exposed through the Embedder interface:
//
//	client, err := embedding.NewClient(ctx, cfg)
//	vec, err := client.Embed(ctx, "ribeye steak")
//
// CachedEmbedder sits in front of either provider. It normalises the text
// (trim, lower-case) into the cache key, keeps vectors for Config.CacheTTL
// (24h by default) and collapses concurrent misses for the same text into
// one upstream request.
//
// # Fx
//
// FXModule provides *Client and an Embedder (the cached one), and closes
// the client on shutdown. It expects a Config, *cache.Caches and a
// logger.Logger in the graph.
package embedding
