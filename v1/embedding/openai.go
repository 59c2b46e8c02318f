package embedding

import (
	"context"
	"fmt"
	"strings"

	openaIEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	einoembedding "github.com/cloudwego/eino/components/embedding"
)

// EinoEmbedder adapts any eino embedding component to Embedder.
type EinoEmbedder struct {
	emb einoembedding.Embedder
}

// NewEinoEmbedder wraps an eino embedder.
func NewEinoEmbedder(emb einoembedding.Embedder) *EinoEmbedder {
	return &EinoEmbedder{emb: emb}
}

func newOpenAIEmbedder(ctx context.Context, cfg Config) (*EinoEmbedder, error) {
	dim := cfg.Dimensions
	em, err := openaIEmbed.NewEmbedder(ctx, &openaIEmbed.EmbeddingConfig{
		APIKey:     cfg.ServiceToken,
		Model:      cfg.Model,
		BaseURL:    cfg.Endpoint,
		Timeout:    cfg.Timeout,
		Dimensions: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	return NewEinoEmbedder(em), nil
}

func (e *EinoEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	vecs, err := e.emb.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, ErrEmptyResponse
	}
	return toFloat32(vecs[0]), nil
}
