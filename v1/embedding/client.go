package embedding

import (
	"context"
	"fmt"
)

// Client is the public entrypoint for computing embeddings. It hides the
// provider details from the application layer.
type Client struct {
	provider Embedder
}

// NewClient validates cfg and constructs the configured provider.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("embedding: invalid config: %w", err)
	}

	var (
		p   Embedder
		err error
	)
	switch cfg.Provider {
	case ProviderOpenAI:
		p, err = newOpenAIEmbedder(ctx, cfg)
	default:
		p, err = newInferenceProvider(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to create provider: %w", err)
	}

	return &Client{provider: p}, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.provider.Embed(ctx, text)
}

// Close releases provider resources, if the provider holds any.
func (c *Client) Close() error {
	if closer, ok := c.provider.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
