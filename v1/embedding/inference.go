package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// InferenceProvider calls an OpenAI-compatible /embeddings endpoint
// authenticated with a service token.
type InferenceProvider struct {
	baseURL      string
	serviceToken string
	model        string
	httpClient   *http.Client
}

func newInferenceProvider(cfg Config) (*InferenceProvider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("inference: missing EMBEDDING_ENDPOINT")
	}

	// Remove trailing slash if user added it.
	base := strings.TrimRight(cfg.Endpoint, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &InferenceProvider{
		baseURL:      base,
		serviceToken: cfg.ServiceToken,
		model:        cfg.Model,
		httpClient:   &http.Client{Timeout: timeout},
	}, nil
}

// Create generates embeddings for the given texts, one vector per text.
func (p *InferenceProvider) Create(ctx context.Context, texts ...string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("inference: no texts provided")
	}

	reqBody := map[string]any{
		"model": p.model,
		"input": texts,
	}

	url := fmt.Sprintf("%s/embeddings", p.baseURL)

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}

	if err := p.postJSON(ctx, url, reqBody, &parsed); err != nil {
		return nil, err
	}

	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmptyResponse, len(parsed.Data), len(texts))
	}

	out := make([][]float64, len(parsed.Data))
	for i, d := range parsed.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = d.Embedding
	}

	return out, nil
}

// Embed returns the vector for a single text.
func (p *InferenceProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	vecs, err := p.Create(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vecs[0]) == 0 {
		return nil, ErrEmptyResponse
	}
	return toFloat32(vecs[0]), nil
}

func (p *InferenceProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
