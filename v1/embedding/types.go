package embedding

import (
	"context"
	"errors"
)

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

var (
	// ErrEmptyText is returned for blank input; nothing is sent upstream.
	ErrEmptyText = errors.New("embedding: empty text")

	// ErrEmptyResponse is returned when the service answers without a vector.
	ErrEmptyResponse = errors.New("embedding: empty response")
)

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
