package embedding

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Aleph-Alpha/receipt-lookup/v1/cache"
)

// Logger is the subset of v1/logger.Logger used here.
type Logger interface {
	Warn(msg string, err error, fields ...map[string]interface{})
}

// CachedEmbedder memoises another Embedder. Keys are the trimmed,
// lower-cased text, so "Ribeye " and "ribeye" share one entry.
// Concurrent misses for the same key make a single upstream call, which
// outlives any one caller's cancellation and is bounded by the timeout.
type CachedEmbedder struct {
	next    Embedder
	store   cache.Store
	ttl     time.Duration
	timeout time.Duration
	log     Logger
	group   singleflight.Group
}

func NewCachedEmbedder(next Embedder, store cache.Store, ttl time.Duration, log Logger) *CachedEmbedder {
	return &CachedEmbedder{next: next, store: store, ttl: ttl, timeout: DefaultTimeout, log: log}
}

// WithTimeout bounds the shared upstream call.
func (c *CachedEmbedder) WithTimeout(d time.Duration) *CachedEmbedder {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// NormalizeKey is the cache key for text.
func NormalizeKey(text string) string {
	return "emb:" + strings.ToLower(strings.TrimSpace(text))
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	key := NormalizeKey(text)

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("Embedding cache read failed", err, map[string]interface{}{"key": key})
	}
	if ok {
		if vec, err := decodeVector(raw); err == nil {
			return vec, nil
		}
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		vec, err := c.next.Embed(callCtx, strings.TrimSpace(text))
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(callCtx, key, encodeVector(vec), c.ttl); err != nil {
			c.log.Warn("Embedding cache write failed", err, map[string]interface{}{"key": key})
		}
		return vec, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]float32), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats exposes the underlying cache counters.
func (c *CachedEmbedder) Stats() cache.Stats {
	return c.store.Stats()
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, fmt.Errorf("embedding: corrupt cached vector of %d bytes", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, nil
}
