package qdrant

import (
	"context"
	"fmt"

	qdrant "github.com/qdrant/go-client/qdrant"

	"github.com/Aleph-Alpha/receipt-lookup/v1/receipt"
)

// Product is one indexed product vector.
type Product struct {
	SKU         string
	ProductName string
	Brand       string
	CategoryL1  string
	CategoryL2  string
	SearchText  string
	Vector      []float32
}

// EnsureCollection creates the product collection if it is missing. It is
// safe to call on every start.
func (c *QdrantClient) EnsureCollection(ctx context.Context) error {
	exists, err := c.api.CollectionExists(ctx, c.cfg.Collection)
	if err != nil {
		return fmt.Errorf("[Qdrant] failed to check collection '%s': %w", c.cfg.Collection, err)
	}
	if exists {
		return nil
	}

	err = c.api.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(c.cfg.VectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("[Qdrant] failed to create collection '%s': %w", c.cfg.Collection, err)
	}

	c.log.Info("[Qdrant] Created collection", nil, map[string]interface{}{"collection": c.cfg.Collection})
	return nil
}

// UpsertProducts writes products in chunks of defaultBatchSize. Points are
// keyed by SKU so re-indexing a product replaces it.
func (c *QdrantClient) UpsertProducts(ctx context.Context, products []Product) error {
	for start := 0; start < len(products); start += defaultBatchSize {
		end := min(start+defaultBatchSize, len(products))
		if err := c.upsertBatch(ctx, products[start:end]); err != nil {
			return fmt.Errorf("[Qdrant] batch upsert failed at [%d:%d]: %w", start, end, err)
		}
	}
	return nil
}

func (c *QdrantClient) upsertBatch(ctx context.Context, batch []Product) error {
	points := make([]*qdrant.PointStruct, 0, len(batch))
	for _, p := range batch {
		if p.SKU == "" {
			return fmt.Errorf("product without sku")
		}
		if len(p.Vector) != c.cfg.VectorSize {
			return fmt.Errorf("product %s: vector has %d dimensions, collection expects %d", p.SKU, len(p.Vector), c.cfg.VectorSize)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(p.SKU)),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(productPayload(p)),
		})
	}

	wait := true
	_, err := c.api.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.cfg.Collection,
		Points:         points,
		Wait:           &wait,
	})
	return err
}

// Nearest returns products with cosine similarity of at least
// minSimilarity to vec, best first.
func (c *QdrantClient) Nearest(ctx context.Context, vec []float32, minSimilarity float64, topK int) ([]receipt.ProductMatch, error) {
	if err := validateSearchInput(vec, topK); err != nil {
		return nil, err
	}

	limit := uint64(topK)
	threshold := float32(minSimilarity)
	resp, err := c.api.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.cfg.Collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          &limit,
		ScoreThreshold: &threshold,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("[Qdrant] search failed: %w", err)
	}

	return parseMatches(resp), nil
}

// DeleteProducts removes products by SKU.
func (c *QdrantClient) DeleteProducts(ctx context.Context, skus []string) error {
	if len(skus) == 0 {
		return nil
	}

	ids := make([]*qdrant.PointId, 0, len(skus))
	for _, sku := range skus {
		ids = append(ids, qdrant.NewID(pointID(sku)))
	}

	wait := true
	_, err := c.api.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.cfg.Collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: ids},
			},
		},
		Wait: &wait,
	})
	if err != nil {
		return fmt.Errorf("[Qdrant] delete failed: %w", err)
	}
	return nil
}
