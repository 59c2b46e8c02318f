package qdrant

import (
	"fmt"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"

	"github.com/Aleph-Alpha/receipt-lookup/v1/receipt"
)

// skuNamespace derives stable point ids from SKUs; qdrant only accepts
// unsigned integers or UUIDs as ids.
var skuNamespace = uuid.MustParse("6f1c3c52-4a57-4b8e-9a3e-0d1f6c7b2a90")

func pointID(sku string) string {
	return uuid.NewSHA1(skuNamespace, []byte(sku)).String()
}

func validateSearchInput(vector []float32, topK int) error {
	if len(vector) == 0 {
		return fmt.Errorf("vector cannot be empty")
	}
	if topK <= 0 {
		return fmt.Errorf("topK must be greater than 0")
	}
	return nil
}

func productPayload(p Product) map[string]any {
	return map[string]any{
		"sku":          p.SKU,
		"product_name": p.ProductName,
		"brand":        p.Brand,
		"category_l1":  p.CategoryL1,
		"category_l2":  p.CategoryL2,
		"search_text":  p.SearchText,
	}
}

func parseMatches(resp []*qdrant.ScoredPoint) []receipt.ProductMatch {
	out := make([]receipt.ProductMatch, 0, len(resp))
	for _, r := range resp {
		sku := payloadString(r.GetPayload(), "sku")
		if sku == "" {
			continue
		}
		out = append(out, receipt.ProductMatch{
			SKU:         sku,
			ProductName: payloadString(r.GetPayload(), "product_name"),
			Similarity:  float64(r.GetScore()),
		})
	}
	return out
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok && v != nil {
		return v.GetStringValue()
	}
	return ""
}
