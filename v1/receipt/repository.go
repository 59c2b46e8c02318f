package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Aleph-Alpha/receipt-lookup/v1/pool"
)

// Conn is a checked-out store connection.
type Conn interface {
	Query(ctx context.Context, query string, args ...any) ([]pool.Row, error)
	QueryReadOnly(ctx context.Context, query string, maxRows int, args ...any) ([]pool.Row, error)
	DB() *gorm.DB
	Release()
}

// ConnSource hands out connections; *pool.Manager via FromPool.
type ConnSource interface {
	Acquire(ctx context.Context) (Conn, error)
}

type managerSource struct {
	m *pool.Manager
}

// FromPool adapts a pool manager to ConnSource.
func FromPool(m *pool.Manager) ConnSource {
	return managerSource{m: m}
}

func (s managerSource) Acquire(ctx context.Context) (Conn, error) {
	c, err := s.m.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

const summaryColumns = `rl.transaction_id, rl.store_id, rl.store_name, rl.customer_id,
       rl.customer_name, rl.transaction_ts, rl.total_cents, rl.tender_type,
       rl.card_last4, rl.item_count, rl.item_summary`

// Repository reads and writes receipts through pooled connections.
// Every method releases its connection on all paths.
type Repository struct {
	conns ConnSource
}

func NewRepository(conns ConnSource) *Repository {
	return &Repository{conns: conns}
}

// GetByID loads a receipt and its line items in one round trip.
func (r *Repository) GetByID(ctx context.Context, transactionID string) (*Receipt, error) {
	conn, err := r.conns.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
SELECT rl.transaction_id, rl.store_id, rl.store_name, rl.customer_id,
       rl.customer_name, rl.transaction_ts, rl.subtotal_cents, rl.tax_cents,
       rl.total_cents, rl.tender_type, rl.card_last4, rl.item_count,
       rl.item_summary, rl.category_tags,
       li.line_number, li.sku, li.product_name, li.brand, li.category_l1,
       li.quantity, li.unit_price_cents, li.line_total_cents, li.discount_cents
FROM receipt_lookup rl
LEFT JOIN receipt_line_items li ON rl.transaction_id = li.transaction_id
WHERE rl.transaction_id = $1
ORDER BY li.line_number`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("get receipt %s: %w", transactionID, err)
	}
	if len(rows) == 0 {
		return nil, ErrReceiptNotFound
	}

	first := rows[0]
	rec := &Receipt{
		TransactionID: first.String("transaction_id"),
		StoreID:       first.String("store_id"),
		StoreName:     first.String("store_name"),
		CustomerID:    first.StringPtr("customer_id"),
		CustomerName:  first.StringPtr("customer_name"),
		TransactionTS: first.Time("transaction_ts"),
		SubtotalCents: int64Ptr(first, "subtotal_cents"),
		TaxCents:      int64Ptr(first, "tax_cents"),
		TotalCents:    first.Int64("total_cents"),
		TenderType:    first.String("tender_type"),
		CardLast4:     first.StringPtr("card_last4"),
		ItemCount:     int(first.Int64("item_count")),
		ItemSummary:   first.String("item_summary"),
		CategoryTags:  parseTags(first.String("category_tags")),
	}

	for _, row := range rows {
		if v, _ := row.Get("line_number"); v == nil {
			continue
		}
		rec.LineItems = append(rec.LineItems, LineItem{
			TransactionID:  rec.TransactionID,
			LineNumber:     int(row.Int64("line_number")),
			SKU:            row.String("sku"),
			ProductName:    row.String("product_name"),
			Brand:          row.String("brand"),
			Category:       row.String("category_l1"),
			Quantity:       row.Float64("quantity"),
			UnitPriceCents: row.Int64("unit_price_cents"),
			LineTotalCents: row.Int64("line_total_cents"),
			DiscountCents:  row.Int64("discount_cents"),
		})
	}
	return rec, nil
}

// Find returns receipts matching every predicate, newest first.
func (r *Repository) Find(ctx context.Context, preds []Predicate, page Page) ([]Summary, error) {
	where, args, err := Render(preds, "rl", 1)
	if err != nil {
		return nil, err
	}
	n := len(args)
	args = append(args, page.Limit, page.Offset)

	query := fmt.Sprintf(`
SELECT %s
FROM receipt_lookup rl
WHERE %s
ORDER BY rl.transaction_ts DESC
LIMIT $%d OFFSET $%d`, summaryColumns, where, n+1, n+2)

	conn, err := r.conns.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find receipts: %w", err)
	}
	return toSummaries(rows), nil
}

// Nearest returns products whose embedding has cosine similarity of at
// least minSimilarity to vec, best first.
func (r *Repository) Nearest(ctx context.Context, vec []float32, minSimilarity float64, topK int) ([]ProductMatch, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("nearest products: empty vector")
	}

	conn, err := r.conns.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
SELECT sku, product_name, 1 - (embedding <=> $1::vector) AS similarity
FROM product_embeddings
WHERE 1 - (embedding <=> $1::vector) >= $2
ORDER BY embedding <=> $1::vector
LIMIT $3`, VectorLiteral(vec), minSimilarity, topK)
	if err != nil {
		return nil, fmt.Errorf("nearest products: %w", err)
	}

	out := make([]ProductMatch, 0, len(rows))
	for _, row := range rows {
		out = append(out, ProductMatch{
			SKU:         row.String("sku"),
			ProductName: row.String("product_name"),
			Similarity:  row.Float64("similarity"),
		})
	}
	return out, nil
}

// FindByProducts returns receipts containing any matched product,
// narrowed by preds, ordered by best similarity then newest first.
func (r *Repository) FindByProducts(ctx context.Context, matches []ProductMatch, preds []Predicate, page Page) ([]Summary, error) {
	if len(matches) == 0 {
		return nil, nil
	}

	skus := make([]string, len(matches))
	sims := make([]float64, len(matches))
	names := make([]string, len(matches))
	for i, m := range matches {
		skus[i], sims[i], names[i] = m.SKU, m.Similarity, m.ProductName
	}

	where, args, err := Render(preds, "rl", 4)
	if err != nil {
		return nil, err
	}
	args = append([]any{pq.Array(skus), pq.Array(sims), pq.Array(names)}, args...)
	n := len(args)
	args = append(args, page.Limit, page.Offset)

	query := fmt.Sprintf(`
WITH matched AS (
    SELECT * FROM unnest($1::text[], $2::float8[], $3::text[]) AS m(sku, similarity, product_name)
),
hits AS (
    SELECT li.transaction_id,
           max(m.similarity) AS similarity,
           (array_agg(m.product_name ORDER BY m.similarity DESC))[1] AS matched_product
    FROM receipt_line_items li
    JOIN matched m ON m.sku = li.sku
    GROUP BY li.transaction_id
)
SELECT %s, h.similarity, h.matched_product
FROM hits h
JOIN receipt_lookup rl ON rl.transaction_id = h.transaction_id
WHERE %s
ORDER BY h.similarity DESC, rl.transaction_ts DESC
LIMIT $%d OFFSET $%d`, summaryColumns, where, n+1, n+2)

	conn, err := r.conns.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find receipts by product: %w", err)
	}
	return toSummaries(rows), nil
}

// QueryReadOnly runs a vetted analytical statement with a row cap.
func (r *Repository) QueryReadOnly(ctx context.Context, query string, maxRows int, args ...any) ([]pool.Row, error) {
	conn, err := r.conns.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.QueryReadOnly(ctx, query, maxRows, args...)
	if err != nil {
		return nil, fmt.Errorf("read-only query: %w", err)
	}
	return rows, nil
}

// Save upserts a receipt and replaces its line items in one transaction.
func (r *Repository) Save(ctx context.Context, rec *Receipt) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ItemCount == 0 {
		rec.ItemCount = len(rec.LineItems)
	}

	conn, err := r.conns.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	db := conn.DB()
	if db == nil {
		return fmt.Errorf("save receipt: connection has no gorm handle")
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			UpdateAll: true,
		}).Create(rec).Error; err != nil {
			return err
		}
		if err := tx.Where("transaction_id = ?", rec.TransactionID).Delete(&LineItem{}).Error; err != nil {
			return err
		}
		if len(rec.LineItems) == 0 {
			return nil
		}
		items := make([]LineItem, len(rec.LineItems))
		for i, li := range rec.LineItems {
			li.TransactionID = rec.TransactionID
			items[i] = li
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		return fmt.Errorf("save receipt %s: %w", rec.TransactionID, TranslateError(err))
	}
	return nil
}

// VectorLiteral renders vec in pgvector text form, e.g. "[0.1,0.2]".
func VectorLiteral(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func toSummaries(rows []pool.Row) []Summary {
	out := make([]Summary, 0, len(rows))
	for _, row := range rows {
		out = append(out, Summary{
			TransactionID:  row.String("transaction_id"),
			StoreID:        row.String("store_id"),
			StoreName:      row.String("store_name"),
			CustomerID:     row.StringPtr("customer_id"),
			CustomerName:   row.StringPtr("customer_name"),
			TransactionTS:  row.Time("transaction_ts"),
			TotalCents:     row.Int64("total_cents"),
			TenderType:     row.String("tender_type"),
			CardLast4:      row.StringPtr("card_last4"),
			ItemCount:      int(row.Int64("item_count")),
			ItemSummary:    row.String("item_summary"),
			MatchedProduct: row.String("matched_product"),
			Similarity:     row.Float64("similarity"),
		})
	}
	return out
}

func int64Ptr(row pool.Row, col string) *int64 {
	if v, ok := row.Get(col); !ok || v == nil {
		return nil
	}
	n := row.Int64(col)
	return &n
}

func parseTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}

// IsNotFound reports whether err means the receipt does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrReceiptNotFound)
}
