package receipt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Aleph-Alpha/receipt-lookup/v1/cache"
	"github.com/Aleph-Alpha/receipt-lookup/v1/pool"
)

type call struct {
	query   string
	args    []any
	maxRows int
}

type fakeConn struct {
	src *fakeSource
}

func (c *fakeConn) Query(_ context.Context, query string, args ...any) ([]pool.Row, error) {
	c.src.mu.Lock()
	defer c.src.mu.Unlock()
	c.src.calls = append(c.src.calls, call{query: query, args: args})
	return c.src.rows, c.src.queryErr
}

func (c *fakeConn) QueryReadOnly(_ context.Context, query string, maxRows int, args ...any) ([]pool.Row, error) {
	c.src.mu.Lock()
	defer c.src.mu.Unlock()
	c.src.calls = append(c.src.calls, call{query: query, args: args, maxRows: maxRows})
	return c.src.rows, c.src.queryErr
}

func (c *fakeConn) DB() *gorm.DB { return nil }

func (c *fakeConn) Release() {
	c.src.mu.Lock()
	c.src.released++
	c.src.mu.Unlock()
}

type fakeSource struct {
	mu         sync.Mutex
	rows       []pool.Row
	queryErr   error
	acquireErr error
	acquired   int
	released   int
	calls      []call
}

func (s *fakeSource) Acquire(context.Context) (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquireErr != nil {
		return nil, s.acquireErr
	}
	s.acquired++
	return &fakeConn{src: s}, nil
}

func summaryRow(id string, ts time.Time, total int64) pool.Row {
	return pool.Row{
		Columns: []string{"transaction_id", "store_id", "store_name", "customer_id", "transaction_ts", "total_cents", "tender_type", "card_last4", "item_count"},
		Values:  []any{id, "S1", "Giant Eagle East Liberty", "C-1", ts, total, "CREDIT", nil, int64(3)},
	}
}

func TestFindRendersPagedQuery(t *testing.T) {
	ts := time.Date(2024, 11, 8, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{rows: []pool.Row{summaryRow("T1", ts, 3547)}}
	repo := NewRepository(src)

	got, err := repo.Find(context.Background(), []Predicate{
		Between(ColTotalCents, int64(3000), int64(4000)),
		ILike(ColStoreName, "East Liberty"),
	}, Page{Limit: 25, Offset: 5})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "T1", got[0].TransactionID)
	assert.Equal(t, int64(3547), got[0].TotalCents)
	assert.Equal(t, "C-1", *got[0].CustomerID)
	assert.Nil(t, got[0].CardLast4)
	assert.Equal(t, 3, got[0].ItemCount)

	require.Len(t, src.calls, 1)
	q := src.calls[0].query
	assert.Contains(t, q, "ORDER BY rl.transaction_ts DESC")
	assert.Contains(t, q, "LIMIT $4 OFFSET $5")
	assert.Equal(t, []any{"%East Liberty%", int64(3000), int64(4000), 25, 5}, src.calls[0].args)
	assert.Equal(t, 1, src.released)
}

func TestRepositoryReleasesOnError(t *testing.T) {
	boom := errors.New("boom")
	src := &fakeSource{queryErr: boom}
	repo := NewRepository(src)
	ctx := context.Background()

	_, err := repo.Find(ctx, []Predicate{Eq(ColStoreID, "S1")}, Page{Limit: 1})
	assert.ErrorIs(t, err, boom)
	_, err = repo.GetByID(ctx, "T1")
	assert.ErrorIs(t, err, boom)
	_, err = repo.Nearest(ctx, []float32{1}, 0.7, 10)
	assert.ErrorIs(t, err, boom)
	_, err = repo.FindByProducts(ctx, []ProductMatch{{SKU: "A"}}, nil, Page{Limit: 1})
	assert.ErrorIs(t, err, boom)
	_, err = repo.QueryReadOnly(ctx, "SELECT 1", 50)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 5, src.acquired)
	assert.Equal(t, src.acquired, src.released)
}

func TestRepositoryAcquireFailureSkipsQuery(t *testing.T) {
	src := &fakeSource{acquireErr: pool.ErrPoolExhausted}
	repo := NewRepository(src)

	_, err := repo.Find(context.Background(), nil, Page{Limit: 1})
	assert.ErrorIs(t, err, pool.ErrPoolExhausted)
	assert.Empty(t, src.calls)
	assert.Zero(t, src.released)
}

func TestFindRejectsInvalidPredicateBeforeAcquire(t *testing.T) {
	src := &fakeSource{}
	_, err := NewRepository(src).Find(context.Background(), []Predicate{Eq(Column("secret"), 1)}, Page{Limit: 1})
	assert.ErrorIs(t, err, ErrInvalidPredicate)
	assert.Zero(t, src.acquired)
}

func TestGetByIDAssemblesLineItems(t *testing.T) {
	ts := time.Date(2024, 11, 8, 12, 0, 0, 0, time.UTC)
	cols := []string{"transaction_id", "store_id", "store_name", "transaction_ts", "total_cents", "subtotal_cents", "tax_cents", "category_tags",
		"line_number", "sku", "product_name", "quantity", "unit_price_cents", "line_total_cents", "discount_cents"}
	src := &fakeSource{rows: []pool.Row{
		{Columns: cols, Values: []any{"T1", "S1", "East Liberty", ts, int64(1598), int64(1500), nil, `["meat","produce"]`, int64(1), "SKU-1", "Ribeye Steak", 1.0, int64(1299), int64(1299), int64(0)}},
		{Columns: cols, Values: []any{"T1", "S1", "East Liberty", ts, int64(1598), int64(1500), nil, `["meat","produce"]`, int64(2), "SKU-2", "Bananas", 2.0, int64(150), int64(299), int64(1)}},
	}}

	rec, err := NewRepository(src).GetByID(context.Background(), "T1")
	require.NoError(t, err)

	assert.Equal(t, "T1", rec.TransactionID)
	assert.Equal(t, int64(1500), *rec.SubtotalCents)
	assert.Nil(t, rec.TaxCents)
	assert.Equal(t, []string{"meat", "produce"}, rec.CategoryTags)
	require.Len(t, rec.LineItems, 2)
	assert.Equal(t, "Bananas", rec.LineItems[1].ProductName)
	assert.Equal(t, "T1", rec.LineItems[1].TransactionID)
	assert.NoError(t, rec.Validate())
	assert.Equal(t, []any{"T1"}, src.calls[0].args)
}

func TestGetByIDWithoutLineItems(t *testing.T) {
	src := &fakeSource{rows: []pool.Row{{
		Columns: []string{"transaction_id", "store_id", "line_number"},
		Values:  []any{"T2", "S1", nil},
	}}}

	rec, err := NewRepository(src).GetByID(context.Background(), "T2")
	require.NoError(t, err)
	assert.Empty(t, rec.LineItems)
}

func TestGetByIDNotFound(t *testing.T) {
	_, err := NewRepository(&fakeSource{}).GetByID(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
}

func TestNearestUsesCosineThreshold(t *testing.T) {
	src := &fakeSource{rows: []pool.Row{{
		Columns: []string{"sku", "product_name", "similarity"},
		Values:  []any{"SKU-1", "Ribeye Steak", 0.82},
	}}}

	got, err := NewRepository(src).Nearest(context.Background(), []float32{0.1, 0.2}, 0.7, 10)
	require.NoError(t, err)
	assert.Equal(t, []ProductMatch{{SKU: "SKU-1", ProductName: "Ribeye Steak", Similarity: 0.82}}, got)

	assert.Contains(t, src.calls[0].query, "<=>")
	assert.Equal(t, []any{"[0.1,0.2]", 0.7, 10}, src.calls[0].args)

	_, err = NewRepository(src).Nearest(context.Background(), nil, 0.7, 10)
	assert.Error(t, err)
}

func TestFindByProductsNarrowsAndOrders(t *testing.T) {
	src := &fakeSource{}
	repo := NewRepository(src)

	got, err := repo.FindByProducts(context.Background(), nil, nil, Page{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, src.acquired)

	_, err = repo.FindByProducts(context.Background(),
		[]ProductMatch{{SKU: "SKU-1", ProductName: "Ribeye Steak", Similarity: 0.82}},
		[]Predicate{Eq(ColCustomerID, "C-1")},
		Page{Limit: 10})
	require.NoError(t, err)

	q := src.calls[0].query
	assert.Contains(t, q, `"rl"."customer_id" = $4`)
	assert.Contains(t, q, "ORDER BY h.similarity DESC, rl.transaction_ts DESC")
	assert.Contains(t, q, "LIMIT $5 OFFSET $6")
	assert.Len(t, src.calls[0].args, 6)
}

func TestQueryReadOnlyPassesCap(t *testing.T) {
	src := &fakeSource{}
	_, err := NewRepository(src).QueryReadOnly(context.Background(), "SELECT 1 WHERE $1 = $1", 50, "C-1")
	require.NoError(t, err)
	assert.Equal(t, 50, src.calls[0].maxRows)
	assert.Equal(t, []any{"C-1"}, src.calls[0].args)
}

func TestSaveRejectsInvalidReceiptWithoutAcquire(t *testing.T) {
	src := &fakeSource{}
	err := NewRepository(src).Save(context.Background(), &Receipt{StoreID: "S1"})
	assert.ErrorIs(t, err, ErrInvalidReceipt)
	assert.Zero(t, src.acquired)
}

func TestSaveWithoutGormHandle(t *testing.T) {
	src := &fakeSource{}
	err := NewRepository(src).Save(context.Background(), &Receipt{TransactionID: "T1", StoreID: "S1"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "gorm handle"))
	assert.Equal(t, 1, src.released)
}

type warnRecorder struct {
	msgs []string
}

func (w *warnRecorder) Warn(msg string, _ error, _ ...map[string]interface{}) {
	w.msgs = append(w.msgs, msg)
}

func TestServiceCachesDirectLookups(t *testing.T) {
	ts := time.Date(2024, 11, 8, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{rows: []pool.Row{{
		Columns: []string{"transaction_id", "store_id", "store_name", "transaction_ts", "total_cents", "line_number"},
		Values:  []any{"T1", "S1", "East Liberty", ts, int64(3547), nil},
	}}}
	store := cache.NewMemoryStore(10, time.Minute)
	svc := NewService(NewRepository(src), store, &warnRecorder{})
	ctx := context.Background()

	first, err := svc.GetByID(ctx, "T1")
	require.NoError(t, err)
	second, err := svc.GetByID(ctx, "T1")
	require.NoError(t, err)

	assert.Equal(t, 1, src.acquired, "second lookup must be served from cache")
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.True(t, first.TransactionTS.Equal(second.TransactionTS))

	stats := svc.CacheStats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestServiceDoesNotCacheMisses(t *testing.T) {
	src := &fakeSource{}
	svc := NewService(NewRepository(src), cache.NewMemoryStore(10, time.Minute), &warnRecorder{})

	_, err := svc.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrReceiptNotFound)
	_, err = svc.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrReceiptNotFound)
	assert.Equal(t, 2, src.acquired)
}

func TestServiceWithoutCache(t *testing.T) {
	svc := NewService(NewRepository(&fakeSource{}), nil, &warnRecorder{})
	assert.Equal(t, cache.Stats{}, svc.CacheStats())
}

func TestServiceListsCustomerReceiptsPerPage(t *testing.T) {
	ts := time.Date(2024, 11, 8, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{rows: []pool.Row{summaryRow("T2", ts, 1200), summaryRow("T1", ts.Add(-time.Hour), 3547)}}
	svc := NewService(NewRepository(src), nil, &warnRecorder{}).
		WithCustomerCache(cache.NewMemoryStore(10, time.Minute))
	ctx := context.Background()

	first, err := svc.ListByCustomer(ctx, "C-1", Page{Limit: 20})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "T2", first[0].TransactionID)

	require.Len(t, src.calls, 1)
	assert.Contains(t, src.calls[0].query, `"rl"."customer_id" = $1`)
	assert.Equal(t, []any{"C-1", 20, 0}, src.calls[0].args)

	again, err := svc.ListByCustomer(ctx, "C-1", Page{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, src.acquired, "same page must be served from cache")
	assert.Equal(t, ids(first), ids(again))

	_, err = svc.ListByCustomer(ctx, "C-1", Page{Limit: 20, Offset: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, src.acquired, "another page is another entry")
}

func TestServiceListsEmptyCustomerAsEmptySlice(t *testing.T) {
	svc := NewService(NewRepository(&fakeSource{}), nil, &warnRecorder{})

	got, err := svc.ListByCustomer(context.Background(), "C-404", Page{Limit: 20})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func ids(list []Summary) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.TransactionID)
	}
	return out
}
