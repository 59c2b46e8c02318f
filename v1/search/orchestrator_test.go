package search

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/receipt-lookup/v1/pool"
	"github.com/Aleph-Alpha/receipt-lookup/v1/receipt"
)

// memStore evaluates predicates in memory over a fixed receipt set.
type memStore struct {
	mu       sync.Mutex
	receipts []receipt.Summary
	skus     map[string][]string // sku -> transaction ids

	getErr    error
	findErr   error
	byProdErr error
	queryErr  error
	rows      []pool.Row

	calls     map[string]int
	lastQuery string
	lastArgs  []any
	lastCap   int
}

func newMemStore(receipts ...receipt.Summary) *memStore {
	return &memStore{receipts: receipts, skus: map[string][]string{}, calls: map[string]int{}}
}

func (s *memStore) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *memStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *memStore) record(op string) {
	s.mu.Lock()
	s.calls[op]++
	s.mu.Unlock()
}

func (s *memStore) GetByID(_ context.Context, id string) (*receipt.Receipt, error) {
	s.record("get")
	if s.getErr != nil {
		return nil, s.getErr
	}
	for _, r := range s.receipts {
		if r.TransactionID == id {
			return &receipt.Receipt{
				TransactionID: r.TransactionID,
				StoreID:       r.StoreID,
				StoreName:     r.StoreName,
				TransactionTS: r.TransactionTS,
				TotalCents:    r.TotalCents,
				TenderType:    r.TenderType,
			}, nil
		}
	}
	return nil, receipt.ErrReceiptNotFound
}

func (s *memStore) matching(preds []receipt.Predicate) []receipt.Summary {
	var out []receipt.Summary
	for _, r := range s.receipts {
		okAll := true
		for _, p := range preds {
			if !p.Matches(r) {
				okAll = false
				break
			}
		}
		if okAll {
			out = append(out, r)
		}
	}
	return out
}

func (s *memStore) Find(_ context.Context, preds []receipt.Predicate, page receipt.Page) ([]receipt.Summary, error) {
	s.record("find")
	if s.findErr != nil {
		return nil, s.findErr
	}
	out := s.matching(preds)
	sort.SliceStable(out, func(i, j int) bool { return out[i].TransactionTS.After(out[j].TransactionTS) })
	return paginate(out, page), nil
}

func (s *memStore) FindByProducts(_ context.Context, matches []receipt.ProductMatch, preds []receipt.Predicate, page receipt.Page) ([]receipt.Summary, error) {
	s.record("by_products")
	if s.byProdErr != nil {
		return nil, s.byProdErr
	}
	var out []receipt.Summary
	for _, r := range s.matching(preds) {
		for _, m := range matches {
			if contains(s.skus[m.SKU], r.TransactionID) {
				r.MatchedProduct = m.ProductName
				r.Similarity = m.Similarity
				out = append(out, r)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].TransactionTS.After(out[j].TransactionTS)
	})
	return paginate(out, page), nil
}

func (s *memStore) QueryReadOnly(_ context.Context, query string, maxRows int, args ...any) ([]pool.Row, error) {
	s.record("query")
	s.mu.Lock()
	s.lastQuery, s.lastArgs, s.lastCap = query, args, maxRows
	s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.rows, nil
}

func paginate(in []receipt.Summary, page receipt.Page) []receipt.Summary {
	if page.Offset >= len(in) {
		return nil
	}
	in = in[page.Offset:]
	if page.Limit > 0 && len(in) > page.Limit {
		in = in[:page.Limit]
	}
	return in
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

type fakeIndex struct {
	matches []receipt.ProductMatch
	err     error
	calls   int
	minSim  float64
	topK    int
}

func (f *fakeIndex) Nearest(_ context.Context, _ []float32, minSimilarity float64, topK int) ([]receipt.ProductMatch, error) {
	f.calls++
	f.minSim, f.topK = minSimilarity, topK
	if f.err != nil {
		return nil, f.err
	}
	var out []receipt.ProductMatch
	for _, m := range f.matches {
		if m.Similarity >= minSimilarity {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeEmbedder struct {
	err   error
	calls int
	block bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeReasoner struct {
	sql        string
	genErr     error
	answer     string
	sumErr     error
	question   string
	summarized []map[string]any
}

func (f *fakeReasoner) GenerateQuery(_ context.Context, question, _ string) (string, error) {
	f.question = question
	return f.sql, f.genErr
}

func (f *fakeReasoner) Summarize(_ context.Context, _ string, rows []map[string]any) (string, error) {
	f.summarized = rows
	return f.answer, f.sumErr
}

type recordingObserver struct {
	mu         sync.Mutex
	strategies []string
	final      Strategy
	kind       string
	degraded   bool
}

func (r *recordingObserver) ObserveStrategy(s Strategy, result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies = append(r.strategies, string(s)+":"+result)
}

func (r *recordingObserver) ObserveSearch(s Strategy, kind string, degraded bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.final, r.kind, r.degraded = s, kind, degraded
}

func strPtr(s string) *string { return &s }

func ts(d, h int) time.Time { return time.Date(2025, 3, d, h, 0, 0, 0, time.UTC) }

// fixtureReceipts has two East Liberty receipts between $30 and $40.
func fixtureReceipts() []receipt.Summary {
	return []receipt.Summary{
		{TransactionID: "TXN-001", StoreID: "S-100", StoreName: "Giant Eagle East Liberty", TransactionTS: ts(3, 10), TotalCents: 3250, CustomerID: strPtr("C-1"), CardLast4: strPtr("4242")},
		{TransactionID: "TXN-002", StoreID: "S-100", StoreName: "Giant Eagle East Liberty", TransactionTS: ts(12, 18), TotalCents: 3899, CustomerID: strPtr("C-2")},
		{TransactionID: "TXN-003", StoreID: "S-100", StoreName: "Giant Eagle East Liberty", TransactionTS: ts(14, 9), TotalCents: 5120, CustomerID: strPtr("C-1")},
		{TransactionID: "TXN-004", StoreID: "S-200", StoreName: "Market District Shadyside", TransactionTS: ts(15, 11), TotalCents: 3500, CustomerID: strPtr("C-3")},
		{TransactionID: "TXN-005", StoreID: "S-300", StoreName: "Giant Eagle Waterworks", TransactionTS: ts(20, 16), TotalCents: 1999, CustomerID: strPtr("C-1")},
	}
}

type harness struct {
	store    *memStore
	index    *fakeIndex
	embedder *fakeEmbedder
	reasoner *fakeReasoner
	obs      *recordingObserver
	orch     *Orchestrator
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		store:    newMemStore(fixtureReceipts()...),
		index:    &fakeIndex{},
		embedder: &fakeEmbedder{},
		reasoner: &fakeReasoner{},
		obs:      &recordingObserver{},
	}
	h.store.skus["SKU-RIBEYE"] = []string{"TXN-003", "TXN-005"}
	h.index.matches = []receipt.ProductMatch{
		{SKU: "SKU-RIBEYE", ProductName: "USDA Choice Ribeye Steak", Similarity: 0.82},
		{SKU: "SKU-TOFU", ProductName: "Firm Tofu", Similarity: 0.41},
	}
	h.orch = NewOrchestrator(cfg, h.store, h.index, h.embedder, h.reasoner, WithObserver(h.obs))
	return h
}

func ids(rs []receipt.Summary) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.TransactionID)
	}
	return out
}

func TestSearchEastLibertyAmountRange(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	out, err := h.orch.Search(context.Background(), Criteria{
		StoreName:      "east liberty",
		AmountMinCents: cents(3000),
		AmountMaxCents: cents(4000),
	})
	require.NoError(t, err)
	assert.False(t, out.Degraded)
	assert.Equal(t, StrategyFuzzy, out.Result.Strategy)
	assert.Equal(t, []string{"TXN-002", "TXN-001"}, ids(out.Result.Receipts))
	assert.Zero(t, h.embedder.calls, "semantic must not run when fuzzy has rows")
	assert.Equal(t, []string{"fuzzy:hit"}, h.obs.strategies)
}

func TestSearchRibeyeSemantic(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	out, err := h.orch.Search(context.Background(), Criteria{Description: "ribeye steak"})
	require.NoError(t, err)
	assert.False(t, out.Degraded)
	assert.Equal(t, StrategySemantic, out.Result.Strategy)
	require.Len(t, out.Result.Receipts, 2)

	// Same similarity, so newest first.
	assert.Equal(t, []string{"TXN-005", "TXN-003"}, ids(out.Result.Receipts))
	for _, r := range out.Result.Receipts {
		assert.InDelta(t, 0.82, r.Similarity, 1e-9)
		assert.Equal(t, "USDA Choice Ribeye Steak", r.MatchedProduct)
	}
	assert.Equal(t, DefaultMinSimilarity, h.index.minSim)
	assert.Equal(t, DefaultTopK, h.index.topK)
	assert.Zero(t, h.store.count("find"), "free text alone skips fuzzy")
}

func TestSearchSemanticNarrowedByStructuredFields(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	// No East Liberty receipt is near $90, so fuzzy finds nothing. Semantic
	// keeps the store but drops the amount.
	out, err := h.orch.Search(context.Background(), Criteria{
		StoreName:   "East Liberty",
		AmountCents: cents(9000),
		Description: "ribeye",
	})
	require.NoError(t, err)
	assert.False(t, out.Degraded)
	assert.Equal(t, StrategySemantic, out.Result.Strategy)
	assert.Equal(t, []string{"TXN-003"}, ids(out.Result.Receipts))
	assert.Equal(t, 1, h.store.count("find"))
	assert.Equal(t, 1, h.store.count("by_products"))
	assert.Equal(t, []string{"fuzzy:empty", "semantic:hit"}, h.obs.strategies)

	// Customer and store both narrow; card and amount do not.
	out, err = h.orch.Search(context.Background(), Criteria{
		CustomerID:  "C-1",
		StoreName:   "Waterworks",
		CardLast4:   "0000",
		AmountCents: cents(9999),
		Description: "ribeye",
	})
	require.NoError(t, err)
	assert.Equal(t, StrategySemantic, out.Result.Strategy)
	assert.Equal(t, []string{"TXN-005"}, ids(out.Result.Receipts))

	// A customer with no ribeye receipts gets an empty semantic answer.
	out, err = h.orch.Search(context.Background(), Criteria{
		CustomerID:  "C-2",
		AmountCents: cents(9999),
		Description: "ribeye",
	})
	require.NoError(t, err)
	assert.Equal(t, StrategySemantic, out.Result.Strategy)
	assert.Empty(t, out.Result.Receipts)

	out, err = h.orch.Search(context.Background(), Criteria{
		CustomerID:  "C-1",
		StoreName:   "Waterworks",
		DateFrom:    day(2025, 3, 1),
		DateTo:      day(2025, 3, 31),
		Description: "ribeye",
	})
	require.NoError(t, err)
	// Fuzzy answers directly here.
	assert.Equal(t, StrategyFuzzy, out.Result.Strategy)
	assert.Equal(t, []string{"TXN-005"}, ids(out.Result.Receipts))
}

func TestSearchEmptyCriteriaMakesNoStoreCall(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	_, err := h.orch.Search(context.Background(), Criteria{Limit: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, h.store.total())
	assert.Zero(t, h.embedder.calls)
	assert.Equal(t, KindValidation, h.obs.kind)
}

func TestSearchExact(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		h := newHarness(t, DefaultConfig())
		out, err := h.orch.Search(context.Background(), Criteria{TransactionID: "TXN-004", StoreName: "East Liberty"})
		require.NoError(t, err)
		assert.Equal(t, StrategyExact, out.Result.Strategy)
		assert.Equal(t, []string{"TXN-004"}, ids(out.Result.Receipts))
		assert.Zero(t, h.store.count("find"))
	})

	t.Run("not found alone", func(t *testing.T) {
		h := newHarness(t, DefaultConfig())
		out, err := h.orch.Search(context.Background(), Criteria{TransactionID: "TXN-404"})
		require.NoError(t, err)
		assert.Equal(t, StrategyExact, out.Result.Strategy)
		assert.NotNil(t, out.Result.Receipts)
		assert.Empty(t, out.Result.Receipts)
		assert.Equal(t, 1, h.store.total())
	})

	t.Run("not found escalates", func(t *testing.T) {
		h := newHarness(t, DefaultConfig())
		out, err := h.orch.Search(context.Background(), Criteria{TransactionID: "TXN-404", StoreID: "S-200"})
		require.NoError(t, err)
		assert.Equal(t, StrategyFuzzy, out.Result.Strategy)
		assert.Equal(t, []string{"TXN-004"}, ids(out.Result.Receipts))
	})

	t.Run("timeout propagates", func(t *testing.T) {
		h := newHarness(t, DefaultConfig())
		h.store.getErr = errors.Join(pool.ErrQueryTimeout, context.DeadlineExceeded)

		_, err := h.orch.Search(context.Background(), Criteria{TransactionID: "TXN-001", StoreName: "East"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrBackingStoreTimeout)
		assert.Zero(t, h.store.count("find"))
		assert.Equal(t, KindTimeout, h.obs.kind)
	})
}

func TestSearchIsIdempotent(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	c := Criteria{StoreName: "Giant Eagle", AmountCents: cents(3600)}

	first, err := h.orch.Search(context.Background(), c)
	require.NoError(t, err)
	second, err := h.orch.Search(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"TXN-002", "TXN-001"}, ids(first.Result.Receipts))
}

func TestSearchFuzzyTimeout(t *testing.T) {
	timeout := errors.Join(pool.ErrQueryTimeout, context.DeadlineExceeded)

	t.Run("escalates to semantic with text", func(t *testing.T) {
		h := newHarness(t, DefaultConfig())
		h.store.findErr = timeout

		out, err := h.orch.Search(context.Background(), Criteria{StoreName: "East Liberty", Description: "ribeye"})
		require.NoError(t, err)
		assert.Equal(t, StrategySemantic, out.Result.Strategy)
		assert.Equal(t, []string{"TXN-003"}, ids(out.Result.Receipts))
		assert.Equal(t, []string{"fuzzy:timeout", "semantic:hit"}, h.obs.strategies)
	})

	t.Run("propagates without text", func(t *testing.T) {
		h := newHarness(t, DefaultConfig())
		h.store.findErr = timeout

		_, err := h.orch.Search(context.Background(), Criteria{StoreName: "East Liberty"})
		assert.ErrorIs(t, err, ErrBackingStoreTimeout)
		assert.Zero(t, h.embedder.calls)
	})
}

func TestSearchPoolFailuresPropagate(t *testing.T) {
	for _, poolErr := range []error{pool.ErrPoolExhausted, pool.ErrCredentialExpired} {
		t.Run(poolErr.Error(), func(t *testing.T) {
			h := newHarness(t, DefaultConfig())
			h.store.findErr = poolErr

			_, err := h.orch.Search(context.Background(), Criteria{StoreName: "East", Description: "ribeye"})
			assert.ErrorIs(t, err, poolErr)
			assert.Zero(t, h.embedder.calls)
		})
	}
}

func TestSearchEmbeddingFailureDegrades(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.embedder.err = errors.New("connection refused")

	out, err := h.orch.Search(context.Background(), Criteria{Description: "ribeye steak"})
	require.NoError(t, err)
	assert.True(t, out.Degraded)
	assert.NotEmpty(t, out.Reason)
	assert.ErrorIs(t, out.Cause, ErrExternalServiceUnavailable)
	assert.Equal(t, StrategySemantic, out.Result.Strategy)
	assert.Empty(t, out.Result.Receipts)
	assert.Zero(t, h.index.calls)
	assert.True(t, h.obs.degraded)
}

func TestSearchEmbeddingTimeoutDegrades(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EmbedTimeout = 10 * time.Millisecond
	h := newHarness(t, cfg)
	h.embedder.block = true

	out, err := h.orch.Search(context.Background(), Criteria{Description: "ribeye steak"})
	require.NoError(t, err)
	assert.True(t, out.Degraded)
	assert.ErrorIs(t, out.Cause, context.DeadlineExceeded)
}

func TestSearchCancelledRequest(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.embedder.block = true

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := h.orch.Search(ctx, Criteria{Description: "ribeye steak"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearchWithoutEmbedderDegrades(t *testing.T) {
	store := newMemStore(fixtureReceipts()...)
	orch := NewOrchestrator(DefaultConfig(), store, nil, nil, nil)

	out, err := orch.Search(context.Background(), Criteria{Description: "ribeye"})
	require.NoError(t, err)
	assert.True(t, out.Degraded)
	assert.Zero(t, store.total())
}

func TestSearchNaturalLanguage(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.reasoner.sql = "SELECT SUM(total_cents) AS total FROM receipt_lookup WHERE customer_id = {customer_id}"
	h.reasoner.answer = "Customer C-1 spent $103.69 in March."
	h.store.rows = []pool.Row{{Columns: []string{"total"}, Values: []any{int64(10369)}}}

	out, err := h.orch.Search(context.Background(), Criteria{CustomerID: "C-1", Description: "How much did they spend in March?"})
	require.NoError(t, err)
	assert.False(t, out.Degraded)
	assert.Equal(t, StrategyNLSQL, out.Result.Strategy)
	assert.Equal(t, "Customer C-1 spent $103.69 in March.", out.Result.Answer)
	assert.Equal(t, []map[string]any{{"total": int64(10369)}}, out.Result.Rows)

	assert.Equal(t, "SELECT SUM(total_cents) AS total FROM receipt_lookup WHERE customer_id = $1", h.store.lastQuery)
	assert.Equal(t, []any{"C-1"}, h.store.lastArgs)
	assert.Equal(t, DefaultNLRowCap, h.store.lastCap)
	assert.Contains(t, h.reasoner.question, CustomerPlaceholder)
	assert.Zero(t, h.store.count("find"))
}

func TestSearchNaturalLanguageDegrades(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
		c     Criteria
		want  Strategy
		rows  int
	}{
		{
			name:  "reasoner down, text only",
			setup: func(h *harness) { h.reasoner.genErr = errors.New("503") },
			c:     Criteria{Description: "total spent last month"},
			want:  StrategyNLSQL,
		},
		{
			name:  "unsafe statement falls back to fuzzy",
			setup: func(h *harness) { h.reasoner.sql = "DELETE FROM receipt_lookup" },
			c:     Criteria{StoreID: "S-200", Description: "total spent here"},
			want:  StrategyFuzzy,
			rows:  1,
		},
		{
			name: "statement fails to run",
			setup: func(h *harness) {
				h.reasoner.sql = "SELECT COUNT(*) FROM receipt_lookup"
				h.store.queryErr = errors.New("column does not exist")
			},
			c:    Criteria{Description: "how many receipts"},
			want: StrategyNLSQL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, DefaultConfig())
			tt.setup(h)

			out, err := h.orch.Search(context.Background(), tt.c)
			require.NoError(t, err)
			assert.True(t, out.Degraded)
			assert.Equal(t, reasonNLUnavailable, out.Reason)
			assert.Error(t, out.Cause)
			assert.Equal(t, tt.want, out.Result.Strategy)
			assert.Len(t, out.Result.Receipts, tt.rows)
			assert.Zero(t, h.embedder.calls)
		})
	}
}

func TestSearchNaturalLanguageSummaryFailureKeepsRows(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.reasoner.sql = "SELECT store_name, COUNT(*) AS n FROM receipt_lookup GROUP BY store_name"
	h.reasoner.sumErr = errors.New("empty response")
	h.store.rows = []pool.Row{{Columns: []string{"store_name", "n"}, Values: []any{"Giant Eagle East Liberty", int64(3)}}}

	out, err := h.orch.Search(context.Background(), Criteria{Description: "how many receipts per store"})
	require.NoError(t, err)
	assert.True(t, out.Degraded)
	assert.Len(t, out.Result.Rows, 1)
	assert.Empty(t, out.Result.Answer)
}

func TestSearchNaturalLanguagePoolFailurePropagates(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.reasoner.sql = "SELECT COUNT(*) FROM receipt_lookup"
	h.store.queryErr = pool.ErrPoolExhausted

	_, err := h.orch.Search(context.Background(), Criteria{Description: "how many receipts"})
	assert.ErrorIs(t, err, pool.ErrPoolExhausted)
	assert.Equal(t, KindPoolExhausted, h.obs.kind)
}

func TestSearchPaging(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	out, err := h.orch.Search(context.Background(), Criteria{StoreName: "Giant Eagle", Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"TXN-003", "TXN-002"}, ids(out.Result.Receipts))
}
