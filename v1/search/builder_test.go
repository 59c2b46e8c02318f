package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/receipt-lookup/v1/receipt"
)

var testWidening = DefaultConfig().Widening

func TestBuildPredicatesOnePerField(t *testing.T) {
	c := Criteria{
		CustomerID:     "C-1",
		StoreID:        "S-9",
		StoreName:      "East Liberty",
		DateFrom:       day(2025, 3, 1),
		DateTo:         day(2025, 3, 31),
		AmountMinCents: cents(3000),
		AmountMaxCents: cents(4000),
		CardLast4:      "4242",
		TransactionID:  "ignored",
		Description:    "ignored too",
	}

	preds := BuildPredicates(c, testWidening)
	require.Len(t, preds, 6)

	var cols []receipt.Column
	for _, p := range preds {
		cols = append(cols, p.Column)
	}
	assert.Equal(t, []receipt.Column{
		receipt.ColCustomerID, receipt.ColStoreID, receipt.ColCardLast4,
		receipt.ColStoreName,
		receipt.ColTransactionTS, receipt.ColTotalCents,
	}, cols)
}

func TestBuildPredicatesNothingStructured(t *testing.T) {
	assert.Empty(t, BuildPredicates(Criteria{Description: "ribeye"}, testWidening))
}

func TestAmountWidening(t *testing.T) {
	tests := []struct {
		name   string
		c      Criteria
		lo, hi int64
	}{
		{name: "single", c: Criteria{AmountCents: cents(4250)}, lo: 3825, hi: 4675},
		{name: "single zero", c: Criteria{AmountCents: cents(0)}, lo: 0, hi: 0},
		{name: "both bounds kept", c: Criteria{AmountMinCents: cents(3000), AmountMaxCents: cents(4000)}, lo: 3000, hi: 4000},
		{name: "min only", c: Criteria{AmountMinCents: cents(3000)}, lo: 3000, hi: 3300},
		{name: "max only", c: Criteria{AmountMaxCents: cents(4000)}, lo: 3600, hi: 4000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := amountPredicate(tt.c, testWidening)
			require.True(t, ok)
			assert.Equal(t, receipt.OpBetween, p.Op)
			assert.Equal(t, []any{tt.lo, tt.hi}, p.Values)
		})
	}
}

func TestDateWidening(t *testing.T) {
	loc := time.UTC
	d := func(m time.Month, dd int) time.Time { return time.Date(2025, m, dd, 0, 0, 0, 0, loc) }
	noon := time.Date(2025, 3, 15, 12, 30, 0, 0, loc)

	tests := []struct {
		name string
		c    Criteria
		op   receipt.Op
		vals []any
	}{
		{name: "single date covers neighbours", c: Criteria{Date: &noon}, op: receipt.OpHalfOpen, vals: []any{d(3, 14), d(3, 17)}},
		{name: "range includes last day", c: Criteria{DateFrom: day(2025, 3, 1), DateTo: day(2025, 3, 31)}, op: receipt.OpHalfOpen, vals: []any{d(3, 1), d(4, 1)}},
		{name: "from only", c: Criteria{DateFrom: day(2025, 3, 1)}, op: receipt.OpGte, vals: []any{d(3, 1)}},
		{name: "to only", c: Criteria{DateTo: day(2025, 3, 31)}, op: receipt.OpLt, vals: []any{d(4, 1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := datePredicate(tt.c, testWidening)
			require.True(t, ok)
			assert.Equal(t, tt.op, p.Op)
			assert.Equal(t, tt.vals, p.Values)
		})
	}
}

func TestSingleDateMatchesDayEitherSide(t *testing.T) {
	target := day(2025, 3, 15)
	p, ok := datePredicate(Criteria{Date: target}, testWidening)
	require.True(t, ok)

	at := func(m time.Month, d, h int) receipt.Summary {
		return receipt.Summary{TransactionTS: time.Date(2025, m, d, h, 0, 0, 0, time.UTC)}
	}
	assert.False(t, p.Matches(at(3, 13, 23)))
	assert.True(t, p.Matches(at(3, 14, 0)))
	assert.True(t, p.Matches(at(3, 16, 23)))
	assert.False(t, p.Matches(at(3, 17, 0)))
}

func TestNarrowingPredicatesDropAmountAndCard(t *testing.T) {
	c := Criteria{
		CustomerID:  "C-1",
		StoreID:     "S-9",
		StoreName:   "East Liberty",
		Date:        day(2025, 3, 14),
		AmountCents: cents(9000),
		CardLast4:   "4242",
		Description: "ribeye",
	}

	var cols []receipt.Column
	for _, p := range NarrowingPredicates(c, testWidening) {
		cols = append(cols, p.Column)
	}
	assert.ElementsMatch(t, []receipt.Column{
		receipt.ColCustomerID, receipt.ColStoreID, receipt.ColStoreName, receipt.ColTransactionTS,
	}, cols)

	assert.Empty(t, NarrowingPredicates(Criteria{AmountCents: cents(9000), CardLast4: "4242"}, testWidening))
}
