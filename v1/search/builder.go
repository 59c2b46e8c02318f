package search

import (
	"time"

	"github.com/Aleph-Alpha/receipt-lookup/v1/receipt"
)

// BuildPredicates turns the structured fields of c into one predicate per
// supplied field, most selective first. The transaction id and free text
// never become predicates here.
func BuildPredicates(c Criteria, w Widening) []receipt.Predicate {
	var preds []receipt.Predicate

	if c.CustomerID != "" {
		preds = append(preds, receipt.Eq(receipt.ColCustomerID, c.CustomerID))
	}
	if c.StoreID != "" {
		preds = append(preds, receipt.Eq(receipt.ColStoreID, c.StoreID))
	}
	if c.CardLast4 != "" {
		preds = append(preds, receipt.Eq(receipt.ColCardLast4, c.CardLast4))
	}
	if c.StoreName != "" {
		preds = append(preds, receipt.ILike(receipt.ColStoreName, c.StoreName))
	}
	if p, ok := datePredicate(c, w); ok {
		preds = append(preds, p)
	}
	if p, ok := amountPredicate(c, w); ok {
		preds = append(preds, p)
	}

	return receipt.SortBySelectivity(preds)
}

// NarrowingPredicates is the subset of BuildPredicates that scopes a
// semantic search: customer, store and date window. Amount and card never
// narrow.
func NarrowingPredicates(c Criteria, w Widening) []receipt.Predicate {
	var preds []receipt.Predicate

	if c.CustomerID != "" {
		preds = append(preds, receipt.Eq(receipt.ColCustomerID, c.CustomerID))
	}
	if c.StoreID != "" {
		preds = append(preds, receipt.Eq(receipt.ColStoreID, c.StoreID))
	}
	if c.StoreName != "" {
		preds = append(preds, receipt.ILike(receipt.ColStoreName, c.StoreName))
	}
	if p, ok := datePredicate(c, w); ok {
		preds = append(preds, p)
	}

	return receipt.SortBySelectivity(preds)
}

// datePredicate returns a half-open timestamp range. A single date D
// covers every instant from the start of D-w.Date to the end of D+w.Date.
// A range covers both end days in full.
func datePredicate(c Criteria, w Widening) (receipt.Predicate, bool) {
	const day = 24 * time.Hour
	col := receipt.ColTransactionTS

	switch {
	case c.Date != nil:
		d := startOfDay(*c.Date)
		return receipt.HalfOpen(col, d.Add(-w.Date), d.Add(w.Date+day)), true
	case c.DateFrom != nil && c.DateTo != nil:
		return receipt.HalfOpen(col, startOfDay(*c.DateFrom), startOfDay(*c.DateTo).Add(day)), true
	case c.DateFrom != nil:
		return receipt.Gte(col, startOfDay(*c.DateFrom)), true
	case c.DateTo != nil:
		return receipt.Lt(col, startOfDay(*c.DateTo).Add(day)), true
	}
	return receipt.Predicate{}, false
}

// amountPredicate widens single-sided input by w.AmountPercent using
// integer cents. Lower bounds never go below zero.
func amountPredicate(c Criteria, w Widening) (receipt.Predicate, bool) {
	col := receipt.ColTotalCents
	widen := func(x int64) int64 { return x * w.AmountPercent / 100 }

	switch {
	case c.AmountCents != nil:
		x := *c.AmountCents
		return receipt.Between(col, max(x-widen(x), 0), x+widen(x)), true
	case c.AmountMinCents != nil && c.AmountMaxCents != nil:
		return receipt.Between(col, *c.AmountMinCents, *c.AmountMaxCents), true
	case c.AmountMinCents != nil:
		x := *c.AmountMinCents
		return receipt.Between(col, x, x+widen(x)), true
	case c.AmountMaxCents != nil:
		y := *c.AmountMaxCents
		return receipt.Between(col, max(y-widen(y), 0), y), true
	}
	return receipt.Predicate{}, false
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
