package search

import "github.com/Aleph-Alpha/receipt-lookup/v1/receipt"

// Strategy names the escalation step that produced a result.
type Strategy string

const (
	StrategyExact    Strategy = "exact"
	StrategyFuzzy    Strategy = "fuzzy"
	StrategySemantic Strategy = "semantic"
	StrategyNLSQL    Strategy = "nl_sql"
)

// Result is what a strategy found. Receipts are ordered newest first,
// except for semantic results which are ordered by similarity.
type Result struct {
	Receipts []receipt.Summary `json:"receipts"`
	Strategy Strategy          `json:"strategy_used"`

	// Answer and Rows are set by the NL-to-SQL path.
	Answer string           `json:"answer,omitempty"`
	Rows   []map[string]any `json:"rows,omitempty"`
}

// Outcome is a search answer. A degraded outcome is still a successful
// response, but Result may be partial or empty and Reason explains why;
// callers must check Degraded before treating it as a clean hit.
type Outcome struct {
	Result   Result
	Degraded bool
	Reason   string
	Cause    error
}

func ok(r Result) Outcome { return Outcome{Result: r} }

func degraded(r Result, reason string, cause error) Outcome {
	return Outcome{Result: r, Degraded: true, Reason: reason, Cause: cause}
}

const (
	reasonSemanticUnavailable = "Product search is unavailable right now. Try searching by store, date, amount or card instead."
	reasonNLUnavailable       = "The question could not be answered automatically. Try searching by store, date, amount or card instead."
)
