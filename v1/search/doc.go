// Package search answers receipt searches for customer service.
//
// An Orchestrator tries strategies in a fixed order and stops at the first
// that answers:
//
//  1. exact: primary-key lookup by transaction id
//  2. fuzzy: parameterized predicates over the structured fields, with
//     single dates and amounts widened to ranges
//  3. semantic: free text is embedded and matched against product
//     embeddings, then joined to receipts through their line items
//  4. nl_sql: analytical questions become one vetted, read-only SELECT
//     whose rows are summarised for the rep
//
// Embedding and reasoning failures do not fail a search; they produce an
// Outcome with Degraded set. Pool failures always reach the caller.
//
// Basic usage:
//
//	orch := search.NewOrchestrator(search.DefaultConfig(), svc, repo, embedder, reasoner,
//		search.WithLogger(log))
//
//	out, err := orch.Search(ctx, search.Criteria{StoreName: "East Liberty"})
//	if err != nil {
//		return err
//	}
//	if out.Degraded {
//		log.Warn(out.Reason, out.Cause)
//	}
package search
