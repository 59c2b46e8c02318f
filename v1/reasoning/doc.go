// Package reasoning wraps an eino chat model for the analytical search
// path: turning a rep's question into a single SQL statement and turning
// the resulting rows back into a short answer.
//
// Generated SQL is untrusted. Callers must vet it (single SELECT,
// allow-listed tables, placeholder binding) before running it.
package reasoning
