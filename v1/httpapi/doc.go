// Package httpapi is the JSON API used by the customer service console.
//
// Routes:
//
//	POST /v1/search                      search receipts (amounts in dollars)
//	GET  /v1/receipts/{transactionID}    one receipt with line items
//	POST /v1/receipts                    POS write of a receipt
//	GET  /healthz                        pool, lease and cache state
//
// Every body is wrapped in {"success", "data", "error"}. A degraded search
// is still a 200 with "degraded": true and a message for the rep. Errors
// map to statuses as follows: validation 400, unknown receipt 404,
// exhausted pool 503 with Retry-After, expired credential 503 with code
// CREDENTIAL_EXPIRED, store timeout 504.
package httpapi
