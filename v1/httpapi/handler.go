package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Aleph-Alpha/receipt-lookup/v1/cache"
	"github.com/Aleph-Alpha/receipt-lookup/v1/pool"
	"github.com/Aleph-Alpha/receipt-lookup/v1/receipt"
	"github.com/Aleph-Alpha/receipt-lookup/v1/search"
)

// Searcher runs searches. *search.Orchestrator satisfies it.
type Searcher interface {
	Search(ctx context.Context, c search.Criteria) (search.Outcome, error)
}

// Receipts is direct receipt access. *receipt.Service satisfies it.
type Receipts interface {
	GetByID(ctx context.Context, transactionID string) (*receipt.Receipt, error)
	Save(ctx context.Context, rec *receipt.Receipt) error
	ListByCustomer(ctx context.Context, customerID string, page receipt.Page) ([]receipt.Summary, error)
	CacheStats() cache.Stats
}

// PoolStats reports the connection manager state. *pool.Manager
// satisfies it.
type PoolStats interface {
	Stats() pool.ManagerStats
}

// Handler serves the CS search API.
type Handler struct {
	cfg      Config
	search   Searcher
	receipts Receipts
	pool     PoolStats
	caches   *cache.Caches
	limiter  *RateLimiter
	log      Logger
	now      func() time.Time
}

const (
	defaultCustomerLimit = 20
	maxCustomerLimit     = 100
)

func NewHandler(cfg Config, s Searcher, r Receipts, p PoolStats, caches *cache.Caches, log Logger) *Handler {
	h := &Handler{
		cfg:      cfg.withDefaults(),
		search:   s,
		receipts: r,
		pool:     p,
		caches:   caches,
		log:      log,
		now:      time.Now,
	}
	if h.cfg.RateLimit > 0 {
		h.limiter = NewRateLimiter(h.cfg.RateLimit, h.cfg.RateLimitBurst)
	}
	return h
}

// Search handles POST /v1/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := h.decode(w, r, &req); err != nil {
		badRequest(w, "Invalid JSON body")
		return
	}

	c, err := req.Criteria()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out, err := h.search.Search(r.Context(), c)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if out.Degraded {
		h.log.WarnWithContext(r.Context(), "Search degraded", out.Cause, map[string]interface{}{
			"strategy":   string(out.Result.Strategy),
			"request_id": RequestIDFromContext(r.Context()),
		})
	}
	ok(w, newSearchResponse(out))
}

// GetReceipt handles GET /v1/receipts/{transactionID}.
func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "transactionID"))
	if id == "" || len(id) > 100 {
		badRequest(w, "Invalid transaction ID")
		return
	}

	rec, err := h.receipts.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, rec)
}

// ListCustomerReceipts handles GET /v1/receipts/customer/{customerID}.
// Summaries come newest first; line items need a GetReceipt call.
func (h *Handler) ListCustomerReceipts(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "customerID"))
	if id == "" || len(id) > 64 {
		badRequest(w, "Invalid customer ID")
		return
	}

	limit, err := queryInt(r, "limit", defaultCustomerLimit)
	if err != nil || limit < 1 || limit > maxCustomerLimit {
		badRequest(w, "limit must be between 1 and "+strconv.Itoa(maxCustomerLimit))
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		badRequest(w, "offset must not be negative")
		return
	}

	list, err := h.receipts.ListByCustomer(r.Context(), id, receipt.Page{Limit: limit, Offset: offset})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, CustomerReceiptsResponse{
		CustomerID: id,
		Receipts:   list,
		Count:      len(list),
		Limit:      limit,
		Offset:     offset,
	})
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// CreateReceipt handles POST /v1/receipts.
func (h *Handler) CreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req ReceiptWriteRequest
	if err := h.decode(w, r, &req); err != nil {
		badRequest(w, "Invalid JSON body")
		return
	}

	rec, err := req.Receipt()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.receipts.Save(r.Context(), rec); err != nil {
		h.fail(w, r, err)
		return
	}
	created(w, map[string]interface{}{
		"transaction_id": rec.TransactionID,
		"line_items":     len(rec.LineItems),
	})
}

// HealthResponse is the data of GET /healthz.
type HealthResponse struct {
	Status          string                 `json:"status"`
	Pool            pool.ManagerStats      `json:"pool"`
	LeaseAgeSeconds float64                `json:"lease_age_seconds"`
	Caches          map[string]cache.Stats `json:"caches,omitempty"`
}

// Health handles GET /healthz. An expired lease or a pool with no
// capacity reports 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.pool.Stats()
	resp := HealthResponse{Status: "healthy", Pool: stats}

	if !stats.LeaseIssuedAt.IsZero() {
		resp.LeaseAgeSeconds = h.now().Sub(stats.LeaseIssuedAt).Seconds()
	}
	if h.caches != nil {
		resp.Caches = map[string]cache.Stats{
			"embeddings": h.caches.Embeddings.Stats(),
			"receipts":   h.caches.Receipts.Stats(),
			"customers":  h.caches.Customers.Stats(),
		}
	} else if h.receipts != nil {
		resp.Caches = map[string]cache.Stats{"receipts": h.receipts.CacheStats()}
	}

	if stats.LeaseExpired || stats.Max == 0 {
		resp.Status = "unhealthy"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	ok(w, resp)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	defer body.Close()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// fail maps err to a status code and error body.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	fields := map[string]interface{}{
		"request_id": RequestIDFromContext(ctx),
		"path":       r.URL.Path,
	}

	var verr *search.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, CodeValidation, "Validation failed", verr.Fields)
		return
	case errors.Is(err, receipt.ErrInvalidReceipt):
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	case errors.Is(err, receipt.ErrReceiptNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "Receipt not found", nil)
		return
	case errors.Is(err, receipt.ErrDuplicateReceipt):
		writeError(w, http.StatusConflict, CodeConflict, "Receipt already exists", nil)
		return
	}

	switch search.Kind(err) {
	case search.KindValidation:
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
	case search.KindPoolExhausted:
		h.log.WarnWithContext(ctx, "Connection pool exhausted", err, fields)
		w.Header().Set("Retry-After", strconv.Itoa(int(h.cfg.RetryAfter.Round(time.Second).Seconds())))
		writeError(w, http.StatusServiceUnavailable, CodePoolExhausted, "The service is busy, retry shortly", nil)
	case search.KindCredentialExpired:
		h.log.ErrorWithContext(ctx, "Database credential expired", err, fields)
		writeError(w, http.StatusServiceUnavailable, CodeCredentialExpired, "The receipt store is temporarily unavailable", nil)
	case search.KindTimeout:
		h.log.WarnWithContext(ctx, "Backing store timeout", err, fields)
		writeError(w, http.StatusGatewayTimeout, CodeBackingStoreTimeout, "The receipt store did not answer in time", nil)
	case search.KindInternal:
		if errors.Is(err, context.DeadlineExceeded) {
			h.log.WarnWithContext(ctx, "Request deadline exceeded", err, fields)
			writeError(w, http.StatusGatewayTimeout, CodeBackingStoreTimeout, "The request did not complete in time", nil)
			return
		}
		h.log.ErrorWithContext(ctx, "Request failed", err, fields)
		internalError(w)
	case search.KindExternalService:
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "A dependent service is unavailable", nil)
	case search.KindCanceled:
		// Client went away; the status is never read.
		writeError(w, 499, CodeCanceled, "Request canceled", nil)
	default:
		h.log.ErrorWithContext(ctx, "Request failed", err, fields)
		internalError(w)
	}
}
