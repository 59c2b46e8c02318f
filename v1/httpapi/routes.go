package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Routes builds the API router. t and rec may be nil.
func (h *Handler) Routes(t Tracer, rec Recorder) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(RequestID)
	r.Use(Observe(h.log, t, rec))
	r.Use(Recover(h.log))

	r.Get("/healthz", h.Health)

	r.Route("/v1", func(r chi.Router) {
		if h.limiter != nil {
			r.Use(RateLimit(h.limiter, h.log))
		}
		r.Use(Timeout(h.cfg.RequestTimeout))

		r.Post("/search", h.Search)
		r.Post("/receipts", h.CreateReceipt)
		r.Get("/receipts/{transactionID}", h.GetReceipt)
		r.Get("/receipts/customer/{customerID}", h.ListCustomerReceipts)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "Route not found", nil)
	})
	return r
}
