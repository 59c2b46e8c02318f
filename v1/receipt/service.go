package receipt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Aleph-Alpha/receipt-lookup/v1/cache"
	"github.com/Aleph-Alpha/receipt-lookup/v1/pool"
)

// Logger is the subset of v1/logger.Logger used here.
type Logger interface {
	Warn(msg string, err error, fields ...map[string]interface{})
}

// Service fronts the Repository with the receipt cache. Direct lookups
// are served from cache when possible; writes invalidate.
type Service struct {
	repo      *Repository
	cache     cache.Store
	customers cache.Store
	log       Logger
}

func NewService(repo *Repository, receipts cache.Store, log Logger) *Service {
	return &Service{repo: repo, cache: receipts, log: log}
}

// WithCustomerCache caches customer listings in c. Listings are not
// invalidated on write and live for the store's TTL.
func (s *Service) WithCustomerCache(c cache.Store) *Service {
	s.customers = c
	return s
}

func cacheKey(id string) string { return "receipt:" + id }

func customerKey(id string, page Page) string {
	return fmt.Sprintf("customer:%s:%d:%d", id, page.Limit, page.Offset)
}

// GetByID returns a receipt with line items, from cache when present.
// Cache failures degrade to a direct read.
func (s *Service) GetByID(ctx context.Context, transactionID string) (*Receipt, error) {
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, cacheKey(transactionID))
		if err != nil {
			s.log.Warn("Receipt cache read failed", err, map[string]interface{}{"transaction_id": transactionID})
		}
		if ok {
			var rec Receipt
			if err := json.Unmarshal(raw, &rec); err == nil {
				return &rec, nil
			}
		}
	}

	rec, err := s.repo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(rec); err == nil {
			if err := s.cache.Set(ctx, cacheKey(transactionID), raw, 0); err != nil {
				s.log.Warn("Receipt cache write failed", err, map[string]interface{}{"transaction_id": transactionID})
			}
		}
	}
	return rec, nil
}

// Save writes the receipt and drops any cached copy.
func (s *Service) Save(ctx context.Context, rec *Receipt) error {
	if err := s.repo.Save(ctx, rec); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, cacheKey(rec.TransactionID)); err != nil {
			s.log.Warn("Receipt cache invalidation failed", err, map[string]interface{}{"transaction_id": rec.TransactionID})
		}
	}
	return nil
}

// ListByCustomer returns one page of a customer's receipts, newest first.
func (s *Service) ListByCustomer(ctx context.Context, customerID string, page Page) ([]Summary, error) {
	key := customerKey(customerID, page)
	if s.customers != nil {
		raw, ok, err := s.customers.Get(ctx, key)
		if err != nil {
			s.log.Warn("Customer cache read failed", err, map[string]interface{}{"customer_id": customerID})
		}
		if ok {
			var list []Summary
			if err := json.Unmarshal(raw, &list); err == nil {
				return list, nil
			}
		}
	}

	list, err := s.repo.Find(ctx, []Predicate{Eq(ColCustomerID, customerID)}, page)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Summary{}
	}

	if s.customers != nil {
		if raw, err := json.Marshal(list); err == nil {
			if err := s.customers.Set(ctx, key, raw, 0); err != nil {
				s.log.Warn("Customer cache write failed", err, map[string]interface{}{"customer_id": customerID})
			}
		}
	}
	return list, nil
}

func (s *Service) Find(ctx context.Context, preds []Predicate, page Page) ([]Summary, error) {
	return s.repo.Find(ctx, preds, page)
}

func (s *Service) FindByProducts(ctx context.Context, matches []ProductMatch, preds []Predicate, page Page) ([]Summary, error) {
	return s.repo.FindByProducts(ctx, matches, preds, page)
}

func (s *Service) QueryReadOnly(ctx context.Context, query string, maxRows int, args ...any) ([]pool.Row, error) {
	return s.repo.QueryReadOnly(ctx, query, maxRows, args...)
}

// CacheStats reports receipt cache counters; zero without a cache.
func (s *Service) CacheStats() cache.Stats {
	if s.cache == nil {
		return cache.Stats{}
	}
	return s.cache.Stats()
}
