package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Aleph-Alpha/receipt-lookup/v1/pool"
	"github.com/Aleph-Alpha/receipt-lookup/v1/receipt"
)

// Store is the receipt data access the orchestrator needs.
// *receipt.Service satisfies it.
type Store interface {
	GetByID(ctx context.Context, transactionID string) (*receipt.Receipt, error)
	Find(ctx context.Context, preds []receipt.Predicate, page receipt.Page) ([]receipt.Summary, error)
	FindByProducts(ctx context.Context, matches []receipt.ProductMatch, preds []receipt.Predicate, page receipt.Page) ([]receipt.Summary, error)
	QueryReadOnly(ctx context.Context, query string, maxRows int, args ...any) ([]pool.Row, error)
}

// ProductIndex finds products close to a query vector. Both the pgvector
// repository and the qdrant client implement it.
type ProductIndex interface {
	Nearest(ctx context.Context, vec []float32, minSimilarity float64, topK int) ([]receipt.ProductMatch, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Reasoner interface {
	GenerateQuery(ctx context.Context, question, schemaText string) (string, error)
	Summarize(ctx context.Context, question string, rows []map[string]any) (string, error)
}

// Orchestrator runs a search through exact, fuzzy, semantic and NL-to-SQL
// strategies in that order, stopping at the first one that answers.
// Strategies never run in parallel within a request.
type Orchestrator struct {
	cfg        Config
	store      Store
	index      ProductIndex
	embedder   Embedder
	reasoner   Reasoner
	classifier IntentClassifier
	guard      *Guard
	schema     string

	log    Logger
	obs    Observer
	tracer Tracer
}

type Option func(*Orchestrator)

func WithLogger(log Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.obs = obs
		}
	}
}

func WithTracer(t Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithClassifier replaces the keyword intent classifier.
func WithClassifier(c IntentClassifier) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.classifier = c
		}
	}
}

func WithGuard(g *Guard) Option {
	return func(o *Orchestrator) {
		if g != nil {
			o.guard = g
		}
	}
}

// WithSchema sets the schema description handed to the reasoner.
func WithSchema(schemaText string) Option {
	return func(o *Orchestrator) { o.schema = schemaText }
}

// NewOrchestrator wires the strategies. embedder and reasoner may be nil,
// in which case the semantic and NL-to-SQL paths always degrade.
func NewOrchestrator(cfg Config, store Store, index ProductIndex, embedder Embedder, reasoner Reasoner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg.withDefaults(),
		store:      store,
		index:      index,
		embedder:   embedder,
		reasoner:   reasoner,
		classifier: NewKeywordClassifier(),
		guard:      NewGuard(),
		log:        nopLogger{},
		obs:        nopObserver{},
		tracer:     nopTracer{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Search validates c and runs the escalation. A degraded Outcome comes
// with a nil error. Errors are validation failures, pool failures,
// timeouts with no strategy left to escalate to, and cancellation.
func (o *Orchestrator) Search(ctx context.Context, c Criteria) (out Outcome, err error) {
	start := time.Now()
	defer func() {
		o.obs.ObserveSearch(out.Result.Strategy, Kind(err), out.Degraded, time.Since(start))
	}()

	if err := c.Validate(); err != nil {
		return Outcome{}, err
	}
	limit, offset := c.page(o.cfg.DefaultLimit)
	page := receipt.Page{Limit: limit, Offset: offset}

	if c.TransactionID != "" {
		res, err := o.exact(ctx, c.TransactionID)
		if err != nil {
			return Outcome{}, err
		}
		if len(res.Receipts) > 0 || (!c.HasStructured() && c.Description == "") {
			return ok(res), nil
		}
	}

	if c.Description != "" && o.classifier.IsAnalytical(c.Description) {
		return o.naturalLanguage(ctx, c, page)
	}

	if c.HasStructured() {
		res, err := o.fuzzy(ctx, c, page)
		switch {
		case err == nil && len(res.Receipts) > 0:
			return ok(res), nil
		case err == nil && c.Description == "":
			return ok(res), nil
		case err == nil:
		case isStoreTimeout(ctx, err) && c.Description != "":
			o.log.Warn("fuzzy search timed out, trying semantic search", err, nil)
		case isStoreTimeout(ctx, err):
			return Outcome{}, fmt.Errorf("%w: fuzzy search: %w", ErrBackingStoreTimeout, err)
		default:
			return Outcome{}, o.fail(ctx, err)
		}
	}

	return o.semantic(ctx, c, page)
}

func (o *Orchestrator) exact(ctx context.Context, id string) (res Result, err error) {
	ctx, done := o.begin(ctx, StrategyExact)
	defer func() { done(len(res.Receipts), err) }()

	res = Result{Strategy: StrategyExact, Receipts: []receipt.Summary{}}

	sctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()

	rec, err := o.store.GetByID(sctx, id)
	switch {
	case err == nil:
		res.Receipts = append(res.Receipts, rec.Summarize())
		return res, nil
	case errors.Is(err, receipt.ErrReceiptNotFound):
		return res, nil
	case isStoreTimeout(ctx, err):
		return res, fmt.Errorf("%w: exact lookup: %w", ErrBackingStoreTimeout, err)
	}
	return res, o.fail(ctx, err)
}

func (o *Orchestrator) fuzzy(ctx context.Context, c Criteria, page receipt.Page) (res Result, err error) {
	ctx, done := o.begin(ctx, StrategyFuzzy)
	defer func() { done(len(res.Receipts), err) }()

	res = Result{Strategy: StrategyFuzzy, Receipts: []receipt.Summary{}}

	sctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()

	found, err := o.store.Find(sctx, BuildPredicates(c, o.cfg.Widening), page)
	if err != nil {
		return res, err
	}
	if found != nil {
		res.Receipts = found
	}
	return res, nil
}

func (o *Orchestrator) semantic(ctx context.Context, c Criteria, page receipt.Page) (out Outcome, err error) {
	ctx, done := o.begin(ctx, StrategySemantic)
	defer func() {
		if out.Degraded {
			done(-1, out.Cause)
			return
		}
		done(len(out.Result.Receipts), err)
	}()

	res := Result{Strategy: StrategySemantic, Receipts: []receipt.Summary{}}
	if o.embedder == nil || o.index == nil {
		return degraded(res, reasonSemanticUnavailable, fmt.Errorf("%w: semantic search is not configured", ErrExternalServiceUnavailable)), nil
	}

	ectx, cancel := context.WithTimeout(ctx, o.cfg.EmbedTimeout)
	vec, err := o.embedder.Embed(ectx, c.Description)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		o.log.Warn("embedding failed, returning degraded result", err, nil)
		return degraded(res, reasonSemanticUnavailable, fmt.Errorf("%w: embedding: %w", ErrExternalServiceUnavailable, err)), nil
	}

	sctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	matches, err := o.index.Nearest(sctx, vec, o.cfg.MinSimilarity, o.cfg.TopK)
	cancel()
	switch {
	case err == nil:
	case isStoreTimeout(ctx, err):
		return Outcome{}, fmt.Errorf("%w: product search: %w", ErrBackingStoreTimeout, err)
	case isPoolFailure(err) || ctx.Err() != nil:
		return Outcome{}, o.fail(ctx, err)
	default:
		o.log.Warn("product index failed, returning degraded result", err, nil)
		return degraded(res, reasonSemanticUnavailable, fmt.Errorf("%w: product index: %w", ErrExternalServiceUnavailable, err)), nil
	}
	if len(matches) == 0 {
		return ok(res), nil
	}

	sctx, cancel = context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()

	found, err := o.store.FindByProducts(sctx, matches, NarrowingPredicates(c, o.cfg.Widening), page)
	switch {
	case err == nil:
	case isStoreTimeout(ctx, err):
		return Outcome{}, fmt.Errorf("%w: semantic search: %w", ErrBackingStoreTimeout, err)
	default:
		return Outcome{}, o.fail(ctx, err)
	}
	if found != nil {
		res.Receipts = found
	}
	return ok(res), nil
}

func (o *Orchestrator) naturalLanguage(ctx context.Context, c Criteria, page receipt.Page) (out Outcome, err error) {
	ctx, done := o.begin(ctx, StrategyNLSQL)
	defer func() {
		if out.Degraded {
			done(-1, out.Cause)
			return
		}
		done(len(out.Result.Rows), err)
	}()

	if o.reasoner == nil {
		return o.nlFallback(ctx, c, page, fmt.Errorf("%w: reasoning is not configured", ErrExternalServiceUnavailable))
	}

	question := framedQuestion(c)

	rctx, cancel := context.WithTimeout(ctx, o.cfg.ReasonTimeout)
	raw, err := o.reasoner.GenerateQuery(rctx, question, o.schema)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return o.nlFallback(ctx, c, page, fmt.Errorf("%w: generate query: %w", ErrExternalServiceUnavailable, err))
	}

	stmt, err := o.guard.Vet(raw, c.CustomerID)
	if err != nil {
		o.log.Warn("generated statement rejected", err, map[string]interface{}{"sql": raw})
		return o.nlFallback(ctx, c, page, err)
	}

	sctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	rows, err := o.store.QueryReadOnly(sctx, stmt.SQL, o.cfg.NLRowCap, stmt.Args...)
	cancel()
	switch {
	case err == nil:
	case isPoolFailure(err) || ctx.Err() != nil:
		return Outcome{}, o.fail(ctx, err)
	default:
		return o.nlFallback(ctx, c, page, fmt.Errorf("execute generated statement: %w", err))
	}

	maps := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		maps = append(maps, r.Map())
	}
	res := Result{Strategy: StrategyNLSQL, Receipts: []receipt.Summary{}, Rows: maps}

	rctx, cancel = context.WithTimeout(ctx, o.cfg.ReasonTimeout)
	answer, err := o.reasoner.Summarize(rctx, c.Description, maps)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return degraded(res, reasonNLUnavailable, fmt.Errorf("%w: summarize: %w", ErrExternalServiceUnavailable, err)), nil
	}
	res.Answer = answer
	return ok(res), nil
}

// nlFallback answers a failed NL-to-SQL attempt. With structured fields
// the fuzzy result is returned, still marked degraded; otherwise the
// result is empty.
func (o *Orchestrator) nlFallback(ctx context.Context, c Criteria, page receipt.Page, cause error) (Outcome, error) {
	o.log.Warn("natural language query failed, falling back", cause, nil)

	if !c.HasStructured() {
		return degraded(Result{Strategy: StrategyNLSQL, Receipts: []receipt.Summary{}}, reasonNLUnavailable, cause), nil
	}

	res, err := o.fuzzy(ctx, c, page)
	switch {
	case err == nil:
		return degraded(res, reasonNLUnavailable, cause), nil
	case isStoreTimeout(ctx, err):
		return Outcome{}, fmt.Errorf("%w: fuzzy search: %w", ErrBackingStoreTimeout, err)
	}
	return Outcome{}, o.fail(ctx, err)
}

func framedQuestion(c Criteria) string {
	if c.CustomerID == "" {
		return c.Description + "\n\nNo customer is selected; do not filter by customer."
	}
	return c.Description + "\n\nThe question is about customer " + CustomerPlaceholder + "."
}

// fail prefers the request's own cancellation over whatever the store
// reported for it.
func (o *Orchestrator) fail(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// begin opens a span for one strategy. The returned func records the
// attempt; n < 0 marks a degraded attempt.
func (o *Orchestrator) begin(ctx context.Context, s Strategy) (context.Context, func(n int, err error)) {
	start := time.Now()
	ctx, span := o.tracer.StartSpan(ctx, "search."+string(s))
	parent := ctx

	return ctx, func(n int, err error) {
		result := "hit"
		switch {
		case n < 0:
			result = "degraded"
		case err != nil && isStoreTimeout(parent, err):
			result = "timeout"
		case err != nil:
			result = "error"
		case n == 0:
			result = "empty"
		}
		if err != nil {
			o.tracer.RecordErrorOnSpan(span, err)
		}
		o.tracer.SetAttributes(span, map[string]interface{}{
			"search.strategy": string(s),
			"search.result":   result,
			"search.count":    max(n, 0),
		})
		span.End()
		o.obs.ObserveStrategy(s, result, time.Since(start))
	}
}
