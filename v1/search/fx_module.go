package search

import (
	"go.uber.org/fx"

	"github.com/Aleph-Alpha/receipt-lookup/v1/embedding"
	"github.com/Aleph-Alpha/receipt-lookup/v1/logger"
	"github.com/Aleph-Alpha/receipt-lookup/v1/qdrant"
	"github.com/Aleph-Alpha/receipt-lookup/v1/reasoning"
	"github.com/Aleph-Alpha/receipt-lookup/v1/receipt"
)

// FXModule provides the *Orchestrator. The product index is qdrant when a
// client is configured and pgvector through the receipt repository
// otherwise.
var FXModule = fx.Module("search",
	fx.Provide(NewOrchestratorWithDI),
)

// OrchestratorParams are the orchestrator's dependencies. Observer and
// Tracer are optional.
type OrchestratorParams struct {
	fx.In

	Config     Config
	Service    *receipt.Service
	Repository *receipt.Repository
	Qdrant     *qdrant.QdrantClient
	Embedder   embedding.Embedder
	Reasoner   *reasoning.Reasoner
	Logger     logger.Logger

	Observer Observer `optional:"true"`
	Tracer   Tracer   `optional:"true"`
}

func NewOrchestratorWithDI(p OrchestratorParams) (*Orchestrator, error) {
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}

	var index ProductIndex = p.Repository
	if p.Qdrant != nil {
		index = p.Qdrant
	}

	var reasoner Reasoner
	if p.Reasoner != nil {
		reasoner = p.Reasoner
	}

	return NewOrchestrator(p.Config, p.Service, index, p.Embedder, reasoner,
		WithLogger(p.Logger),
		WithObserver(p.Observer),
		WithTracer(p.Tracer),
		WithSchema(reasoning.ReceiptSchema),
	), nil
}
