package probgen

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ModelPrice is the USD price per million tokens for one model.
type ModelPrice struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// modelPrices covers the models the gateway can be pointed at. Unknown
// models fall back to defaultModelPrice.
var modelPrices = map[string]ModelPrice{
	"gpt-4o":      {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4o-mini": {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4.1":     {InputPerMillion: 2.00, OutputPerMillion: 8.00},
}

var defaultModelPrice = ModelPrice{InputPerMillion: 2.50, OutputPerMillion: 10.00}

// Cost computes the dollar cost of a model call.
func Cost(inputTokens, outputTokens int, model string) float64 {
	price, ok := modelPrices[model]
	if !ok {
		price = defaultModelPrice
	}
	return float64(inputTokens)/1e6*price.InputPerMillion +
		float64(outputTokens)/1e6*price.OutputPerMillion
}

// CostTracker records per-stage token usage and dollar cost. Recording is
// fire-and-forget: a storage failure is logged and never propagates, so cost
// tracking can never fail a generation request.
type CostTracker struct {
	store CostStore
	log   *zap.SugaredLogger
}

// NewCostTracker wires a tracker over a CostStore; store may be nil to
// disable persistence while keeping cost computation.
func NewCostTracker(store CostStore, log *zap.SugaredLogger) *CostTracker {
	return &CostTracker{store: store, log: log.Named("costs")}
}

// Record persists one cost row and returns the computed cost.
func (t *CostTracker) Record(ctx context.Context, userID string, stage Stage, model string, usage TokenUsage) float64 {
	cost := Cost(usage.InputTokens, usage.OutputTokens, model)
	if t.store == nil {
		return cost
	}
	rec := &CostRecord{
		UserID:       userID,
		Stage:        stage,
		Model:        model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      cost,
		CreatedAt:    time.Now().UTC(),
	}
	if err := t.store.InsertCostRecord(ctx, rec); err != nil {
		t.log.Warnw("cost record insert failed",
			"user_id", userID,
			"stage", stage,
			"error", err,
		)
	}
	return cost
}
