package probgen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCost(t *testing.T) {
	assert.InDelta(t, 2.50+10.00, Cost(1_000_000, 1_000_000, "gpt-4o"), 1e-9)
	assert.InDelta(t, 0.15/10+0.60/10, Cost(100_000, 100_000, "gpt-4o-mini"), 1e-9)
	// Unknown models are billed at the default price rather than free.
	assert.InDelta(t, Cost(1000, 1000, "gpt-4o"), Cost(1000, 1000, "some-new-model"), 1e-9)
}

type failingCostStore struct{}

func (failingCostStore) InsertCostRecord(ctx context.Context, rec *CostRecord) error {
	return errors.New("disk full")
}

func TestCostTrackerRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("persists a full row", func(t *testing.T) {
		store := NewMemoryCostStore()
		tracker := NewCostTracker(store, testLogger())

		cost := tracker.Record(ctx, "user-1", StageGeneration, "gpt-4o", TokenUsage{InputTokens: 1000, OutputTokens: 500})
		assert.Greater(t, cost, 0.0)

		records := store.Records()
		require.Len(t, records, 1)
		assert.Equal(t, "user-1", records[0].UserID)
		assert.Equal(t, StageGeneration, records[0].Stage)
		assert.Equal(t, 1000, records[0].InputTokens)
		assert.Equal(t, 500, records[0].OutputTokens)
		assert.InDelta(t, cost, records[0].CostUSD, 1e-9)
		assert.False(t, records[0].CreatedAt.IsZero())
	})

	t.Run("store failure never propagates", func(t *testing.T) {
		tracker := NewCostTracker(failingCostStore{}, testLogger())
		cost := tracker.Record(ctx, "user-1", StageGeneration, "gpt-4o", TokenUsage{InputTokens: 100, OutputTokens: 100})
		assert.Greater(t, cost, 0.0)
	})

	t.Run("nil store still computes cost", func(t *testing.T) {
		tracker := NewCostTracker(nil, testLogger())
		cost := tracker.Record(ctx, "user-1", StageDesign, "gpt-4o", TokenUsage{InputTokens: 100, OutputTokens: 100})
		assert.Greater(t, cost, 0.0)
	})
}
