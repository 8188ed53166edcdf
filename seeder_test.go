package probgen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSeeder(store *MemorySampleStore, gw ModelGateway, embedder Embedder) *Seeder {
	return NewSeeder(store, gw, embedder, nil, testLogger())
}

func seedHandler(problems ...GeneratedProblem) func(req GatewayRequest) (GatewayResponse, error) {
	return func(req GatewayRequest) (GatewayResponse, error) {
		return GatewayResponse{Content: problemsPayload(problems...), Model: "gpt-4o"}, nil
	}
}

func TestGetOrCreateSamples(t *testing.T) {
	ctx := context.Background()

	t.Run("enough existing samples means no model call", func(t *testing.T) {
		store := NewMemorySampleStore()
		for _, id := range []string{"s1", "s2", "s3"} {
			s := sample(id, "frontend", "react", OriginHuman, "react")
			require.NoError(t, store.InsertSample(ctx, &s))
		}
		gw := &fakeGateway{}
		seeder := newTestSeeder(store, gw, &fakeEmbedder{})

		got := seeder.GetOrCreateSamples(ctx, "react", "frontend", 3)
		assert.Len(t, got, 3)
		assert.Zero(t, gw.totalCalls())
	})

	t.Run("shortfall is generated and persisted", func(t *testing.T) {
		store := NewMemorySampleStore()
		gw := &fakeGateway{handler: seedHandler(
			mcProblem("seed question one about reconciliation?", 9),
			mcProblem("seed question two about reconciliation?", 8),
			mcProblem("below the bar question?", 7),
		)}
		seeder := newTestSeeder(store, gw, &fakeEmbedder{})

		got := seeder.GetOrCreateSamples(ctx, "react", "frontend", 2)

		require.Len(t, got, 2)
		assert.Equal(t, 1, gw.callCount(StageSeeding))
		assert.Equal(t, 2, store.Len(), "only candidates scoring 8+ are persisted")
		for _, s := range got {
			assert.Equal(t, OriginGenerated, s.Origin)
			assert.Equal(t, 1, s.Generation)
			assert.False(t, s.HumanVerified)
			assert.Equal(t, "react", s.Subdomain)
			assert.NotEmpty(t, s.ID)
		}
	})

	t.Run("generation failure degrades to existing samples", func(t *testing.T) {
		store := NewMemorySampleStore()
		existing := sample("s1", "frontend", "react", OriginHuman, "react")
		require.NoError(t, store.InsertSample(ctx, &existing))

		gw := &fakeGateway{handler: func(req GatewayRequest) (GatewayResponse, error) {
			return GatewayResponse{}, errors.New("model down")
		}}
		seeder := newTestSeeder(store, gw, &fakeEmbedder{})

		got := seeder.GetOrCreateSamples(ctx, "react", "frontend", 3)
		assert.Equal(t, []string{"s1"}, ids(got))
	})

	t.Run("embedding failure keeps the sample unpersisted", func(t *testing.T) {
		store := NewMemorySampleStore()
		gw := &fakeGateway{handler: seedHandler(mcProblem("seed question about reconciliation?", 9))}
		seeder := newTestSeeder(store, gw, &fakeEmbedder{err: errors.New("embedding down")})

		got := seeder.GetOrCreateSamples(ctx, "react", "frontend", 1)
		assert.Len(t, got, 1, "the sample still serves this request")
		assert.Zero(t, store.Len(), "nothing without an embedding is persisted")
	})
}

func TestSeedBatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySampleStore()
	calls := 0
	gw := &fakeGateway{handler: func(req GatewayRequest) (GatewayResponse, error) {
		calls++
		if calls == 1 {
			return GatewayResponse{}, errors.New("model down")
		}
		return GatewayResponse{Content: problemsPayload(mcProblem("seed question about joins?", 9)), Model: "gpt-4o"}, nil
	}}
	seeder := newTestSeeder(store, gw, &fakeEmbedder{})

	reports := seeder.SeedBatch(ctx, []SeedSpec{
		{Tech: "react", Domain: "frontend", Count: 1},
		{Tech: "sql", Domain: "database", Count: 1},
	})

	require.Len(t, reports, 2, "a failing spec never aborts the batch")
	assert.Error(t, reports[0].Err)
	assert.NoError(t, reports[1].Err)
	assert.Equal(t, 1, reports[1].Generated)
	assert.Equal(t, 1, reports[1].Saved)
}
