package probgen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(samples []ReferenceSample) []string {
	out := make([]string, len(samples))
	for i, s := range samples {
		out[i] = s.ID
	}
	return out
}

func TestSearchSimilarProblems(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects empty query", func(t *testing.T) {
		r := NewRetriever(NewMemorySampleStore(), &fakeEmbedder{}, nil, testLogger())
		_, err := r.SearchSimilarProblems(ctx, SearchParams{Query: "   "})
		assert.Error(t, err)
	})

	t.Run("keyword matches outrank vector-only matches", func(t *testing.T) {
		store := NewMemorySampleStore()
		// kw-hit matches the query token; vec-hit only matches by embedding.
		kwHit := sample("kw-hit", "frontend", "react", OriginHuman, "react", "hooks")
		kwHit.Embedding = []float32{0, 1, 0}
		vecHit := sample("vec-hit", "frontend", "react", OriginHuman, "rendering")
		vecHit.Embedding = []float32{1, 0, 0}
		require.NoError(t, store.InsertSample(ctx, &kwHit))
		require.NoError(t, store.InsertSample(ctx, &vecHit))

		r := NewRetriever(store, &fakeEmbedder{vec: []float32{1, 0, 0}}, nil, testLogger())
		got, err := r.SearchSimilarProblems(ctx, SearchParams{Query: "react", Domain: "frontend", Limit: 5})
		require.NoError(t, err)

		require.Len(t, got, 2)
		// Same rank in both lists, but the keyword list carries double weight.
		assert.Equal(t, "kw-hit", got[0].ID)
	})

	t.Run("a hit in both lists beats single-list hits", func(t *testing.T) {
		store := NewMemorySampleStore()
		both := sample("both", "frontend", "react", OriginHuman, "react")
		both.Embedding = []float32{1, 0, 0}
		kwOnly := sample("kw-only", "frontend", "react", OriginHuman, "react")
		kwOnly.Embedding = []float32{0, 1, 0}
		kwOnly.QualityScore = 10 // ranks above "both" in the keyword list
		require.NoError(t, store.InsertSample(ctx, &kwOnly))
		require.NoError(t, store.InsertSample(ctx, &both))

		r := NewRetriever(store, &fakeEmbedder{vec: []float32{1, 0, 0}}, nil, testLogger())
		got, err := r.SearchSimilarProblems(ctx, SearchParams{Query: "react", Domain: "frontend", Limit: 5})
		require.NoError(t, err)

		require.Len(t, got, 2)
		assert.Equal(t, "both", got[0].ID)
	})

	t.Run("embedder failure degrades to keyword results", func(t *testing.T) {
		store := NewMemorySampleStore()
		kwHit := sample("kw-hit", "frontend", "react", OriginHuman, "react")
		require.NoError(t, store.InsertSample(ctx, &kwHit))

		r := NewRetriever(store, &fakeEmbedder{err: errors.New("embedding service down")}, nil, testLogger())
		got, err := r.SearchSimilarProblems(ctx, SearchParams{Query: "react", Domain: "frontend", Limit: 5})
		require.NoError(t, err)
		assert.Equal(t, []string{"kw-hit"}, ids(got))
	})

	t.Run("sparse results fall back to parent and domain-general samples", func(t *testing.T) {
		store := NewMemorySampleStore()
		direct := sample("direct", "frontend", "react", OriginHuman, "react")
		parent1 := sample("parent-1", "frontend", "frontend", OriginHuman, "rendering")
		parent2 := sample("parent-2", "frontend", "frontend", OriginHuman, "layout")
		general := sample("general", "frontend", "", OriginHuman, "basics")
		for _, s := range []*ReferenceSample{&direct, &parent1, &parent2, &general} {
			s.Embedding = []float32{0, 1, 0} // out of vector reach
			require.NoError(t, store.InsertSample(ctx, s))
		}

		r := NewRetriever(store, &fakeEmbedder{vec: []float32{1, 0, 0}}, nil, testLogger())
		got, err := r.SearchSimilarProblems(ctx, SearchParams{Query: "react", Domain: "frontend", Limit: 5})
		require.NoError(t, err)

		// Four human candidates, but the provenance pass caps human samples
		// at ceil(5*0.6)=3, keeping fused order.
		assert.Equal(t, []string{"direct", "parent-1", "parent-2"}, ids(got))
	})

	t.Run("no fallback without a domain", func(t *testing.T) {
		store := NewMemorySampleStore()
		general := sample("general", "frontend", "", OriginHuman, "basics")
		require.NoError(t, store.InsertSample(ctx, &general))

		r := NewRetriever(store, &fakeEmbedder{vec: []float32{0, 0, 1}}, nil, testLogger())
		got, err := r.SearchSimilarProblems(ctx, SearchParams{Query: "zig"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("generated samples are capped at forty percent", func(t *testing.T) {
		store := NewMemorySampleStore()
		for _, id := range []string{"gen-1", "gen-2", "gen-3", "gen-4"} {
			s := sample(id, "frontend", "react", OriginGenerated, "react")
			require.NoError(t, store.InsertSample(ctx, &s))
		}
		human := sample("human-1", "frontend", "react", OriginHuman, "react")
		require.NoError(t, store.InsertSample(ctx, &human))

		r := NewRetriever(store, &fakeEmbedder{vec: []float32{1, 0, 0}}, nil, testLogger())
		got, err := r.SearchSimilarProblems(ctx, SearchParams{Query: "react", Domain: "frontend", Limit: 5})
		require.NoError(t, err)

		generated := 0
		for _, s := range got {
			if s.Origin == OriginGenerated {
				generated++
			}
		}
		assert.LessOrEqual(t, generated, 2, "at most floor(5*0.4) generated samples")
		assert.Equal(t, "human-1", got[0].ID, "human samples come first")
	})

	t.Run("short pools are not backfilled", func(t *testing.T) {
		store := NewMemorySampleStore()
		for _, id := range []string{"gen-1", "gen-2", "gen-3", "gen-4", "gen-5"} {
			s := sample(id, "frontend", "react", OriginGenerated, "react")
			require.NoError(t, store.InsertSample(ctx, &s))
		}

		r := NewRetriever(store, &fakeEmbedder{vec: []float32{1, 0, 0}}, nil, testLogger())
		got, err := r.SearchSimilarProblems(ctx, SearchParams{Query: "react", Domain: "frontend", Limit: 5})
		require.NoError(t, err)
		assert.Len(t, got, 2, "generated cap holds even with no human samples")
	})
}

func TestFuseRRF(t *testing.T) {
	a := sample("a", "frontend", "react", OriginHuman, "react")
	b := sample("b", "frontend", "react", OriginHuman, "react")

	t.Run("deduplicates across lists", func(t *testing.T) {
		fused := fuseRRF([]ReferenceSample{a, b}, []ReferenceSample{b, a})
		assert.Len(t, fused, 2)
	})

	t.Run("keyword rank one beats vector rank one", func(t *testing.T) {
		fused := fuseRRF([]ReferenceSample{a}, []ReferenceSample{b})
		require.Len(t, fused, 2)
		assert.Equal(t, "a", fused[0].ID)
	})
}

func TestRebalanceProvenance(t *testing.T) {
	human := func(id string) ReferenceSample { return sample(id, "d", "s", OriginHuman) }
	gen := func(id string) ReferenceSample { return sample(id, "d", "s", OriginGenerated) }

	t.Run("caps both pools", func(t *testing.T) {
		in := []ReferenceSample{
			gen("g1"), human("h1"), gen("g2"), human("h2"), human("h3"), human("h4"), gen("g3"),
		}
		out := rebalanceProvenance(in, 5)
		assert.Equal(t, []string{"h1", "h2", "h3", "g1", "g2"}, ids(out))
	})

	t.Run("keeps short input as-is apart from ordering", func(t *testing.T) {
		in := []ReferenceSample{gen("g1"), human("h1")}
		out := rebalanceProvenance(in, 5)
		assert.Equal(t, []string{"h1", "g1"}, ids(out))
	})
}
