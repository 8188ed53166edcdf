package probgen

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	rrfK             = 60.0
	keywordRRFWeight = 2.0
	vectorRRFWeight  = 1.0

	subSearchCap      = 10
	fallbackThreshold = 3
	fallbackPerSource = 2

	humanShare = 0.6
)

// SearchParams describes one retrieval call. Query and Domain must be
// non-empty when provided; everything else has sane defaults.
type SearchParams struct {
	Query     string
	Domain    string
	Limit     int
	Threshold float64
}

// Retriever performs hybrid keyword + vector search over the sample store,
// merges with reciprocal-rank fusion, falls back to parent categories when
// results are sparse and rebalances toward human-authored samples.
type Retriever struct {
	store     SampleStore
	embedder  Embedder
	hierarchy *Hierarchy
	log       *zap.SugaredLogger
}

// NewRetriever wires a retriever over its collaborators.
func NewRetriever(store SampleStore, embedder Embedder, hierarchy *Hierarchy, log *zap.SugaredLogger) *Retriever {
	if hierarchy == nil {
		hierarchy = DefaultHierarchy()
	}
	return &Retriever{store: store, embedder: embedder, hierarchy: hierarchy, log: log.Named("retriever")}
}

// SearchSimilarProblems returns up to Limit reference samples for the query.
// Sub-search failures degrade to empty results for that sub-search only; the
// method errors only on a malformed query.
func (r *Retriever) SearchSimilarProblems(ctx context.Context, p SearchParams) ([]ReferenceSample, error) {
	if strings.TrimSpace(p.Query) == "" {
		return nil, errors.New("query must be a non-empty string")
	}
	if p.Limit <= 0 {
		p.Limit = 5
	}
	if p.Threshold <= 0 {
		p.Threshold = 0.7
	}

	keywordHits := r.keywordSearch(ctx, p)
	vectorHits := r.vectorSearch(ctx, p)

	fused := fuseRRF(keywordHits, vectorHits)

	if len(fused) < fallbackThreshold && p.Domain != "" {
		fused = r.hierarchyFallback(ctx, p, fused)
	}
	if len(fused) > p.Limit {
		fused = fused[:p.Limit]
	}

	return rebalanceProvenance(fused, p.Limit), nil
}

func (r *Retriever) keywordSearch(ctx context.Context, p SearchParams) []ReferenceSample {
	tokens := strings.Fields(strings.ToLower(p.Query))
	hits, err := r.store.SamplesByKeywords(ctx, tokens, p.Domain, subSearchCap)
	if err != nil {
		r.log.Warnw("keyword search failed", "query", p.Query, "error", err)
		return nil
	}
	return hits
}

func (r *Retriever) vectorSearch(ctx context.Context, p SearchParams) []ReferenceSample {
	embedding, err := r.embedder.Embed(ctx, p.Query)
	if err != nil {
		// Embedding-service failure is non-fatal; keyword results still serve.
		r.log.Warnw("query embedding failed", "query", p.Query, "error", err)
		return nil
	}
	scored, err := r.store.SamplesByEmbedding(ctx, embedding, p.Threshold, subSearchCap, p.Domain)
	if err != nil {
		r.log.Warnw("vector search failed", "query", p.Query, "error", err)
		return nil
	}
	out := make([]ReferenceSample, len(scored))
	for i, s := range scored {
		out[i] = s.ReferenceSample
	}
	return out
}

// fuseRRF merges ranked lists with reciprocal-rank fusion, weighting keyword
// matches twice as heavily as vector matches.
func fuseRRF(keywordHits, vectorHits []ReferenceSample) []ReferenceSample {
	type fusedEntry struct {
		sample ReferenceSample
		score  float64
	}
	byID := make(map[string]*fusedEntry)

	accumulate := func(hits []ReferenceSample, weight float64) {
		for rank, hit := range hits {
			entry, ok := byID[hit.ID]
			if !ok {
				entry = &fusedEntry{sample: hit}
				byID[hit.ID] = entry
			}
			entry.score += weight / (float64(rank) + rrfK)
		}
	}
	accumulate(keywordHits, keywordRRFWeight)
	accumulate(vectorHits, vectorRRFWeight)

	fused := make([]*fusedEntry, 0, len(byID))
	for _, entry := range byID {
		fused = append(fused, entry)
	}
	sort.SliceStable(fused, func(i, j int) bool { return fused[i].score > fused[j].score })

	out := make([]ReferenceSample, len(fused))
	for i, entry := range fused {
		out[i] = entry.sample
	}
	return out
}

// hierarchyFallback pads sparse results with samples from the query's parent
// category and from domain-general samples.
func (r *Retriever) hierarchyFallback(ctx context.Context, p SearchParams, fused []ReferenceSample) []ReferenceSample {
	seen := make(map[string]bool, len(fused))
	for _, s := range fused {
		seen[s.ID] = true
	}
	appendNew := func(samples []ReferenceSample) {
		for _, s := range samples {
			if !seen[s.ID] {
				seen[s.ID] = true
				fused = append(fused, s)
			}
		}
	}

	if parent, ok := r.hierarchy.Parent(p.Query); ok {
		parentHits, err := r.store.SamplesBySubdomain(ctx, p.Domain, parent, fallbackPerSource)
		if err != nil {
			r.log.Warnw("parent category fallback failed", "parent", parent, "error", err)
		} else {
			appendNew(parentHits)
		}
	}

	generalHits, err := r.store.SamplesDomainGeneral(ctx, p.Domain, fallbackPerSource)
	if err != nil {
		r.log.Warnw("domain-general fallback failed", "domain", p.Domain, "error", err)
	} else {
		appendNew(generalHits)
	}

	return fused
}

// rebalanceProvenance caps how much of the few-shot context can be
// model-generated: at most ceil(limit*0.6) human samples and floor(limit*0.4)
// generated samples, human first. When one pool is short the shortfall is NOT
// backfilled from the other, so fewer than limit results can come back.
func rebalanceProvenance(samples []ReferenceSample, limit int) []ReferenceSample {
	humanCap := int(math.Ceil(float64(limit) * humanShare))
	generatedCap := int(math.Floor(float64(limit) * (1 - humanShare)))

	var human, generated []ReferenceSample
	for _, s := range samples {
		if s.Origin == OriginGenerated {
			generated = append(generated, s)
		} else {
			human = append(human, s)
		}
	}
	if len(human) > humanCap {
		human = human[:humanCap]
	}
	if len(generated) > generatedCap {
		generated = generated[:generatedCap]
	}

	out := append(human, generated...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
