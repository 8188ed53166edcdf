package probgen

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemorySampleStore is an in-memory SampleStore for tests and small deploys.
type MemorySampleStore struct {
	mu      sync.RWMutex
	samples []ReferenceSample
}

// NewMemorySampleStore creates an empty in-memory sample store.
func NewMemorySampleStore() *MemorySampleStore {
	return &MemorySampleStore{}
}

func (m *MemorySampleStore) InsertSample(ctx context.Context, s *ReferenceSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	m.samples = append(m.samples, *s)
	return nil
}

func (m *MemorySampleStore) SamplesByKeywords(ctx context.Context, tokens []string, domain string, limit int) ([]ReferenceSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ReferenceSample
	for _, s := range m.samples {
		if domain != "" && s.Domain != domain {
			continue
		}
		if keywordsIntersect(s.Keywords, tokens) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].QualityScore > out[j].QualityScore })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func keywordsIntersect(keywords, tokens []string) bool {
	for _, k := range keywords {
		lk := strings.ToLower(k)
		for _, t := range tokens {
			lt := strings.ToLower(strings.TrimSpace(t))
			if lt != "" && strings.Contains(lk, lt) {
				return true
			}
		}
	}
	return false
}

func (m *MemorySampleStore) SamplesByEmbedding(ctx context.Context, embedding []float32, threshold float64, limit int, domain string) ([]ScoredSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var scored []ScoredSample
	for _, s := range m.samples {
		if domain != "" && s.Domain != domain {
			continue
		}
		sim := cosineSimilarity(embedding, s.Embedding)
		if sim >= threshold {
			scored = append(scored, ScoredSample{ReferenceSample: s, Similarity: sim})
		}
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (m *MemorySampleStore) SamplesBySubdomain(ctx context.Context, domain, subdomain string, limit int) ([]ReferenceSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := strings.ToLower(subdomain)
	var out []ReferenceSample
	for _, s := range m.samples {
		if domain != "" && s.Domain != domain {
			continue
		}
		if strings.ToLower(s.Subdomain) == want {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].QualityScore > out[j].QualityScore })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemorySampleStore) SamplesDomainGeneral(ctx context.Context, domain string, limit int) ([]ReferenceSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ReferenceSample
	for _, s := range m.samples {
		if s.Domain == domain && s.Subdomain == "" {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].QualityScore > out[j].QualityScore })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored samples.
func (m *MemorySampleStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.samples)
}

// MemoryCacheStore is an in-memory CacheStore for tests and single-process
// deploys.
type MemoryCacheStore struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry
}

// NewMemoryCacheStore creates an empty in-memory cache store.
func NewMemoryCacheStore() *MemoryCacheStore {
	return &MemoryCacheStore{entries: make(map[string]CacheEntry)}
}

func (m *MemoryCacheStore) GetEntry(ctx context.Context, key string) (*CacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	out := entry
	out.Problems = append([]GeneratedProblem(nil), entry.Problems...)
	return &out, nil
}

func (m *MemoryCacheStore) PutEntry(ctx context.Context, entry *CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *entry
	stored.Problems = append([]GeneratedProblem(nil), entry.Problems...)
	m.entries[entry.Key] = stored
	return nil
}

func (m *MemoryCacheStore) DeleteEntry(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len returns the number of live cache entries.
func (m *MemoryCacheStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// MemoryCostStore collects cost records in memory.
type MemoryCostStore struct {
	mu      sync.Mutex
	records []CostRecord
}

// NewMemoryCostStore creates an empty in-memory cost store.
func NewMemoryCostStore() *MemoryCostStore {
	return &MemoryCostStore{}
}

func (m *MemoryCostStore) InsertCostRecord(ctx context.Context, rec *CostRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	m.records = append(m.records, *rec)
	return nil
}

// Records returns a copy of all recorded cost rows.
func (m *MemoryCostStore) Records() []CostRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CostRecord(nil), m.records...)
}
