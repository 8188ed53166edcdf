package probgen

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// seedQualityMin is the self-critique score a generated sample must reach
// before it is persisted as few-shot material.
const seedQualityMin = 8.0

// Seeder bootstraps the reference-sample pool for techs that have no
// human-authored coverage yet. Seeding is strictly best-effort: every failure
// degrades to whatever samples already exist.
type Seeder struct {
	store    SampleStore
	gateway  ModelGateway
	embedder Embedder
	costs    *CostTracker
	log      *zap.SugaredLogger
}

func NewSeeder(store SampleStore, gateway ModelGateway, embedder Embedder, costs *CostTracker, log *zap.SugaredLogger) *Seeder {
	return &Seeder{
		store:    store,
		gateway:  gateway,
		embedder: embedder,
		costs:    costs,
		log:      log.Named("seeder"),
	}
}

// SeedSpec names one tech to bring up to a minimum sample count.
type SeedSpec struct {
	Tech   string `yaml:"tech"`
	Domain string `yaml:"domain"`
	Count  int    `yaml:"count"`
}

// SeedReport summarizes what happened for one SeedSpec.
type SeedReport struct {
	Tech      string
	Existing  int
	Generated int
	Saved     int
	Err       error
}

// GetOrCreateSamples returns at least the existing samples for tech and, when
// fewer than minSamples exist, tops the pool up with freshly generated ones.
// The returned slice holds at most minSamples entries.
func (s *Seeder) GetOrCreateSamples(ctx context.Context, tech, domain string, minSamples int) []ReferenceSample {
	existing, err := s.store.SamplesBySubdomain(ctx, domain, tech, minSamples)
	if err != nil {
		s.log.Warnw("sample lookup failed", "tech", tech, "error", err)
		existing = nil
	}
	if len(existing) >= minSamples {
		return existing[:minSamples]
	}

	created, saved, err := s.generateSeeds(ctx, tech, domain, minSamples-len(existing))
	if err != nil {
		s.log.Warnw("seed generation failed, serving existing samples only",
			"tech", tech, "existing", len(existing), "error", err)
		return existing
	}
	s.log.Infow("seeded samples", "tech", tech, "generated", len(created), "saved", saved)

	combined := append(existing, created...)
	if len(combined) > minSamples {
		combined = combined[:minSamples]
	}
	return combined
}

// SeedBatch runs every spec in order. A failing spec is reported and never
// aborts the batch.
func (s *Seeder) SeedBatch(ctx context.Context, specs []SeedSpec) []SeedReport {
	reports := make([]SeedReport, 0, len(specs))
	for _, spec := range specs {
		report := SeedReport{Tech: spec.Tech}

		existing, err := s.store.SamplesBySubdomain(ctx, spec.Domain, spec.Tech, spec.Count)
		if err != nil {
			report.Err = err
			reports = append(reports, report)
			continue
		}
		report.Existing = len(existing)

		if len(existing) < spec.Count {
			created, saved, err := s.generateSeeds(ctx, spec.Tech, spec.Domain, spec.Count-len(existing))
			report.Generated = len(created)
			report.Saved = saved
			report.Err = err
		}
		reports = append(reports, report)
	}
	return reports
}

// generateSeeds makes one model call for the whole shortfall, keeps only
// candidates whose self-critique clears seedQualityMin, and persists the
// survivors as generation-1 samples.
func (s *Seeder) generateSeeds(ctx context.Context, tech, domain string, needed int) ([]ReferenceSample, int, error) {
	system, user := buildSeedPrompt(tech, domain, needed)
	resp, err := s.gateway.Generate(ctx, GatewayRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		Temperature:  0.7,
		Stage:        StageSeeding,
		ToolName:     toolSubmitProblems,
		ToolSchema:   schemaProblems(),
	})
	if err != nil {
		return nil, 0, err
	}
	if s.costs != nil {
		s.costs.Record(ctx, "seeder", StageSeeding, resp.Model, resp.Usage)
	}

	problems, err := parseProblems(resp.Content, "medium")
	if err != nil {
		return nil, 0, err
	}

	var samples []ReferenceSample
	saved := 0
	for _, p := range problems {
		score := 0.0
		if p.SelfCritique != nil {
			score = p.SelfCritique.QualityScore
		}
		if score < seedQualityMin {
			s.log.Debugw("seed candidate below quality bar", "tech", tech, "score", score)
			continue
		}

		sample := ReferenceSample{
			ID:            uuid.NewString(),
			Domain:        domain,
			Subdomain:     tech,
			Problem:       p,
			QualityScore:  score,
			Keywords:      seedKeywords(tech, p.Question),
			Origin:        OriginGenerated,
			Generation:    1,
			HumanVerified: false,
			CreatedAt:     time.Now().UTC(),
		}

		embedding, err := s.embedder.Embed(ctx, p.Question)
		if err != nil {
			s.log.Warnw("seed embedding failed, skipping persist", "tech", tech, "error", err)
		} else {
			sample.Embedding = embedding
			if err := s.store.InsertSample(ctx, &sample); err != nil {
				s.log.Warnw("seed insert failed", "tech", tech, "error", err)
			} else {
				saved++
			}
		}

		samples = append(samples, sample)
		if len(samples) >= needed {
			break
		}
	}
	return samples, saved, nil
}

func seedKeywords(tech, question string) []string {
	keywords := []string{strings.ToLower(tech)}
	for _, tok := range strings.Fields(strings.ToLower(question)) {
		if len(tok) >= 4 {
			keywords = append(keywords, strings.Trim(tok, ".,!?"))
		}
		if len(keywords) >= 8 {
			break
		}
	}
	return keywords
}
