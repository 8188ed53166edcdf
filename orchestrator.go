package probgen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrGenerationFailed means the generation call itself produced nothing
// usable. Sub-stage failures (extraction, retrieval, design, validation)
// degrade silently and never surface as this error.
var ErrGenerationFailed = errors.New("problem generation failed")

// GeneratorConfig tunes the pipeline. Zero values are replaced by the
// defaults from DefaultGeneratorConfig.
type GeneratorConfig struct {
	ChunkSize           int
	MaxChunks           int
	Overshoot           float64
	RetrievalLimit      int
	SimilarityThreshold float64
	RunLogDir           string
	Filter              FilterConfig
}

func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		ChunkSize:           DefaultChunkSize,
		MaxChunks:           DefaultMaxChunks,
		Overshoot:           1.2,
		RetrievalLimit:      5,
		SimilarityThreshold: 0.7,
		Filter:              DefaultFilterConfig(),
	}
}

// ProblemGenerator is the pipeline orchestrator. It owns stage selection,
// cache lookup, the parallel extract/retrieve phase, generation with
// overshoot and the quality filter chain.
type ProblemGenerator struct {
	gateway   ModelGateway
	retriever *Retriever
	cache     *ProblemCache
	filter    *QualityFilterChain
	costs     *CostTracker
	sink      ResultSink
	cfg       GeneratorConfig
	log       *zap.SugaredLogger
}

func NewProblemGenerator(gateway ModelGateway, retriever *Retriever, cache *ProblemCache, filter *QualityFilterChain, costs *CostTracker, sink ResultSink, cfg GeneratorConfig, log *zap.SugaredLogger) *ProblemGenerator {
	def := DefaultGeneratorConfig()
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.MaxChunks == 0 {
		cfg.MaxChunks = def.MaxChunks
	}
	if cfg.Overshoot == 0 {
		cfg.Overshoot = def.Overshoot
	}
	if cfg.RetrievalLimit == 0 {
		cfg.RetrievalLimit = def.RetrievalLimit
	}
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	return &ProblemGenerator{
		gateway:   gateway,
		retriever: retriever,
		cache:     cache,
		filter:    filter,
		costs:     costs,
		sink:      sink,
		cfg:       cfg,
		log:       log.Named("generator"),
	}
}

// SelectPipeline picks the pipeline depth from the request alone. Selection
// never inspects store contents or model output, so the same request always
// takes the same path.
func SelectPipeline(req GenerationRequest) PipelineType {
	switch req.Mode {
	case ModeHybrid:
		if len(req.SourceMaterial) >= ChunkThreshold {
			return PipelineFull
		}
		return PipelineMedium
	default:
		// user_data and ai_only both take the single-call path.
		return PipelineSimple
	}
}

// GenerateProblems runs the whole pipeline for one request.
func (g *ProblemGenerator) GenerateProblems(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	start := time.Now()
	normalizeRequest(&req)

	if err := ValidateInputSecurity(req.SourceMaterial, req.Prompt); err != nil {
		return nil, err
	}

	pipeline := SelectPipeline(req)

	cacheKey := GenerateCacheKey(req)
	if g.cache != nil {
		if problems, ok := g.cache.GetCachedProblems(ctx, cacheKey); ok {
			g.log.Infow("serving cached problems", "tech", req.Tech, "count", len(problems))
			return &GenerationResult{
				Problems: problems,
				Metadata: GenerationMetadata{
					PipelineType: pipeline,
					FromCache:    true,
					DurationMS:   time.Since(start).Milliseconds(),
				},
			}, nil
		}
	}

	runID := uuid.NewString()
	var rl *RunLogger
	if g.cfg.RunLogDir != "" {
		var err error
		rl, err = NewRunLogger(g.cfg.RunLogDir, runID, req)
		if err != nil {
			g.log.Warnw("run transcript disabled", "error", err)
			rl = nil
		}
	}
	defer rl.Close()

	meta := GenerationMetadata{PipelineType: pipeline}
	var usage TokenUsage
	var costUSD float64
	modelCalls := 0

	source := req.SourceMaterial
	if len(source) > ChunkThreshold {
		meta.Stages = append(meta.Stages, StagePreprocessing)
		rl.LogStage(StagePreprocessing)
		source, meta.Chunking = PreprocessSource(source, g.cfg.ChunkSize, g.cfg.MaxChunks)
		g.log.Infow("source sampled",
			"original_length", meta.Chunking.OriginalLength,
			"sampled_length", meta.Chunking.SampledLength,
			"chunks", meta.Chunking.SampledChunks,
		)
	}

	// Extraction and retrieval are independent reads, so they run in
	// parallel. Both degrade to empty results on failure.
	var concepts []ConceptRecord
	var samples []ReferenceSample

	grp, grpCtx := errgroup.WithContext(ctx)
	if pipeline == PipelineFull && source != "" {
		meta.Stages = append(meta.Stages, StageExtract)
		grp.Go(func() error {
			rl.LogStage(StageExtract)
			extracted, resp, err := extractConcepts(grpCtx, g.gateway, source)
			if resp.Model != "" {
				modelCalls++
				usage = usage.Add(resp.Usage)
				if g.costs != nil {
					costUSD += g.costs.Record(grpCtx, req.UserID, StageExtraction, resp.Model, resp.Usage)
				}
			}
			if err != nil {
				g.log.Warnw("concept extraction degraded", "error", err)
				return nil
			}
			rl.LogLLMResponse(StageExtraction, resp.Content)
			concepts = extracted
			return nil
		})
	}
	if pipeline != PipelineSimple {
		meta.Stages = append(meta.Stages, StageRAG)
		grp.Go(func() error {
			rl.LogStage(StageRAG)
			found, err := g.retriever.SearchSimilarProblems(grpCtx, SearchParams{
				Query:     req.Tech,
				Domain:    req.Domain,
				Limit:     g.cfg.RetrievalLimit,
				Threshold: g.cfg.SimilarityThreshold,
			})
			if err != nil {
				g.log.Warnw("sample retrieval degraded", "error", err)
				return nil
			}
			samples = found
			return nil
		})
	}
	grp.Wait()

	meta.ConceptCount = len(concepts)
	meta.RetrievedSamples = len(samples)

	var designs []ProblemDesign
	if pipeline != PipelineSimple {
		meta.Stages = append(meta.Stages, StageDesignPhase)
		rl.LogStage(StageDesignPhase)
		if len(concepts) == 0 {
			concepts = []ConceptRecord{placeholderConcept(req, source)}
		}
		designed, resp, err := designProblems(ctx, g.gateway, req, concepts)
		if resp.Model != "" {
			modelCalls++
			usage = usage.Add(resp.Usage)
			if g.costs != nil {
				costUSD += g.costs.Record(ctx, req.UserID, StageDesign, resp.Model, resp.Usage)
			}
		}
		if err != nil {
			g.log.Warnw("design stage degraded", "error", err)
		} else {
			rl.LogLLMResponse(StageDesign, resp.Content)
			designs = designed
		}
		meta.DesignCount = len(designs)
	}

	meta.Stages = append(meta.Stages, StageGenerate)
	rl.LogStage(StageGenerate)
	target := overshootCount(req.ProblemCount, g.cfg.Overshoot)

	var system, user string
	if pipeline == PipelineSimple {
		system, user = buildSimplePrompt(req, source, target)
	} else {
		system, user = buildGenerationPrompt(req, designs, samples, source, target)
	}
	rl.LogLLMRequest(StageGeneration, user)

	resp, err := g.gateway.Generate(ctx, GatewayRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		Temperature:  0.7,
		Stage:        StageGeneration,
		ToolName:     toolSubmitProblems,
		ToolSchema:   schemaProblems(),
	})
	if resp.Model != "" {
		modelCalls++
		usage = usage.Add(resp.Usage)
		if g.costs != nil {
			costUSD += g.costs.Record(ctx, req.UserID, StageGeneration, resp.Model, resp.Usage)
		}
	}
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	rl.LogLLMResponse(StageGeneration, resp.Content)

	candidates, err := parseProblems(resp.Content, req.Difficulty)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: model returned no problems", ErrGenerationFailed)
	}
	meta.CandidateCount = len(candidates)

	meta.Stages = append(meta.Stages, StageFilter)
	rl.LogStage(StageFilter)
	survivors := candidates
	if g.filter != nil {
		var outcome FilterOutcome
		survivors, outcome = g.filter.Apply(ctx, req, candidates)
		meta.Rejections = outcome.Rejections
		usage = usage.Add(outcome.Usage)
		costUSD += outcome.CostUSD
		modelCalls += outcome.ValidatorCalls
		rl.LogFilterResult(len(candidates), len(survivors), outcome.Rejections)
	}
	if len(survivors) == 0 {
		return nil, fmt.Errorf("%w: no problems survived filtering", ErrGenerationFailed)
	}

	if g.cache != nil {
		g.cache.SetCachedProblems(ctx, cacheKey, survivors)
	}
	if g.sink != nil {
		if err := g.sink.SaveProblemSet(ctx, req, survivors); err != nil {
			g.log.Warnw("problem set persist failed", "error", err)
		}
	}

	meta.TokenUsage = usage
	meta.CostUSD = costUSD
	meta.ModelCalls = modelCalls
	meta.DurationMS = time.Since(start).Milliseconds()

	g.log.Infow("generation complete",
		"run_id", runID,
		"pipeline", pipeline,
		"problems", len(survivors),
		"rejected", meta.Rejections.Total(),
		"model_calls", modelCalls,
	)
	return &GenerationResult{Problems: survivors, Metadata: meta}, nil
}

func normalizeRequest(req *GenerationRequest) {
	if req.ProblemCount <= 0 {
		req.ProblemCount = 10
	}
	if req.Difficulty == "" {
		req.Difficulty = "medium"
	}
	if req.Mode == "" {
		if req.SourceMaterial != "" {
			req.Mode = ModeUserData
		} else {
			req.Mode = ModeAIOnly
		}
	}
}
