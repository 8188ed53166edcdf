package probgen

import "time"

// GenerationMode controls how much of the pipeline a request exercises.
type GenerationMode string

const (
	ModeUserData GenerationMode = "user_data"
	ModeHybrid   GenerationMode = "hybrid"
	ModeAIOnly   GenerationMode = "ai_only"
)

// PipelineType is the depth selected for a generation request.
type PipelineType string

const (
	PipelineSimple PipelineType = "simple"
	PipelineMedium PipelineType = "medium"
	PipelineFull   PipelineType = "full"
)

// QuestionType classifies a generated problem.
type QuestionType string

const (
	TypeMultipleChoice QuestionType = "multiple_choice"
	TypeMultipleSelect QuestionType = "multiple_select"
	TypeFillBlank      QuestionType = "fill_blank"
	TypeEssay          QuestionType = "essay"
)

// SampleOrigin records whether a reference sample was authored by a human
// or produced by the auto-seeder.
type SampleOrigin string

const (
	OriginHuman     SampleOrigin = "human"
	OriginGenerated SampleOrigin = "generated"
)

// ValidatorMode controls the independent validator stage of the filter chain.
type ValidatorMode string

const (
	ValidatorOff     ValidatorMode = "off"
	ValidatorSampled ValidatorMode = "sampled"
	ValidatorFull    ValidatorMode = "full"
)

// GenerationRequest is the immutable input to a pipeline run. UserID and
// Title are carried for attribution only and never influence the cache key.
type GenerationRequest struct {
	Tech              string         `json:"tech"`
	Domain            string         `json:"domain"`
	SourceMaterial    string         `json:"source_material,omitempty"`
	Prompt            string         `json:"prompt,omitempty"`
	ProblemCount      int            `json:"problem_count"`
	Difficulty        string         `json:"difficulty"`
	Mode              GenerationMode `json:"mode"`
	BlankRatio        float64        `json:"blank_ratio,omitempty"`
	SubjectiveStyle   string         `json:"subjective_style,omitempty"`
	GradingStrictness string         `json:"grading_strictness,omitempty"`
	ComplexityTier    string         `json:"complexity_tier,omitempty"`

	UserID string `json:"user_id,omitempty"`
	Title  string `json:"title,omitempty"`
}

// TextChunk is a sentence-bounded span of source text. Chunks live only for
// a single preprocessing pass and are never persisted.
type TextChunk struct {
	Text       string
	Index      int
	Position   float64 // normalized 0..1 over the whole document
	Importance float64
}

// ConceptRecord is one concept extracted from source material by the full
// pipeline, consumed immediately by the design stage.
type ConceptRecord struct {
	Concept string `json:"concept"`
	Context string `json:"context"`
	Rank    int    `json:"rank"`
}

// ProblemDesign bridges the design stage to the generation stage.
type ProblemDesign struct {
	Concept             string       `json:"concept"`
	Type                QuestionType `json:"question_type"`
	AnswerRationale     string       `json:"answer_rationale"`
	DistractorRationale string       `json:"distractor_rationale,omitempty"`
	DifficultyRationale string       `json:"difficulty_rationale,omitempty"`
}

// SelfCritique is the quality block the generation model attaches to its
// own output.
type SelfCritique struct {
	QualityScore      float64 `json:"quality_score"`
	NeedsRegeneration bool    `json:"needs_regeneration"`
}

// GeneratedProblem is the central output unit. The filter chain may drop a
// problem but never edits one.
type GeneratedProblem struct {
	ID                 string        `json:"id"`
	Question           string        `json:"question"`
	Type               QuestionType  `json:"question_type"`
	Options            []string      `json:"options,omitempty"`
	Answer             string        `json:"answer"`
	AlternativeAnswers []string      `json:"alternative_answers,omitempty"`
	Explanation        string        `json:"explanation"`
	Difficulty         string        `json:"difficulty"`
	MaxAnswerLength    int           `json:"max_answer_length,omitempty"`
	SourceExcerpt      string        `json:"source_excerpt,omitempty"`
	SelfCritique       *SelfCritique `json:"self_critique,omitempty"`
}

// ReferenceSample is a persisted few-shot example problem. Samples are
// append-only: the pipeline never mutates or deletes them.
type ReferenceSample struct {
	ID            string           `json:"id"`
	Domain        string           `json:"domain"`
	Subdomain     string           `json:"subdomain,omitempty"`
	Problem       GeneratedProblem `json:"problem"`
	Embedding     []float32        `json:"-"`
	QualityScore  float64          `json:"quality_score"`
	Keywords      []string         `json:"keywords"`
	Origin        SampleOrigin     `json:"origin"`
	Generation    int              `json:"generation"`
	HumanVerified bool             `json:"human_verified"`
	CreatedAt     time.Time        `json:"created_at"`
}

// ScoredSample is a sample returned from vector search with its similarity.
type ScoredSample struct {
	ReferenceSample
	Similarity float64
}

// CacheEntry is a persisted, content-addressed result set.
type CacheEntry struct {
	Key       string             `json:"key"`
	Problems  []GeneratedProblem `json:"problems"`
	CreatedAt time.Time          `json:"created_at"`
}

// CostRecord is an append-only accounting row written after every model call.
type CostRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Stage        Stage     `json:"stage"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	CreatedAt    time.Time `json:"created_at"`
}

// TokenUsage accumulates model token counts for a call or a whole run.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add returns the element-wise sum of two usages.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
	}
}

// StageName identifies a pipeline stage in run metadata.
type StageName string

const (
	StagePreprocessing StageName = "preprocessing"
	StageExtract       StageName = "extraction"
	StageRAG           StageName = "rag"
	StageDesignPhase   StageName = "design"
	StageGenerate      StageName = "generation"
	StageFilter        StageName = "filtering"
)

// ChunkingStats reports what the preprocessing stage did to source text.
type ChunkingStats struct {
	Applied        bool `json:"applied"`
	TotalChunks    int  `json:"total_chunks,omitempty"`
	SampledChunks  int  `json:"sampled_chunks,omitempty"`
	OriginalLength int  `json:"original_length,omitempty"`
	SampledLength  int  `json:"sampled_length,omitempty"`
}

// RejectionCounts tallies filter-chain drops by category. Individual
// rejections are never surfaced to the end user.
type RejectionCounts struct {
	SelfCritique int `json:"self_critique"`
	Validator    int `json:"validator"`
	Language     int `json:"language"`
	Schema       int `json:"schema"`
	Truncated    int `json:"truncated"`
}

// Total returns the number of candidates dropped across all categories.
func (r RejectionCounts) Total() int {
	return r.SelfCritique + r.Validator + r.Language + r.Schema + r.Truncated
}

// GenerationMetadata is read-only diagnostic data attached to every result.
type GenerationMetadata struct {
	PipelineType     PipelineType    `json:"pipeline_type"`
	Stages           []StageName     `json:"stages"`
	FromCache        bool            `json:"from_cache"`
	Chunking         ChunkingStats   `json:"chunking"`
	ConceptCount     int             `json:"concept_count"`
	RetrievedSamples int             `json:"retrieved_samples"`
	DesignCount      int             `json:"design_count"`
	CandidateCount   int             `json:"candidate_count"`
	Rejections       RejectionCounts `json:"rejections"`
	TokenUsage       TokenUsage      `json:"token_usage"`
	CostUSD          float64         `json:"cost_usd"`
	ModelCalls       int             `json:"model_calls"`
	DurationMS       int64           `json:"duration_ms"`
}

// GenerationResult is the outcome of one pipeline run.
type GenerationResult struct {
	Problems []GeneratedProblem `json:"problems"`
	Metadata GenerationMetadata `json:"metadata"`
}
