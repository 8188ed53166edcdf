package probgen

import (
	"context"
	"math"
	"math/rand"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// FilterConfig tunes the post-generation quality gates. Zero values are
// replaced by the defaults from DefaultFilterConfig.
type FilterConfig struct {
	SelfCritiqueMin     float64
	ValidatorMode       ValidatorMode
	ValidatorSampleRate float64
	ValidatorLowScore   float64
	ValidatorMin        float64
	MaxLanguageIssues   int
}

func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		SelfCritiqueMin:     7,
		ValidatorMode:       ValidatorSampled,
		ValidatorSampleRate: 0.20,
		ValidatorLowScore:   8,
		ValidatorMin:        7,
		MaxLanguageIssues:   2,
	}
}

// QualityFilterChain runs generated candidates through a fixed sequence of
// gates: self-critique threshold, independent validation, language quality,
// structural shape, and finally truncation to the requested count. Gates only
// remove problems, they never modify or reorder the survivors.
type QualityFilterChain struct {
	gateway   ModelGateway
	costs     *CostTracker
	cfg       FilterConfig
	randFloat func() float64
	log       *zap.SugaredLogger
}

func NewQualityFilterChain(gateway ModelGateway, costs *CostTracker, cfg FilterConfig, log *zap.SugaredLogger) *QualityFilterChain {
	def := DefaultFilterConfig()
	if cfg.ValidatorMode == "" {
		cfg.ValidatorMode = def.ValidatorMode
	}
	if cfg.SelfCritiqueMin == 0 {
		cfg.SelfCritiqueMin = def.SelfCritiqueMin
	}
	if cfg.ValidatorSampleRate == 0 {
		cfg.ValidatorSampleRate = def.ValidatorSampleRate
	}
	if cfg.ValidatorLowScore == 0 {
		cfg.ValidatorLowScore = def.ValidatorLowScore
	}
	if cfg.ValidatorMin == 0 {
		cfg.ValidatorMin = def.ValidatorMin
	}
	if cfg.MaxLanguageIssues == 0 {
		cfg.MaxLanguageIssues = def.MaxLanguageIssues
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &QualityFilterChain{
		gateway:   gateway,
		costs:     costs,
		cfg:       cfg,
		randFloat: rand.Float64,
		log:       log,
	}
}

// FilterOutcome reports what one Apply pass did beyond the surviving
// problems themselves.
type FilterOutcome struct {
	Rejections     RejectionCounts
	Usage          TokenUsage
	CostUSD        float64
	ValidatorCalls int
}

// Apply filters candidates down to at most req.ProblemCount survivors.
// Validator call failures keep the problem: a flaky reviewer must not sink a
// batch that already passed self-critique.
func (f *QualityFilterChain) Apply(ctx context.Context, req GenerationRequest, candidates []GeneratedProblem) ([]GeneratedProblem, FilterOutcome) {
	var out FilterOutcome

	survivors := make([]GeneratedProblem, 0, len(candidates))
	for _, p := range candidates {
		if p.SelfCritique != nil && p.SelfCritique.QualityScore < f.cfg.SelfCritiqueMin {
			out.Rejections.SelfCritique++
			f.log.Debugw("dropped by self-critique", "question", snippet(p.Question), "score", p.SelfCritique.QualityScore)
			continue
		}
		survivors = append(survivors, p)
	}

	if f.cfg.ValidatorMode != ValidatorOff && f.gateway != nil {
		validated := survivors[:0]
		for _, p := range survivors {
			if !f.shouldValidate(p) {
				validated = append(validated, p)
				continue
			}
			verdict, resp, err := validateProblem(ctx, f.gateway, p)
			out.ValidatorCalls++
			out.Usage = out.Usage.Add(resp.Usage)
			if f.costs != nil {
				out.CostUSD += f.costs.Record(ctx, req.UserID, StageValidation, resp.Model, resp.Usage)
			}
			if err != nil {
				f.log.Warnw("validator call failed, keeping problem", "error", err)
				validated = append(validated, p)
				continue
			}
			if verdict.RecommendReject || verdict.Score < f.cfg.ValidatorMin {
				out.Rejections.Validator++
				f.log.Debugw("dropped by validator", "question", snippet(p.Question), "score", verdict.Score, "reason", verdict.Reason)
				continue
			}
			validated = append(validated, p)
		}
		survivors = validated
	}

	checked := survivors[:0]
	for _, p := range survivors {
		issues := LanguageQualityIssues(p.Question + "\n" + p.Explanation)
		if len(issues) > f.cfg.MaxLanguageIssues {
			out.Rejections.Language++
			f.log.Debugw("dropped by language check", "question", snippet(p.Question), "issues", issues)
			continue
		}
		checked = append(checked, p)
	}
	survivors = checked

	shaped := survivors[:0]
	for _, p := range survivors {
		if reason := problemShapeIssue(p); reason != "" {
			out.Rejections.Schema++
			f.log.Debugw("dropped by shape check", "question", snippet(p.Question), "reason", reason)
			continue
		}
		shaped = append(shaped, p)
	}
	survivors = shaped

	if req.ProblemCount > 0 && len(survivors) > req.ProblemCount {
		out.Rejections.Truncated = len(survivors) - req.ProblemCount
		survivors = survivors[:req.ProblemCount]
	}

	return survivors, out
}

func (f *QualityFilterChain) shouldValidate(p GeneratedProblem) bool {
	if f.cfg.ValidatorMode == ValidatorFull {
		return true
	}
	if p.SelfCritique != nil && p.SelfCritique.QualityScore < f.cfg.ValidatorLowScore {
		return true
	}
	return f.randFloat() < f.cfg.ValidatorSampleRate
}

var bareLetterOptionRe = regexp.MustCompile(`^[A-Da-d]$`)

// problemShapeIssue reports why a problem's structure is unusable, or "" when
// the shape is fine. Choice problems with skeleton options like "A" slip
// through model self-critique surprisingly often.
func problemShapeIssue(p GeneratedProblem) string {
	switch p.Type {
	case TypeMultipleChoice:
		if len(p.Options) != 4 {
			return "multiple_choice requires exactly 4 options"
		}
		for _, opt := range p.Options {
			if isPlaceholderOption(opt) {
				return "placeholder option: " + opt
			}
		}
	case TypeMultipleSelect:
		if len(p.Options) < 2 {
			return "multiple_select requires at least 2 options"
		}
		for _, opt := range p.Options {
			if isPlaceholderOption(opt) {
				return "placeholder option: " + opt
			}
		}
	case TypeFillBlank, TypeEssay:
		if len(p.Options) > 0 {
			return "options are not allowed for " + string(p.Type)
		}
	}
	return ""
}

func isPlaceholderOption(opt string) bool {
	trimmed := strings.TrimSpace(opt)
	if bareLetterOptionRe.MatchString(trimmed) {
		return true
	}
	return utf8.RuneCountInString(trimmed) < 10
}

func snippet(s string) string {
	runes := []rune(s)
	if len(runes) <= 40 {
		return s
	}
	return string(runes[:40]) + "..."
}

// overshootCount is how many candidates to request so that filtering still
// leaves enough survivors.
func overshootCount(requested int, factor float64) int {
	if requested <= 0 {
		return 0
	}
	if factor <= 1 {
		return requested
	}
	return int(math.Ceil(float64(requested) * factor))
}
