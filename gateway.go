package probgen

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Stage identifies which pipeline stage issued a model call. Every stage has
// a default output-token ceiling so a single call can never run away on cost,
// regardless of what the caller asked for.
type Stage string

const (
	StageExtraction Stage = "extraction"
	StageDesign     Stage = "design"
	StageGeneration Stage = "generation"
	StageValidation Stage = "validation"
	StageSeeding    Stage = "seeding"
)

const defaultTokenCeiling = 2000

var stageTokenCeilings = map[Stage]int{
	StageExtraction: 1000,
	StageDesign:     1500,
	StageGeneration: 3000,
	StageValidation: 500,
}

// TokenCeiling returns the default output-token budget for a stage.
func TokenCeiling(stage Stage) int {
	if c, ok := stageTokenCeilings[stage]; ok {
		return c
	}
	return defaultTokenCeiling
}

// ErrRateLimited is returned once the gateway has exhausted its retries
// against a rate-limiting model backend. Callers surface it as a distinct
// "try again later" condition.
var ErrRateLimited = errors.New("model rate limited")

// GatewayRequest describes one model call. When ToolName/ToolSchema are set
// the model is forced into a structured tool call and Content carries the raw
// tool arguments JSON; otherwise Content is plain message text.
type GatewayRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	Stage        Stage
	MaxTokens    int // 0 means the stage default ceiling
	ToolName     string
	ToolSchema   map[string]interface{}
}

// GatewayResponse is the model output plus token accounting.
type GatewayResponse struct {
	Content string
	Usage   TokenUsage
	Model   string
}

// ModelGateway is the single choke point for LLM calls.
type ModelGateway interface {
	Generate(ctx context.Context, req GatewayRequest) (GatewayResponse, error)
}

// RetryPolicy bounds how the gateway retries rate-limited calls. Backoff and
// Sleep are injectable so retry behavior is testable without real delays.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Sleep       func(time.Duration)
}

// DefaultRetryPolicy retries rate limits up to 3 attempts with 2s/4s/8s
// exponential backoff. Non-rate-limit errors are never retried.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(1<<attempt) * time.Second
		},
		Sleep: time.Sleep,
	}
}

// chatCompleter is the slice of the OpenAI client the gateway uses.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIGateway implements ModelGateway against the OpenAI chat API.
type OpenAIGateway struct {
	client chatCompleter
	model  string
	retry  RetryPolicy
	log    *zap.SugaredLogger
}

// NewOpenAIGateway builds a gateway with the default model and retry policy.
func NewOpenAIGateway(apiKey string, log *zap.SugaredLogger) *OpenAIGateway {
	return &OpenAIGateway{
		client: openai.NewClient(apiKey),
		model:  openai.GPT4o,
		retry:  DefaultRetryPolicy(),
		log:    log.Named("gateway"),
	}
}

// WithRetryPolicy overrides the retry policy. Used by tests and by callers
// that need tighter latency bounds.
func (g *OpenAIGateway) WithRetryPolicy(p RetryPolicy) *OpenAIGateway {
	g.retry = p
	return g
}

// Generate performs one model call with stage-bounded output tokens,
// retrying only on rate limits.
func (g *OpenAIGateway) Generate(ctx context.Context, req GatewayRequest) (GatewayResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = TokenCeiling(req.Stage)
	}

	ccReq := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
	}

	if req.ToolName != "" {
		ccReq.Tools = []openai.Tool{
			{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:       req.ToolName,
					Parameters: req.ToolSchema,
				},
			},
		}
		ccReq.ToolChoice = openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: req.ToolName},
		}
	}

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 1; attempt <= g.retry.MaxAttempts; attempt++ {
		resp, err = g.client.CreateChatCompletion(ctx, ccReq)
		if err == nil {
			break
		}
		if !isRateLimited(err) {
			return GatewayResponse{}, fmt.Errorf("model call failed (stage %s): %w", req.Stage, err)
		}
		if attempt == g.retry.MaxAttempts {
			return GatewayResponse{}, fmt.Errorf("stage %s after %d attempts: %w", req.Stage, attempt, ErrRateLimited)
		}
		delay := g.retry.Backoff(attempt)
		g.log.Warnw("rate limited, retrying",
			"stage", req.Stage,
			"attempt", attempt,
			"delay", delay.String(),
		)
		g.retry.Sleep(delay)
	}

	content, err := extractContent(resp, req.ToolName)
	if err != nil {
		return GatewayResponse{}, fmt.Errorf("stage %s: %w", req.Stage, err)
	}

	return GatewayResponse{
		Content: content,
		Usage: TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		Model: g.model,
	}, nil
}

func extractContent(resp openai.ChatCompletionResponse, toolName string) (string, error) {
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in model response")
	}
	choice := resp.Choices[0]

	if toolName == "" {
		return choice.Message.Content, nil
	}
	if len(choice.Message.ToolCalls) == 0 {
		return "", errors.New("no tool calls in model response")
	}
	toolCall := choice.Message.ToolCalls[0]
	if toolCall.Function.Name != toolName {
		return "", fmt.Errorf("unexpected tool call: %s", toolCall.Function.Name)
	}
	return toolCall.Function.Arguments, nil
}

func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429
	}
	return false
}
