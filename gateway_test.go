package probgen

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedCompleter returns canned responses or errors in sequence.
type scriptedCompleter struct {
	results []func() (openai.ChatCompletionResponse, error)
	calls   int
}

func (s *scriptedCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	return s.results[idx]()
}

func toolResponse(toolName, args string) func() (openai.ChatCompletionResponse, error) {
	return func() (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{
					Message: openai.ChatCompletionMessage{
						ToolCalls: []openai.ToolCall{
							{Function: openai.FunctionCall{Name: toolName, Arguments: args}},
						},
					},
				},
			},
			Usage: openai.Usage{PromptTokens: 100, CompletionTokens: 50},
		}, nil
	}
}

func rateLimitError() func() (openai.ChatCompletionResponse, error) {
	return func() (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, &openai.APIError{HTTPStatusCode: 429, Message: "rate limited"}
	}
}

func newTestGateway(completer chatCompleter, sleeps *[]time.Duration) *OpenAIGateway {
	g := &OpenAIGateway{
		client: completer,
		model:  "gpt-4o",
		log:    testLogger().Named("gateway"),
	}
	policy := DefaultRetryPolicy()
	policy.Sleep = func(d time.Duration) {
		if sleeps != nil {
			*sleeps = append(*sleeps, d)
		}
	}
	return g.WithRetryPolicy(policy)
}

func TestGatewayGenerate(t *testing.T) {
	t.Run("returns tool arguments and usage", func(t *testing.T) {
		completer := &scriptedCompleter{results: []func() (openai.ChatCompletionResponse, error){
			toolResponse("submit_problems", `{"problems":[]}`),
		}}
		g := newTestGateway(completer, nil)

		resp, err := g.Generate(context.Background(), GatewayRequest{
			Stage:      StageGeneration,
			ToolName:   "submit_problems",
			ToolSchema: schemaProblems(),
		})
		require.NoError(t, err)
		assert.Equal(t, `{"problems":[]}`, resp.Content)
		assert.Equal(t, TokenUsage{InputTokens: 100, OutputTokens: 50}, resp.Usage)
		assert.Equal(t, "gpt-4o", resp.Model)
	})

	t.Run("retries rate limits with exponential backoff", func(t *testing.T) {
		completer := &scriptedCompleter{results: []func() (openai.ChatCompletionResponse, error){
			rateLimitError(),
			rateLimitError(),
			toolResponse("submit_problems", `{"problems":[]}`),
		}}
		var sleeps []time.Duration
		g := newTestGateway(completer, &sleeps)

		_, err := g.Generate(context.Background(), GatewayRequest{Stage: StageGeneration, ToolName: "submit_problems"})
		require.NoError(t, err)
		assert.Equal(t, 3, completer.calls)
		assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeps)
	})

	t.Run("returns ErrRateLimited after exhausting retries", func(t *testing.T) {
		completer := &scriptedCompleter{results: []func() (openai.ChatCompletionResponse, error){
			rateLimitError(),
		}}
		var sleeps []time.Duration
		g := newTestGateway(completer, &sleeps)

		_, err := g.Generate(context.Background(), GatewayRequest{Stage: StageGeneration})
		require.ErrorIs(t, err, ErrRateLimited)
		assert.Equal(t, 3, completer.calls)
		assert.Len(t, sleeps, 2)
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		boom := errors.New("boom")
		completer := &scriptedCompleter{results: []func() (openai.ChatCompletionResponse, error){
			func() (openai.ChatCompletionResponse, error) { return openai.ChatCompletionResponse{}, boom },
		}}
		g := newTestGateway(completer, nil)

		_, err := g.Generate(context.Background(), GatewayRequest{Stage: StageGeneration})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrRateLimited)
		assert.Equal(t, 1, completer.calls)
	})

	t.Run("rejects a mismatched tool call", func(t *testing.T) {
		completer := &scriptedCompleter{results: []func() (openai.ChatCompletionResponse, error){
			toolResponse("other_tool", `{}`),
		}}
		g := newTestGateway(completer, nil)

		_, err := g.Generate(context.Background(), GatewayRequest{Stage: StageGeneration, ToolName: "submit_problems"})
		assert.ErrorContains(t, err, "unexpected tool call")
	})
}

func TestTokenCeiling(t *testing.T) {
	assert.Equal(t, 1000, TokenCeiling(StageExtraction))
	assert.Equal(t, 1500, TokenCeiling(StageDesign))
	assert.Equal(t, 3000, TokenCeiling(StageGeneration))
	assert.Equal(t, 500, TokenCeiling(StageValidation))
	assert.Equal(t, 2000, TokenCeiling(StageSeeding))
	assert.Equal(t, 2000, TokenCeiling(Stage("unknown")))
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, isRateLimited(&openai.APIError{HTTPStatusCode: 429}))
	assert.True(t, isRateLimited(&openai.RequestError{HTTPStatusCode: 429}))
	assert.False(t, isRateLimited(&openai.APIError{HTTPStatusCode: 500}))
	assert.False(t, isRateLimited(errors.New("plain")))
}
