package probgen

import (
	"context"
	"encoding/json"
	"fmt"
)

// validationVerdict is the independent validator's scoring of one problem.
// The validator never sees the problem's own self-critique score.
type validationVerdict struct {
	Score           float64 `json:"score"`
	RecommendReject bool    `json:"recommend_reject"`
	Reason          string  `json:"reason"`
}

// validateProblem runs the harsh-rubric validation call for one candidate.
func validateProblem(ctx context.Context, gateway ModelGateway, p GeneratedProblem) (validationVerdict, GatewayResponse, error) {
	// Strip the self-critique so the validator scores independently.
	independent := p
	independent.SelfCritique = nil

	system, user := buildValidationPrompt(independent)
	resp, err := gateway.Generate(ctx, GatewayRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		Temperature:  0.2,
		Stage:        StageValidation,
		ToolName:     toolEvaluateProblem,
		ToolSchema:   schemaValidation(),
	})
	if err != nil {
		return validationVerdict{}, GatewayResponse{}, err
	}

	if err := validateToolArgs(toolEvaluateProblem, schemaValidation(), []byte(resp.Content)); err != nil {
		return validationVerdict{}, resp, err
	}
	var verdict validationVerdict
	if err := json.Unmarshal([]byte(resp.Content), &verdict); err != nil {
		return validationVerdict{}, resp, fmt.Errorf("failed to parse validation verdict: %w", err)
	}
	return verdict, resp, nil
}
