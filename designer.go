package probgen

import (
	"context"
	"encoding/json"
	"fmt"
)

// designProblems runs the design stage: concepts in, problem blueprints out.
func designProblems(ctx context.Context, gateway ModelGateway, req GenerationRequest, concepts []ConceptRecord) ([]ProblemDesign, GatewayResponse, error) {
	system, user := buildDesignPrompt(req, concepts)
	resp, err := gateway.Generate(ctx, GatewayRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		Temperature:  0.4,
		Stage:        StageDesign,
		ToolName:     toolSubmitDesigns,
		ToolSchema:   schemaDesigns(),
	})
	if err != nil {
		return nil, GatewayResponse{}, err
	}

	if err := validateToolArgs(toolSubmitDesigns, schemaDesigns(), []byte(resp.Content)); err != nil {
		return nil, resp, err
	}
	var payload struct {
		Designs []ProblemDesign `json:"designs"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &payload); err != nil {
		return nil, resp, fmt.Errorf("failed to parse designs: %w", err)
	}
	return payload.Designs, resp, nil
}
