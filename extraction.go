package probgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// extractConcepts runs the concept-extraction stage against the gateway.
// A truncated JSON response gets one repair attempt; if that also fails the
// stage reports zero concepts rather than an error, because extraction is a
// degradable sub-stage.
func extractConcepts(ctx context.Context, gateway ModelGateway, material string) ([]ConceptRecord, GatewayResponse, error) {
	system, user := buildExtractionPrompt(material)
	resp, err := gateway.Generate(ctx, GatewayRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		Temperature:  0.3,
		Stage:        StageExtraction,
		ToolName:     toolSubmitConcepts,
		ToolSchema:   schemaConcepts(),
	})
	if err != nil {
		return nil, GatewayResponse{}, err
	}

	concepts, parseErr := parseConcepts(resp.Content)
	if parseErr != nil {
		if repaired, ok := repairTruncatedJSON(resp.Content); ok {
			concepts, parseErr = parseConcepts(repaired)
		}
	}
	if parseErr != nil {
		// Unparseable extraction degrades to zero concepts downstream.
		return nil, resp, fmt.Errorf("concept extraction unparseable: %w", parseErr)
	}
	return concepts, resp, nil
}

func parseConcepts(raw string) ([]ConceptRecord, error) {
	if err := validateToolArgs(toolSubmitConcepts, schemaConcepts(), []byte(raw)); err != nil {
		return nil, err
	}
	var payload struct {
		Concepts []ConceptRecord `json:"concepts"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse concepts: %w", err)
	}
	for i := range payload.Concepts {
		if payload.Concepts[i].Rank == 0 {
			payload.Concepts[i].Rank = i + 1
		}
	}
	return payload.Concepts, nil
}

// repairTruncatedJSON recovers a response cut off mid-object by truncating
// to the last complete object boundary and re-closing the enclosing array
// and object. Returns false when no candidate parses.
func repairTruncatedJSON(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "{") {
		return "", false
	}
	for i := len(raw) - 1; i > 0; i-- {
		if raw[i] != '}' {
			continue
		}
		candidate := raw[:i+1]
		// Try closing progressively: as-is, then one array+object close.
		for _, suffix := range []string{"", "]}", "}"} {
			if json.Valid([]byte(candidate + suffix)) {
				return candidate + suffix, true
			}
		}
	}
	return "", false
}

// placeholderConcept synthesizes the single fallback concept used when
// extraction produced nothing.
func placeholderConcept(req GenerationRequest, material string) ConceptRecord {
	label := strings.TrimSpace(req.Prompt)
	if label == "" {
		label = req.Tech
	}
	excerpt := strings.TrimSpace(material)
	if r := []rune(excerpt); len(r) > 200 {
		excerpt = string(r[:200])
	}
	return ConceptRecord{Concept: label, Context: excerpt, Rank: 1}
}
