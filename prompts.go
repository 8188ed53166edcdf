package probgen

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

const (
	toolSubmitProblems  = "submit_problems"
	toolSubmitConcepts  = "submit_concepts"
	toolSubmitDesigns   = "submit_designs"
	toolEvaluateProblem = "evaluate_problem"
)

var domainInstructions = map[string]string{
	"frontend": "Focus on rendering behavior, state management, browser APIs and common pitfalls.",
	"backend":  "Focus on request handling, data modeling, concurrency and failure modes.",
	"database": "Focus on query semantics, indexing, transactions and consistency.",
	"cs":       "Focus on correctness, complexity analysis and classic trade-offs.",
	"devops":   "Focus on deployment, orchestration, networking and operational failure modes.",
}

func instructionsForDomain(domain string) string {
	if ins, ok := domainInstructions[strings.ToLower(domain)]; ok {
		return ins
	}
	return "Focus on practical understanding rather than rote memorization."
}

const problemRequirements = `Requirements for every problem:
- multiple_choice problems must have exactly 4 substantive options; never use bare letters or placeholders
- fill_blank and essay problems must not have options
- the correct answer must be clearly correct and the distractors plausible but wrong
- the explanation must say WHY the answer is correct, not restate it
- write in a formal, exam-grade register
- attach a self_critique block with an honest quality_score from 0 to 10 and a needs_regeneration flag
`

func buildSimplePrompt(req GenerationRequest, source string, target int) (string, string) {
	system := "You are an expert problem author for a learning platform. " +
		"Generate high-quality practice problems and submit them with the submit_problems tool."

	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate %d practice problems about %s.\n\n", target, req.Tech)
	sb.WriteString(instructionsForDomain(req.Domain))
	sb.WriteString("\n\n")
	if source != "" {
		sb.WriteString("Base every problem on the following study material:\n")
		sb.WriteString(source)
		sb.WriteString("\n\n")
	} else if req.Prompt != "" {
		fmt.Fprintf(&sb, "Topic guidance from the learner: %s\n\n", req.Prompt)
	}
	writeSharedConstraints(&sb, req)
	sb.WriteString(problemRequirements)
	return system, sb.String()
}

func buildExtractionPrompt(material string) (string, string) {
	system := "You are an expert at extracting the key concepts from study material. " +
		"Submit the concepts with the submit_concepts tool."

	var sb strings.Builder
	sb.WriteString("Extract the most important testable concepts from the material below.\n")
	sb.WriteString("For each concept provide a short label, a supporting excerpt from the material, and an importance rank starting at 1.\n\n")
	sb.WriteString("Material:\n")
	sb.WriteString(material)
	return system, sb.String()
}

func buildDesignPrompt(req GenerationRequest, concepts []ConceptRecord) (string, string) {
	system := "You are an assessment designer. For each concept, design one problem blueprint " +
		"and submit the blueprints with the submit_designs tool."

	var sb strings.Builder
	fmt.Fprintf(&sb, "Design problem blueprints for a %s practice set (difficulty: %s).\n\n", req.Tech, req.Difficulty)
	sb.WriteString("Concepts to cover:\n")
	for _, c := range concepts {
		fmt.Fprintf(&sb, "%d. %s", c.Rank, c.Concept)
		if c.Context != "" {
			fmt.Fprintf(&sb, " (context: %s)", c.Context)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nFor each blueprint decide the question type, explain why the intended answer is correct,\n")
	sb.WriteString("what makes the distractors plausible (for choice types), and why the difficulty fits.\n")
	writeSharedConstraints(&sb, req)
	return system, sb.String()
}

func buildGenerationPrompt(req GenerationRequest, designs []ProblemDesign, samples []ReferenceSample, source string, target int) (string, string) {
	system := "You are an expert problem author for a learning platform. " +
		"Follow the blueprints and reference examples closely and submit the problems with the submit_problems tool."

	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate %d practice problems about %s.\n\n", target, req.Tech)
	sb.WriteString(instructionsForDomain(req.Domain))
	sb.WriteString("\n\n")

	if len(designs) > 0 {
		sb.WriteString("Problem blueprints to realize:\n")
		for i, d := range designs {
			fmt.Fprintf(&sb, "%d. concept: %s | type: %s | answer rationale: %s\n", i+1, d.Concept, d.Type, d.AnswerRationale)
			if d.DistractorRationale != "" {
				fmt.Fprintf(&sb, "   distractors: %s\n", d.DistractorRationale)
			}
		}
		sb.WriteString("\n")
	}

	if len(samples) > 0 {
		sb.WriteString("Reference examples of the expected quality and format:\n\n")
		for i, sample := range samples {
			fmt.Fprintf(&sb, "Example %d:\n", i+1)
			writeProblemBlock(&sb, sample.Problem)
			sb.WriteString("\n")
		}
	}

	if source != "" {
		sb.WriteString("Study material:\n")
		sb.WriteString(source)
		sb.WriteString("\n\n")
	}
	writeSharedConstraints(&sb, req)
	sb.WriteString(problemRequirements)
	return system, sb.String()
}

func buildSeedPrompt(tech, domain string, needed int) (string, string) {
	system := "You are an expert problem author building a reference library of exemplary practice problems. " +
		"Submit the problems with the submit_problems tool."

	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate exactly %d exemplary practice problems about %s.\n\n", needed, tech)
	sb.WriteString(instructionsForDomain(domain))
	sb.WriteString("\n\nThese problems will be used as reference examples for future generation, so only submit problems you would rate 8/10 or higher.\n")
	sb.WriteString(problemRequirements)
	return system, sb.String()
}

func buildValidationPrompt(p GeneratedProblem) (string, string) {
	system := "You are a harsh exam reviewer. Score the problem without mercy and submit " +
		"your verdict with the evaluate_problem tool. Assume the author is overconfident."

	var sb strings.Builder
	sb.WriteString("Evaluate the following practice problem:\n\n")
	writeProblemBlock(&sb, p)
	sb.WriteString("\nScore it from 0 to 10 against ALL of these criteria:\n")
	sb.WriteString("1. Is the correct answer unambiguous?\n")
	sb.WriteString("2. Are the distractors plausible but clearly wrong?\n")
	sb.WriteString("3. Would this problem pass review for a real exam?\n")
	sb.WriteString("4. Does the explanation actually explain WHY the answer is correct?\n\n")
	sb.WriteString("Recommend rejection for any fundamental flaw, even a single one.\n")
	return system, sb.String()
}

func writeSharedConstraints(sb *strings.Builder, req GenerationRequest) {
	fmt.Fprintf(sb, "Difficulty: %s\n", req.Difficulty)
	if req.BlankRatio > 0 {
		fmt.Fprintf(sb, "Roughly %.0f%% of the problems should be fill_blank instead of multiple_choice.\n", req.BlankRatio*100)
	}
	if req.SubjectiveStyle != "" {
		fmt.Fprintf(sb, "Subjective question style: %s\n", req.SubjectiveStyle)
	}
	if req.GradingStrictness != "" {
		fmt.Fprintf(sb, "Grading strictness: %s\n", req.GradingStrictness)
	}
	if req.ComplexityTier != "" {
		fmt.Fprintf(sb, "Complexity tier: %s\n", req.ComplexityTier)
	}
	sb.WriteString("\n")
}

func writeProblemBlock(sb *strings.Builder, p GeneratedProblem) {
	fmt.Fprintf(sb, "Question (%s): %s\n", p.Type, p.Question)
	for i, option := range p.Options {
		marker := " "
		if option == p.Answer {
			marker = "*"
		}
		fmt.Fprintf(sb, "%s%d. %s\n", marker, i+1, option)
	}
	fmt.Fprintf(sb, "Answer: %s\n", p.Answer)
	if p.Explanation != "" {
		fmt.Fprintf(sb, "Explanation: %s\n", p.Explanation)
	}
}

// -------------------- tool schemas --------------------

func problemItemSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"question":      map[string]interface{}{"type": "string"},
			"question_type": map[string]interface{}{"type": "string", "enum": []interface{}{"multiple_choice", "multiple_select", "fill_blank", "essay"}},
			"options": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
			"answer": map[string]interface{}{"type": "string"},
			"alternative_answers": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
			"explanation":       map[string]interface{}{"type": "string"},
			"difficulty":        map[string]interface{}{"type": "string"},
			"max_answer_length": map[string]interface{}{"type": "integer"},
			"source_excerpt":    map[string]interface{}{"type": "string"},
			"self_critique": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"quality_score":      map[string]interface{}{"type": "number", "minimum": 0, "maximum": 10},
					"needs_regeneration": map[string]interface{}{"type": "boolean"},
				},
				"required": []interface{}{"quality_score"},
			},
		},
		"required": []interface{}{"question", "question_type", "answer", "explanation"},
	}
}

func schemaProblems() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"problems": map[string]interface{}{
				"type":  "array",
				"items": problemItemSchema(),
			},
		},
		"required": []interface{}{"problems"},
	}
}

func schemaConcepts() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"concepts": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"concept": map[string]interface{}{"type": "string"},
						"context": map[string]interface{}{"type": "string"},
						"rank":    map[string]interface{}{"type": "integer"},
					},
					"required": []interface{}{"concept"},
				},
			},
		},
		"required": []interface{}{"concepts"},
	}
}

func schemaDesigns() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"designs": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"concept":              map[string]interface{}{"type": "string"},
						"question_type":        map[string]interface{}{"type": "string", "enum": []interface{}{"multiple_choice", "multiple_select", "fill_blank", "essay"}},
						"answer_rationale":     map[string]interface{}{"type": "string"},
						"distractor_rationale": map[string]interface{}{"type": "string"},
						"difficulty_rationale": map[string]interface{}{"type": "string"},
					},
					"required": []interface{}{"concept", "question_type", "answer_rationale"},
				},
			},
		},
		"required": []interface{}{"designs"},
	}
}

func schemaValidation() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"score":            map[string]interface{}{"type": "number", "minimum": 0, "maximum": 10},
			"recommend_reject": map[string]interface{}{"type": "boolean"},
			"reason":           map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"score", "recommend_reject", "reason"},
	}
}

// -------------------- parse-then-validate boundary --------------------

// compiledSchemas caches compiled JSON schemas by tool name.
var compiledSchemas sync.Map // map[string]*jsonschema.Schema

// validateToolArgs checks raw tool-call arguments against the tool's schema
// before any field is trusted. External JSON never crosses this boundary
// unchecked.
func validateToolArgs(name string, schema map[string]interface{}, raw []byte) error {
	var parsed interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("invalid JSON from model: %w", err)
	}
	compiled, err := compiledSchemaFor(name, schema)
	if err != nil {
		return err
	}
	if err := compiled.Validate(parsed); err != nil {
		return fmt.Errorf("model response failed schema %s: %w", name, err)
	}
	return nil
}

func compiledSchemaFor(name string, schema map[string]interface{}) (*jsonschema.Schema, error) {
	if cached, ok := compiledSchemas.Load(name); ok {
		return cached.(*jsonschema.Schema), nil
	}
	defBytes, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", name, err)
	}
	var defParsed interface{}
	if err := json.Unmarshal(defBytes, &defParsed); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	schemaURL := fmt.Sprintf("schema://%s.json", name)
	if err := c.AddResource(schemaURL, defParsed); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	compiledSchemas.Store(name, compiled)
	return compiled, nil
}

// parseProblems decodes a submit_problems tool response into typed problems,
// assigning IDs and defaulting difficulty from the request.
func parseProblems(raw string, defaultDifficulty string) ([]GeneratedProblem, error) {
	if err := validateToolArgs(toolSubmitProblems, schemaProblems(), []byte(raw)); err != nil {
		return nil, err
	}
	var payload struct {
		Problems []GeneratedProblem `json:"problems"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse problems: %w", err)
	}
	for i := range payload.Problems {
		payload.Problems[i].ID = uuid.NewString()
		if payload.Problems[i].Difficulty == "" {
			payload.Problems[i].Difficulty = defaultDifficulty
		}
	}
	return payload.Problems, nil
}
