package probgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProblems(t *testing.T) {
	t.Run("assigns ids and defaults difficulty", func(t *testing.T) {
		raw := `{"problems":[
			{"question":"q1?","question_type":"essay","answer":"a1","explanation":"e1"},
			{"question":"q2?","question_type":"essay","answer":"a2","explanation":"e2","difficulty":"hard"}
		]}`
		problems, err := parseProblems(raw, "medium")
		require.NoError(t, err)
		require.Len(t, problems, 2)

		assert.NotEmpty(t, problems[0].ID)
		assert.NotEqual(t, problems[0].ID, problems[1].ID)
		assert.Equal(t, "medium", problems[0].Difficulty)
		assert.Equal(t, "hard", problems[1].Difficulty)
	})

	t.Run("rejects missing required fields", func(t *testing.T) {
		_, err := parseProblems(`{"problems":[{"question":"q?"}]}`, "medium")
		assert.Error(t, err)
	})

	t.Run("rejects an unknown question type", func(t *testing.T) {
		_, err := parseProblems(`{"problems":[{"question":"q?","question_type":"true_false","answer":"a","explanation":"e"}]}`, "medium")
		assert.Error(t, err)
	})

	t.Run("rejects invalid JSON", func(t *testing.T) {
		_, err := parseProblems(`{"problems":`, "medium")
		assert.Error(t, err)
	})
}

func TestBuildGenerationPrompt(t *testing.T) {
	req := GenerationRequest{Tech: "react", Domain: "frontend", Difficulty: "hard", BlankRatio: 0.3}
	designs := []ProblemDesign{{Concept: "reconciliation", Type: TypeMultipleChoice, AnswerRationale: "tests diffing"}}
	samples := []ReferenceSample{sample("s1", "frontend", "react", OriginHuman, "react")}

	_, user := buildGenerationPrompt(req, designs, samples, "study material body", 6)

	assert.Contains(t, user, "Generate 6 practice problems about react")
	assert.Contains(t, user, "reconciliation")
	assert.Contains(t, user, "Reference examples")
	assert.Contains(t, user, "study material body")
	assert.Contains(t, user, "Difficulty: hard")
	assert.Contains(t, user, "30% of the problems should be fill_blank")
}

func TestBuildSimplePrompt(t *testing.T) {
	t.Run("with source material", func(t *testing.T) {
		_, user := buildSimplePrompt(GenerationRequest{Tech: "go", Difficulty: "medium"}, "goroutine notes", 12)
		assert.Contains(t, user, "Generate 12 practice problems about go")
		assert.Contains(t, user, "goroutine notes")
	})

	t.Run("prompt guidance without material", func(t *testing.T) {
		_, user := buildSimplePrompt(GenerationRequest{Tech: "go", Prompt: "focus on channels", Difficulty: "medium"}, "", 12)
		assert.Contains(t, user, "focus on channels")
	})
}
