package probgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLanguageQualityIssues(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantCount int
	}{
		{"clean formal text", "다음 중 올바른 설명을 고르시오.", 0},
		{"clean english text", "Which statement about goroutines is correct?", 0},
		{"informal ending", "이 함수는 배열을 반환해요.", 1},
		{"laughter runs", "정답은 무엇일까요 ㅋㅋㅋ", 1},
		{"trailing tilde", "다음을 고르시오~", 1},
		{"loanword", "인덱스 레벨: 다음 설명을 고르시오.", 1},
		{"double spacing", "다음 중  올바른 것을 고르시오.", 1},
		{
			"multiple distinct issues",
			"이 케이스를 체크했습니다. 레벨이 낮네요.",
			4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := LanguageQualityIssues(tt.text)
			assert.Len(t, issues, tt.wantCount, "issues: %v", issues)
		})
	}
}
