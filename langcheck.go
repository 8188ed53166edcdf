package probgen

import (
	"regexp"
	"strings"
)

// Patterns that mark informal register in Korean question text. Exam-grade
// problems are expected in formal written style (하십시오체 / plain 한다체).
var informalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[ㅋㅎㅠㅜ]{2,}`),
	regexp.MustCompile(`(해요|예요|이에요|거든요|잖아요|네요)[.!?]?(\s|$)`),
	regexp.MustCompile(`[~]{1,}\s*$`),
	regexp.MustCompile(`\.\.\.{2,}`),
}

// Loanword transliterations that read as lazy phrasing in formal question
// text; each has an established native equivalent.
var loanwordSubstitutions = map[string]string{
	"체크":   "확인",
	"레벨":   "수준",
	"이슈":   "문제",
	"스펙":   "사양",
	"베이직":  "기본",
	"심플":   "단순",
	"케이스":  "경우",
	"머지":   "병합",
	"디펜던시": "의존성",
}

var doubleSpaceRe = regexp.MustCompile(`\S  +\S`)

// LanguageQualityIssues scans question text for informal register, loanword
// substitutions that need more native phrasing, and double spacing. Each
// finding is one distinct issue.
func LanguageQualityIssues(text string) []string {
	var issues []string

	for _, re := range informalPatterns {
		if re.MatchString(text) {
			issues = append(issues, "informal register: "+re.String())
		}
	}
	for loanword, native := range loanwordSubstitutions {
		if strings.Contains(text, loanword) {
			issues = append(issues, "loanword "+loanword+" should be "+native)
		}
	}
	if doubleSpaceRe.MatchString(text) {
		issues = append(issues, "double spacing")
	}
	return issues
}
