package probgen

import (
	"fmt"
	"regexp"
)

// MaxInputLength is the hard ceiling on user-supplied material. Anything
// longer is rejected outright rather than chunked.
const MaxInputLength = 50000

// SecurityViolationError blocks generation entirely when user input matches
// an attack pattern or exceeds the length ceiling. It identifies the field
// so callers can reject that specific input rather than report a system
// error.
type SecurityViolationError struct {
	Field  string
	Reason string
}

func (e *SecurityViolationError) Error() string {
	return fmt.Sprintf("security violation in %s: %s", e.Field, e.Reason)
}

// Instruction-override and answer-extraction attack patterns. The material
// and prompt fields are untrusted; a match here must block generation rather
// than degrade.
var securityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|your)\s+(instructions|rules)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|in)\b`),
	regexp.MustCompile(`(?i)system\s*prompt`),
	regexp.MustCompile(`(?i)reveal\s+(the\s+)?(correct\s+)?answers?`),
	regexp.MustCompile(`(?i)(show|give)\s+me\s+(all\s+)?(the\s+)?(correct\s+)?answers?`),
	regexp.MustCompile(`모든\s*(이전|위의?)\s*(지시|명령)`),
	regexp.MustCompile(`정답(을|만)\s*(알려|보여|출력)`),
}

// ValidateInputSecurity checks user-supplied material and prompt before any
// model call. A nil return means the input is safe to forward.
func ValidateInputSecurity(material, prompt string) error {
	for field, text := range map[string]string{
		"source_material": material,
		"prompt":          prompt,
	} {
		if text == "" {
			continue
		}
		if len(text) > MaxInputLength {
			return &SecurityViolationError{
				Field:  field,
				Reason: fmt.Sprintf("input exceeds %d character limit", MaxInputLength),
			}
		}
		for _, re := range securityPatterns {
			if re.MatchString(text) {
				return &SecurityViolationError{
					Field:  field,
					Reason: "input matches a blocked instruction pattern",
				}
			}
		}
	}
	return nil
}
