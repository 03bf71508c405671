package policy

import "regexp"

type piiRule struct {
	pattern *regexp.Regexp
	marker  string
}

// Order matters: card numbers are masked before the phone rule can claim
// their digits.
var piiRules = []piiRule{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[REDACTED_CARD]"},
	{regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
}

// RedactPII masks emails, card numbers and phone numbers.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, rule := range piiRules {
		out = rule.pattern.ReplaceAllString(out, rule.marker)
	}
	return out, out != input
}

// RedactFact is RedactPII shaped for memory.WithFactRedactor.
func RedactFact(fact string) string {
	out, _ := RedactPII(fact)
	return out
}
