package policy

import "regexp"

// redactionRule masks one class of sensitive text in persisted call logs.
type redactionRule struct {
	name        string
	pattern     *regexp.Regexp
	replacement string
}

// Rules run in order: card numbers must be masked before the phone rules
// or a 16-digit card reads like a long dial string. The mobile rule covers
// the numbers dealership customers actually leave, +91 prefixed or bare
// 10-digit starting 6-9; the landline rule catches everything else with a
// plausible dial-string shape. Registration plates come up whenever a
// service booking mentions the vehicle.
var redactionRules = []redactionRule{
	{"email", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	{"card", regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[REDACTED_CARD]"},
	{"mobile", regexp.MustCompile(`(?:\+?91[\- ]?)?[6-9]\d{4}[\- ]?\d{5}\b`), "[REDACTED_PHONE]"},
	{"landline", regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
	{"plate", regexp.MustCompile(`\b[A-Z]{2}[ -]?\d{1,2}[ -]?[A-Z]{1,3}[ -]?\d{4}\b`), "[REDACTED_PLATE]"},
}

// RedactPII masks common high-risk PII patterns before call logs are
// persisted. Live transcripts shown to the agent are never redacted.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, rule := range redactionRules {
		next := rule.pattern.ReplaceAllString(out, rule.replacement)
		changed = changed || next != out
		out = next
	}
	return out, changed
}
