package enrich

import (
	"regexp"
	"strings"
)

// emailPatterns match plain, spaced, and "at/dot"-obfuscated addresses.
var emailPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+\s*@\s*[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+\sat\s[A-Za-z0-9.-]+\sdot\s[A-Za-z]{2,}\b`),
}

var validEmailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

var trailingPunctRe = regexp.MustCompile(`[.,;!?]+$`)
var spacedAtRe = regexp.MustCompile(`\s*@\s*`)

// excludedEmailRes are common false positives from page markup and
// template boilerplate.
var excludedEmailRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)@example\.`),
	regexp.MustCompile(`(?i)@test\.`),
	regexp.MustCompile(`(?i)@placeholder\.`),
	regexp.MustCompile(`(?i)@domain\.`),
	regexp.MustCompile(`(?i)@company\.`),
	regexp.MustCompile(`(?i)@yoursite\.`),
	regexp.MustCompile(`(?i)^image@`),
	regexp.MustCompile(`(?i)^photo@`),
	regexp.MustCompile(`(?i)^picture@`),
}

// CleanEmail normalizes an extracted address: de-obfuscates " at " and
// " dot ", lowercases, and strips trailing punctuation.
func CleanEmail(email string) string {
	email = strings.ReplaceAll(email, " at ", "@")
	email = strings.ReplaceAll(email, " dot ", ".")
	email = spacedAtRe.ReplaceAllString(email, "@")
	email = strings.ToLower(strings.TrimSpace(email))
	return trailingPunctRe.ReplaceAllString(email, "")
}

// ValidEmail reports whether a cleaned address looks deliverable.
func ValidEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	if !validEmailRe.MatchString(email) {
		return false
	}
	for _, re := range excludedEmailRes {
		if re.MatchString(email) {
			return false
		}
	}
	return true
}

// ExtractEmails pulls cleaned, validated, deduplicated addresses out of
// free text.
func ExtractEmails(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, re := range emailPatterns {
		for _, raw := range re.FindAllString(text, -1) {
			email := CleanEmail(raw)
			if !ValidEmail(email) {
				continue
			}
			if _, dup := seen[email]; dup {
				continue
			}
			seen[email] = struct{}{}
			out = append(out, email)
		}
	}
	return out
}
