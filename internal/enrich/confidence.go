package enrich

import "strings"

// Base confidence per strategy. Scraped emails were published by the
// business itself; finder results are provider-verified; patterns are
// guesses.
var methodBaseConfidence = map[string]float64{
	StrategyScrape:  0.7,
	StrategyFinder:  0.9,
	StrategyPattern: 0.4,
}

var professionalPrefixes = []string{"info@", "contact@", "hello@", "admin@", "office@"}

var suspiciousPatterns = []string{"noreply@", "no-reply@", "test@", "fake@", "admin@gmail.com"}

// ScoreEmail computes the confidence for an email found by a strategy
// against the business's website domain. Clamped to [0,1].
func ScoreEmail(email, domain, strategy string) float64 {
	score := methodBaseConfidence[strategy]
	lower := strings.ToLower(email)

	if domain != "" && strings.Contains(lower, strings.ToLower(domain)) {
		score += 0.2
	}
	for _, prefix := range professionalPrefixes {
		if strings.Contains(lower, prefix) {
			score += 0.1
			break
		}
	}
	for _, pattern := range suspiciousPatterns {
		if strings.Contains(lower, pattern) {
			score -= 0.3
			break
		}
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
