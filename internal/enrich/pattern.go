package enrich

import (
	"context"
	"strings"

	"github.com/leadgrid/leadgen-cli/internal/model"
)

// commonPrefixes are the generic mailbox names tried against a domain.
var commonPrefixes = []string{
	"info", "contact", "hello", "admin", "support", "sales", "office",
}

// PatternStrategy guesses plausible mailboxes from the business's domain
// and name. Free last resort; its guesses score low and usually only
// survive a lowered confidence threshold.
type PatternStrategy struct{}

// NewPatternStrategy creates a PatternStrategy.
func NewPatternStrategy() *PatternStrategy { return &PatternStrategy{} }

func (p *PatternStrategy) Name() string          { return StrategyPattern }
func (p *PatternStrategy) Billable() bool        { return false }
func (p *PatternStrategy) CostPerQuery() float64 { return 0 }

// Attempt generates candidate emails. Never errors; no domain means no
// candidates.
func (p *PatternStrategy) Attempt(_ context.Context, b *model.BusinessRecord) (*Attempt, error) {
	domain := b.Domain()
	if domain == "" {
		return &Attempt{}, nil
	}

	candidates := make([]string, 0, len(commonPrefixes)+2)
	candidates = append(candidates, commonPrefixes...)
	if word := firstNameWord(b.Name); word != "" {
		candidates = append(candidates, word, word+".info")
	}

	att := &Attempt{}
	seen := map[string]bool{}
	for _, prefix := range candidates {
		addr := prefix + "@" + domain
		if !ValidEmail(addr) || seen[addr] {
			continue
		}
		seen[addr] = true
		att.Emails = append(att.Emails, model.EmailMatch{
			Address:    addr,
			Source:     StrategyPattern,
			Confidence: ScoreEmail(addr, domain, StrategyPattern),
		})
	}
	return att, nil
}

// firstNameWord returns the leading word of the business name, lowered
// and stripped to letters, when it is short enough to be a mailbox.
func firstNameWord(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range fields[0] {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	word := b.String()
	if len(word) == 0 || len(word) > 10 {
		return ""
	}
	return word
}
