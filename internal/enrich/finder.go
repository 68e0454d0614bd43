package enrich

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/leadgrid/leadgen-cli/internal/model"
	"github.com/leadgrid/leadgen-cli/pkg/hunter"
)

// hunterAPI is the slice of the Hunter client the finder uses.
type hunterAPI interface {
	DomainSearch(ctx context.Context, domain string, limit int) (*hunter.DomainSearchResult, error)
	CostPerSearch() float64
}

// FinderStrategy looks up emails through the paid Hunter domain-search
// API. Requires a website domain; businesses without one are skipped.
type FinderStrategy struct {
	api hunterAPI
}

// NewFinderStrategy wraps a Hunter client as a waterfall tier.
func NewFinderStrategy(api hunterAPI) *FinderStrategy {
	return &FinderStrategy{api: api}
}

func (f *FinderStrategy) Name() string          { return StrategyFinder }
func (f *FinderStrategy) Billable() bool        { return true }
func (f *FinderStrategy) CostPerQuery() float64 { return f.api.CostPerSearch() }

// Attempt runs a domain search and maps Hunter's hits to scored emails.
// Hunter's own 0-100 confidence nudges the score within the tier's band.
func (f *FinderStrategy) Attempt(ctx context.Context, b *model.BusinessRecord) (*Attempt, error) {
	domain := b.Domain()
	if domain == "" {
		return &Attempt{}, nil
	}

	res, err := f.api.DomainSearch(ctx, domain, model.MaxEmailsPerBusiness)
	if err != nil {
		return nil, eris.Wrap(err, "finder: domain search")
	}

	att := &Attempt{}
	for _, e := range res.Emails {
		addr := CleanEmail(e.Value)
		if addr == "" || !ValidEmail(addr) {
			continue
		}
		score := ScoreEmail(addr, domain, StrategyFinder)
		// Discount hits Hunter itself is unsure about.
		if e.Confidence > 0 && e.Confidence < 50 {
			score -= 0.2
			if score < 0 {
				score = 0
			}
		}
		att.Emails = append(att.Emails, model.EmailMatch{
			Address:    addr,
			Source:     StrategyFinder,
			Confidence: score,
		})
		if att.ContactName == "" {
			att.ContactName = e.ContactName()
		}
	}
	return att, nil
}
