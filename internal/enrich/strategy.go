package enrich

import (
	"context"

	"github.com/leadgrid/leadgen-cli/internal/model"
)

// Strategy names, in default waterfall order.
const (
	StrategyScrape  = "scrape"
	StrategyFinder  = "hunter"
	StrategyPattern = "pattern"
)

// Attempt is one strategy's raw findings for a business. Emails carry
// scored confidence; the waterfall applies the acceptance threshold.
type Attempt struct {
	Emails      []model.EmailMatch
	ContactName string
}

// Strategy is one tier of the enrichment waterfall.
type Strategy interface {
	// Name identifies the strategy in policy order and result sources.
	Name() string
	// Billable reports whether an attempt spends provider budget.
	Billable() bool
	// CostPerQuery is the price of one attempt; zero for free tiers.
	CostPerQuery() float64
	// Attempt looks for emails. An empty attempt is not an error;
	// errors mean the lookup itself broke.
	Attempt(ctx context.Context, b *model.BusinessRecord) (*Attempt, error)
}
