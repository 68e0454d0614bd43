// Package enrich finds contact emails for businesses via an ordered
// waterfall of strategies: free scraping first, paid lookups only when
// cheaper tiers fail.
package enrich

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/leadgrid/leadgen-cli/internal/model"
)

// Policy controls waterfall behavior.
type Policy struct {
	// Order lists strategy names, cheapest first.
	Order []string `yaml:"order"`
	// ConfidenceThreshold is the minimum score an email needs to be
	// accepted into the result.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	// MaxEmails caps accepted emails per business.
	MaxEmails int `yaml:"max_emails"`
	// ExhaustAll keeps trying later strategies even after one has
	// produced an accepted email, until MaxEmails is reached.
	ExhaustAll bool `yaml:"exhaust_all"`

	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
}

// DefaultPolicy returns the stock waterfall: scrape, then paid finder,
// then pattern guessing, stopping at the first accepted email.
func DefaultPolicy() Policy {
	return Policy{
		Order:               []string{StrategyScrape, StrategyFinder, StrategyPattern},
		ConfidenceThreshold: 0.7,
		MaxEmails:           1,
		AttemptTimeout:      20 * time.Second,
		CacheTTL:            30 * 24 * time.Hour,
	}
}

// LoadPolicy reads a waterfall policy from a YAML file. Missing fields
// fall back to defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()

	data, err := os.ReadFile(path)
	if err != nil {
		return p, eris.Wrapf(err, "enrich: read policy %s", path)
	}

	// The YAML has a top-level "waterfall" key.
	var wrapper struct {
		Waterfall struct {
			Order               []string `yaml:"order"`
			ConfidenceThreshold *float64 `yaml:"confidence_threshold"`
			MaxEmails           *int     `yaml:"max_emails"`
			ExhaustAll          *bool    `yaml:"exhaust_all"`
			AttemptTimeoutSecs  *int     `yaml:"attempt_timeout_secs"`
			CacheTTLHours       *int     `yaml:"cache_ttl_hours"`
		} `yaml:"waterfall"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return p, eris.Wrap(err, "enrich: parse policy")
	}

	w := wrapper.Waterfall
	if len(w.Order) > 0 {
		p.Order = w.Order
	}
	if w.ConfidenceThreshold != nil {
		p.ConfidenceThreshold = *w.ConfidenceThreshold
	}
	if w.MaxEmails != nil {
		p.MaxEmails = *w.MaxEmails
	}
	if w.ExhaustAll != nil {
		p.ExhaustAll = *w.ExhaustAll
	}
	if w.AttemptTimeoutSecs != nil {
		p.AttemptTimeout = time.Duration(*w.AttemptTimeoutSecs) * time.Second
	}
	if w.CacheTTLHours != nil {
		p.CacheTTL = time.Duration(*w.CacheTTLHours) * time.Hour
	}

	return p, p.Validate()
}

// Validate checks policy bounds.
func (p Policy) Validate() error {
	if len(p.Order) == 0 {
		return eris.New("enrich: policy order is empty")
	}
	if p.MaxEmails < 1 || p.MaxEmails > model.MaxEmailsPerBusiness {
		return eris.Errorf("enrich: max_emails must be in [1,%d], got %d", model.MaxEmailsPerBusiness, p.MaxEmails)
	}
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1 {
		return eris.Errorf("enrich: confidence_threshold must be in [0,1], got %g", p.ConfidenceThreshold)
	}
	return nil
}
