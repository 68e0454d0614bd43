package enrich

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadgrid/leadgen-cli/internal/budget"
	"github.com/leadgrid/leadgen-cli/internal/model"
)

// Authorizer is the budget surface the waterfall needs. Satisfied by
// *budget.Governor.
type Authorizer interface {
	Authorize(provider string, estCost float64) budget.Decision
	Record(ctx context.Context, ev *model.CostEvent) error
}

// Waterfall runs enrichment strategies in policy order until one yields
// emails above the confidence threshold. Billable tiers are authorized
// against the budget first and skipped, not failed, when the budget is
// exhausted.
type Waterfall struct {
	policy     Policy
	strategies map[string]Strategy
	cache      *Cache
	gov        Authorizer
	now        func() time.Time
}

// WaterfallOption customizes a Waterfall.
type WaterfallOption func(*Waterfall)

// WithWaterfallNow overrides the clock, for tests.
func WithWaterfallNow(now func() time.Time) WaterfallOption {
	return func(w *Waterfall) { w.now = now }
}

// NewWaterfall builds a Waterfall. Every strategy named in the policy
// order must be provided.
func NewWaterfall(policy Policy, cache *Cache, gov Authorizer, strategies []Strategy, opts ...WaterfallOption) (*Waterfall, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	byName := make(map[string]Strategy, len(strategies))
	for _, s := range strategies {
		byName[s.Name()] = s
	}
	for _, name := range policy.Order {
		if _, ok := byName[name]; !ok {
			return nil, eris.Errorf("waterfall: no strategy registered for %q", name)
		}
	}
	w := &Waterfall{
		policy:     policy,
		strategies: byName,
		cache:      cache,
		gov:        gov,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Enrich resolves emails for one business. The cache is consulted first;
// a hit, including a cached failure, short-circuits without spending
// budget. The returned result is never nil on a nil error.
func (w *Waterfall) Enrich(ctx context.Context, b *model.BusinessRecord) (*model.EnrichmentResult, error) {
	key := b.CacheKey()
	if cached := w.cache.Get(ctx, key); cached != nil {
		zap.L().Debug("enrichment cache hit",
			zap.String("place_id", b.PlaceID),
			zap.String("key", key))
		res := *cached
		res.PlaceID = b.PlaceID
		return &res, nil
	}

	res := &model.EnrichmentResult{
		PlaceID:    b.PlaceID,
		EnrichedAt: w.now().UTC(),
	}

	var tierStarved bool
	for _, name := range w.policy.Order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		strat := w.strategies[name]

		if strat.Billable() {
			dec := w.gov.Authorize(name, strat.CostPerQuery())
			if !dec.Granted {
				zap.L().Warn("enrichment tier skipped, budget exhausted",
					zap.String("strategy", name),
					zap.String("window", string(dec.Window)),
					zap.String("place_id", b.PlaceID))
				tierStarved = true
				continue
			}
		}

		att, err := w.attempt(ctx, strat, b)

		if strat.Billable() {
			ev := &model.CostEvent{
				Provider: name,
				Endpoint: "enrich",
				Success:  err == nil,
			}
			if err == nil {
				ev.Cost = strat.CostPerQuery()
			} else {
				ev.ErrorMessage = err.Error()
			}
			if recErr := w.gov.Record(ctx, ev); recErr != nil {
				return nil, eris.Wrapf(recErr, "waterfall: record %s cost", name)
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			zap.L().Warn("enrichment strategy failed",
				zap.String("strategy", name),
				zap.String("place_id", b.PlaceID),
				zap.Error(err))
			continue
		}

		found := w.accept(res, att, name)
		if found && !w.policy.ExhaustAll {
			break
		}
		if len(res.Emails) >= w.policy.MaxEmails {
			break
		}
	}

	res.Failed = len(res.Emails) == 0
	// A miss that never got its paid tier is not a verdict on the domain;
	// caching it would pin the failure until the TTL expires, long past
	// the budget window rollover.
	if res.Failed && tierStarved {
		zap.L().Debug("budget-starved miss left uncached",
			zap.String("place_id", b.PlaceID))
		return res, nil
	}
	w.cache.Put(ctx, key, res)
	return res, nil
}

// attempt runs one strategy under the per-attempt timeout.
func (w *Waterfall) attempt(ctx context.Context, strat Strategy, b *model.BusinessRecord) (*Attempt, error) {
	if w.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.policy.AttemptTimeout)
		defer cancel()
	}
	return strat.Attempt(ctx, b)
}

// accept folds an attempt into the result, keeping only emails at or
// above the confidence threshold, up to the policy cap. Returns whether
// anything was accepted.
func (w *Waterfall) accept(res *model.EnrichmentResult, att *Attempt, source string) bool {
	if att == nil {
		return false
	}
	var took bool
	for _, e := range att.Emails {
		if e.Confidence < w.policy.ConfidenceThreshold {
			continue
		}
		if len(res.Emails) >= w.policy.MaxEmails {
			break
		}
		res.Emails = append(res.Emails, e)
		took = true
	}
	if took && res.Source == "" {
		res.Source = source
	}
	if res.ContactName == "" && att.ContactName != "" {
		res.ContactName = att.ContactName
	}
	return took
}
