// Package budget enforces per-provider spending limits over rolling
// day, week, and month windows backed by the append-only cost ledger.
package budget

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/leadgrid/leadgen-cli/internal/config"
	"github.com/leadgrid/leadgen-cli/internal/model"
	"github.com/leadgrid/leadgen-cli/internal/store"
)

// ErrBudgetExhausted is returned when an authorization is denied.
var ErrBudgetExhausted = eris.New("budget exhausted")

// Decision is the outcome of an authorization check.
type Decision struct {
	Granted bool
	// Window is the kind that denied the request, or the tightest
	// remaining window when granted.
	Window model.WindowKind
	// RemainingCost is the spend still available in the tightest
	// cost-limited window. Negative means unlimited.
	RemainingCost float64
	// RemainingRequests is the request headroom in the tightest
	// request-limited window. Negative means unlimited.
	RemainingRequests int
}

// Err returns ErrBudgetExhausted when the decision is a denial.
func (d Decision) Err(provider string) error {
	if d.Granted {
		return nil
	}
	return eris.Wrapf(ErrBudgetExhausted, "budget: %s %s window", provider, d.Window)
}

// Governor tracks per-provider usage against configured window limits.
// Counters always mirror the ledger: Record appends the event and bumps
// the windows under one lock, and Load re-derives them from the store.
type Governor struct {
	mu      sync.Mutex
	store   store.Store
	cfg     config.BudgetConfig
	windows map[string]map[model.WindowKind]*model.BudgetWindow
	alerter *Alerter
	now     func() time.Time
}

// Option configures a Governor.
type Option func(*Governor)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

// WithAlerter attaches a threshold alerter.
func WithAlerter(a *Alerter) Option {
	return func(g *Governor) { g.alerter = a }
}

// NewGovernor creates a Governor. Call Load before first use to seed
// counters from the ledger.
func NewGovernor(st store.Store, cfg config.BudgetConfig, opts ...Option) *Governor {
	g := &Governor{
		store:   st,
		cfg:     cfg,
		windows: make(map[string]map[model.WindowKind]*model.BudgetWindow),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Load re-derives window counters from the cost ledger for the given
// providers. Run at startup so restarts cannot forget prior spend.
func (g *Governor) Load(ctx context.Context, providers ...string) error {
	now := g.now().UTC()

	type loaded struct {
		provider string
		kind     model.WindowKind
		window   model.BudgetWindow
	}
	var all []loaded
	for _, provider := range providers {
		for _, kind := range model.WindowKinds {
			start := kind.StartOf(now)
			requests, cost, err := g.store.SumCostsSince(ctx, provider, start)
			if err != nil {
				return eris.Wrapf(err, "budget: load %s %s window", provider, kind)
			}
			all = append(all, loaded{provider, kind, model.BudgetWindow{
				Kind:     kind,
				Start:    start,
				Requests: requests,
				Cost:     cost,
			}})
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, l := range all {
		w := l.window
		g.providerWindows(l.provider)[l.kind] = &w
	}
	return nil
}

// Authorize checks whether one more call costing estCost fits every
// window for the provider. It does not reserve: callers follow up with
// Record after the call completes.
func (g *Governor) Authorize(provider string, estCost float64) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UTC()
	g.rollover(provider, now)
	limits := g.cfg.Limits(provider)

	dec := Decision{Granted: true, RemainingCost: -1, RemainingRequests: -1}
	for _, kind := range model.WindowKinds {
		w := g.providerWindows(provider)[kind]
		lim := limitsFor(limits, kind)

		if lim.MaxRequests > 0 {
			headroom := lim.MaxRequests - w.Requests
			if headroom < 1 {
				return Decision{Granted: false, Window: kind}
			}
			if dec.RemainingRequests < 0 || headroom-1 < dec.RemainingRequests {
				dec.RemainingRequests = headroom - 1
				dec.Window = kind
			}
		}
		if lim.MaxCostUSD > 0 {
			remaining := lim.MaxCostUSD - w.Cost
			if remaining < estCost {
				return Decision{Granted: false, Window: kind}
			}
			if dec.RemainingCost < 0 || remaining-estCost < dec.RemainingCost {
				dec.RemainingCost = remaining - estCost
				dec.Window = kind
			}
		}
	}
	return dec
}

// Record appends the event to the ledger and bumps every window for the
// provider. Failed calls count as requests with whatever was charged.
func (g *Governor) Record(ctx context.Context, ev *model.CostEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = g.now().UTC()
	}
	if err := g.store.AppendCostEvent(ctx, ev); err != nil {
		return eris.Wrap(err, "budget: record cost event")
	}

	g.mu.Lock()
	g.rollover(ev.Provider, ev.Timestamp)
	for _, kind := range model.WindowKinds {
		w := g.providerWindows(ev.Provider)[kind]
		w.Requests++
		w.Cost += ev.Cost
	}
	summaries := g.summariesLocked(ev.Provider)
	g.mu.Unlock()

	if g.alerter != nil {
		g.alerter.Observe(summaries)
	}
	return nil
}

// Snapshot returns the current window summaries for a provider.
func (g *Governor) Snapshot(provider string) []model.WindowSummary {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover(provider, g.now().UTC())
	return g.summariesLocked(provider)
}

// Providers returns every provider the governor has seen, sorted.
func (g *Governor) Providers() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.windows))
	for name := range g.windows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (g *Governor) providerWindows(provider string) map[model.WindowKind]*model.BudgetWindow {
	pw, ok := g.windows[provider]
	if !ok {
		pw = make(map[model.WindowKind]*model.BudgetWindow, len(model.WindowKinds))
		now := g.now().UTC()
		for _, kind := range model.WindowKinds {
			pw[kind] = &model.BudgetWindow{Kind: kind, Start: kind.StartOf(now)}
		}
		g.windows[provider] = pw
	}
	return pw
}

// rollover resets any window whose period no longer contains now.
// Counters restart at zero; the ledger keeps history.
func (g *Governor) rollover(provider string, now time.Time) {
	for _, kind := range model.WindowKinds {
		w := g.providerWindows(provider)[kind]
		if start := kind.StartOf(now); !start.Equal(w.Start) {
			w.Start = start
			w.Requests = 0
			w.Cost = 0
		}
	}
}

func (g *Governor) summariesLocked(provider string) []model.WindowSummary {
	limits := g.cfg.Limits(provider)
	out := make([]model.WindowSummary, 0, len(model.WindowKinds))
	for _, kind := range model.WindowKinds {
		w := g.providerWindows(provider)[kind]
		lim := limitsFor(limits, kind)
		s := model.WindowSummary{
			Provider:     provider,
			Kind:         kind,
			Start:        w.Start,
			Requests:     w.Requests,
			Cost:         w.Cost,
			RequestLimit: lim.MaxRequests,
			CostLimit:    lim.MaxCostUSD,
		}
		if lim.MaxCostUSD > 0 {
			s.CostRemaining = lim.MaxCostUSD - w.Cost
		}
		out = append(out, s)
	}
	return out
}

func limitsFor(pb config.ProviderBudget, kind model.WindowKind) config.WindowLimits {
	switch kind {
	case model.WindowDay:
		return pb.Day
	case model.WindowWeek:
		return pb.Week
	default:
		return pb.Month
	}
}
