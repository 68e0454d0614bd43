package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadgrid/leadgen-cli/internal/budget"
	"github.com/leadgrid/leadgen-cli/internal/dedup"
	"github.com/leadgrid/leadgen-cli/internal/enrich"
	"github.com/leadgrid/leadgen-cli/internal/pipeline"
	"github.com/leadgrid/leadgen-cli/internal/search"
	"github.com/leadgrid/leadgen-cli/internal/store"
	"github.com/leadgrid/leadgen-cli/pkg/geocode"
	"github.com/leadgrid/leadgen-cli/pkg/hunter"
	"github.com/leadgrid/leadgen-cli/pkg/scrapingdog"
)

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initGovernor builds the cost governor with its counters seeded from
// the ledger.
func initGovernor(ctx context.Context, st store.Store) (*budget.Governor, error) {
	gov := budget.NewGovernor(st, cfg.Budget,
		budget.WithAlerter(budget.NewAlerter(cfg.Budget.WarnThreshold)))
	if err := gov.Load(ctx, search.ProviderName, enrich.StrategyFinder); err != nil {
		return nil, eris.Wrap(err, "load budget windows")
	}
	return gov, nil
}

// loadPolicy resolves the waterfall policy: the policy file when
// configured, else config values layered over the defaults. The paid
// finder tier only appears when Hunter is enabled with a key.
func loadPolicy() (enrich.Policy, error) {
	var policy enrich.Policy
	if cfg.Enrichment.PolicyFile != "" {
		p, err := enrich.LoadPolicy(cfg.Enrichment.PolicyFile)
		if err != nil {
			return policy, err
		}
		policy = p
	} else {
		policy = enrich.DefaultPolicy()
		policy.ConfidenceThreshold = cfg.Enrichment.ConfidenceThreshold
		if cfg.Enrichment.MaxEmails > 0 {
			policy.MaxEmails = cfg.Enrichment.MaxEmails
		}
		if cfg.Enrichment.AttemptTimeoutSecs > 0 {
			policy.AttemptTimeout = time.Duration(cfg.Enrichment.AttemptTimeoutSecs) * time.Second
		}
		if cfg.Enrichment.CacheTTLHours > 0 {
			policy.CacheTTL = time.Duration(cfg.Enrichment.CacheTTLHours) * time.Hour
		}
	}

	if !hunterEnabled() {
		order := policy.Order[:0:0]
		for _, name := range policy.Order {
			if name != enrich.StrategyFinder {
				order = append(order, name)
			}
		}
		policy.Order = order
		zap.L().Debug("paid finder tier disabled")
	}
	return policy, policy.Validate()
}

func hunterEnabled() bool {
	return cfg.Hunter.Enabled && cfg.Hunter.Key != ""
}

// initWaterfall wires the enrichment strategies under the policy.
func initWaterfall(st store.Store, gov *budget.Governor) (*enrich.Waterfall, error) {
	policy, err := loadPolicy()
	if err != nil {
		return nil, eris.Wrap(err, "load waterfall policy")
	}

	strategies := []enrich.Strategy{
		enrich.NewScrapeStrategy(),
		enrich.NewPatternStrategy(),
	}
	if hunterEnabled() {
		hc := hunter.NewClient(cfg.Hunter.Key,
			hunter.WithBaseURL(cfg.Hunter.BaseURL),
			hunter.WithCostPerSearch(cfg.Hunter.CostPerSearch))
		strategies = append(strategies, enrich.NewFinderStrategy(hc))
	}

	cache := enrich.NewCache(st, policy.CacheTTL)
	return enrich.NewWaterfall(policy, cache, gov, strategies)
}

// initOrchestrator wires the whole pipeline for run-style commands.
func initOrchestrator(ctx context.Context, st store.Store) (*pipeline.Orchestrator, error) {
	if cfg.ScrapingDog.Key == "" {
		return nil, eris.New("scrapingdog API key is required (LEADGEN_SCRAPINGDOG_KEY)")
	}

	gov, err := initGovernor(ctx, st)
	if err != nil {
		return nil, err
	}

	wf, err := initWaterfall(st, gov)
	if err != nil {
		return nil, err
	}

	sd := scrapingdog.NewClient(cfg.ScrapingDog.Key,
		scrapingdog.WithBaseURL(cfg.ScrapingDog.BaseURL),
		scrapingdog.WithRateLimit(cfg.ScrapingDog.RequestsPerSec),
		scrapingdog.WithCostPerRequest(cfg.ScrapingDog.CostPerRequest))

	geo := geocode.NewClient(
		geocode.WithBaseURL(cfg.Geocode.BaseURL),
		geocode.WithUserAgent(cfg.Geocode.UserAgent),
		geocode.WithCacheTTL(time.Duration(cfg.Geocode.CacheTTLHours)*time.Hour))

	provider := search.NewProvider(sd, geo, gov)

	return pipeline.New(st, provider, wf, dedup.New(st),
		pipeline.WithStrictBudget(cfg.Budget.Strict)), nil
}
