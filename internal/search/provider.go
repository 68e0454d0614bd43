// Package search turns a query and location into pages of business
// records, spending provider budget one page at a time.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadgrid/leadgen-cli/internal/budget"
	"github.com/leadgrid/leadgen-cli/internal/model"
	"github.com/leadgrid/leadgen-cli/internal/resilience"
	"github.com/leadgrid/leadgen-cli/pkg/geocode"
	"github.com/leadgrid/leadgen-cli/pkg/scrapingdog"
)

// ProviderName keys budget windows and cost-ledger rows for maps search.
const ProviderName = "scrapingdog"

// mapZoom is the zoom level baked into the ll parameter.
const mapZoom = 12

// Authorizer is the budget surface the provider needs. Satisfied by
// *budget.Governor.
type Authorizer interface {
	Authorize(provider string, estCost float64) budget.Decision
	Record(ctx context.Context, ev *model.CostEvent) error
}

// Request describes one search run.
type Request struct {
	Query      string
	Location   string
	MaxResults int
	// StartPage lets a resumed job skip pages it already processed.
	StartPage int
}

// Page is one fetched page of converted records.
type Page struct {
	Index   int
	Records []model.BusinessRecord
}

// PageFunc consumes one page. Returning an error stops the run; the
// page it rejected counts as unprocessed.
type PageFunc func(ctx context.Context, page Page) error

// Summary reports what a run fetched and spent.
type Summary struct {
	PagesFetched int
	Records      int
	CostUSD      float64
	// Exhausted is set when the run stopped early on a budget denial.
	Exhausted bool
}

// Provider pages through maps-search results, authorizing every page
// against the budget before it is fetched and recording the spend after.
type Provider struct {
	client scrapingdog.Client
	geo    geocode.Client
	gov    Authorizer
	retry  resilience.RetryPolicy
	now    func() time.Time
}

// ProviderOption customizes a Provider.
type ProviderOption func(*Provider)

// WithRetryPolicy overrides the transient-failure retry policy.
func WithRetryPolicy(p resilience.RetryPolicy) ProviderOption {
	return func(pr *Provider) { pr.retry = p }
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) ProviderOption {
	return func(pr *Provider) { pr.now = now }
}

// NewProvider creates a search Provider.
func NewProvider(client scrapingdog.Client, geo geocode.Client, gov Authorizer, opts ...ProviderOption) *Provider {
	p := &Provider{
		client: client,
		geo:    geo,
		gov:    gov,
		retry:  resilience.DefaultRetryPolicy(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run fetches pages until maxResults is met, a partial page signals the
// end of results, the page cap is hit, or the budget denies the next
// page. Each full page reaches pageFn before the next is authorized, so
// a mid-run stop never loses paid-for records. A budget denial is not
// an error by itself: the summary has Exhausted set and the returned
// error wraps budget.ErrBudgetExhausted so callers can pick strict or
// degraded handling.
func (p *Provider) Run(ctx context.Context, req Request, pageFn PageFunc) (*Summary, error) {
	if req.Query == "" {
		return nil, &resilience.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if req.MaxResults <= 0 {
		req.MaxResults = scrapingdog.PageSize
	}
	if req.StartPage < 0 {
		req.StartPage = 0
	}

	ll := p.resolveLL(ctx, req.Location)

	sum := &Summary{}
	remaining := req.MaxResults

	for page := req.StartPage; page < scrapingdog.MaxPages && remaining > 0; page++ {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		cost := p.client.CostPerRequest()
		dec := p.gov.Authorize(ProviderName, cost)
		if !dec.Granted {
			sum.Exhausted = true
			return sum, dec.Err(ProviderName)
		}

		resp, err := p.fetchPage(ctx, req, page, ll)
		ev := &model.CostEvent{
			Provider:  ProviderName,
			Endpoint:  "search",
			Success:   err == nil,
			Timestamp: p.now().UTC(),
		}
		if err == nil {
			ev.Cost = cost
		} else {
			ev.ErrorMessage = err.Error()
		}
		if recErr := p.gov.Record(ctx, ev); recErr != nil {
			return sum, eris.Wrap(recErr, "search: record cost")
		}
		if err != nil {
			return sum, eris.Wrapf(err, "search: page %d", page)
		}

		sum.PagesFetched++
		sum.CostUSD += cost

		records := p.convert(resp.Places, req, remaining)
		sum.Records += len(records)
		remaining -= len(records)

		if err := pageFn(ctx, Page{Index: page, Records: records}); err != nil {
			return sum, eris.Wrapf(err, "search: consume page %d", page)
		}

		// A short page means the API has no more results.
		if len(resp.Places) < scrapingdog.PageSize {
			break
		}
	}

	return sum, nil
}

// resolveLL geocodes the location into the ll parameter. Geocoding
// failures degrade to the free-text location; deep pages may be less
// precise but the run still works.
func (p *Provider) resolveLL(ctx context.Context, location string) string {
	if location == "" {
		return ""
	}
	res, err := p.geo.Geocode(ctx, location)
	if err != nil {
		zap.L().Warn("geocoding failed, falling back to location text",
			zap.String("location", location), zap.Error(err))
		return ""
	}
	if !res.Matched {
		zap.L().Debug("location not geocodable", zap.String("location", location))
		return ""
	}
	return res.Coords(mapZoom)
}

// fetchPage fetches one page, retrying transient upstream failures.
func (p *Provider) fetchPage(ctx context.Context, req Request, page int, ll string) (*scrapingdog.PageResponse, error) {
	return resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*scrapingdog.PageResponse, error) {
		resp, err := p.client.SearchPage(ctx, scrapingdog.PageRequest{
			Query:    req.Query,
			Page:     page,
			LL:       ll,
			Location: req.Location,
		})
		if err != nil {
			return nil, classify(err)
		}
		return resp, nil
	})
}

// classify maps provider errors onto the retry taxonomy.
func classify(err error) error {
	var apiErr *scrapingdog.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return resilience.NewAuthError(ProviderName, err)
		case resilience.IsTransientHTTPStatus(apiErr.StatusCode):
			return resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return err
	}
	// Network-level failures are worth retrying.
	return resilience.NewTransientError(err, 0)
}

// convert maps provider places onto business records, capped at limit.
func (p *Provider) convert(places []scrapingdog.Place, req Request, limit int) []model.BusinessRecord {
	source := req.Query
	if req.Location != "" {
		source = fmt.Sprintf("%s | %s", req.Query, req.Location)
	}
	now := p.now().UTC()

	out := make([]model.BusinessRecord, 0, len(places))
	for _, pl := range places {
		if len(out) >= limit {
			break
		}
		out = append(out, model.BusinessRecord{
			ID:           uuid.NewString(),
			PlaceID:      pl.PlaceID,
			Name:         pl.Name,
			Address:      pl.Address,
			Phone:        model.NormalizePhone(pl.Phone),
			Website:      pl.Website,
			Rating:       pl.Rating,
			ReviewsCount: pl.ReviewsCount,
			Categories:   pl.Categories,
			Hours:        pl.Hours,
			Latitude:     pl.Latitude,
			Longitude:    pl.Longitude,
			SourceSearch: source,
			CreatedAt:    now,
		})
	}
	return out
}
