package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadgrid/leadgen-cli/internal/budget"
	"github.com/leadgrid/leadgen-cli/internal/model"
	"github.com/leadgrid/leadgen-cli/internal/resilience"
	"github.com/leadgrid/leadgen-cli/pkg/geocode"
	"github.com/leadgrid/leadgen-cli/pkg/scrapingdog"
)

// fakeSearchClient serves canned pages keyed by page index.
type fakeSearchClient struct {
	pages    map[int]*scrapingdog.PageResponse
	errs     map[int]error
	failures map[int]int // page -> number of errors before success
	requests []scrapingdog.PageRequest
}

func (f *fakeSearchClient) SearchPage(_ context.Context, req scrapingdog.PageRequest) (*scrapingdog.PageResponse, error) {
	f.requests = append(f.requests, req)
	if n := f.failures[req.Page]; n > 0 {
		f.failures[req.Page] = n - 1
		return nil, &scrapingdog.APIError{StatusCode: 503, Body: "upstream hiccup"}
	}
	if err := f.errs[req.Page]; err != nil {
		return nil, err
	}
	if resp, ok := f.pages[req.Page]; ok {
		return resp, nil
	}
	return &scrapingdog.PageResponse{}, nil
}

func (f *fakeSearchClient) CostPerRequest() float64 { return scrapingdog.DefaultCostPerRequest }

type fakeGeocoder struct {
	result *geocode.Result
	err    error
	calls  int
}

func (f *fakeGeocoder) Geocode(_ context.Context, _ string) (*geocode.Result, error) {
	f.calls++
	return f.result, f.err
}

// stubGovernor grants until denyAfter authorizations have been granted.
type stubGovernor struct {
	denyAfter int
	grants    int
	events    []*model.CostEvent
}

func (g *stubGovernor) Authorize(_ string, _ float64) budget.Decision {
	if g.denyAfter > 0 && g.grants >= g.denyAfter {
		return budget.Decision{Granted: false, Window: model.WindowDay}
	}
	g.grants++
	return budget.Decision{Granted: true, RemainingCost: -1, RemainingRequests: -1}
}

func (g *stubGovernor) Record(_ context.Context, ev *model.CostEvent) error {
	g.events = append(g.events, ev)
	return nil
}

func fullPage(page int) *scrapingdog.PageResponse {
	resp := &scrapingdog.PageResponse{}
	for i := 0; i < scrapingdog.PageSize; i++ {
		resp.Places = append(resp.Places, scrapingdog.Place{
			PlaceID: fmt.Sprintf("place-%d-%d", page, i),
			Name:    fmt.Sprintf("Biz %d-%d", page, i),
		})
	}
	return resp
}

func partialPage(page, n int) *scrapingdog.PageResponse {
	resp := &scrapingdog.PageResponse{}
	for i := 0; i < n; i++ {
		resp.Places = append(resp.Places, scrapingdog.Place{
			PlaceID: fmt.Sprintf("place-%d-%d", page, i),
			Name:    fmt.Sprintf("Biz %d-%d", page, i),
		})
	}
	return resp
}

func matchedGeo() *fakeGeocoder {
	return &fakeGeocoder{result: &geocode.Result{
		Latitude: 37.7749, Longitude: -122.4194, Source: "builtin", Matched: true,
	}}
}

func fastRetry() resilience.RetryPolicy {
	return resilience.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func collectPages(pages *[]Page) PageFunc {
	return func(_ context.Context, p Page) error {
		*pages = append(*pages, p)
		return nil
	}
}

func TestRunStopsOnPartialPage(t *testing.T) {
	client := &fakeSearchClient{pages: map[int]*scrapingdog.PageResponse{
		0: fullPage(0),
		1: partialPage(1, 7),
	}}
	gov := &stubGovernor{}
	p := NewProvider(client, matchedGeo(), gov, WithRetryPolicy(fastRetry()))

	var pages []Page
	sum, err := p.Run(context.Background(), Request{
		Query: "plumbers", Location: "San Francisco, CA", MaxResults: 100,
	}, collectPages(&pages))
	require.NoError(t, err)

	assert.Equal(t, 2, sum.PagesFetched)
	assert.Equal(t, 27, sum.Records)
	assert.InDelta(t, 2*scrapingdog.DefaultCostPerRequest, sum.CostUSD, 0.00001)
	assert.False(t, sum.Exhausted)

	require.Len(t, pages, 2)
	assert.Equal(t, 0, pages[0].Index)
	assert.Len(t, pages[0].Records, 20)
	assert.Len(t, pages[1].Records, 7)

	// Geocoded coordinates flow into every page request.
	for _, req := range client.requests {
		assert.Equal(t, "@37.7749,-122.4194,12z", req.LL)
	}

	rec := pages[0].Records[0]
	assert.Equal(t, "place-0-0", rec.PlaceID)
	assert.Equal(t, "plumbers | San Francisco, CA", rec.SourceSearch)
	assert.NotEmpty(t, rec.ID)
}

func TestRunHonorsMaxResults(t *testing.T) {
	client := &fakeSearchClient{pages: map[int]*scrapingdog.PageResponse{
		0: fullPage(0),
		1: fullPage(1),
	}}
	p := NewProvider(client, matchedGeo(), &stubGovernor{}, WithRetryPolicy(fastRetry()))

	var pages []Page
	sum, err := p.Run(context.Background(), Request{
		Query: "plumbers", MaxResults: 25,
	}, collectPages(&pages))
	require.NoError(t, err)

	assert.Equal(t, 2, sum.PagesFetched)
	assert.Equal(t, 25, sum.Records)
	require.Len(t, pages, 2)
	assert.Len(t, pages[1].Records, 5)
}

func TestRunBudgetDenialStopsCleanly(t *testing.T) {
	client := &fakeSearchClient{pages: map[int]*scrapingdog.PageResponse{
		0: fullPage(0), 1: fullPage(1), 2: fullPage(2),
	}}
	gov := &stubGovernor{denyAfter: 2}
	p := NewProvider(client, matchedGeo(), gov, WithRetryPolicy(fastRetry()))

	var pages []Page
	sum, err := p.Run(context.Background(), Request{
		Query: "plumbers", MaxResults: 100,
	}, collectPages(&pages))

	require.Error(t, err)
	assert.ErrorIs(t, err, budget.ErrBudgetExhausted)
	assert.True(t, sum.Exhausted)

	// The two paid-for pages were delivered before the denial.
	assert.Equal(t, 2, sum.PagesFetched)
	assert.Len(t, pages, 2)
	assert.Len(t, gov.events, 2)
}

func TestRunRetriesTransientFailures(t *testing.T) {
	client := &fakeSearchClient{
		pages:    map[int]*scrapingdog.PageResponse{0: partialPage(0, 3)},
		failures: map[int]int{0: 2},
	}
	gov := &stubGovernor{}
	p := NewProvider(client, matchedGeo(), gov, WithRetryPolicy(fastRetry()))

	var pages []Page
	sum, err := p.Run(context.Background(), Request{Query: "plumbers"}, collectPages(&pages))
	require.NoError(t, err)

	assert.Equal(t, 1, sum.PagesFetched)
	assert.Len(t, client.requests, 3, "two transient failures then success")
	// Retries within one page are one authorization and one ledger row.
	require.Len(t, gov.events, 1)
	assert.True(t, gov.events[0].Success)
}

func TestRunRecordsFailedPage(t *testing.T) {
	client := &fakeSearchClient{errs: map[int]error{
		0: &scrapingdog.APIError{StatusCode: 400, Body: "bad query"},
	}}
	gov := &stubGovernor{}
	p := NewProvider(client, matchedGeo(), gov, WithRetryPolicy(fastRetry()))

	_, err := p.Run(context.Background(), Request{Query: "plumbers"}, collectPages(&[]Page{}))
	require.Error(t, err)

	assert.Len(t, client.requests, 1, "4xx is not retried")
	require.Len(t, gov.events, 1)
	assert.False(t, gov.events[0].Success)
	assert.Zero(t, gov.events[0].Cost)
}

func TestRunAuthErrorIsFatal(t *testing.T) {
	client := &fakeSearchClient{errs: map[int]error{
		0: &scrapingdog.APIError{StatusCode: 401, Body: "bad key"},
	}}
	p := NewProvider(client, matchedGeo(), &stubGovernor{}, WithRetryPolicy(fastRetry()))

	_, err := p.Run(context.Background(), Request{Query: "plumbers"}, collectPages(&[]Page{}))
	require.Error(t, err)
	assert.True(t, resilience.IsAuth(err))
	assert.Len(t, client.requests, 1)
}

func TestRunGeocodeFailureFallsBackToLocation(t *testing.T) {
	client := &fakeSearchClient{pages: map[int]*scrapingdog.PageResponse{0: partialPage(0, 2)}}
	geo := &fakeGeocoder{err: fmt.Errorf("nominatim down")}
	p := NewProvider(client, geo, &stubGovernor{}, WithRetryPolicy(fastRetry()))

	_, err := p.Run(context.Background(), Request{
		Query: "plumbers", Location: "Nowhere, ZZ",
	}, collectPages(&[]Page{}))
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	assert.Empty(t, client.requests[0].LL)
	assert.Equal(t, "Nowhere, ZZ", client.requests[0].Location)
}

func TestRunStartPageSkipsEarlierPages(t *testing.T) {
	client := &fakeSearchClient{pages: map[int]*scrapingdog.PageResponse{
		2: partialPage(2, 4),
	}}
	p := NewProvider(client, matchedGeo(), &stubGovernor{}, WithRetryPolicy(fastRetry()))

	var pages []Page
	sum, err := p.Run(context.Background(), Request{
		Query: "plumbers", MaxResults: 100, StartPage: 2,
	}, collectPages(&pages))
	require.NoError(t, err)

	assert.Equal(t, 1, sum.PagesFetched)
	require.Len(t, pages, 1)
	assert.Equal(t, 2, pages[0].Index)
}

func TestRunEmptyQuery(t *testing.T) {
	p := NewProvider(&fakeSearchClient{}, matchedGeo(), &stubGovernor{})
	_, err := p.Run(context.Background(), Request{}, collectPages(&[]Page{}))
	assert.True(t, resilience.IsValidation(err))
}

func TestRunNormalizesPhoneNumbers(t *testing.T) {
	resp := &scrapingdog.PageResponse{Places: []scrapingdog.Place{
		{PlaceID: "p-1", Name: "Biz 1", Phone: "415-555-0123"},
		{PlaceID: "p-2", Name: "Biz 2", Phone: "+1 (415) 555-0199"},
		{PlaceID: "p-3", Name: "Biz 3"},
	}}
	client := &fakeSearchClient{pages: map[int]*scrapingdog.PageResponse{0: resp}}
	p := NewProvider(client, matchedGeo(), &stubGovernor{}, WithRetryPolicy(fastRetry()))

	var pages []Page
	_, err := p.Run(context.Background(), Request{Query: "plumbers", MaxResults: 10},
		collectPages(&pages))
	require.NoError(t, err)

	require.Len(t, pages, 1)
	require.Len(t, pages[0].Records, 3)
	assert.Equal(t, "(415) 555-0123", pages[0].Records[0].Phone)
	assert.Equal(t, "(415) 555-0199", pages[0].Records[1].Phone)
	assert.Empty(t, pages[0].Records[2].Phone)
}

func TestRunPageFnErrorStops(t *testing.T) {
	client := &fakeSearchClient{pages: map[int]*scrapingdog.PageResponse{
		0: fullPage(0), 1: fullPage(1),
	}}
	p := NewProvider(client, matchedGeo(), &stubGovernor{}, WithRetryPolicy(fastRetry()))

	_, err := p.Run(context.Background(), Request{Query: "plumbers", MaxResults: 100},
		func(context.Context, Page) error { return fmt.Errorf("disk full") })
	require.Error(t, err)
	assert.Len(t, client.requests, 1)
}

func TestRunMaxPagesCap(t *testing.T) {
	client := &fakeSearchClient{pages: map[int]*scrapingdog.PageResponse{}}
	for i := 0; i < 10; i++ {
		client.pages[i] = fullPage(i)
	}
	p := NewProvider(client, matchedGeo(), &stubGovernor{}, WithRetryPolicy(fastRetry()))

	var pages []Page
	sum, err := p.Run(context.Background(), Request{
		Query: "plumbers", MaxResults: 1000,
	}, collectPages(&pages))
	require.NoError(t, err)

	assert.Equal(t, scrapingdog.MaxPages, sum.PagesFetched)
	assert.Equal(t, scrapingdog.MaxPages*scrapingdog.PageSize, sum.Records)
}
