// Package scrapingdog is a client for the ScrapingDog Google Maps
// search API. Every page request is billed, successful or not.
package scrapingdog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.scrapingdog.com/google_maps"

	// DefaultCostPerRequest is 5 credits at $0.00033 per credit.
	DefaultCostPerRequest = 0.00165

	// PageSize is the maximum number of records one page returns.
	PageSize = 20

	// MaxPages caps pagination depth; the API stops serving useful
	// results past offset 100.
	MaxPages = 6
)

// Client performs paginated maps searches.
type Client interface {
	SearchPage(ctx context.Context, req PageRequest) (*PageResponse, error)
	CostPerRequest() float64
}

// PageRequest identifies one page of a maps search. Set LL (from a
// geocoded location) when paginating past page 0; the API requires
// coordinates for deep pages.
type PageRequest struct {
	Query    string
	Page     int
	LL       string // "@lat,lng,12z"
	Location string // free-text fallback when no coordinates
}

// PageResponse is one parsed page of results.
type PageResponse struct {
	Places []Place
}

// APIError is a non-200 response from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("scrapingdog: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit sets the requests-per-second rate limit.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithCostPerRequest overrides the billed cost per page request.
func WithCostPerRequest(cost float64) Option {
	return func(c *httpClient) { c.cost = cost }
}

type httpClient struct {
	apiKey  string
	baseURL string
	cost    float64
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a ScrapingDog API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		cost:    DefaultCostPerRequest,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(10, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) CostPerRequest() float64 {
	return c.cost
}

func (c *httpClient) SearchPage(ctx context.Context, req PageRequest) (*PageResponse, error) {
	if req.Query == "" {
		return nil, eris.New("scrapingdog: empty query")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "scrapingdog: rate limit wait")
	}

	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("query", req.Query)
	q.Set("page", strconv.Itoa(req.Page))
	if req.LL != "" {
		q.Set("ll", req.LL)
	} else if req.Location != "" {
		q.Set("location", req.Location)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "scrapingdog: create request")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "scrapingdog: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "scrapingdog: read response")
	}

	if resp.StatusCode != http.StatusOK {
		b := string(body)
		if len(b) > 200 {
			b = b[:200]
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: b}
	}

	places, err := parseResults(body)
	if err != nil {
		return nil, err
	}
	return &PageResponse{Places: places}, nil
}
