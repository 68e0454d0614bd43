// Package hunter is a client for the Hunter.io domain-search API.
package hunter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL = "https://api.hunter.io/v2"

	// DefaultCostPerSearch is the per-lookup price on the Starter plan.
	DefaultCostPerSearch = 0.049
)

// Client searches a domain for known email addresses.
type Client interface {
	DomainSearch(ctx context.Context, domain string, limit int) (*DomainSearchResult, error)
	CostPerSearch() float64
}

// Email is one address Hunter knows for the domain.
type Email struct {
	Value      string `json:"value"`
	Type       string `json:"type"`
	Confidence int    `json:"confidence"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Position   string `json:"position"`
}

// ContactName joins first and last name, empty when Hunter has neither.
func (e Email) ContactName() string {
	switch {
	case e.FirstName != "" && e.LastName != "":
		return e.FirstName + " " + e.LastName
	case e.FirstName != "":
		return e.FirstName
	default:
		return e.LastName
	}
}

// DomainSearchResult is the parsed payload of GET /domain-search.
type DomainSearchResult struct {
	Domain  string  `json:"domain"`
	Pattern string  `json:"pattern"`
	Emails  []Email `json:"emails"`
}

// APIError is a non-200 response from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hunter: unexpected status %d: %s", e.StatusCode, e.Body)
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

// WithCostPerSearch overrides the billed cost per lookup.
func WithCostPerSearch(cost float64) Option {
	return func(c *httpClient) { c.cost = cost }
}

type httpClient struct {
	apiKey  string
	baseURL string
	cost    float64
	http    *http.Client
}

// NewClient creates a Hunter.io API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		cost:    DefaultCostPerSearch,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) CostPerSearch() float64 {
	return c.cost
}

func (c *httpClient) DomainSearch(ctx context.Context, domain string, limit int) (*DomainSearchResult, error) {
	if domain == "" {
		return nil, eris.New("hunter: empty domain")
	}

	q := url.Values{}
	q.Set("domain", domain)
	q.Set("api_key", c.apiKey)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/domain-search?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "hunter: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "hunter: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "hunter: read response")
	}

	if resp.StatusCode != http.StatusOK {
		b := string(body)
		if len(b) > 200 {
			b = b[:200]
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: b}
	}

	var envelope struct {
		Data DomainSearchResult `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, eris.Wrap(err, "hunter: unmarshal response")
	}
	return &envelope.Data, nil
}
