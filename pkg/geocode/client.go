// Package geocode resolves free-text locations to coordinates via
// Nominatim, with a built-in table of major cities checked first.
package geocode

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
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://nominatim.openstreetmap.org"

// Client resolves a location string to coordinates.
type Client interface {
	Geocode(ctx context.Context, location string) (*Result, error)
}

// Result holds the geocoding output for a location.
type Result struct {
	Latitude  float64
	Longitude float64
	Source    string // "builtin" or "nominatim"
	Matched   bool
}

// Coords formats the result for the maps-search provider's ll parameter.
func (r *Result) Coords(zoom int) string {
	return fmt.Sprintf("@%g,%g,%dz", r.Latitude, r.Longitude, zoom)
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithBaseURL overrides the Nominatim endpoint.
func WithBaseURL(u string) Option {
	return func(g *geocoder) { g.baseURL = u }
}

// WithUserAgent sets the User-Agent header. Nominatim requires an
// identifying agent.
func WithUserAgent(ua string) Option {
	return func(g *geocoder) { g.userAgent = ua }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) { g.http = hc }
}

// WithRateLimit sets the requests-per-second rate limit.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) { g.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithCacheTTL sets how long results are memoized. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(g *geocoder) { g.cacheTTL = ttl }
}

type geocoder struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	cacheTTL  time.Duration
	cache     *memoCache
	now       func() time.Time
}

// NewClient creates a geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		baseURL:   defaultBaseURL,
		userAgent: "leadgen-cli/1.0",
		http:      &http.Client{Timeout: 10 * time.Second},
		// Nominatim usage policy: at most 1 request per second.
		limiter:  rate.NewLimiter(1, 1),
		cacheTTL: 30 * 24 * time.Hour,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.cache = newMemoCache(g.now)
	return g
}

// Geocode resolves a location. Unresolvable locations return a result
// with Matched=false, not an error; errors mean the lookup itself broke.
func (g *geocoder) Geocode(ctx context.Context, location string) (*Result, error) {
	key := normalizeLocation(location)
	if key == "" {
		return &Result{Matched: false}, nil
	}

	if coords, ok := builtinCities[key]; ok {
		return &Result{Latitude: coords[0], Longitude: coords[1], Source: "builtin", Matched: true}, nil
	}

	if g.cacheTTL > 0 {
		if r, ok := g.cache.get(key, g.cacheTTL); ok {
			return r, nil
		}
	}

	r, err := g.lookup(ctx, location)
	if err != nil {
		return nil, err
	}
	if g.cacheTTL > 0 {
		g.cache.put(key, r)
	}
	return r, nil
}

func (g *geocoder) lookup(ctx context.Context, location string) (*Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit wait")
	}

	q := url.Values{}
	q.Set("q", location)
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: create request")
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var places []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, eris.Wrap(err, "geocode: unmarshal response")
	}
	if len(places) == 0 {
		zap.L().Debug("geocode no match", zap.String("location", location))
		return &Result{Matched: false}, nil
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: parse latitude")
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: parse longitude")
	}
	return &Result{Latitude: lat, Longitude: lon, Source: "nominatim", Matched: true}, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
