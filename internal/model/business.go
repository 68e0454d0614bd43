package model

import (
	"net/url"
	"strings"
	"time"
)

// MaxEmailsPerBusiness caps how many accepted emails a record may carry.
const MaxEmailsPerBusiness = 3

// BusinessRecord is a business listing pulled from the maps-search provider.
// Identity is the provider-assigned place id; re-importing the same place
// updates the existing record rather than creating a duplicate.
type BusinessRecord struct {
	ID           string            `json:"id"`
	PlaceID      string            `json:"place_id"`
	Name         string            `json:"name"`
	Address      string            `json:"address"`
	Phone        string            `json:"phone,omitempty"`
	Website      string            `json:"website,omitempty"`
	Rating       *float64          `json:"rating,omitempty"`
	ReviewsCount *int              `json:"reviews_count,omitempty"`
	Categories   []string          `json:"categories,omitempty"`
	Hours        map[string]string `json:"hours,omitempty"`
	Latitude     *float64          `json:"latitude,omitempty"`
	Longitude    *float64          `json:"longitude,omitempty"`
	SourceSearch string            `json:"source_search"`
	CreatedAt    time.Time         `json:"created_at"`

	// Enrichment fields, written by the waterfall.
	Emails           []EmailMatch `json:"emails,omitempty"`
	ContactName      string       `json:"contact_name,omitempty"`
	EnrichedAt       *time.Time   `json:"enriched_at,omitempty"`
	EnrichmentFailed bool         `json:"enrichment_failed,omitempty"`
}

// EmailMatch is one accepted email with its confidence and source strategy.
type EmailMatch struct {
	Address    string  `json:"address"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// EnrichmentResult is the waterfall outcome for one business. At most one
// current result exists per business; latest wins.
type EnrichmentResult struct {
	PlaceID     string       `json:"place_id"`
	Emails      []EmailMatch `json:"emails"`
	ContactName string       `json:"contact_name,omitempty"`
	Source      string       `json:"source,omitempty"`
	Failed      bool         `json:"failed"`
	EnrichedAt  time.Time    `json:"enriched_at"`
}

// Best returns the highest-confidence email, or nil when the result is empty.
func (r *EnrichmentResult) Best() *EmailMatch {
	if len(r.Emails) == 0 {
		return nil
	}
	best := &r.Emails[0]
	for i := 1; i < len(r.Emails); i++ {
		if r.Emails[i].Confidence > best.Confidence {
			best = &r.Emails[i]
		}
	}
	return best
}

// Domain returns the registrable host of the business website, stripped of
// scheme and leading www. Empty when no usable website is present.
func (b *BusinessRecord) Domain() string {
	site := strings.TrimSpace(b.Website)
	if site == "" {
		return ""
	}
	if !strings.Contains(site, "://") {
		site = "https://" + site
	}
	u, err := url.Parse(site)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// CacheKey is the identity used by the enrichment cache: the website domain
// when available (enrichment providers key on domains), else the place id.
func (b *BusinessRecord) CacheKey() string {
	if d := b.Domain(); d != "" {
		return d
	}
	return b.PlaceID
}
