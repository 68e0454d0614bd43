package enrich

import (
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/leadgrid/leadgen-cli/internal/model"
)

// contactPaths are tried after the homepage, most likely first. The
// scraper stops as soon as any page yields emails.
var contactPaths = []string{"/contact", "/contact-us", "/about", "/team"}

const (
	maxContactPages = 3
	maxPageBytes    = 512 * 1024
	scrapeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

// ScrapeStrategy fetches a business's website and pulls emails out of
// mailto links and page text. Free, no API calls.
type ScrapeStrategy struct {
	client *http.Client
}

// NewScrapeStrategy creates a ScrapeStrategy with sensible defaults.
func NewScrapeStrategy() *ScrapeStrategy {
	return &ScrapeStrategy{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

func (s *ScrapeStrategy) Name() string          { return StrategyScrape }
func (s *ScrapeStrategy) Billable() bool        { return false }
func (s *ScrapeStrategy) CostPerQuery() float64 { return 0 }

// Attempt scrapes the homepage, then up to maxContactPages contact-ish
// paths, until one of them yields at least one email.
func (s *ScrapeStrategy) Attempt(ctx context.Context, b *model.BusinessRecord) (*Attempt, error) {
	if b.Website == "" {
		return &Attempt{}, nil
	}
	base := strings.TrimRight(b.Website, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	urls := []string{base}
	for i, p := range contactPaths {
		if i >= maxContactPages {
			break
		}
		urls = append(urls, base+p)
	}

	domain := b.Domain()
	var fetched int
	var lastErr error
	for _, u := range urls {
		doc, err := s.fetch(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		fetched++
		att := extractFromPage(doc, domain)
		if len(att.Emails) > 0 {
			return att, nil
		}
	}
	// A missing /contact page after a good homepage is not a failure.
	if fetched == 0 && lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all pages failed")
	}
	return &Attempt{}, nil
}

// fetch gets a page and parses it, decoding non-UTF-8 charsets via the
// Content-Type header when present.
func (s *ScrapeStrategy) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: create request")
	}
	req.Header.Set("User-Agent", scrapeUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("scrape: status %d for %s", resp.StatusCode, pageURL)
	}

	body := io.Reader(io.LimitReader(resp.Body, maxPageBytes))
	if name := charsetFrom(resp.Header.Get("Content-Type")); name != "" && !strings.EqualFold(name, "utf-8") {
		if enc, err := htmlindex.Get(name); err == nil {
			body = transform.NewReader(body, enc.NewDecoder())
		}
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: parse html")
	}
	return doc, nil
}

var charsetRe = regexp.MustCompile(`(?i)charset=([\w-]+)`)

func charsetFrom(contentType string) string {
	m := charsetRe.FindStringSubmatch(contentType)
	if len(m) > 1 {
		return m[1]
	}
	return ""
}

// extractFromPage pulls emails from mailto links first (highest signal),
// then from visible text, and looks for a contact name near the top of
// the page.
func extractFromPage(doc *goquery.Document, domain string) *Attempt {
	seen := map[string]bool{}
	var emails []model.EmailMatch

	add := func(raw string) {
		e := CleanEmail(raw)
		if e == "" || !ValidEmail(e) || seen[e] {
			return
		}
		seen[e] = true
		emails = append(emails, model.EmailMatch{
			Address:    e,
			Source:     StrategyScrape,
			Confidence: ScoreEmail(e, domain, StrategyScrape),
		})
	}

	doc.Find(`a[href^="mailto:"]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		add(addr)
	})

	text := doc.Text()
	for _, e := range ExtractEmails(text) {
		add(e)
	}

	return &Attempt{Emails: emails, ContactName: extractContactName(doc, text)}
}

var contactNameSelectors = []string{
	".contact-name", ".team-member h3", ".team-member .name",
	".staff-name", ".owner-name",
}

var contactNameRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)contact:\s*([A-Z][a-z]+ [A-Z][a-z]+)`),
	regexp.MustCompile(`(?i)(?:manager|owner|director):\s*([A-Z][a-z]+ [A-Z][a-z]+)`),
}

// extractContactName tries markup selectors first, then labelled
// "Contact: Jane Doe" patterns in text. Best effort.
func extractContactName(doc *goquery.Document, text string) string {
	for _, sel := range contactNameSelectors {
		if name := strings.TrimSpace(doc.Find(sel).First().Text()); name != "" && len(name) < 60 {
			return name
		}
	}
	for _, re := range contactNameRes {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
