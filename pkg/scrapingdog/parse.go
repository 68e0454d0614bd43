package scrapingdog

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Place is one maps listing, normalized from the API's shifting field
// names. A place without a name is dropped; one without a place id is
// kept and identified downstream.
type Place struct {
	PlaceID      string
	Name         string
	Address      string
	Phone        string
	Website      string
	Rating       *float64
	ReviewsCount *int
	Categories   []string
	Hours        map[string]string
	Latitude     *float64
	Longitude    *float64
}

// resultKeys are the response keys the API has been seen using for the
// listing array, in checking order.
var resultKeys = []string{
	"search_results", "places", "listings", "businesses", "local_results", "organic_results",
}

func parseResults(body []byte) ([]Place, error) {
	// Some responses are a bare array.
	var rawList []json.RawMessage
	if err := json.Unmarshal(body, &rawList); err == nil {
		return parsePlaces(rawList), nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, eris.Wrap(err, "scrapingdog: unmarshal response")
	}
	for _, key := range resultKeys {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			continue
		}
		return parsePlaces(list), nil
	}
	// No recognizable list key: an empty page, not an error.
	return nil, nil
}

func parsePlaces(rawList []json.RawMessage) []Place {
	places := make([]Place, 0, len(rawList))
	for _, raw := range rawList {
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			continue
		}
		if p, ok := parsePlace(fields); ok {
			places = append(places, p)
		}
	}
	return places
}

func parsePlace(fields map[string]any) (Place, bool) {
	name := strings.TrimSpace(firstString(fields, "title", "name", "business_name"))
	if name == "" {
		return Place{}, false
	}

	p := Place{
		PlaceID: firstString(fields, "place_id", "id"),
		Name:    name,
		Address: strings.TrimSpace(firstString(fields, "address", "full_address", "location")),
		Phone:   strings.TrimSpace(firstString(fields, "phone", "phone_number")),
		Website: strings.TrimSpace(firstString(fields, "website", "url", "link")),
	}

	if r, ok := toFloat(fields["rating"]); ok {
		p.Rating = &r
	}
	if n, ok := toReviewCount(fields["reviews"]); ok {
		p.ReviewsCount = &n
	}
	p.Categories = parseCategories(fields)
	p.Hours = parseHours(fields["hours"])
	p.Latitude, p.Longitude = parseGPS(fields["gps"])
	return p, true
}

func firstString(fields map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := fields[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

var digitsRe = regexp.MustCompile(`\d+`)

// toReviewCount accepts numbers and strings like "123 reviews" or "1,234".
func toReviewCount(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case string:
		m := digitsRe.FindString(strings.ReplaceAll(t, ",", ""))
		if m == "" {
			return 0, false
		}
		n, err := strconv.Atoi(m)
		return n, err == nil
	}
	return 0, false
}

func parseCategories(fields map[string]any) []string {
	var cats []string
	for _, key := range []string{"type", "category", "categories", "business_type"} {
		switch t := fields[key].(type) {
		case string:
			if t != "" {
				cats = append(cats, t)
			}
		case []any:
			for _, item := range t {
				if s, ok := item.(string); ok && s != "" {
					cats = append(cats, s)
				}
			}
		}
	}
	return cats
}

func parseHours(v any) map[string]string {
	switch t := v.(type) {
	case map[string]any:
		hours := make(map[string]string, len(t))
		for day, val := range t {
			hours[day] = fmt.Sprint(val)
		}
		return hours
	case string:
		if t == "" {
			return nil
		}
		return map[string]string{"raw": t}
	}
	return nil
}

// parseGPS accepts {"latitude":..,"longitude":..}, {"lat":..,"lng":..},
// or a "lat,lng" string.
func parseGPS(v any) (*float64, *float64) {
	switch t := v.(type) {
	case map[string]any:
		lat, latOK := toFloat(coalesce(t["latitude"], t["lat"]))
		lng, lngOK := toFloat(coalesce(t["longitude"], t["lng"]))
		if latOK && lngOK {
			return &lat, &lng
		}
	case string:
		parts := strings.SplitN(t, ",", 2)
		if len(parts) != 2 {
			return nil, nil
		}
		lat, latErr := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lng, lngErr := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if latErr == nil && lngErr == nil {
			return &lat, &lng
		}
	}
	return nil, nil
}

func coalesce(vals ...any) any {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
