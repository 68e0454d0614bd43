package geocode

import "strings"

// builtinCities short-circuits lookups for the metros most searches
// target, keyed by normalized location text.
var builtinCities = map[string][2]float64{
	"san francisco":             {37.7749, -122.4194},
	"san francisco, ca":         {37.7749, -122.4194},
	"san francisco, california": {37.7749, -122.4194},
	"new york":                  {40.7128, -74.0060},
	"new york, ny":              {40.7128, -74.0060},
	"new york city":             {40.7128, -74.0060},
	"los angeles":               {34.0522, -118.2437},
	"los angeles, ca":           {34.0522, -118.2437},
	"chicago":                   {41.8781, -87.6298},
	"chicago, il":               {41.8781, -87.6298},
	"houston":                   {29.7604, -95.3698},
	"houston, tx":               {29.7604, -95.3698},
	"phoenix":                   {33.4484, -112.0740},
	"phoenix, az":               {33.4484, -112.0740},
	"philadelphia":              {39.9526, -75.1652},
	"philadelphia, pa":          {39.9526, -75.1652},
	"miami":                     {25.7617, -80.1918},
	"miami, fl":                 {25.7617, -80.1918},
	"denver":                    {39.7392, -104.9903},
	"denver, co":                {39.7392, -104.9903},
	"seattle":                   {47.6062, -122.3321},
	"seattle, wa":               {47.6062, -122.3321},
	"austin":                    {30.2672, -97.7431},
	"austin, tx":                {30.2672, -97.7431},
	"dallas":                    {32.7767, -96.7970},
	"dallas, tx":                {32.7767, -96.7970},
	"san diego":                 {32.7157, -117.1611},
	"san diego, ca":             {32.7157, -117.1611},
	"san jose":                  {37.3382, -121.8863},
	"san jose, ca":              {37.3382, -121.8863},
}

func normalizeLocation(location string) string {
	return strings.ToLower(strings.TrimSpace(location))
}
