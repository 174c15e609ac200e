package geocode

import (
	"strings"

	"golang.org/x/text/cases"
)

// countryCodes maps case-folded English country names to ISO 3166-1 alpha-2
// codes. The table covers the countries the application actually sees in
// imported data; CountryCode passes unknown names through unchanged rather
// than failing, so coverage gaps degrade to the raw name.
var countryCodes = map[string]string{
	"germany":        "DE",
	"deutschland":    "DE",
	"austria":        "AT",
	"switzerland":    "CH",
	"france":         "FR",
	"italy":          "IT",
	"spain":          "ES",
	"portugal":       "PT",
	"netherlands":    "NL",
	"belgium":        "BE",
	"luxembourg":     "LU",
	"denmark":        "DK",
	"sweden":         "SE",
	"norway":         "NO",
	"finland":        "FI",
	"iceland":        "IS",
	"united kingdom": "GB",
	"great britain":  "GB",
	"ireland":        "IE",
	"poland":         "PL",
	"czechia":        "CZ",
	"czech republic": "CZ",
	"slovakia":       "SK",
	"hungary":        "HU",
	"slovenia":       "SI",
	"croatia":        "HR",
	"greece":         "GR",
	"romania":        "RO",
	"bulgaria":       "BG",
	"united states":  "US",
	"usa":            "US",
	"canada":         "CA",
	"mexico":         "MX",
	"brazil":         "BR",
	"argentina":      "AR",
	"japan":          "JP",
	"china":          "CN",
	"south korea":    "KR",
	"india":          "IN",
	"australia":      "AU",
	"new zealand":    "NZ",
	"turkey":         "TR",
	"russia":         "RU",
	"ukraine":        "UA",
}

var countryFolder = cases.Fold()

// CountryCode normalizes a country name to its 2-letter code.
//
// Unrecognized names pass through as given (best effort, not a hard
// failure). Inputs that already look like a 2-letter code are uppercased.
func CountryCode(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if len(name) == 2 {
		return strings.ToUpper(name)
	}
	if code, ok := countryCodes[countryFolder.String(name)]; ok {
		return code
	}
	return name
}
