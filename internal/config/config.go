// Package config defines the JSON pipeline configuration and its validation.
//
// Commands load a Pipeline document from a flag-selected path and run
// Validate before doing anything with it. Validation collects every problem
// it can find instead of failing on the first one, so an operator fixes a
// config in one round trip.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Pipeline is the top-level configuration document.
type Pipeline struct {
	// Job names the run for metrics tagging ("job:<name>").
	Job string `json:"job,omitempty"`

	Storage Storage `json:"storage"`
	Fetch   Fetch   `json:"fetch"`
	Geocode Geocode `json:"geocode"`

	// MaxBatch bounds how many ids one batch invocation may import.
	// Zero means the default (100).
	MaxBatch int `json:"max_batch,omitempty"`

	// EnrichWebsite enables description enrichment from a mapped website
	// field.
	EnrichWebsite bool `json:"enrich_website,omitempty"`
}

// Storage selects the row-store backend and target table.
type Storage struct {
	// Kind is a registered poistore backend name: "postgres", "sqlite",
	// "mssql".
	Kind string `json:"kind"`

	// DSN is the backend connection string. Environment variables are
	// expanded (e.g. "postgres://$PGUSER:$PGPASSWORD@db/planvoyage").
	DSN string `json:"dsn"`

	// Table is the POI table name, optionally schema-qualified.
	Table string `json:"table"`
}

// Fetch configures the mirror-fallback fetcher.
type Fetch struct {
	// Mirrors are Overpass API base URLs, tried strictly in order.
	Mirrors []string `json:"mirrors"`

	// UserAgent is sent on every request. Public Overpass and Nominatim
	// instances require an identifying agent.
	UserAgent string `json:"user_agent,omitempty"`
}

// Geocode configures the geocode resolver.
type Geocode struct {
	// BoundaryFile is an optional path to a GeoJSON FeatureCollection of
	// administrative polygons for local resolution.
	BoundaryFile string `json:"boundary_file,omitempty"`

	// NominatimURL is the base URL of a Nominatim-style reverse geocoder
	// used when local resolution comes up empty. Empty disables the
	// fallback.
	NominatimURL string `json:"nominatim_url,omitempty"`
}

// DefaultMaxBatch applies when Pipeline.MaxBatch is zero.
const DefaultMaxBatch = 100

// Severity levels for validation issues.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Issue is one validation finding.
type Issue struct {
	Severity string
	Path     string
	Message  string
}

// ExpandedDSN returns the DSN with environment variables expanded.
func (s Storage) ExpandedDSN() string {
	return os.ExpandEnv(s.DSN)
}

// EffectiveMaxBatch returns MaxBatch or the default when unset.
func (p Pipeline) EffectiveMaxBatch() int {
	if p.MaxBatch > 0 {
		return p.MaxBatch
	}
	return DefaultMaxBatch
}

// Validate checks a Pipeline document and returns every issue found.
//
// Edge cases:
//   - Returns nil when the document is fully valid.
//   - Issues with SeverityWarning do not make the config unusable; commands
//     print them and continue.
func Validate(p Pipeline) []Issue {
	var issues []Issue

	addErr := func(path, format string, a ...any) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, a...)})
	}
	addWarn := func(path, format string, a ...any) {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	switch p.Storage.Kind {
	case "":
		addErr("storage.kind", "missing backend kind")
	case "postgres", "sqlite", "mssql":
	default:
		addErr("storage.kind", "unknown backend %q (want postgres, sqlite, or mssql)", p.Storage.Kind)
	}
	if strings.TrimSpace(p.Storage.DSN) == "" {
		addErr("storage.dsn", "missing connection string")
	}
	if strings.TrimSpace(p.Storage.Table) == "" {
		addErr("storage.table", "missing table name")
	}

	if len(p.Fetch.Mirrors) == 0 {
		addWarn("fetch.mirrors", "no mirrors configured; only prefetched features can be imported")
	}
	for i, m := range p.Fetch.Mirrors {
		m = strings.TrimSpace(m)
		if m == "" {
			addErr(fmt.Sprintf("fetch.mirrors[%d]", i), "empty mirror URL")
			continue
		}
		if !strings.HasPrefix(m, "http://") && !strings.HasPrefix(m, "https://") {
			addErr(fmt.Sprintf("fetch.mirrors[%d]", i), "mirror URL %q must start with http:// or https://", m)
		}
	}
	if len(p.Fetch.Mirrors) > 0 && strings.TrimSpace(p.Fetch.UserAgent) == "" {
		addWarn("fetch.user_agent", "no user agent set; public mirrors may reject anonymous clients")
	}

	if p.Geocode.NominatimURL != "" &&
		!strings.HasPrefix(p.Geocode.NominatimURL, "http://") &&
		!strings.HasPrefix(p.Geocode.NominatimURL, "https://") {
		addErr("geocode.nominatim_url", "URL %q must start with http:// or https://", p.Geocode.NominatimURL)
	}
	if p.Geocode.BoundaryFile != "" {
		if _, err := os.Stat(p.Geocode.BoundaryFile); err != nil {
			addWarn("geocode.boundary_file", "cannot stat %q: %v", p.Geocode.BoundaryFile, err)
		}
	}

	if p.MaxBatch < 0 {
		addErr("max_batch", "must be >= 0, got %d", p.MaxBatch)
	}

	return issues
}

// HasError reports whether any issue is severity error.
func HasError(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}
