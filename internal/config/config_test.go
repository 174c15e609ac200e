package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validPipeline() Pipeline {
	return Pipeline{
		Job: "poimport",
		Storage: Storage{
			Kind:  "sqlite",
			DSN:   "file:poi.db",
			Table: "poi",
		},
		Fetch: Fetch{
			Mirrors:   []string{"https://overpass-api.de/api/interpreter"},
			UserAgent: "planvoyage/1.0",
		},
	}
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()

	if issues := Validate(validPipeline()); len(issues) != 0 {
		t.Fatalf("Validate() = %v, want no issues", issues)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	p := Pipeline{
		Storage: Storage{Kind: "oracle"},
		Fetch: Fetch{
			Mirrors: []string{"", "ftp://mirror.example"},
		},
		MaxBatch: -1,
	}

	issues := Validate(p)
	if !HasError(issues) {
		t.Fatalf("HasError() = false, want true; issues=%v", issues)
	}

	wantPaths := []string{
		"storage.kind",
		"storage.dsn",
		"storage.table",
		"fetch.mirrors[0]",
		"fetch.mirrors[1]",
		"max_batch",
	}
	for _, path := range wantPaths {
		found := false
		for _, iss := range issues {
			if iss.Path == path && iss.Severity == SeverityError {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("missing error for %s; issues=%v", path, issues)
		}
	}
}

func TestValidate_Warnings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(*Pipeline)
		wantPath string
	}{
		{
			name:     "no_mirrors",
			mutate:   func(p *Pipeline) { p.Fetch.Mirrors = nil },
			wantPath: "fetch.mirrors",
		},
		{
			name:     "no_user_agent",
			mutate:   func(p *Pipeline) { p.Fetch.UserAgent = "" },
			wantPath: "fetch.user_agent",
		},
		{
			name:     "missing_boundary_file",
			mutate:   func(p *Pipeline) { p.Geocode.BoundaryFile = "/does/not/exist.geojson" },
			wantPath: "geocode.boundary_file",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := validPipeline()
			tc.mutate(&p)

			issues := Validate(p)
			if HasError(issues) {
				t.Fatalf("warnings should not be errors; issues=%v", issues)
			}
			found := false
			for _, iss := range issues {
				if iss.Path == tc.wantPath && iss.Severity == SeverityWarning {
					found = true
				}
			}
			if !found {
				t.Fatalf("missing warning for %s; issues=%v", tc.wantPath, issues)
			}
		})
	}
}

func TestValidate_BoundaryFilePresent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "boundaries.geojson")
	if err := os.WriteFile(path, []byte(`{"type":"FeatureCollection","features":[]}`), 0o644); err != nil {
		t.Fatalf("write boundary file: %v", err)
	}

	p := validPipeline()
	p.Geocode.BoundaryFile = path
	if issues := Validate(p); len(issues) != 0 {
		t.Fatalf("Validate() = %v, want no issues", issues)
	}
}

func TestValidate_NominatimURLScheme(t *testing.T) {
	t.Parallel()

	p := validPipeline()
	p.Geocode.NominatimURL = "nominatim.example.org"

	issues := Validate(p)
	if !HasError(issues) {
		t.Fatalf("expected error for schemeless nominatim URL; issues=%v", issues)
	}
	if !strings.Contains(issues[0].Message, "http") {
		t.Fatalf("message should mention scheme: %v", issues[0])
	}
}

func TestExpandedDSN(t *testing.T) {
	t.Setenv("POI_DB_PASSWORD", "s3cret")

	s := Storage{DSN: "postgres://poi:$POI_DB_PASSWORD@db/planvoyage"}
	want := "postgres://poi:s3cret@db/planvoyage"
	if got := s.ExpandedDSN(); got != want {
		t.Fatalf("ExpandedDSN() = %q, want %q", got, want)
	}
}

func TestEffectiveMaxBatch(t *testing.T) {
	t.Parallel()

	if got := (Pipeline{}).EffectiveMaxBatch(); got != DefaultMaxBatch {
		t.Fatalf("EffectiveMaxBatch() = %d, want %d", got, DefaultMaxBatch)
	}
	if got := (Pipeline{MaxBatch: 7}).EffectiveMaxBatch(); got != 7 {
		t.Fatalf("EffectiveMaxBatch() = %d, want 7", got)
	}
}
