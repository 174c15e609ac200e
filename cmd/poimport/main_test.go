package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"planvoyage/internal/poistore"
	"planvoyage/internal/poistore/sqlite"
)

func TestParseFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		args      []string
		wantErr   string
		wantField func(t *testing.T, cfg runConfig)
	}{
		{
			name: "defaults",
			args: []string{},
			wantField: func(t *testing.T, cfg runConfig) {
				if cfg.ConfigPath != "configs/poimport.json" {
					t.Fatalf("ConfigPath=%q", cfg.ConfigPath)
				}
				if cfg.OwnerID != 0 {
					t.Fatalf("OwnerID=%d, want 0", cfg.OwnerID)
				}
			},
		},
		{
			name: "positional_ids",
			args: []string{"-config", "c.json", "node/1", "way/2"},
			wantField: func(t *testing.T, cfg runConfig) {
				if len(cfg.Args) != 2 || cfg.Args[0] != "node/1" || cfg.Args[1] != "way/2" {
					t.Fatalf("Args=%v", cfg.Args)
				}
			},
		},
		{
			name:    "unknown_flag",
			args:    []string{"-nope"},
			wantErr: "flag provided but not defined",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := parseFlags(tc.args)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("parseFlags() err=%v, want contains %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFlags() err=%v, want nil", err)
			}
			if tc.wantField != nil {
				tc.wantField(t, cfg)
			}
		})
	}
}

func writeConfig(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "poimport.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRun_ConfigErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		args       func(t *testing.T) []string
		wantStderr string
	}{
		{
			name:       "missing_config_file",
			args:       func(t *testing.T) []string { return []string{"-config", "/does/not/exist.json"} },
			wantStderr: "open config",
		},
		{
			name: "invalid_config",
			args: func(t *testing.T) []string {
				return []string{"-config", writeConfig(t, `{"storage":{"kind":"oracle"}}`)}
			},
			wantStderr: "configuration is invalid",
		},
		{
			name: "nothing_to_import",
			args: func(t *testing.T) []string {
				return []string{"-config", writeConfig(t,
					`{"storage":{"kind":"sqlite","dsn":"file:x.db","table":"poi"}}`)}
			},
			wantStderr: "nothing to import",
		},
		{
			name: "bad_external_id",
			args: func(t *testing.T) []string {
				return []string{"-config", writeConfig(t,
					`{"storage":{"kind":"sqlite","dsn":"file:x.db","table":"poi"}}`), "-ids", "building/9"}
			},
			wantStderr: "unknown kind",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var out, errOut bytes.Buffer
			code := run(context.Background(), tc.args(t), deps{
				Stdout: &out,
				Stderr: &errOut,
			})
			if code != 2 {
				t.Fatalf("run()=%d, want 2; stderr=%s", code, errOut.String())
			}
			if !strings.Contains(errOut.String(), tc.wantStderr) {
				t.Fatalf("stderr=%q, want contains %q", errOut.String(), tc.wantStderr)
			}
		})
	}
}

func TestRun_ValidateOnly(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, `{"storage":{"kind":"sqlite","dsn":"file:x.db","table":"poi"}}`)

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"-config", cfgPath, "-validate"}, deps{
		Stdout: &out,
		Stderr: &errOut,
	})
	if code != 0 {
		t.Fatalf("run()=%d, want 0; stderr=%s", code, errOut.String())
	}
	if !strings.Contains(errOut.String(), "configuration is valid") {
		t.Fatalf("stderr=%q", errOut.String())
	}
}

// TestRun_ImportsFeatureFile drives the whole command against a real
// in-memory database and a prefetched feature file, then checks the JSONL
// output.
func TestRun_ImportsFeatureFile(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	// The command closes the store; closing the handle twice is harmless
	// but we keep a cleanup for early test failures.
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.Exec(`CREATE TABLE poi (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  external_id TEXT UNIQUE,
  name TEXT,
  latitude REAL,
  longitude REAL,
  owner_id INTEGER
);`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	dir := t.TempDir()
	featurePath := filepath.Join(dir, "features.json")
	features := `{"elements":[
		{"type":"node","id":11,"lat":48.1,"lon":11.5,"tags":{"name":"Café A"}},
		{"type":"node","id":12,"lat":48.2,"lon":11.6,"tags":{"name":"Café B"}}
	]}`
	if err := os.WriteFile(featurePath, []byte(features), 0o644); err != nil {
		t.Fatalf("write features: %v", err)
	}

	cfgPath := writeConfig(t, `{"storage":{"kind":"sqlite","dsn":"unused","table":"poi"}}`)

	var out, errOut bytes.Buffer
	code := run(context.Background(),
		[]string{"-config", cfgPath, "-file", featurePath, "-owner", "7"},
		deps{
			Stdout: &out,
			Stderr: &errOut,
			OpenStore: func(ctx context.Context, cfg poistore.Config) (poistore.Store, error) {
				return sqlite.NewFromDB(db), nil
			},
		})
	if code != 0 {
		t.Fatalf("run()=%d, want 0; stderr=%s", code, errOut.String())
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("stdout lines=%d, want 2; out=%s", len(lines), out.String())
	}
	for i, line := range lines {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("line %d not JSON: %v", i, err)
		}
		if rec["error"] != nil {
			t.Fatalf("line %d carries error: %v", i, rec["error"])
		}
		wantExt := fmt.Sprintf("node/%d", 11+i)
		if rec["external_id"] != wantExt {
			t.Fatalf("line %d external_id=%v, want %s", i, rec["external_id"], wantExt)
		}
		if rec["row_id"] == nil {
			t.Fatalf("line %d missing row_id", i)
		}
	}
}

// TestRun_FailedImportExitsOne verifies a store failure maps to exit code 1
// and a JSONL error record, not a crash.
func TestRun_FailedImportExitsOne(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	// No poi table: the probe yields an empty column set and the import is
	// rejected as invalid.

	dir := t.TempDir()
	featurePath := filepath.Join(dir, "f.json")
	if err := os.WriteFile(featurePath,
		[]byte(`[{"type":"node","id":1,"lat":1,"lon":2,"tags":{"name":"X"}}]`), 0o644); err != nil {
		t.Fatalf("write features: %v", err)
	}

	cfgPath := writeConfig(t, `{"storage":{"kind":"sqlite","dsn":"unused","table":"poi"}}`)

	var out, errOut bytes.Buffer
	code := run(context.Background(),
		[]string{"-config", cfgPath, "-file", featurePath},
		deps{
			Stdout: &out,
			Stderr: &errOut,
			OpenStore: func(ctx context.Context, cfg poistore.Config) (poistore.Store, error) {
				return sqlite.NewFromDB(db), nil
			},
		})
	if code != 1 {
		t.Fatalf("run()=%d, want 1; stdout=%s", code, out.String())
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out.String())), &rec); err != nil {
		t.Fatalf("stdout not JSONL: %v; out=%s", err, out.String())
	}
	if rec["error_kind"] != "invalid" {
		t.Fatalf("error_kind=%v, want invalid", rec["error_kind"])
	}
}
