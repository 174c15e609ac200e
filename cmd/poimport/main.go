// Command poimport imports points of interest into the POI table.
//
// Inputs are external feature ids ("node/123", "way/456") given as -ids or
// positional arguments, or a JSON file of prefetched Overpass elements given
// as -file (for offline re-import). Each import writes one JSONL record to
// stdout; operational messages go to stderr.
//
// Exit codes:
//   - 0: every requested import succeeded.
//   - 1: at least one import failed.
//   - 2: configuration or initialization error.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"planvoyage/internal/config"
	"planvoyage/internal/geocode"
	"planvoyage/internal/metrics"
	"planvoyage/internal/metrics/datadog"
	"planvoyage/internal/overpass"
	"planvoyage/internal/pipeline"
	"planvoyage/internal/poistore"
	"planvoyage/internal/webmeta"

	// register all backends with the poistore factory.
	// config selects which to use but we need to build in support for all of them.
	_ "planvoyage/internal/poistore/all"
)

// logRecord is emitted as JSONL to stdout for each import.
//
// This output is intended for machine parsing. Additive changes are safe;
// renames/removals are breaking changes for downstream log consumers.
type logRecord struct {
	Timestamp  string   `json:"ts"`
	ExternalID string   `json:"external_id,omitempty"`
	RowID      int64    `json:"row_id,omitempty"`
	Created    bool     `json:"created,omitempty"`
	Endpoint   string   `json:"endpoint,omitempty"`
	DurationMs int64    `json:"duration_ms"`
	Columns    []string `json:"columns,omitempty"`
	Error      string   `json:"error,omitempty"`
	ErrorKind  string   `json:"error_kind,omitempty"`
}

// backendCloser is the minimal interface used by this command to manage a
// metrics backend.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are external seams for testability.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	OpenStore      func(ctx context.Context, cfg poistore.Config) (poistore.Store, error)
	BackendFactory func(ctx context.Context, jobName string, tags []string) (backendCloser, error)
	Now            func() time.Time
}

// runConfig holds the parsed flags for a run.
type runConfig struct {
	ConfigPath     string
	IDsCSV         string
	File           string
	OwnerID        int64
	MetricsBackend string
	TagsCSV        string
	Validate       bool
	Verbose        bool

	Args []string
}

// main is intentionally small: it wires real dependencies and exits with a
// code.
func main() {
	code := run(context.Background(), os.Args[1:], deps{
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		OpenStore: poistore.New,
		BackendFactory: func(ctx context.Context, jobName string, tags []string) (backendCloser, error) {
			return datadog.NewBackend(ctx, datadog.Options{JobName: jobName, Tags: tags})
		},
		Now: time.Now,
	})
	os.Exit(code)
}

func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.OpenStore == nil {
		d.OpenStore = poistore.New
	}

	cfg, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	p, code := loadPipelineConfig(cfg, d)
	if code >= 0 {
		return code
	}

	reqs, err := collectRequests(cfg)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}
	if len(reqs) == 0 {
		fmt.Fprintln(d.Stderr, "nothing to import: give -ids, -file, or positional ids")
		return 2
	}

	store, err := d.OpenStore(ctx, poistore.Config{Kind: p.Storage.Kind, DSN: p.Storage.ExpandedDSN()})
	if err != nil {
		fmt.Fprintf(d.Stderr, "open store: %v\n", err)
		return 2
	}
	defer store.Close()

	backend := initMetrics(ctx, cfg, p, d)
	if backend != nil {
		defer func() {
			if err := backend.Close(); err != nil {
				log.Printf("metrics: close/flush error: %v", err)
			}
		}()
	}

	im := buildImporter(store, p, backend, d)

	start := d.Now()
	items := im.ImportBatch(ctx, reqs)

	enc := json.NewEncoder(d.Stdout)
	failed := 0
	for _, item := range items {
		rec := recordFor(item, d.Now)
		if item.Err != nil {
			failed++
		}
		_ = enc.Encode(rec)
	}

	if cfg.Verbose {
		log.Printf("imported %d/%d in %s", len(items)-failed, len(items),
			d.Now().Sub(start).Truncate(time.Millisecond))
	}

	if failed > 0 {
		return 1
	}
	return 0
}

// loadPipelineConfig reads and validates the config document.
//
// The second return is the exit code to use, or -1 to continue.
func loadPipelineConfig(cfg runConfig, d deps) (config.Pipeline, int) {
	f, err := os.Open(cfg.ConfigPath)
	if err != nil {
		fmt.Fprintf(d.Stderr, "open config: %v\n", err)
		return config.Pipeline{}, 2
	}
	defer f.Close()

	var p config.Pipeline
	if err := json.NewDecoder(f).Decode(&p); err != nil {
		fmt.Fprintf(d.Stderr, "decode config: %v\n", err)
		return config.Pipeline{}, 2
	}

	issues := config.Validate(p)
	for _, iss := range issues {
		fmt.Fprintf(d.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasError(issues) {
		fmt.Fprintf(d.Stderr, "configuration is invalid: %s\n", cfg.ConfigPath)
		return config.Pipeline{}, 2
	}
	if cfg.Validate {
		fmt.Fprintf(d.Stderr, "configuration is valid: %s\n", cfg.ConfigPath)
		return config.Pipeline{}, 0
	}
	return p, -1
}

// initMetrics selects the metrics backend: flag, then METRICS_BACKEND env,
// then none. A failed backend init degrades to no metrics rather than
// aborting imports.
func initMetrics(ctx context.Context, cfg runConfig, p config.Pipeline, d deps) backendCloser {
	name := cfg.MetricsBackend
	if name == "" {
		name = os.Getenv("METRICS_BACKEND")
	}

	switch name {
	case "datadog":
		if d.BackendFactory == nil {
			log.Printf("metrics: no backend factory wired; metrics disabled")
			return nil
		}
		jobName := p.Job
		if jobName == "" {
			jobName = "poimport"
		}
		tags := datadog.ParseTagsCSV(cfg.TagsCSV)
		b, err := d.BackendFactory(ctx, jobName, tags)
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; metrics disabled", err)
			return nil
		}
		if cfg.Verbose {
			log.Printf("metrics: backend=%s job_name=%s tags=%v", name, jobName, tags)
		}
		return b

	case "", "none":
		return nil

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", name)
		return nil
	}
}

func buildImporter(store poistore.Store, p config.Pipeline, backend backendCloser, d deps) *pipeline.Importer {
	im := &pipeline.Importer{
		Store:         store,
		Table:         p.Storage.Table,
		MaxBatch:      p.EffectiveMaxBatch(),
		EnrichWebsite: p.EnrichWebsite,
	}
	if backend != nil {
		im.Metrics = backend
	}

	if len(p.Fetch.Mirrors) > 0 {
		im.Fetcher = &overpass.Fetcher{
			Endpoints: p.Fetch.Mirrors,
			UserAgent: p.Fetch.UserAgent,
		}
	}

	resolver := &geocode.Resolver{}
	if p.Geocode.BoundaryFile != "" {
		bs, err := geocode.LoadBoundaries(p.Geocode.BoundaryFile)
		if err != nil {
			// Geocoding is enrichment; a bad boundary file must not block
			// imports.
			log.Printf("geocode: boundary store disabled: %v", err)
		} else {
			resolver.Boundaries = bs
		}
	}
	if p.Geocode.NominatimURL != "" {
		resolver.Remote = &geocode.NominatimClient{
			BaseURL:   p.Geocode.NominatimURL,
			UserAgent: p.Fetch.UserAgent,
		}
	}
	if resolver.Boundaries != nil || resolver.Remote != nil {
		im.Resolver = resolver
	}

	if p.EnrichWebsite {
		im.Web = &webmeta.Client{UserAgent: p.Fetch.UserAgent}
	}
	return im
}

// collectRequests merges the three input forms into one request list:
// -ids CSV, positional ids, and a -file of prefetched elements.
func collectRequests(cfg runConfig) ([]pipeline.Request, error) {
	var reqs []pipeline.Request

	addID := func(raw string) error {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}
		if _, _, err := overpass.ParseExternalID(raw); err != nil {
			return err
		}
		req := pipeline.Request{ExternalID: raw}
		if cfg.OwnerID > 0 {
			owner := cfg.OwnerID
			req.OwnerID = &owner
		}
		reqs = append(reqs, req)
		return nil
	}

	for _, raw := range strings.Split(cfg.IDsCSV, ",") {
		if err := addID(raw); err != nil {
			return nil, err
		}
	}
	for _, raw := range cfg.Args {
		if err := addID(raw); err != nil {
			return nil, err
		}
	}

	if cfg.File != "" {
		fromFile, err := readFeatureFile(cfg.File, cfg.OwnerID)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, fromFile...)
	}

	return reqs, nil
}

// readFeatureFile loads prefetched elements from a JSON file holding either
// an Overpass response envelope or a bare element array.
func readFeatureFile(path string, ownerID int64) ([]pipeline.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feature file: %w", err)
	}

	var elements []overpass.Element
	var envelope overpass.Response
	if err := json.Unmarshal(data, &envelope); err == nil && len(envelope.Elements) > 0 {
		elements = envelope.Elements
	} else if err := json.Unmarshal(data, &elements); err != nil {
		return nil, fmt.Errorf("feature file %s: want an Overpass envelope or an element array: %w", path, err)
	}

	reqs := make([]pipeline.Request, 0, len(elements))
	for i := range elements {
		req := pipeline.Request{Feature: &elements[i]}
		if ownerID > 0 {
			owner := ownerID
			req.OwnerID = &owner
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func recordFor(item pipeline.BatchItem, now func() time.Time) logRecord {
	rec := logRecord{
		Timestamp:  now().UTC().Format("2006-01-02T15:04:05.000Z"),
		ExternalID: item.ExternalID,
	}

	if item.Err != nil {
		rec.Error = item.Err.Error()
		rec.ErrorKind = errorKind(item.Err)
		return rec
	}

	res := item.Result
	rec.RowID = res.RowID
	rec.Created = res.Created
	rec.Endpoint = res.Endpoint
	if rec.ExternalID == "" {
		if ext, ok := res.Fields["external_id"].(string); ok {
			rec.ExternalID = ext
		}
	}

	cols := make(map[string]bool, len(res.Fields))
	for c := range res.Fields {
		cols[c] = true
	}
	rec.Columns = poistore.SortedColumns(cols)
	return rec
}

func errorKind(err error) string {
	var (
		v  *pipeline.ValidationError
		ex *overpass.ExhaustedError
		se *pipeline.StoreError
	)
	switch {
	case errors.As(err, &v):
		return "invalid"
	case errors.As(err, &ex):
		return "fetch_exhausted"
	case errors.As(err, &se):
		return "store_failed"
	default:
		return "error"
	}
}

// parseFlags parses command arguments into a runConfig.
//
// Errors:
//   - Returns an error for invalid/missing flags.
//   - Does not exit the process (caller decides exit code).
func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("poimport", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s [flags] [id ...]:\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.StringVar(&cfg.ConfigPath, "config", "configs/poimport.json", "pipeline config JSON path")
	fs.StringVar(&cfg.IDsCSV, "ids", "", "comma-separated external ids (e.g. node/123,way/456)")
	fs.StringVar(&cfg.File, "file", "", "JSON file of prefetched Overpass elements")
	fs.Int64Var(&cfg.OwnerID, "owner", 0, "owner user id recorded on imported rows (0 = none)")
	fs.StringVar(&cfg.MetricsBackend, "metrics-backend", "", "metrics backend to use (datadog, none)")
	fs.StringVar(&cfg.TagsCSV, "metrics-tags", "", "extra metrics tags CSV (e.g. env:prod,service:planvoyage)")
	fs.BoolVar(&cfg.Validate, "validate", false, "validate the configuration and exit")
	fs.BoolVar(&cfg.Verbose, "v", false, "enable verbose logs")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}

	cfg.Args = fs.Args()
	return cfg, nil
}
