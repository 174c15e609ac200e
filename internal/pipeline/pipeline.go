// Package pipeline orchestrates a POI import end to end: fetch the feature
// from the mirror list (unless a prefetched one is supplied), normalize its
// tag blob, project tags onto the live column set, enrich missing location
// fields by reverse geocoding, and upsert the row keyed by external id.
//
// Failure philosophy, stage by stage:
//   - validation and fetch fail loudly with typed errors
//   - tag parsing, schema probing, geocoding, and website enrichment degrade
//     silently (a sparse row beats no row)
//   - store writes fail loudly; data loss must never be quiet
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"planvoyage/internal/fieldmap"
	"planvoyage/internal/geocode"
	"planvoyage/internal/metrics"
	"planvoyage/internal/overpass"
	"planvoyage/internal/poistore"
	"planvoyage/internal/tagparse"
	"planvoyage/internal/webmeta"
)

// Request describes one POI to import.
//
// Exactly one feature source is needed: a prefetched Feature, or an
// ExternalID to fetch by, or raw coordinates plus a tag blob. When both a
// Feature and an ExternalID are given, the Feature wins and no fetch happens.
type Request struct {
	// ExternalID is "<kind>/<id>", e.g. "node/240109189".
	ExternalID string

	// Lat/Lon are explicit coordinates. Both or neither must be set; a
	// partial pair is a validation error.
	Lat *float64
	Lon *float64

	// RawTags is an unnormalized tag blob (JSON, hstore, or loose pairs).
	RawTags string

	// Feature is a prefetched element; when set, no mirror is contacted.
	Feature *overpass.Element

	// OwnerID attributes the row to an application user when the table has
	// an owner_id column. Ownership is always explicit, never ambient.
	OwnerID *int64
}

// Result reports a completed import.
type Result struct {
	// RowID is the row the upsert converged on.
	RowID int64 `json:"row_id"`

	// Created is true for an insert, false for an update.
	Created bool `json:"created"`

	// Fields is what was written, after probing and projection.
	Fields map[string]any `json:"fields"`

	// Endpoint is the mirror that served the fetch; empty for prefetched
	// features.
	Endpoint string `json:"endpoint,omitempty"`
}

// ValidationError reports a request rejected before any network or database
// work.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

// StoreError wraps a row-store failure. Store failures are the one stage
// that must stay loud: a swallowed write error is silent data loss.
type StoreError struct {
	Op    string
	Table string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s on %s: %v", e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Importer wires the import stages together.
//
// Store and Table are required. Fetcher is required only for requests
// without a prefetched feature. Resolver, Web, and Metrics are optional.
type Importer struct {
	Store poistore.Store
	Table string

	Fetcher  *overpass.Fetcher
	Resolver *geocode.Resolver

	// Web and EnrichWebsite gate description enrichment from a mapped
	// website field.
	Web           *webmeta.Client
	EnrichWebsite bool

	// MaxBatch bounds ImportBatch. <=0 means 100.
	MaxBatch int

	// Metrics receives pipeline observations. Nil means none.
	Metrics metrics.Backend

	// now is a test seam.
	now func() time.Time
}

// Import statuses used for metrics labels.
const (
	statusOK             = "ok"
	statusInvalid        = "invalid"
	statusFetchExhausted = "fetch_exhausted"
	statusStoreFailed    = "store_failed"
)

// Import runs one POI through the pipeline.
//
// Errors:
//   - *ValidationError for a malformed request.
//   - *overpass.ExhaustedError when every mirror failed.
//   - *StoreError for row-store failures.
//
// Parse, probe, geocode, and enrichment problems never fail the import.
func (im *Importer) Import(ctx context.Context, req Request) (*Result, error) {
	start := im.clock()()

	res, err := im.run(ctx, req)

	status := statusOK
	switch {
	case err == nil:
	case isValidation(err):
		status = statusInvalid
	case isExhausted(err):
		status = statusFetchExhausted
	default:
		status = statusStoreFailed
	}
	elapsed := im.clock()().Sub(start)
	im.metrics().IncCounter(metrics.ImportsTotal, 1, metrics.Labels{"status": status})
	im.metrics().ObserveHistogram(metrics.ImportDuration, elapsed.Seconds(), metrics.Labels{"status": status})

	return res, err
}

func (im *Importer) run(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	feature := req.Feature
	endpoint := ""
	if feature == nil && req.ExternalID != "" {
		var err error
		feature, endpoint, err = im.fetch(ctx, req.ExternalID)
		if err != nil {
			return nil, err
		}
	}

	extID := req.ExternalID
	if extID == "" && feature != nil {
		extID = feature.ExternalID()
	}

	lat, lon, haveCoords := coordinates(req, feature)
	tags, rawBlob := normalizeTags(req, feature)

	probed, err := im.Store.Columns(ctx, im.Table)
	if err != nil {
		// Fail open: an unreadable catalog means "no optional columns", not
		// "no import".
		log.Printf("pipeline: probe %s failed, treating as empty column set: %v", im.Table, err)
		probed = map[string]bool{}
	}

	fields := make(map[string]any)
	for k, v := range fieldmap.Map(tags, probed, rawBlob) {
		fields[k] = v
	}
	if extID != "" && probed["external_id"] {
		fields["external_id"] = extID
	}
	if haveCoords {
		if probed["latitude"] {
			fields["latitude"] = lat
		}
		if probed["longitude"] {
			fields["longitude"] = lon
		}
	}
	if req.OwnerID != nil && probed["owner_id"] {
		fields["owner_id"] = *req.OwnerID
	}

	if haveCoords {
		im.fillPlace(ctx, fields, probed, lat, lon)
	}
	im.fillDescription(ctx, fields, probed)

	if len(fields) == 0 {
		return nil, &ValidationError{Field: "fields", Reason: "no tag or identity field matched a probed column"}
	}

	rowID, created, err := im.upsert(ctx, extID, fields)
	if err != nil {
		return nil, err
	}

	return &Result{RowID: rowID, Created: created, Fields: fields, Endpoint: endpoint}, nil
}

// fetch retrieves the feature behind an external id from the mirror list.
func (im *Importer) fetch(ctx context.Context, externalID string) (*overpass.Element, string, error) {
	if im.Fetcher == nil {
		return nil, "", &ValidationError{Field: "external_id", Reason: "no fetcher configured and no prefetched feature supplied"}
	}

	kind, id, err := overpass.ParseExternalID(externalID)
	if err != nil {
		return nil, "", &ValidationError{Field: "external_id", Reason: err.Error()}
	}

	res, err := im.Fetcher.Fetch(ctx, overpass.QueryByID(kind, id))
	if err != nil {
		var ex *overpass.ExhaustedError
		if errors.As(err, &ex) {
			im.countAttempts(ex.Attempts)
		}
		return nil, "", err
	}
	im.countAttempts(res.Attempts)

	decoded, err := overpass.Decode(res.Body)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", externalID, err)
	}
	for i := range decoded.Elements {
		e := &decoded.Elements[i]
		if e.Type == kind && e.ID == id {
			return e, res.Endpoint, nil
		}
	}
	return nil, "", &ValidationError{Field: "external_id", Reason: fmt.Sprintf("feature %s not present in mirror response", externalID)}
}

func (im *Importer) countAttempts(attempts []overpass.Attempt) {
	for _, a := range attempts {
		status := "ok"
		if a.Err != "" {
			status = "failed"
		}
		im.metrics().IncCounter(metrics.FetchAttemptsTotal, 1, metrics.Labels{"status": status})
	}
}

// fillPlace reverse-geocodes and fills city/state/country columns that are
// probed but still empty. Tag-derived values always win over geocoding.
func (im *Importer) fillPlace(ctx context.Context, fields map[string]any, probed map[string]bool, lat, lon float64) {
	needs := func(col string) bool {
		if !probed[col] {
			return false
		}
		v, ok := fields[col]
		return !ok || v == ""
	}
	if !needs("city") && !needs("state") && !needs("country") {
		return
	}

	place, source := im.Resolver.ResolveSource(ctx, lat, lon)
	im.metrics().IncCounter(metrics.GeocodeTotal, 1, metrics.Labels{"source": source})

	if place.City != "" && needs("city") {
		fields["city"] = place.City
	}
	if place.State != "" && needs("state") {
		fields["state"] = place.State
	}
	if place.Country != "" && needs("country") {
		fields["country"] = place.Country
	}
}

// fillDescription fetches the mapped website and fills an empty probed
// description column. Best-effort; never fails the import.
func (im *Importer) fillDescription(ctx context.Context, fields map[string]any, probed map[string]bool) {
	if !im.EnrichWebsite || im.Web == nil || !probed["description"] {
		return
	}
	if v, ok := fields["description"]; ok && v != "" {
		return
	}
	site, ok := fields["website"].(string)
	if !ok || strings.TrimSpace(site) == "" {
		return
	}

	if desc := im.Web.Fetch(ctx, site).BestDescription(); desc != "" {
		fields["description"] = desc
	}
}

// upsert writes fields as one row, keyed by external id when present.
func (im *Importer) upsert(ctx context.Context, extID string, fields map[string]any) (rowID int64, created bool, err error) {
	if extID != "" {
		id, found, err := im.Store.FindByExternalID(ctx, im.Table, extID)
		if err != nil {
			return 0, false, &StoreError{Op: "lookup", Table: im.Table, Err: err}
		}
		if found {
			// external_id is the key; updating it is a no-op by value but
			// noise in the statement.
			update := make(map[string]any, len(fields))
			for k, v := range fields {
				if k != "external_id" {
					update[k] = v
				}
			}
			if len(update) > 0 {
				if err := im.Store.Update(ctx, im.Table, id, update); err != nil {
					return 0, false, &StoreError{Op: "update", Table: im.Table, Err: err}
				}
			}
			return id, false, nil
		}
	}

	id, err := im.Store.Insert(ctx, im.Table, fields)
	if err != nil {
		return 0, false, &StoreError{Op: "insert", Table: im.Table, Err: err}
	}
	return id, true, nil
}

// BatchItem is the outcome of one request within a batch.
type BatchItem struct {
	ExternalID string
	Result     *Result
	Err        error
}

// ImportBatch imports requests sequentially, collecting per-request
// outcomes. The batch call itself never fails because one request does.
//
// Edge cases:
//   - Requests beyond the MaxBatch bound are not imported; their items carry
//     a ValidationError.
//   - ctx cancellation stops the loop; unprocessed requests carry ctx.Err().
func (im *Importer) ImportBatch(ctx context.Context, reqs []Request) []BatchItem {
	max := im.MaxBatch
	if max <= 0 {
		max = 100
	}

	items := make([]BatchItem, 0, len(reqs))
	for i, req := range reqs {
		item := BatchItem{ExternalID: req.ExternalID}

		switch {
		case i >= max:
			item.Err = &ValidationError{Field: "batch", Reason: fmt.Sprintf("request %d exceeds batch bound %d", i, max)}
		case ctx.Err() != nil:
			item.Err = ctx.Err()
		default:
			item.Result, item.Err = im.Import(ctx, req)
		}

		items = append(items, item)
	}
	return items
}

func validate(req Request) error {
	if (req.Lat == nil) != (req.Lon == nil) {
		return &ValidationError{Field: "coordinates", Reason: "latitude and longitude must be set together"}
	}
	if req.Feature == nil && req.ExternalID == "" && req.Lat == nil {
		return &ValidationError{Field: "request", Reason: "need a prefetched feature, an external id, or coordinates"}
	}
	if req.Lat != nil {
		if *req.Lat < -90 || *req.Lat > 90 {
			return &ValidationError{Field: "latitude", Reason: "out of range [-90, 90]"}
		}
		if *req.Lon < -180 || *req.Lon > 180 {
			return &ValidationError{Field: "longitude", Reason: "out of range [-180, 180]"}
		}
	}
	return nil
}

// coordinates picks explicit request coordinates over the feature's.
func coordinates(req Request, feature *overpass.Element) (lat, lon float64, ok bool) {
	if req.Lat != nil && req.Lon != nil {
		return *req.Lat, *req.Lon, true
	}
	if feature != nil {
		return feature.Coordinates()
	}
	return 0, 0, false
}

// normalizeTags produces the tag map and the raw blob used for overflow.
//
// A prefetched or fetched feature already carries structured tags; a raw
// request goes through the tiered normalizer. The raw blob for the overflow
// column is the original request blob when present, else the feature tags
// re-serialized.
func normalizeTags(req Request, feature *overpass.Element) (map[string]string, string) {
	if feature != nil && len(feature.Tags) > 0 {
		raw := req.RawTags
		if raw == "" {
			if b, err := json.Marshal(feature.Tags); err == nil {
				raw = string(b)
			}
		}
		return feature.Tags, raw
	}
	return tagparse.Normalize(req.RawTags), req.RawTags
}

func (im *Importer) metrics() metrics.Backend {
	if im.Metrics != nil {
		return im.Metrics
	}
	return metrics.Nop{}
}

func (im *Importer) clock() func() time.Time {
	if im.now != nil {
		return im.now
	}
	return time.Now
}

func isValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func isExhausted(err error) bool {
	var ex *overpass.ExhaustedError
	return errors.As(err, &ex)
}
