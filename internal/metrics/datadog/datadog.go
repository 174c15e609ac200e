// Package datadog implements a Datadog backend for the internal/metrics
// package.
//
// NOTE ABOUT FLUSHING:
// This backend serves both one-shot imports and long-running batch runs.
// Submitting only once at process exit would make Datadog dashboards awkward
// for long runs (a single spike rather than a time series), so we:
//   - buffer metrics in-memory (fast, lock-protected)
//   - periodically Flush() on a ticker (default: once per minute)
//   - Flush() one final time on Close()
//
// Concurrency model:
//   - pipeline goroutines can call IncCounter/ObserveHistogram at any time
//   - Flush snapshots+resets buffers under a mutex, then submits out-of-lock
//   - the flush loop calls Flush() periodically; Close() stops the loop
//
// If the process is killed with SIGKILL/OOM, Close() won't run (no backend
// can fix that).
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"planvoyage/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric.
	// If empty, defaults to "poimport".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// The following fields are unexported test seams. Production code never
	// sets them; unit tests use them to avoid real network submission and
	// nondeterministic clocks/tickers.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal interface needed to submit metrics.
//
// The Datadog SDK exposes a concrete *datadogV2.MetricsApi, which cannot be
// stubbed without real HTTP; depending on this tiny interface keeps the
// backend unit-testable with a fake submitter.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	importCounts  map[string]float64   // status -> count
	importDur     map[string][]float64 // status -> seconds
	fetchCounts   map[string]float64   // status -> count
	geocodeCounts map[string]float64   // source -> count
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the background flush loop and performs one final Flush().
//
// Errors:
//   - Returns any error from the final Flush() submission.
//   - Close is "call once"; a second call panics on the closed channel.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// NewBackend constructs a Datadog backend using the official client.
//
// Edge cases:
//   - If opts.FlushEvery <= 0, defaults to 60s.
//   - If opts.JobName is empty, defaults to "poimport".
//   - Environment tag selection uses ENV then DD_ENV, otherwise env:unknown.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "poimport"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		cfg := dd.NewConfiguration()
		client := dd.NewAPIClient(cfg)
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),

		baseTags: baseTags,

		now:       nowFn,
		newTicker: newTicker,

		importCounts:  make(map[string]float64),
		importDur:     make(map[string][]float64),
		fetchCounts:   make(map[string]float64),
		geocodeCounts: make(map[string]float64),
	}

	go b.loop()
	return b, nil
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.ImportsTotal:
		b.importCounts[labelOr(labels, "status", "unknown")] += delta

	case metrics.FetchAttemptsTotal:
		b.fetchCounts[labelOr(labels, "status", "unknown")] += delta

	case metrics.GeocodeTotal:
		b.geocodeCounts[labelOr(labels, "source", "none")] += delta

	default:
		// Unknown counters are dropped rather than guessed at.
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.ImportDuration:
		status := labelOr(labels, "status", "unknown")
		b.importDur[status] = append(b.importDur[status], value)

	default:
		// Unknown histograms are dropped rather than guessed at.
	}
}

func labelOr(labels metrics.Labels, key, def string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return def
}

// snapshot is the buffered metric state used to build one flush payload.
//
// Flush() must reset buffers under a lock but submit out-of-lock; snapshot
// separates (1) collect+reset from (2) payload building+submission.
type snapshot struct {
	importCounts  map[string]float64
	importDur     map[string][]float64
	fetchCounts   map[string]float64
	geocodeCounts map[string]float64
}

// snapshotAndReset grabs current buffered metrics and resets the buffers.
func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		importCounts:  b.importCounts,
		importDur:     b.importDur,
		fetchCounts:   b.fetchCounts,
		geocodeCounts: b.geocodeCounts,
	}

	b.importCounts = make(map[string]float64)
	b.importDur = make(map[string][]float64)
	b.fetchCounts = make(map[string]float64)
	b.geocodeCounts = make(map[string]float64)

	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.importCounts) == 0 &&
		len(s.importDur) == 0 &&
		len(s.fetchCounts) == 0 &&
		len(s.geocodeCounts) == 0
}

// Flush submits buffered metrics to Datadog and resets local buffers.
//
// Edge cases:
//   - Safe to call concurrently with IncCounter/ObserveHistogram.
//   - Buffers reset even if submission fails, to keep the import path fast
//     and avoid blocking future writes.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	series := b.buildSeries(snap, b.now().Unix())
	payload := datadogV2.MetricPayload{Series: series}

	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries constructs Datadog series for a snapshot at a fixed timestamp.
//
// It is pure (no locks, no network, no clocks), which makes the naming and
// tagging contract unit-testable.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.importCounts)+len(s.fetchCounts)+len(s.geocodeCounts)+6*len(s.importDur))

	for status, v := range s.importCounts {
		if v == 0 {
			continue
		}
		series = append(series, countSeries("planvoyage.poi.imports.total", v, withTags(b.baseTags, "status:"+status), nowUnix))
	}

	for status, v := range s.fetchCounts {
		if v == 0 {
			continue
		}
		series = append(series, countSeries("planvoyage.poi.fetch_attempts.total", v, withTags(b.baseTags, "status:"+status), nowUnix))
	}

	for source, v := range s.geocodeCounts {
		if v == 0 {
			continue
		}
		series = append(series, countSeries("planvoyage.poi.geocode.total", v, withTags(b.baseTags, "source:"+source), nowUnix))
	}

	for status, samples := range s.importDur {
		addPercentiles(&series, withTags(b.baseTags, "status:"+status), "planvoyage.poi.import_duration_seconds", samples, nowUnix)
	}

	return series
}

// addPercentiles appends a fixed set of percentile gauges for a sample set.
//
// Edge cases:
//   - If samples is empty, it does nothing.
//   - It sorts a copy of samples (does not mutate input).
func addPercentiles(series *[]datadogV2.MetricSeries, tags []string, metricPrefix string, samples []float64, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series, gaugeSeries(metricPrefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".max", cp[len(cp)-1], tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".samples", float64(len(cp)), tags, nowUnix))
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:planvoyage".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
