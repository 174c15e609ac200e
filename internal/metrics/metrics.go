// Package metrics defines the minimal metrics surface the import pipeline
// emits through.
//
// The pipeline depends only on Backend; concrete exporters live in
// subpackages so that vendor SDKs never leak into core code. A process that
// does not configure an exporter uses Nop, so instrumentation call sites
// never need nil checks.
package metrics

// Labels are free-form metric dimensions (e.g. {"status": "ok"}).
type Labels map[string]string

// Backend receives metric observations.
//
// Implementations must be safe for concurrent use; pipeline goroutines call
// these methods directly on the hot path.
type Backend interface {
	// IncCounter adds delta to a named counter. Non-positive deltas are
	// ignored.
	IncCounter(name string, delta float64, labels Labels)

	// ObserveHistogram records one sample of a named distribution. Negative
	// values are ignored.
	ObserveHistogram(name string, value float64, labels Labels)
}

// Metric names emitted by the import pipeline.
const (
	// ImportsTotal counts finished imports, labeled status=ok|invalid|
	// fetch_exhausted|store_failed.
	ImportsTotal = "poi_imports_total"

	// ImportDuration samples end-to-end import latency in seconds, labeled
	// like ImportsTotal.
	ImportDuration = "poi_import_duration_seconds"

	// FetchAttemptsTotal counts mirror attempts, labeled status=ok|failed.
	FetchAttemptsTotal = "poi_fetch_attempts_total"

	// GeocodeTotal counts geocode resolutions, labeled source=local|remote|
	// none.
	GeocodeTotal = "poi_geocode_total"
)

// Nop discards all observations.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}
