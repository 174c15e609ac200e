// Package poistore defines the backend-agnostic contract for the POI row
// store and a factory registry for its implementations.
//
// The POI table is not a fixed schema: deployments add and drop optional
// columns (phone, brand, raw_tags, ...) freely, and the import pipeline
// discovers the live column set through Columns at call time instead of
// assuming one. Backends implement the catalog query and the single-row
// upsert primitives in their own idiomatic SQL.
package poistore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config is the minimal configuration needed to open a store.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is
//     backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Store is the backend-agnostic interface the import pipeline writes
// through.
//
// IMPORTANT: This interface is intentionally minimal. It carries exactly the
// operations the pipeline needs: schema discovery, lookup by external id,
// and single-row insert/update. There are no multi-statement transactions;
// write serialization is delegated to the database.
type Store interface {
	// Close releases backend resources. Call once at process shutdown.
	Close()

	// Columns returns the live column set of table from the backend's
	// catalog.
	//
	// Callers may cache the result for the duration of one logical request
	// but must not assume the schema is static across requests: deployments
	// alter the table while the importer runs.
	//
	// Errors:
	//   - Returned for catalog-query failures. The import pipeline treats an
	//     error as the empty set (fail open to "skip this field"); operator
	//     tooling surfaces it instead.
	Columns(ctx context.Context, table string) (map[string]bool, error)

	// FindByExternalID looks up a row id by its external_id column.
	// found is false when no row matches; err reports lookup failures only.
	FindByExternalID(ctx context.Context, table, externalID string) (id int64, found bool, err error)

	// Insert creates one row from the column->value map and returns the new
	// row id. The caller has already filtered fields to probed columns.
	Insert(ctx context.Context, table string, fields map[string]any) (int64, error)

	// Update overwrites the given columns of one row. Columns absent from
	// fields keep their values (last-write-wins per column, not per row).
	Update(ctx context.Context, table string, id int64, fields map[string]any) error
}

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered. Failing
//     fast here avoids ambiguous backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("poistore: Register called with empty kind")
	}
	if f == nil {
		panic("poistore: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("poistore: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Store using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("poistore: missing Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported poistore kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// SortedColumns renders a probed column set as a deterministic list, for
// stable SQL text and stable diagnostics output.
func SortedColumns(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
