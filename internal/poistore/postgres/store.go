package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"planvoyage/internal/poistore"
)

/*
Store implements poistore.Store for Postgres.

It provides:
  - Column probing via information_schema
  - Lookup by external_id
  - Single-row INSERT ... RETURNING id and column-filtered UPDATE

SQL text is produced by pure builder functions with numbered placeholders so
placeholder ordering can be unit tested without a database.
*/
type Store struct {
	pool *pgxpool.Pool
}

func init() {
	poistore.Register("postgres", New)
}

// New creates a new Postgres-backed Store.
func New(ctx context.Context, cfg poistore.Config) (poistore.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Columns probes information_schema for the live column set of table in the
// current schema.
func (s *Store) Columns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = current_schema() AND table_name = $1`,
		table,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: probe columns of %s: %w", table, err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[strings.ToLower(name)] = true
	}
	return out, rows.Err()
}

func (s *Store) FindByExternalID(ctx context.Context, table, externalID string) (int64, bool, error) {
	q := fmt.Sprintf(`SELECT id FROM %s WHERE %s = $1 LIMIT 1`, table, pgIdent("external_id"))

	var id int64
	err := s.pool.QueryRow(ctx, q, externalID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("postgres: lookup external_id in %s: %w", table, err)
	}
	return id, true, nil
}

func (s *Store) Insert(ctx context.Context, table string, fields map[string]any) (int64, error) {
	if len(fields) == 0 {
		return 0, fmt.Errorf("postgres: insert into %s with no fields", table)
	}

	q, args := buildInsertSQL(table, fields)
	var id int64
	if err := s.pool.QueryRow(ctx, q, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("postgres: insert into %s: %w", table, err)
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, table string, id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	q, args := buildUpdateSQL(table, id, fields)
	if _, err := s.pool.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("postgres: update %s id=%d: %w", table, id, err)
	}
	return nil
}

// buildInsertSQL constructs one INSERT ... RETURNING id statement and its
// args.
//
// Why this exists:
//   - It is pure and deterministic (columns are sorted), so we can unit test
//     correctness (especially placeholder numbering) without a database.
func buildInsertSQL(table string, fields map[string]any) (string, []any) {
	cols := sortedKeys(fields)

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES (")
	for i := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", i+1)
	}
	b.WriteString(") RETURNING id")

	args := make([]any, 0, len(cols))
	for _, c := range cols {
		args = append(args, fields[c])
	}
	return b.String(), args
}

// buildUpdateSQL constructs one UPDATE statement touching exactly the given
// columns, keyed on id. The id is the final placeholder.
func buildUpdateSQL(table string, id int64, fields map[string]any) (string, []any) {
	cols := sortedKeys(fields)

	setParts := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		setParts = append(setParts, fmt.Sprintf("%s = $%d", pgIdent(c), i+1))
		args = append(args, fields[c])
	}
	args = append(args, id)

	q := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`, table, strings.Join(setParts, ", "), len(cols)+1)
	return q, args
}

func sortedKeys(fields map[string]any) []string {
	set := make(map[string]bool, len(fields))
	for c := range fields {
		set[c] = true
	}
	return poistore.SortedColumns(set)
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
