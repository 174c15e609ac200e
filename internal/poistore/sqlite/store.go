package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"planvoyage/internal/poistore"
)

// Store implements poistore.Store for SQLite.
//
// Key design points vs Postgres:
//   - The column catalog comes from the pragma_table_info table-valued
//     function rather than information_schema.
//   - Row ids come from last_insert_rowid via sql.Result; there is no
//     RETURNING round trip.
//
// SQLite serves two roles here: small single-host deployments and the test
// suite (a real database without a server).
type Store struct {
	db *sql.DB
}

func init() {
	poistore.Register("sqlite", New)
}

func New(ctx context.Context, cfg poistore.Config) (poistore.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewFromDB wraps an existing handle. Used by tests that prepare schema on
// the same in-memory database.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() { _ = s.db.Close() }

// Columns queries pragma_table_info for the live column set.
//
// An unknown table yields an empty set without an error, matching the
// pragma's behavior of returning zero rows.
func (s *Store) Columns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("sqlite: probe columns of %s: %w", table, err)
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
	q := fmt.Sprintf(`SELECT id FROM %s WHERE %s = ? LIMIT 1`, table, sqlIdent("external_id"))

	var id int64
	err := s.db.QueryRowContext(ctx, q, externalID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: lookup external_id in %s: %w", table, err)
	}
	return id, true, nil
}

func (s *Store) Insert(ctx context.Context, table string, fields map[string]any) (int64, error) {
	if len(fields) == 0 {
		return 0, fmt.Errorf("sqlite: insert into %s with no fields", table)
	}

	q, args := buildInsertSQL(table, fields)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert into %s: %w", table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert id for %s: %w", table, err)
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, table string, id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	q, args := buildUpdateSQL(table, id, fields)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("sqlite: update %s id=%d: %w", table, id, err)
	}
	return nil
}

// buildInsertSQL constructs one INSERT statement and its args.
//
// Why this exists:
//   - It is pure and deterministic (columns are sorted), so tests can check
//     the SQL text without a database.
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
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES (")
	b.WriteString(strings.TrimRight(strings.Repeat("?,", len(cols)), ","))
	b.WriteString(")")

	args := make([]any, 0, len(cols))
	for _, c := range cols {
		args = append(args, fields[c])
	}
	return b.String(), args
}

// buildUpdateSQL constructs one UPDATE statement touching exactly the given
// columns, keyed on id.
func buildUpdateSQL(table string, id int64, fields map[string]any) (string, []any) {
	cols := sortedKeys(fields)

	setParts := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+1)
	for _, c := range cols {
		setParts = append(setParts, fmt.Sprintf("%s = ?", sqlIdent(c)))
		args = append(args, fields[c])
	}
	args = append(args, id)

	q := fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, table, strings.Join(setParts, ", "))
	return q, args
}

func sortedKeys(fields map[string]any) []string {
	out := make(map[string]bool, len(fields))
	for c := range fields {
		out[c] = true
	}
	return poistore.SortedColumns(out)
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
