package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"planvoyage/internal/poistore"
)

// Store implements poistore.Store for Microsoft SQL Server.
//
// Differences from the other backends:
//   - Identifiers are bracket-quoted, with "]]" escaping.
//   - Placeholders are @pN.
//   - Insert ids come back via OUTPUT INSERTED.id (no RETURNING clause).
//   - Column probing goes through sys.columns/OBJECT_ID, which resolves
//     schema-qualified table names natively.
//
// Note on driver registration:
//   - This package intentionally does NOT blank-import a SQL Server driver.
//     The application must register the "sqlserver" driver elsewhere
//     (poistore/all does this).
type Store struct {
	db *sql.DB
}

func init() {
	poistore.Register("mssql", New)
}

// New constructs a Store using database/sql and the "sqlserver" driver.
// Connectivity is validated via PingContext.
func New(ctx context.Context, cfg poistore.Config) (poistore.Store, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// Columns probes sys.columns for the live column set of table.
//
// table may be schema-qualified ("dbo.poi"); OBJECT_ID resolves either form.
func (s *Store) Columns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sys.columns WHERE object_id = OBJECT_ID(@p1)`,
		table,
	)
	if err != nil {
		return nil, fmt.Errorf("mssql: probe columns of %s: %w", table, err)
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
	q := fmt.Sprintf(`SELECT TOP 1 id FROM %s WHERE %s = @p1`, tableIdent(table), ident("external_id"))

	var id int64
	err := s.db.QueryRowContext(ctx, q, externalID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("mssql: lookup external_id in %s: %w", table, err)
	}
	return id, true, nil
}

func (s *Store) Insert(ctx context.Context, table string, fields map[string]any) (int64, error) {
	if len(fields) == 0 {
		return 0, fmt.Errorf("mssql: insert into %s with no fields", table)
	}

	q, args := buildInsertSQL(table, fields)
	var id int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("mssql: insert into %s: %w", table, err)
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, table string, id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	q, args := buildUpdateSQL(table, id, fields)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("mssql: update %s id=%d: %w", table, id, err)
	}
	return nil
}

// buildInsertSQL constructs one INSERT ... OUTPUT INSERTED.id statement and
// its args, pure and deterministic for unit testing.
func buildInsertSQL(table string, fields map[string]any) (string, []any) {
	cols := sortedKeys(fields)

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(tableIdent(table))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(c))
	}
	b.WriteString(") OUTPUT INSERTED.id VALUES (")
	for i := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "@p%d", i+1)
	}
	b.WriteString(")")

	args := make([]any, 0, len(cols))
	for _, c := range cols {
		args = append(args, fields[c])
	}
	return b.String(), args
}

func buildUpdateSQL(table string, id int64, fields map[string]any) (string, []any) {
	cols := sortedKeys(fields)

	setParts := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		setParts = append(setParts, fmt.Sprintf("%s = @p%d", ident(c), i+1))
		args = append(args, fields[c])
	}
	args = append(args, id)

	q := fmt.Sprintf(`UPDATE %s SET %s WHERE id = @p%d`, tableIdent(table), strings.Join(setParts, ", "), len(cols)+1)
	return q, args
}

func sortedKeys(fields map[string]any) []string {
	set := make(map[string]bool, len(fields))
	for c := range fields {
		set[c] = true
	}
	return poistore.SortedColumns(set)
}

func ident(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// tableIdent bracket-quotes schema-qualified names.
//
// Example:
//
//	"dbo.poi" -> [dbo].[poi]
func tableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = ident(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}
