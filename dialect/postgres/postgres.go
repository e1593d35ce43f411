// Package postgres implements the dialect.Adapter contract for PostgreSQL.
//
// Mutations return the affected rows through RETURNING, parameters are
// numbered ($1, $2, ...) and nested associations are projected with
// json_agg(row_to_json(...)) into a single json column per association.
package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	_ "github.com/lib/pq" // registers the "postgres" database/sql driver.

	"github.com/syssam/graphsync/dialect"
	"github.com/syssam/graphsync/dialect/sql"
)

// Builder shapes PostgreSQL statements.
type Builder struct{}

// Dialect implements dialect.Builder.
func (Builder) Dialect() string { return dialect.Postgres }

// Wrap implements dialect.Builder.
func (Builder) Wrap(ident string) string { return sql.QuoteIdent(ident, '"', '"') }

// Placeholder implements dialect.Builder.
func (Builder) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

// InsertTemplate implements dialect.Builder.
func (Builder) InsertTemplate(table string) string {
	return "INSERT INTO " + table + dialect.TokenFields + " " + dialect.TokenValues + " RETURNING *"
}

// UpdateTemplate implements dialect.Builder.
func (Builder) UpdateTemplate(table string) string {
	return "UPDATE " + table + " SET " + dialect.TokenSet + " WHERE " + dialect.TokenWhere + " RETURNING *"
}

// DeleteTemplate implements dialect.Builder.
func (Builder) DeleteTemplate(table string) string {
	return "DELETE FROM " + table + " WHERE " + dialect.TokenWhere + " RETURNING *"
}

// Nested implements dialect.Builder.
func (Builder) Nested(sub string) string {
	return "(SELECT coalesce(json_agg(row_to_json(_n)), '[]'::json) FROM (" + sub + ") AS _n)"
}

// Limit implements dialect.Builder.
func (Builder) Limit(stmt string, n int) string {
	return stmt + " LIMIT " + strconv.Itoa(n)
}

// Adapter executes statements on a PostgreSQL driver.
type Adapter struct {
	Builder
	drv dialect.Driver
}

// New returns an adapter over drv.
func New(drv dialect.Driver) *Adapter {
	return &Adapter{drv: drv}
}

// Open opens a database/sql connection pool for the given DSN.
func Open(dsn string) (*Adapter, error) {
	drv, err := sql.Open(dialect.Postgres, dsn)
	if err != nil {
		return nil, err
	}
	return New(drv), nil
}

// Driver returns the underlying driver.
func (a *Adapter) Driver() dialect.Driver { return a.drv }

// Close closes the underlying driver.
func (a *Adapter) Close() error { return a.drv.Close() }

// Execute implements dialect.Adapter. Every mutation statement carries
// RETURNING, so it runs as a query.
func (a *Adapter) Execute(ctx context.Context, query string, args []any, tx dialect.Tx) ([]dialect.Row, error) {
	return a.Query(ctx, query, args, tx)
}

// Query implements dialect.Adapter.
func (a *Adapter) Query(ctx context.Context, query string, args []any, tx dialect.Tx) ([]dialect.Row, error) {
	var eq dialect.ExecQuerier = a.drv
	if tx != nil {
		eq = tx
	}
	if args == nil {
		args = []any{}
	}
	var rows sql.Rows
	if err := eq.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	return sql.ScanRows(rows)
}

// Transaction implements dialect.Adapter.
func (a *Adapter) Transaction(ctx context.Context, fn func(context.Context, dialect.Tx) error) error {
	return sql.RunTx(ctx, a.drv, fn)
}

// DecodeNested implements dialect.Adapter. Top-level nested columns arrive
// as json text; deeper levels are already decoded by the enclosing value.
func (Builder) DecodeNested(v any) ([]dialect.Row, error) {
	switch v := v.(type) {
	case nil:
		return []dialect.Row{}, nil
	case string:
		return decodeJSON([]byte(v))
	case []byte:
		return decodeJSON(v)
	case []dialect.Row:
		return v, nil
	case []any:
		rows := make([]dialect.Row, 0, len(v))
		for _, e := range v {
			r, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("postgres: nested element of type %T", e)
			}
			rows = append(rows, r)
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("postgres: unexpected nested value of type %T", v)
	}
}

func decodeJSON(b []byte) ([]dialect.Row, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var rows []dialect.Row
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("postgres: decode nested rows: %w", err)
	}
	if rows == nil {
		rows = []dialect.Row{}
	}
	return rows, nil
}

var _ dialect.Adapter = (*Adapter)(nil)
