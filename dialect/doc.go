// Package dialect defines the storage contract used by graphsync.
//
// Two dialects are supported:
//
//	dialect.Postgres = "postgres"
//	dialect.MSSQL    = "sqlserver"
//
// # Driver Interface
//
// Driver is the thin connection layer, implemented by dialect/sql:
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// # Adapter Interface
//
// Adapter is what the synchronizer talks to. It hides the differences between
// an engine with native RETURNING and JSON aggregation (dialect/postgres)
// and one that has neither (dialect/mssql):
//
//	type Adapter interface {
//	    Builder
//	    Execute(ctx context.Context, query string, args []any, tx Tx) ([]Row, error)
//	    Query(ctx context.Context, query string, args []any, tx Tx) ([]Row, error)
//	    Transaction(ctx context.Context, fn func(context.Context, Tx) error) error
//	    DecodeNested(v any) ([]Row, error)
//	}
//
// Both adapters deliver nested one-to-many projections as []Row, whatever the
// engine produced on the wire.
//
// # Sub-packages
//
//   - dialect/sql: database/sql driver, row scanning, transaction helper, templates
//   - dialect/sql/sqlgraph: constraint error classification
//   - dialect/postgres: PostgreSQL adapter
//   - dialect/mssql: SQL Server adapter
package dialect
