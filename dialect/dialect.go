package dialect

import (
	"context"
)

// Dialect names.
const (
	Postgres = "postgres"
	MSSQL    = "sqlserver"
)

// ExecQuerier wraps the 2 database operations.
type ExecQuerier interface {
	// Exec executes a query that does not return records. For example, in SQL, INSERT or UPDATE.
	// It scans the result into the pointer v. For SQL drivers, it is dialect/sql.Result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a query that returns rows, typically a SELECT in SQL.
	// It scans the result into the pointer v. For SQL drivers, it is *dialect/sql.Rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface that wraps all necessary operations for storage drivers.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	// The provided context is used until the transaction is committed or rolled back.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps the Exec and Query operations in transaction.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}

// Row is a single record keyed by column or property name.
type Row = map[string]any

// Template tokens substituted into the statement templates returned by Builder.
const (
	TokenFields = "{{fields}}"
	TokenValues = "{{values}}"
	TokenSet    = "{{set}}"
	TokenWhere  = "{{where}}"
)

// Builder shapes SQL text for one dialect. Descriptors call it once per
// compilation; the criteria compiler calls it per fetch.
type Builder interface {
	// Dialect returns the dialect name.
	Dialect() string
	// Wrap quotes an identifier.
	Wrap(ident string) string
	// Placeholder returns the n-th (1-based) positional parameter marker.
	Placeholder(n int) string
	// InsertTemplate returns an INSERT statement for the quoted table. The
	// statement returns the inserted row and contains TokenFields and TokenValues.
	InsertTemplate(table string) string
	// UpdateTemplate returns an UPDATE statement returning the updated rows,
	// containing TokenSet and TokenWhere.
	UpdateTemplate(table string) string
	// DeleteTemplate returns a DELETE statement returning the deleted rows,
	// containing TokenWhere.
	DeleteTemplate(table string) string
	// Nested wraps a correlated sub-select so that it projects a single
	// column holding every row of the sub-select.
	Nested(sub string) string
	// Limit caps the number of rows returned by a SELECT statement.
	Limit(stmt string, n int) string
}

// Adapter is the storage collaborator consumed by the synchronizer.
type Adapter interface {
	Builder
	// Execute runs a mutation and returns the affected rows.
	Execute(ctx context.Context, query string, args []any, tx Tx) ([]Row, error)
	// Query runs a SELECT and returns its rows.
	Query(ctx context.Context, query string, args []any, tx Tx) ([]Row, error)
	// Transaction begins a transaction, calls fn and commits on success.
	// It rolls back and returns the error if fn, or the commit, fails.
	Transaction(ctx context.Context, fn func(context.Context, Tx) error) error
	// DecodeNested converts a value projected by Nested (or a value already
	// decoded from a parent nested column) into records.
	DecodeNested(v any) ([]Row, error)
}
