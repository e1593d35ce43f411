// Package sql implements dialect.Driver on top of database/sql and provides
// the shared pieces both SQL adapters build on.
//
// # Driver
//
// Open and OpenDB wrap a *sql.DB. Tx returns a dialect.Tx bound to a single
// connection:
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
// # Rows
//
// ScanRows reads a result into records keyed by column name. Batches that
// yield several result sets (SQL Server OUTPUT emulation) keep the last set
// that has columns:
//
//	rows := &sql.Rows{}
//	if err := drv.Query(ctx, query, args, rows); err != nil {
//	    return err
//	}
//	records, err := sql.ScanRows(rows)
//
// # Transactions
//
// RunTx begins, commits on success, and rolls back on failure:
//
//	err := sql.RunTx(ctx, drv, func(ctx context.Context, tx dialect.Tx) error {
//	    return tx.Exec(ctx, "DELETE FROM users WHERE id = $1", []any{1}, nil)
//	})
//
// # Templates
//
// Template holds a statement compiled once per entity descriptor. The field
// list, value placeholders, SET list and key predicate are substituted at
// execution time:
//
//	t := sql.Template(`UPDATE "users" SET {{set}} WHERE {{where}} RETURNING *`)
//	q := t.Expand(sql.Parts{Set: `"name" = $1`, Where: `"id" = $2`})
//
// # Statistics and Debugging
//
// StatsDriver counts statements and reports the slow ones. DebugDriver logs
// every statement at Debug level, tagging transactional ones with a
// transaction id.
package sql
