package sql

import (
	"context"
	"errors"
	"fmt"

	"github.com/syssam/graphsync/dialect"
)

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Error joining the cause and the rollback failure.
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("dialect/sql: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// RunTx begins a transaction on drv, calls fn with it and commits when fn
// succeeds. A failing fn rolls the transaction back and its error is returned
// unchanged, joined with the rollback error if rolling back also failed.
// A panicking fn rolls the transaction back before the panic resumes.
func RunTx(ctx context.Context, drv dialect.Driver, fn func(context.Context, dialect.Tx) error) error {
	tx, err := drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("dialect/sql: begin: %w", err)
	}
	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback()
			panic(v)
		}
	}()
	if err := fn(ctx, tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return &RollbackError{Err: errors.Join(err, rerr)}
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		// The driver has already released the transaction; Rollback
		// only reports ErrTxDone at this point.
		_ = tx.Rollback()
		return fmt.Errorf("dialect/sql: commit: %w", err)
	}
	return nil
}
