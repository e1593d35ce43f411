package graphsync

import (
	"errors"
	"fmt"
	"strings"

	"github.com/syssam/graphsync/dialect/sql"
	"github.com/syssam/graphsync/dialect/sql/sqlgraph"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a located row does not exist, or when a
	// mutation matched no row because it was concurrently modified or deleted.
	ErrNotFound = errors.New("graphsync: not found or concurrently modified")

	// ErrNotSingular is returned when a fetch that expects exactly one
	// result returns several.
	ErrNotSingular = errors.New("graphsync: entity not singular")

	// ErrConfiguration is matched by every ConfigurationError.
	ErrConfiguration = errors.New("graphsync: invalid configuration")

	// ErrInvalidArgument is matched by every InvalidArgumentError.
	ErrInvalidArgument = errors.New("graphsync: invalid argument")

	// ErrInvalidData is matched by every InvalidDataError.
	ErrInvalidData = errors.New("graphsync: invalid data")

	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("graphsync: validation failed")
)

// NotFoundError is returned when a locator matched no row, or when a
// mutation did not affect exactly one row.
type NotFoundError struct {
	entity string
	count  int // Number of rows matched or affected.
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.count > 1 {
		return fmt.Sprintf("graphsync: %s affected %d rows, expected 1", e.entity, e.count)
	}
	return fmt.Sprintf("graphsync: %s not found or concurrently modified", e.entity)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Entity returns the entity name.
func (e *NotFoundError) Entity() string {
	return e.entity
}

// Count returns the number of rows matched or affected.
func (e *NotFoundError) Count() int {
	return e.count
}

// NewNotFoundError returns a new NotFoundError for the given entity.
func NewNotFoundError(entity string, count int) *NotFoundError {
	return &NotFoundError{entity: entity, count: count}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// NotSingularError represents an error when a fetch expects a singular result
// but receives several.
type NotSingularError struct {
	entity string
	count  int
}

// Error returns the error string.
func (e *NotSingularError) Error() string {
	return fmt.Sprintf("graphsync: %s not singular (got %d results, expected 1)", e.entity, e.count)
}

// Is reports whether the target error matches NotSingularError.
func (e *NotSingularError) Is(err error) bool {
	return err == ErrNotSingular
}

// Count returns the number of results.
func (e *NotSingularError) Count() int {
	return e.count
}

// IsNotSingular returns true if the error is a NotSingularError.
func IsNotSingular(err error) bool {
	if err == nil {
		return false
	}
	var e *NotSingularError
	return errors.As(err, &e) || errors.Is(err, ErrNotSingular)
}

// ConfigurationError is returned by declaration calls that leave an entity
// in a state that cannot be compiled.
type ConfigurationError struct {
	Entity string
	Err    error
}

// Error returns the error string.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("graphsync: configuration of %s: %v", e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error { return e.Err }

// Is reports whether the target error matches ErrConfiguration.
func (e *ConfigurationError) Is(err error) bool { return err == ErrConfiguration }

// IsConfigurationError returns true if the error is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

// FieldError is one failed validation.
type FieldError struct {
	Path    string // e.g. "items[1].sku"; empty for the root record.
	Message string
}

// String returns the path and message.
func (e FieldError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationError carries every validation failure of a graph, in the
// order the validations ran.
type ValidationError struct {
	Errors []FieldError
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "graphsync: validation failed: " + e.Errors[0].String()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "graphsync: validation failed with %d errors:", len(e.Errors))
	for i, fe := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %s", i+1, fe)
	}
	return sb.String()
}

// Is reports whether the target error matches ErrValidation.
func (e *ValidationError) Is(err error) bool { return err == ErrValidation }

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// InvalidArgumentError is returned for a malformed or missing locator.
type InvalidArgumentError struct {
	Entity string
	Msg    string
}

// Error returns the error string.
func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("graphsync: %s: invalid argument: %s", e.Entity, e.Msg)
}

// Is reports whether the target error matches ErrInvalidArgument.
func (e *InvalidArgumentError) Is(err error) bool { return err == ErrInvalidArgument }

// IsInvalidArgument returns true if the error is an InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	var e *InvalidArgumentError
	return errors.As(err, &e)
}

// InvalidDataError is returned for graphs whose shape does not fit the
// declared associations, such as several items in a to-one slot.
type InvalidDataError struct {
	Entity string
	Path   string
	Msg    string
}

// Error returns the error string.
func (e *InvalidDataError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("graphsync: %s: invalid data at %s: %s", e.Entity, e.Path, e.Msg)
	}
	return fmt.Sprintf("graphsync: %s: invalid data: %s", e.Entity, e.Msg)
}

// Is reports whether the target error matches ErrInvalidData.
func (e *InvalidDataError) Is(err error) bool { return err == ErrInvalidData }

// IsInvalidData returns true if the error is an InvalidDataError.
func IsInvalidData(err error) bool {
	var e *InvalidDataError
	return errors.As(err, &e)
}

// HookError wraps the failure of a lifecycle hook. The operation it ran in
// is rolled back.
type HookError struct {
	Entity string
	Event  Event
	ID     string
	Err    error
}

// Error returns the error string.
func (e *HookError) Error() string {
	return fmt.Sprintf("graphsync: %s hook %q of %s failed: %v", e.Event, e.ID, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *HookError) Unwrap() error { return e.Err }

// IsHookError returns true if the error is a HookError.
func IsHookError(err error) bool {
	var e *HookError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError = sql.RollbackError

// IsConstraintError returns true if the error is a storage constraint
// violation (unique, foreign key or check).
func IsConstraintError(err error) bool {
	return sqlgraph.IsConstraintError(err)
}
