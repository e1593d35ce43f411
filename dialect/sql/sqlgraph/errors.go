// Package sqlgraph classifies storage errors raised by the PostgreSQL and
// SQL Server drivers.
package sqlgraph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	mssql "github.com/microsoft/go-mssqldb"
)

// Violation is the kind of constraint a statement violated.
type Violation uint8

// Violation kinds.
const (
	NoViolation Violation = iota
	UniqueViolation
	ForeignKeyViolation
	CheckViolation
)

func (v Violation) String() string {
	switch v {
	case UniqueViolation:
		return "unique"
	case ForeignKeyViolation:
		return "foreign key"
	case CheckViolation:
		return "check"
	default:
		return "none"
	}
}

// ConstraintError wraps a storage error that violated a constraint.
type ConstraintError struct {
	Violation Violation
	Err       error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("sqlgraph: %s constraint failed: %v", e.Violation, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// WrapConstraint returns err wrapped in a *ConstraintError when it resulted
// from a constraint violation, and err unchanged otherwise.
func WrapConstraint(err error) error {
	var ce *ConstraintError
	if err == nil || errors.As(err, &ce) {
		return err
	}
	if v := Classify(err); v != NoViolation {
		return &ConstraintError{Violation: v, Err: err}
	}
	return err
}

// SQLSTATE class 23 codes.
var pgStates = map[string]Violation{
	"23505": UniqueViolation,
	"23503": ForeignKeyViolation,
	"23514": CheckViolation,
}

// Driver messages, for errors that lost their driver type on the way.
var messages = []struct {
	text string
	v    Violation
}{
	{"violates unique constraint", UniqueViolation},
	{"Violation of UNIQUE KEY", UniqueViolation},
	{"Violation of PRIMARY KEY", UniqueViolation},
	{"Cannot insert duplicate key", UniqueViolation},
	{"violates foreign key constraint", ForeignKeyViolation},
	{"conflicted with the FOREIGN KEY", ForeignKeyViolation},
	{"conflicted with the REFERENCE", ForeignKeyViolation},
	{"violates check constraint", CheckViolation},
	{"conflicted with the CHECK", CheckViolation},
}

// Classify returns the constraint violated by err, if any. It recognizes
// *pq.Error codes, SQL Server error numbers (mssql.Error or any error with
// an SQLErrorNumber method) and, failing both, the driver messages.
func Classify(err error) Violation {
	if err == nil {
		return NoViolation
	}
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Violation
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		if v, ok := pgStates[string(pe.Code)]; ok {
			return v
		}
	}
	if e, ok := find[interface{ SQLState() string }](err); ok {
		if v, ok := pgStates[e.SQLState()]; ok {
			return v
		}
	}
	if n, msg, ok := mssqlNumber(err); ok {
		switch {
		case n == 2627 || n == 2601:
			return UniqueViolation
		case n == 547 && strings.Contains(msg, "CHECK"):
			return CheckViolation
		case n == 547:
			return ForeignKeyViolation
		}
	}
	msg := err.Error()
	for _, m := range messages {
		if strings.Contains(msg, m.text) {
			return m.v
		}
	}
	return NoViolation
}

// mssqlNumber returns the SQL Server error number in the chain of err.
// 547 is shared by foreign key and check constraints; the message tells
// them apart.
func mssqlNumber(err error) (int32, string, bool) {
	var me mssql.Error
	if errors.As(err, &me) {
		return me.Number, me.Message, true
	}
	if e, ok := find[interface{ SQLErrorNumber() int32 }](err); ok {
		return e.SQLErrorNumber(), err.Error(), true
	}
	return 0, "", false
}

func find[T any](err error) (T, bool) {
	var zero T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return zero, false
}

// IsConstraintError reports if err resulted from any constraint violation.
func IsConstraintError(err error) bool { return Classify(err) != NoViolation }

// IsUniqueConstraintError reports if err resulted from a duplicate key.
func IsUniqueConstraintError(err error) bool { return Classify(err) == UniqueViolation }

// IsForeignKeyConstraintError reports if err resulted from a missing or
// still referenced row.
func IsForeignKeyConstraintError(err error) bool { return Classify(err) == ForeignKeyViolation }

// IsCheckConstraintError reports if err resulted from a failed check.
func IsCheckConstraintError(err error) bool { return Classify(err) == CheckViolation }
