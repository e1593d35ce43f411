package descriptor

import "fmt"

// Error is returned by Compile for declarations that cannot be compiled.
type Error struct {
	Entity string
	Msg    string
}

// Error returns the error string.
func (e *Error) Error() string {
	return fmt.Sprintf("descriptor: entity %q: %s", e.Entity, e.Msg)
}

func errorf(entity, format string, args ...any) *Error {
	return &Error{Entity: entity, Msg: fmt.Sprintf(format, args...)}
}
