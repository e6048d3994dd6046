// Package diag collects compiler diagnostics and defines the error types
// the ZIL code generator reports.
package diag

import (
	"errors"
	"fmt"

	"github.com/fzipp/zil-compiler/zils"
)

type DuplicateSymbolError struct {
	Name     string
	Category string // category of the new definition
	Existing string // category of the earlier definition
}

func (e *DuplicateSymbolError) Error() string {
	if e.Existing != "" && e.Existing != e.Category {
		return fmt.Sprintf("%s %s is already defined as a %s", e.Category, e.Name, e.Existing)
	}
	return fmt.Sprintf("%s %s is already defined", e.Category, e.Name)
}

type LimitExceededError struct {
	Limit string
	Max   int
	Got   int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("too many %s: %d (limit %d)", e.Limit, e.Got, e.Max)
}

type UndefinedReferenceError struct {
	Kind string
	Name string
}

func (e *UndefinedReferenceError) Error() string {
	return fmt.Sprintf("undefined %s: %s", e.Kind, e.Name)
}

type ArityMismatchError struct {
	Routine string
	Got     int
	Min     int
	Max     int // -1 for no upper bound
}

func (e *ArityMismatchError) Error() string {
	switch {
	case e.Max < 0:
		return fmt.Sprintf("%s: got %d arguments, want at least %d", e.Routine, e.Got, e.Min)
	case e.Min == e.Max:
		return fmt.Sprintf("%s: got %d arguments, want %d", e.Routine, e.Got, e.Min)
	}
	return fmt.Sprintf("%s: got %d arguments, want %d to %d", e.Routine, e.Got, e.Min, e.Max)
}

type MalformedFormError struct {
	Form string
	Msg  string
}

func (e *MalformedFormError) Error() string {
	return fmt.Sprintf("%s: %s", e.Form, e.Msg)
}

type NonConstantInitializerError struct {
	What string
}

func (e *NonConstantInitializerError) Error() string {
	return fmt.Sprintf("non-constant initializer for %s", e.What)
}

// PosError attaches a source position to an error.
type PosError struct {
	Pos zils.Pos
	Err error
}

func (e *PosError) Error() string { return fmt.Sprintf("%s: %v", e.Pos, e.Err) }
func (e *PosError) Unwrap() error { return e.Err }

// WithPos annotates err with pos unless it already carries a position.
func WithPos(pos zils.Pos, err error) error {
	if err == nil {
		return nil
	}
	var pe *PosError
	if errors.As(err, &pe) && pe.Pos.IsValid() {
		return err
	}
	var se *zils.SyntaxError
	if errors.As(err, &se) {
		return err
	}
	return &PosError{Pos: pos, Err: err}
}

// Fatal is the panic payload for errors that end the compilation run.
// It is recovered at the compiler entry point.
type Fatal struct {
	Err error
}

func (f Fatal) Error() string { return f.Err.Error() }
func (f Fatal) Unwrap() error { return f.Err }

// Throw aborts the run with err.
func Throw(err error) {
	panic(Fatal{Err: err})
}

// Recover converts a Fatal panic into *errp. Other panics propagate.
func Recover(errp *error) {
	if rec := recover(); rec != nil {
		f, ok := rec.(Fatal)
		if !ok {
			panic(rec)
		}
		*errp = f.Err
	}
}
