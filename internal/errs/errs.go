// Package errs implements tak's error taxonomy (spec.md §7): typed values
// carrying a stable machine code, so the CLI frontend can map any failure to
// a structured {"error": code, "message": text} record without string
// sniffing. A stable code taxonomy wrapping an underlying cause in
// internal/storage/sqlite/errors.go, generalized to cover the whole taxonomy.
package errs

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error kind.
type Code string

const (
	NotFound            Code = "NotFound"
	InvalidPrefix       Code = "InvalidPrefix"
	AmbiguousPrefix     Code = "AmbiguousPrefix"
	NotInRepo           Code = "NotInRepo"
	InvalidTransition   Code = "InvalidTransition"
	TaskBlocked         Code = "TaskBlocked"
	CycleDetected       Code = "CycleDetected"
	SelfReference       Code = "SelfReference"
	HasChildren         Code = "HasChildren"
	HasDependents       Code = "HasDependents"
	ClaimBusy           Code = "ClaimBusy"
	ReservationConflict Code = "ReservationConflict"
	LockTimeout         Code = "LockTimeout"
	CorruptJSON         Code = "CorruptJson"
	MigrationRequired   Code = "MigrationRequired"
	InvalidArgument     Code = "InvalidArgument"
	MetricsInvalidQuery Code = "MetricsInvalidQuery"
	IOError             Code = "IoError"
	Internal            Code = "Internal"
)

// Sentinel errors for the common taxonomy codes, so callers can write
// errors.Is(err, errs.ErrNotFound) instead of errs.Is(err, errs.NotFound).
var (
	ErrNotFound            = &Error{Code: NotFound, Message: "not found"}
	ErrInvalidPrefix       = &Error{Code: InvalidPrefix, Message: "invalid id prefix"}
	ErrAmbiguousPrefix     = &Error{Code: AmbiguousPrefix, Message: "ambiguous id prefix"}
	ErrNotInRepo           = &Error{Code: NotInRepo, Message: "not in a tak repository"}
	ErrInvalidTransition   = &Error{Code: InvalidTransition, Message: "invalid lifecycle transition"}
	ErrTaskBlocked         = &Error{Code: TaskBlocked, Message: "task is blocked"}
	ErrCycle               = &Error{Code: CycleDetected, Message: "dependency cycle detected"}
	ErrSelfReference       = &Error{Code: SelfReference, Message: "task references itself"}
	ErrHasChildren         = &Error{Code: HasChildren, Message: "task has children"}
	ErrHasDependents       = &Error{Code: HasDependents, Message: "task has dependents"}
	ErrClaimBusy           = &Error{Code: ClaimBusy, Message: "claim lock busy"}
	ErrReservationConflict = &Error{Code: ReservationConflict, Message: "reservation conflict"}
	ErrLockTimeout         = &Error{Code: LockTimeout, Message: "lock acquisition timed out"}
	ErrCorruptJSON         = &Error{Code: CorruptJSON, Message: "corrupt json"}
	ErrMigrationRequired   = &Error{Code: MigrationRequired, Message: "migration required"}
	ErrInvalidArgument     = &Error{Code: InvalidArgument, Message: "invalid argument"}
	ErrInternal            = &Error{Code: Internal, Message: "internal error"}
)

// Error is the typed value propagated throughout tak's core.
type Error struct {
	Code    Code
	Message string
	Path    string // populated for IOError
	cause   error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is implements errors.Is support: two *Error values match when their Code
// matches, so callers can compare a wrapped failure against one of the
// sentinels above without needing pointer identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New builds a typed error with no wrapped cause.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a typed error around an existing cause, preserving it for errors.Is/As.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WithPath attaches path context, used for IOError per spec.md §7.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// CodeOf extracts the taxonomy code from any error, defaulting to Internal
// for errors that never passed through this package (a bug, not an expected
// failure — the frontend must be able to tell the two apart per spec.md §7).
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// Is reports whether err carries the given taxonomy code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
