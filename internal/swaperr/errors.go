package swaperr

import (
	"errors"
	"fmt"
)

// Error codes
const (
	CodeNoRoute             = "no_route"
	CodeInsufficientBalance = "insufficient_balance"
	CodeUserRejected        = "user_rejected"
	CodeSubmissionFailed    = "submission_failed"
	CodeStaleResult         = "stale_result"
)

// Error is a swap-flow error tagged with a code from the taxonomy above
type Error struct {
	Code string `json:"code"`
	Op   string `json:"op,omitempty"`
	Err  error  `json:"-"`
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return e.Code
	}
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is
var (
	ErrNoRoute             = &Error{Code: CodeNoRoute}
	ErrInsufficientBalance = &Error{Code: CodeInsufficientBalance}
	ErrUserRejected        = &Error{Code: CodeUserRejected}
	ErrSubmissionFailed    = &Error{Code: CodeSubmissionFailed}
	ErrStaleResult         = &Error{Code: CodeStaleResult}
)

// New creates a coded error for op wrapping err
func New(code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// NoRoute wraps err as a NoRoute error
func NoRoute(op string, err error) error { return New(CodeNoRoute, op, err) }

// UserRejected wraps err as a UserRejected error
func UserRejected(op string, err error) error { return New(CodeUserRejected, op, err) }

// SubmissionFailed wraps err as a SubmissionFailed error
func SubmissionFailed(op string, err error) error { return New(CodeSubmissionFailed, op, err) }

// CodeOf returns the taxonomy code of err, or "" when err is not a swap error
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Invariant panics when cond is false. Used for coordination bugs between
// stages, which must never be converted into user-facing state.
func Invariant(cond bool, format string, args ...any) {
	if !cond {
		panic("swap invariant violated: " + fmt.Sprintf(format, args...))
	}
}
