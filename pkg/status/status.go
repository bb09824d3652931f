package status

import (
	"errors"
	"fmt"
	"strings"
)

// Code is a boundary status code.
type Code int32

const (
	OK Code = iota
	InvalidHandle
	BufferTooSmall
	MalformedGeometry
	UnknownBone
	NonMonotonicTime
	ModelLibraryFailure
	Unsupported
)

var codeNames = [...]string{
	OK:                  "ok",
	InvalidHandle:       "invalid_handle",
	BufferTooSmall:      "buffer_too_small",
	MalformedGeometry:   "malformed_geometry",
	UnknownBone:         "unknown_bone",
	NonMonotonicTime:    "non_monotonic_time",
	ModelLibraryFailure: "model_library_failure",
	Unsupported:         "unsupported",
}

func (c Code) String() string {
	if c >= 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("code(%d)", int32(c))
}

// Error is the structured failure carried to the boundary.
type Error struct {
	Cause    error
	Op       string
	Detail   string
	Code     Code
	Required int // BufferTooSmall only
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(e.Code.String())
	b.WriteByte(']')

	if e.Op != "" {
		b.WriteByte(' ')
		b.WriteString(e.Op)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Code == BufferTooSmall {
		fmt.Fprintf(&b, " (required %d)", e.Required)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(code Code) *Builder {
	return &Builder{err: Error{Code: code}}
}

// Op sets the boundary operation name
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Required sets the required buffer length
func (b *Builder) Required(n int) *Builder {
	b.err.Required = n
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidHandle       = &Error{Code: InvalidHandle}
	ErrBufferTooSmall      = &Error{Code: BufferTooSmall}
	ErrMalformedGeometry   = &Error{Code: MalformedGeometry}
	ErrUnknownBone         = &Error{Code: UnknownBone}
	ErrNonMonotonicTime    = &Error{Code: NonMonotonicTime}
	ErrModelLibraryFailure = &Error{Code: ModelLibraryFailure}
	ErrUnsupported         = &Error{Code: Unsupported}
)

// TooSmall reports a caller buffer of length have where required is needed.
func TooSmall(op string, required, have int) *Error {
	return &Error{
		Code:     BufferTooSmall,
		Op:       op,
		Required: required,
		Detail:   fmt.Sprintf("buffer holds %d elements", have),
	}
}

// Malformed creates a MalformedGeometry error.
func Malformed(op, format string, args ...any) *Error {
	return New(MalformedGeometry).Op(op).Detail(format, args...).Build()
}

// Library wraps a Model Library failure, passing its message through.
func Library(op string, cause error) *Error {
	return &Error{Code: ModelLibraryFailure, Op: op, Cause: cause}
}

// CodeOf maps err to its status code. Errors that are not *Error are
// reported as ModelLibraryFailure.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ModelLibraryFailure
}

// RequiredOf returns the required length carried by a BufferTooSmall error.
func RequiredOf(err error) int {
	var se *Error
	if errors.As(err, &se) && se.Code == BufferTooSmall {
		return se.Required
	}
	return 0
}

// Recover converts a panic into a ModelLibraryFailure stored in *errp.
// It must be deferred directly.
func Recover(op string, errp *error) {
	if r := recover(); r != nil {
		b := New(ModelLibraryFailure).Op(op).Detail("panic: %v", r)
		if err, ok := r.(error); ok {
			b.Cause(err)
		}
		*errp = b.Build()
	}
}
