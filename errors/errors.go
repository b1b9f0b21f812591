package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDecode      Phase = "decode"      // wire bytes to messages
	PhaseEncode      Phase = "encode"      // requests to wire bytes
	PhaseEngine      Phase = "engine"      // execution module operations
	PhaseBridge      Phase = "bridge"      // stream simulation and serialization
	PhaseStartup     Phase = "startup"     // connection startup exchange
	PhaseMaterialize Phase = "materialize" // messages to typed results
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidData    Kind = "invalid_data"
	KindInvalidUTF8    Kind = "invalid_utf8"
	KindTruncated      Kind = "truncated"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindOverflow       Kind = "overflow"
	KindCapacity       Kind = "capacity"
	KindProtocol       Kind = "protocol"
	KindUnsupported    Kind = "unsupported"
	KindNotInitialized Kind = "not_initialized"
	KindClosed         Kind = "closed"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	// MessageTag is the wire tag byte of the frame being processed when the
	// error occurred, or 0 when no frame context applies.
	MessageTag byte
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.MessageTag != 0 {
		fmt.Fprintf(&b, " in message %q", e.MessageTag)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
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

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Tag sets the wire message tag the error occurred in
func (b *Builder) Tag(tag byte) *Builder {
	b.err.MessageTag = tag
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

// Convenience constructors for common error patterns

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error with a bounded data preview
func InvalidUTF8(phase Phase, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// Truncated creates an error for a field extending past its message
func Truncated(phase Phase, what string, want, have int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTruncated,
		Detail: fmt.Sprintf("%s needs %d bytes, %d available", what, want, have),
	}
}

// OutOfBounds creates an out of bounds memory access error
func OutOfBounds(phase Phase, ptr, length, extent uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("access [%d, %d) outside memory extent %d", ptr, uint64(ptr)+uint64(length), extent),
	}
}

// Capacity creates an error for a buffer exceeding its hard ceiling
func Capacity(phase Phase, need, limit int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCapacity,
		Detail: fmt.Sprintf("buffer would grow to %d bytes, limit %d", need, limit),
	}
}

// Protocol creates a protocol violation error
func Protocol(phase Phase, detail string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindProtocol,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotInitialized creates a not-initialized error for missing components
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// Closed creates an error for operations on a closed component
func Closed(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", component),
	}
}

// Wrap wraps an existing error with phase and kind context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
