package gfab

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an Error for the purpose of choosing a process exit code.
type Kind int

const (
	// KindUsage is a bad command line invocation.
	KindUsage Kind = iota
	// KindEmptyInput means a load saw no segments.
	KindEmptyInput
	// KindMalformedRecord means the GFA1 or PAF parser rejected input.
	KindMalformedRecord
	// KindDuplicateSegment means two segments share a name.
	KindDuplicateSegment
	// KindNotFound means a query selector didn't resolve to anything.
	KindNotFound
	// KindIncompatibleFile means the application id or schema didn't match.
	KindIncompatibleFile
	// KindIO means the underlying storage or network failed.
	KindIO
	// KindInternal means an invariant was violated.
	KindInternal
)

// ExitCode returns the process exit code associated with k, per the CLI
// contract.
func (k Kind) ExitCode() int {
	switch k {
	case KindUsage:
		return 2
	case KindEmptyInput:
		return 3
	case KindMalformedRecord, KindDuplicateSegment:
		return 4
	case KindNotFound, KindIncompatibleFile:
		return 1
	case KindIO:
		return 5
	case KindInternal:
		return 6
	default:
		return 6
	}
}

func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "USAGE"
	case KindEmptyInput:
		return "EMPTY_INPUT"
	case KindMalformedRecord:
		return "MALFORMED_RECORD"
	case KindDuplicateSegment:
		return "DUPLICATE_SEGMENT"
	case KindNotFound:
		return "NOT_FOUND"
	case KindIncompatibleFile:
		return "INCOMPATIBLE_FILE"
	case KindIO:
		return "IO"
	case KindInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// Error is a Kind-tagged error. It wraps an underlying cause and carries
// enough context (line number, field) for the loader and parser to report
// precisely where things went wrong.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through Error to Cause.
func (e *Error) Unwrap() error { return errors.Cause(e.Cause) }

// Errorf builds a new *Error of the given kind.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and a message to an existing error, preserving it as
// the cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: errors.WithStack(cause)}
}

// KindOf extracts the Kind of err, defaulting to KindInternal when err is
// not a *Error.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindInternal
}

// ExitCode extracts the process exit code implied by err, returning 0 when
// err is nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return KindOf(err).ExitCode()
}
