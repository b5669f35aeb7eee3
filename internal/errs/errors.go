// Package errs defines the structured error taxonomy shared by every
// provgraph component.
//
// Every error surfaced across a package boundary is (or wraps) an *Error
// carrying a Code. Callers branch on the code with the Is* helpers, which
// use errors.As and therefore see through fmt.Errorf("...: %w") wrapping.
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code categorizes provgraph errors.
type Code string

const (
	// CodeIdentityMismatch indicates a supplied identifier does not equal the
	// identifier recomputed from content.
	CodeIdentityMismatch Code = "IDENTITY_MISMATCH"

	// CodeMalformedStatement indicates a statement failed structural decoding
	// or construction (for example an empty identifier list).
	CodeMalformedStatement Code = "MALFORMED_STATEMENT"

	// CodeUnsupportedRegistration indicates a statement variant is not
	// accepted by the operation it was passed to.
	CodeUnsupportedRegistration Code = "UNSUPPORTED_REGISTRATION"

	// CodeNotFound indicates a graph, statement or blob does not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeAlreadyExists indicates a create call collided with an existing record.
	CodeAlreadyExists Code = "ALREADY_EXISTS"

	// CodeIntegrity indicates stored data violates a structural invariant,
	// such as a cycle in the graph parent chain.
	CodeIntegrity Code = "INTEGRITY"

	// CodeFilterSyntax indicates a filter expression could not be parsed.
	CodeFilterSyntax Code = "FILTER_SYNTAX"

	// CodeStorage indicates the persistence layer failed.
	CodeStorage Code = "STORAGE"
)

// Error is the structured error type.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Details contains additional context (ids, graph ids, expressions).
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+e.Details[k])
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the Code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func hasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsIdentityMismatch reports whether err is an identity mismatch.
func IsIdentityMismatch(err error) bool { return hasCode(err, CodeIdentityMismatch) }

// IsMalformed reports whether err is a malformed statement error.
func IsMalformed(err error) bool { return hasCode(err, CodeMalformedStatement) }

// IsUnsupported reports whether err is an unsupported registration error.
func IsUnsupported(err error) bool { return hasCode(err, CodeUnsupportedRegistration) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsAlreadyExists reports whether err is an already-exists error.
func IsAlreadyExists(err error) bool { return hasCode(err, CodeAlreadyExists) }

// IsIntegrity reports whether err is an integrity error.
func IsIntegrity(err error) bool { return hasCode(err, CodeIntegrity) }

// IsFilterSyntax reports whether err is a filter syntax error.
func IsFilterSyntax(err error) bool { return hasCode(err, CodeFilterSyntax) }

// IsStorage reports whether err is a storage error.
func IsStorage(err error) bool { return hasCode(err, CodeStorage) }

// New creates an Error with the given code and message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error with the given code around cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: cause}
}

// With returns e with the key/value pair added to Details.
func (e *Error) With(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// NewNotFound creates a not-found error for the given kind and id.
func NewNotFound(kind, id string) *Error {
	return New(CodeNotFound, "%s not found", kind).With(kind, id)
}

// NewMalformed creates a malformed statement error.
func NewMalformed(format string, args ...any) *Error {
	return New(CodeMalformedStatement, format, args...)
}

// NewUnsupported creates an unsupported registration error.
func NewUnsupported(statementType, operation string) *Error {
	return New(CodeUnsupportedRegistration, "%s is not supported by %s", statementType, operation).
		With("type", statementType)
}

// NewIntegrity creates an integrity error.
func NewIntegrity(format string, args ...any) *Error {
	return New(CodeIntegrity, format, args...)
}

// NewStorage wraps a persistence failure.
func NewStorage(op string, cause error) *Error {
	return Wrap(CodeStorage, cause, "%s failed", op)
}
