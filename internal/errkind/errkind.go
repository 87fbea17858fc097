// Package errkind classifies errors into the fixed set of kinds exposed to
// MCP clients. Every failure surfaced by a tool call carries exactly one Kind.
package errkind

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the error classification. The string value is the machine-readable
// code placed in tool responses.
type Kind string

const (
	Validation        Kind = "validation_error"
	UnsafeQuery       Kind = "unsafe_query"
	ServiceNotFound   Kind = "service_not_found"
	ModelNotSupported Kind = "model_not_supported"
	Configuration     Kind = "configuration_error"
	Backend           Kind = "backend_error"
)

// Error is a classified error. Message is complete and self-contained —
// it names the offending field and lists accepted values where they exist,
// so agents can correct the call without a round-trip to documentation.
type Error struct {
	Kind    Kind
	Message string
	Field   string   // offending parameter name, when known
	Choices []string // accepted values, for not-found/not-supported errors
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with the given kind and formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validationf creates a Validation error for the named parameter.
// The parameter name is prefixed onto the message so it always reads
// "field: problem" even when only Message is displayed.
func Validationf(field, format string, args ...any) *Error {
	return &Error{
		Kind:    Validation,
		Message: field + ": " + fmt.Sprintf(format, args...),
		Field:   field,
	}
}

// Unsafe wraps a safety checker rejection as an UnsafeQuery error.
func Unsafe(err error) *Error {
	return &Error{
		Kind:    UnsafeQuery,
		Message: "query blocked: " + err.Error(),
		Field:   "query",
		cause:   err,
	}
}

// UnsupportedModel creates a ModelNotSupported error naming the rejected
// model and listing every supported one.
func UnsupportedModel(model string, supported []string) *Error {
	return &Error{
		Kind:    ModelNotSupported,
		Message: fmt.Sprintf("model %q is not supported; supported models: %s", model, strings.Join(supported, ", ")),
		Field:   "model",
		Choices: supported,
	}
}

// NoSuchService creates a ServiceNotFound error for an unresolved Cortex
// service reference. configured lists the service names that do exist.
func NoSuchService(serviceType, name string, configured []string) *Error {
	msg := fmt.Sprintf("unknown Cortex %s service %q", serviceType, name)
	if len(configured) == 0 {
		msg += fmt.Sprintf("; no %s services are configured", serviceType)
	} else {
		msg += fmt.Sprintf("; configured %s services: %s", serviceType, strings.Join(configured, ", "))
	}
	return &Error{
		Kind:    ServiceNotFound,
		Message: msg,
		Field:   "service_name",
		Choices: configured,
	}
}

// Configurationf creates a Configuration error.
func Configurationf(format string, args ...any) *Error {
	return &Error{Kind: Configuration, Message: fmt.Sprintf(format, args...)}
}

// Classify returns err as an *Error. Already-classified errors pass through
// unchanged, including those wrapped with %w. Anything else becomes a
// Backend error preserving the original message.
func Classify(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: Backend, Message: err.Error(), cause: err}
}

// ClassifyConnection wraps a connection-stage failure, separating bad
// credentials from unreachable-service problems by the driver's message.
// Both are Backend errors; the prefix is what tells an agent whether to fix
// credentials or connectivity.
func ClassifyConnection(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	msg := err.Error()
	if strings.Contains(msg, "Authentication failed") ||
		strings.Contains(msg, "Invalid credentials") ||
		strings.Contains(msg, "Incorrect username or password") {
		return &Error{Kind: Backend, Message: "authentication failed: " + msg, cause: err}
	}
	return &Error{Kind: Backend, Message: "connection failed: " + msg, cause: err}
}

// Is reports whether err classifies to the given kind.
func Is(err error, kind Kind) bool {
	return Classify(err).Kind == kind
}
