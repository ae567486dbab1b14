package client

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is matching on the typed errors below.
var (
	// ErrRequest matches every *RequestError.
	ErrRequest = errors.New("search request failed")

	// ErrSchema matches every *SchemaError.
	ErrSchema = errors.New("unexpected response schema")
)

// RequestError reports a failed search call: transport failure, a non-success
// HTTP status, or a body that is not a JSON object.
type RequestError struct {
	// Class is the error classification used for metrics and logs.
	Class ErrorClass

	// StatusCode is the HTTP status, 0 when no response was received.
	StatusCode int

	// Offset is the page offset of the failed request, -1 for the count request.
	Offset int

	Message string
	Err     error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	msg := fmt.Sprintf("search %s error", e.Class)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at offset %d", e.Offset)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrRequest.
func (e *RequestError) Is(target error) bool {
	return target == ErrRequest
}

// SchemaError reports a response that decoded as JSON but lacks the structure
// the retriever depends on, such as a missing meta.total.
type SchemaError struct {
	// Field is the dotted path of the offending field.
	Field string

	// Offset is the page offset of the response, -1 for the count request.
	Offset int

	Message string
	Err     error
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("response schema error on %q", e.Field)
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at offset %d", e.Offset)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrSchema.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}
