package client

import (
	"errors"
	"fmt"
	"testing"
)

func TestRequestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *RequestError
		expected string
	}{
		{
			name: "server error at offset",
			err: &RequestError{
				Class:      ErrorClassServer,
				StatusCode: 500,
				Offset:     1000,
				Message:    "internal server error",
			},
			expected: "search server error (status 500) at offset 1000: internal server error",
		},
		{
			name: "network error on count request",
			err: &RequestError{
				Class:  ErrorClassNetwork,
				Offset: -1,
				Err:    errors.New("connection refused"),
			},
			expected: "search network error: connection refused",
		},
		{
			name: "decode error with message and cause",
			err: &RequestError{
				Class:   ErrorClassDecode,
				Offset:  0,
				Message: "response is not a JSON object",
				Err:     errors.New("invalid character '<'"),
			},
			expected: "search decode error at offset 0: response is not a JSON object: invalid character '<'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSchemaError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *SchemaError
		expected string
	}{
		{
			name:     "missing total on count request",
			err:      &SchemaError{Field: "meta.total", Offset: -1, Message: "missing"},
			expected: `response schema error on "meta.total": missing`,
		},
		{
			name:     "results not an array at offset",
			err:      &SchemaError{Field: "results", Offset: 500, Message: "not an array"},
			expected: `response schema error on "results" at offset 500: not an array`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestErrors_IsAndAs(t *testing.T) {
	cause := errors.New("boom")
	reqErr := fmt.Errorf("fetch page: %w", &RequestError{Class: ErrorClassServer, Offset: 0, Err: cause})
	schemaErr := fmt.Errorf("fetch total: %w", &SchemaError{Field: "meta.total", Offset: -1})

	if !errors.Is(reqErr, ErrRequest) {
		t.Error("errors.Is(reqErr, ErrRequest) = false")
	}
	if errors.Is(reqErr, ErrSchema) {
		t.Error("errors.Is(reqErr, ErrSchema) = true")
	}
	if !errors.Is(reqErr, cause) {
		t.Error("errors.Is should reach the wrapped cause")
	}

	var re *RequestError
	if !errors.As(reqErr, &re) || re.Class != ErrorClassServer {
		t.Errorf("errors.As(reqErr) = %v", re)
	}

	if !errors.Is(schemaErr, ErrSchema) {
		t.Error("errors.Is(schemaErr, ErrSchema) = false")
	}
	var se *SchemaError
	if !errors.As(schemaErr, &se) || se.Field != "meta.total" {
		t.Errorf("errors.As(schemaErr) = %v", se)
	}
}

func TestErrors_UnwrapNil(t *testing.T) {
	if (&RequestError{}).Unwrap() != nil {
		t.Error("RequestError.Unwrap() should be nil")
	}
	if (&SchemaError{}).Unwrap() != nil {
		t.Error("SchemaError.Unwrap() should be nil")
	}
}
