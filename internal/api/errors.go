package api

import (
	"errors"
	"fmt"

	"github.com/ideaflow/ideaflow/internal/collab"
	"github.com/ideaflow/ideaflow/internal/mutation"
)

// Standard JSON-RPC error codes
const (
	ErrParseError     = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternalError  = -32603
)

// Application error codes
const (
	ErrServerError     = -32000
	ErrUnauthenticated = -32001
	ErrForbidden       = -32003
	ErrNotFound        = -32004
)

// Error represents an API error
type Error struct {
	Code    int
	Message string
}

// NewError creates a new API error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

func notFound(what, id string) *Error {
	return NewError(ErrNotFound, fmt.Sprintf("%s %q not found", what, id))
}

// classify maps an error onto a JSON-RPC code, message and data payload.
func classify(err error) (int, string, interface{}) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Message, nil
	}

	var data interface{}
	var serviceErr *mutation.ServiceError
	if errors.As(err, &serviceErr) {
		data = serviceErr.Code()
	}

	switch {
	case errors.Is(err, mutation.ErrNotFound), errors.Is(err, collab.ErrNotFound):
		return ErrNotFound, "Not found", data
	case errors.Is(err, mutation.ErrInvalidInput):
		return ErrInvalidParams, "Invalid params", data
	case errors.Is(err, mutation.ErrUnauthenticated):
		return ErrUnauthenticated, "Unauthenticated", data
	case errors.Is(err, mutation.ErrForbidden):
		return ErrForbidden, "Forbidden", data
	}
	return ErrServerError, "Server error", data
}
