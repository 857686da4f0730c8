package http

import (
	"fmt"
	"net/http"
	"strings"
)

// Error is a failure reported to the API client with its HTTP status.
type Error struct {
	Status  int                    `json:"-"`
	Code    string                 `json:"code"`
	Field   string                 `json:"field,omitempty"`
	Message string                 `json:"message"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

func NewError(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// NotFound is a 404 with a formatted message.
func NotFound(format string, a ...interface{}) *Error {
	return NewError(http.StatusNotFound, "ERR_NOT_FOUND", fmt.Sprintf(format, a...))
}

// Conflict is a 409: the resource is in a state that forbids the request.
func Conflict(format string, a ...interface{}) *Error {
	return NewError(http.StatusConflict, "ERR_CONFLICT", fmt.Sprintf(format, a...))
}

func TooManyRequests(message string) *Error {
	return NewError(http.StatusTooManyRequests, "ERR_RATE_LIMITED", message)
}

// Invalid is a 400 about one request field.
func Invalid(field, message string) *Error {
	e := NewError(http.StatusBadRequest, "ERR_INVALID", message)
	e.Field = field
	return e
}

// FieldErrors is what Bind returns when a request cannot be read or fails
// validation. It is always a 400.
type FieldErrors []*Error

func (fe FieldErrors) Error() string {
	msgs := make([]string, len(fe))
	for i, e := range fe {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}
