// Package apperr defines the tagged error variants raised at the mutation
// boundary. They are mapped to transport status codes by the HTTP layer and
// never travel through the event pipeline.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindBadRequest Kind = iota
	KindNotFound
	KindConflict
)

type Error struct {
	Kind    Kind
	Message string
	// FieldErrors maps a field name to its validation messages; populated
	// for request validation failures only.
	FieldErrors map[string][]string
}

func (e *Error) Error() string { return e.Message }

func BadRequest(message string) *Error {
	return &Error{Kind: KindBadRequest, Message: message}
}

func Validation(message string, fieldErrors map[string][]string) *Error {
	return &Error{Kind: KindBadRequest, Message: message, FieldErrors: fieldErrors}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Conflict marks a business-rule violation: the request was well formed but
// the aggregate's current state forbids it.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func (e *Error) Code() string {
	switch e.Kind {
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	default:
		return "INVALID_ARGUMENT"
	}
}

// As unwraps err into *Error when it is one.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func IsNotFound(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == KindNotFound
}
