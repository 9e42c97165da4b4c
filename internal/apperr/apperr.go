// Package apperr carries an HTTP status alongside a human-readable message so
// service errors can cross the HTTP boundary unchanged.
package apperr

import (
	"errors"
	"net/http"
)

type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, msg string) *Error { return &Error{Status: status, Message: msg} }

// Wrap keeps err reachable through errors.Is/As while presenting msg to callers.
func Wrap(status int, msg string, err error) *Error {
	return &Error{Status: status, Message: msg, Err: err}
}

func NotFound(msg string) *Error           { return New(http.StatusNotFound, msg) }
func BadRequest(msg string) *Error         { return New(http.StatusBadRequest, msg) }
func Unauthorized(msg string) *Error       { return New(http.StatusUnauthorized, msg) }
func Forbidden(msg string) *Error          { return New(http.StatusForbidden, msg) }
func Conflict(msg string) *Error           { return New(http.StatusConflict, msg) }
func ServiceUnavailable(msg string) *Error { return New(http.StatusServiceUnavailable, msg) }
func Internal(msg string) *Error           { return New(http.StatusInternalServerError, msg) }

// StatusOf reports the HTTP status for err; errors that are not *Error map to 500.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the public message for err. Foreign errors are hidden
// behind the generic status text.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return http.StatusText(http.StatusInternalServerError)
}
