// Package apperr is the error taxonomy shared by every handler. Errors carry
// a client-safe message; causes are kept for logs only.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeUnauthenticated Code = "unauthenticated"
	CodeForbidden       Code = "forbidden"
	CodeNotFound        Code = "not_found"
	CodeConflict        Code = "conflict"
	CodeBadRequest      Code = "bad_request"
	CodeTooManyRequests Code = "too_many_requests"
	CodeInternal        Code = "internal"
)

var statusByCode = map[Code]int{
	CodeUnauthenticated: http.StatusUnauthorized,
	CodeForbidden:       http.StatusForbidden,
	CodeNotFound:        http.StatusNotFound,
	CodeConflict:        http.StatusConflict,
	CodeBadRequest:      http.StatusBadRequest,
	CodeTooManyRequests: http.StatusTooManyRequests,
	CodeInternal:        http.StatusInternalServerError,
}

// Messages rendered when a constructor is given an empty message.
const (
	MsgUnauthenticated = "No autorizado"
	MsgForbidden       = "Acceso denegado"
	MsgNotFound        = "Recurso no encontrado"
	MsgInternal        = "Error interno del servidor"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Status is the HTTP status for the error's code.
func (e *Error) Status() int {
	if s, ok := statusByCode[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func Unauthenticated() *Error {
	return New(CodeUnauthenticated, MsgUnauthenticated)
}

func Forbidden(msg string) *Error {
	if msg == "" {
		msg = MsgForbidden
	}
	return New(CodeForbidden, msg)
}

func NotFound(msg string) *Error {
	if msg == "" {
		msg = MsgNotFound
	}
	return New(CodeNotFound, msg)
}

func Conflict(msg string) *Error {
	return New(CodeConflict, msg)
}

func BadRequest(msg string) *Error {
	return New(CodeBadRequest, msg)
}

func TooManyRequests(msg string) *Error {
	return New(CodeTooManyRequests, msg)
}

// Internal hides err behind the generic message.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: MsgInternal, Err: err}
}

// As finds the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the taxonomy code of err; unknown errors are internal.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}
