// Package errors defines the closed set of domain error kinds used across the
// service. Every kind maps to exactly one HTTP status; the HTTP boundary is the
// only place that performs that mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindGateway
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindGateway:
		return "gateway"
	default:
		return "internal"
	}
}

// HTTPStatus returns the response status associated with the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest, KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FieldError describes a single invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Error struct {
	Kind    Kind
	Message string
	Details []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a domain kind and a client-facing message to an underlying error.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func BadRequest(format string, args ...any) *Error {
	return Newf(KindBadRequest, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return Newf(KindConflict, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return Newf(KindForbidden, format, args...)
}

func NotFound(entity string, id any) *Error {
	return Newf(KindNotFound, "%s %v not found", entity, id)
}

func Validation(message string, details ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

// KindOf reports the kind of err, or KindInternal for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

var ErrUnauthorized = New(KindUnauthorized, "user is not authorized")
var ErrForbidden = New(KindForbidden, "operation is forbidden for user")
