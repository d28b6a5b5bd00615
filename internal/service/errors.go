package service

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"net/http"

	"gorm.io/gorm"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindInactiveUser
	KindForbidden
	KindNotFound
	KindConflict
	KindInvalidTransition
	KindDependency
	KindUnavailable
)

// Error is what services hand back to handlers. Code is stable for client branching.
type Error struct {
	Kind    Kind
	Code    string
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

// Status maps the kind to an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindInactiveUser, KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInvalidTransition:
		return http.StatusConflict
	case KindDependency:
		return http.StatusBadGateway
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func ErrValidation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: fmt.Sprintf(format, args...)}
}

func ErrUnauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Code: "UNAUTHORIZED", Message: msg}
}

func ErrInactiveUser() *Error {
	return &Error{Kind: KindInactiveUser, Code: "INACTIVE_USER", Message: "la cuenta está desactivada"}
}

func ErrForbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Code: "FORBIDDEN", Message: msg}
}

func ErrNotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: what + " no encontrado"}
}

func ErrConflict(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

func ErrInvalidTransition(from, to interface{}) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Code:    "INVALID_TRANSITION",
		Message: fmt.Sprintf("no se puede pasar de %v a %v", from, to),
	}
}

// ErrImageHost wraps a failure of the image hosting service.
func ErrImageHost(err error) *Error {
	return &Error{Kind: KindDependency, Code: "IMAGE_HOST_UNAVAILABLE", Message: "servicio de imágenes no disponible", Err: err}
}

// ErrDatastore wraps a failure talking to the database.
func ErrDatastore(err error) *Error {
	return &Error{Kind: KindUnavailable, Code: "DATASTORE_UNAVAILABLE", Message: "base de datos no disponible", Err: err}
}

// ErrDependency wraps a failure of any other upstream service.
func ErrDependency(code string, err error) *Error {
	return &Error{Kind: KindDependency, Code: code, Message: "servicio externo no disponible", Err: err}
}

func ErrUnavailable(msg string) *Error {
	return &Error{Kind: KindUnavailable, Code: "UNAVAILABLE", Message: msg}
}

func ErrInternal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL_ERROR", Message: "error interno", Err: err}
}

// AsError converts any error into *Error. Record-not-found becomes NotFound for what.
func AsError(err error, what string) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound(what)
	}
	if isConnError(err) {
		return ErrDatastore(err)
	}
	return ErrInternal(err)
}

func isConnError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// IsKind reports whether err is a service error of kind k.
func IsKind(err error, k Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == k
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound(what)
	}
	return err
}
