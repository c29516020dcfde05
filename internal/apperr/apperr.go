package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindPaymentRequired
	KindExternal
)

// Error 带 HTTP 语义的业务错误
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindPaymentRequired:
		return http.StatusPaymentRequired
	case KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Unauthorized(msg string) *Error {
	return New(KindUnauthorized, "unauthorized", msg)
}

func Forbidden(msg string) *Error {
	return New(KindForbidden, "forbidden", msg)
}

func NotFound(what string) *Error {
	return New(KindNotFound, "not_found", fmt.Sprintf("%s not found", what))
}

func Validation(msg string, details any) *Error {
	return &Error{Kind: KindValidation, Code: "invalid_request", Message: msg, Details: details}
}

func Conflict(msg string) *Error {
	return New(KindConflict, "conflict", msg)
}

func External(service string, err error) *Error {
	return &Error{Kind: KindExternal, Code: "external_failure", Message: fmt.Sprintf("%s unavailable", service), Err: err}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal", Message: "internal error", Err: err}
}

// As 提取 *Error；非业务错误统一视为 Internal
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return As(err).Status()
}

func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
