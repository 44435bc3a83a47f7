package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every *Error built by the constructors below wraps one of
// these, so callers can branch with errors.Is.
var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrPaymentGateway     = errors.New("payment gateway error")
	ErrPaymentRequired    = errors.New("payment required")
	ErrAnalysisGeneration = errors.New("analysis generation error")
)

// Error carries the wire status and code. Message is what clients see; Err
// keeps the kind and cause for errors.Is and logs.
type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func wrap(kind error, status int, code, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Status: status, Code: code, Message: msg, Err: fmt.Errorf("%w: %s", kind, msg)}
}

func Validation(code, format string, args ...any) *Error {
	return wrap(ErrValidation, http.StatusBadRequest, code, format, args...)
}

func NotFound(code, format string, args ...any) *Error {
	return wrap(ErrNotFound, http.StatusNotFound, code, format, args...)
}

func Forbidden(code, format string, args ...any) *Error {
	return wrap(ErrForbidden, http.StatusForbidden, code, format, args...)
}

func Conflict(code, format string, args ...any) *Error {
	return wrap(ErrConflict, http.StatusConflict, code, format, args...)
}

func PaymentRequired(code, format string, args ...any) *Error {
	return wrap(ErrPaymentRequired, http.StatusPaymentRequired, code, format, args...)
}

// PaymentGateway wraps a failed call to the checkout provider.
func PaymentGateway(code string, cause error) *Error {
	e := New(http.StatusBadGateway, code, fmt.Errorf("%w: %w", ErrPaymentGateway, cause))
	e.Message = causeText(cause)
	return e
}

// AnalysisGeneration wraps a failed or timed out narrative call.
func AnalysisGeneration(cause error) *Error {
	e := New(http.StatusServiceUnavailable, "analysis_generation_failed", fmt.Errorf("%w: %w", ErrAnalysisGeneration, cause))
	e.Message = causeText(cause)
	return e
}

func causeText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// MessageOf returns the client-facing message of the first *Error in err's
// chain, without the wrapping added on the way up. ok is false when err
// carries no *Error.
func MessageOf(err error) (msg string, ok bool) {
	var ae *Error
	if !errors.As(err, &ae) || ae == nil {
		return "", false
	}
	if ae.Message != "" {
		return ae.Message, true
	}
	if ae.Err != nil {
		return ae.Err.Error(), true
	}
	return ae.Code, true
}

// StatusOf returns the HTTP status and code carried by err, falling back to
// 500/internal_error.
func StatusOf(err error) (int, string) {
	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		status := ae.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		code := ae.Code
		if code == "" {
			code = "internal_error"
		}
		return status, code
	}
	return http.StatusInternalServerError, "internal_error"
}

// FromStatus rebuilds a typed error from a status and code seen on the wire,
// so clients of this API can branch with errors.Is like the server does.
func FromStatus(status int, code, message string) *Error {
	var kind error
	switch status {
	case http.StatusBadRequest:
		kind = ErrValidation
	case http.StatusNotFound:
		kind = ErrNotFound
	case http.StatusForbidden:
		kind = ErrForbidden
	case http.StatusConflict:
		kind = ErrConflict
	case http.StatusPaymentRequired:
		kind = ErrPaymentRequired
	case http.StatusBadGateway:
		kind = ErrPaymentGateway
	case http.StatusServiceUnavailable:
		kind = ErrAnalysisGeneration
	default:
		return &Error{Status: status, Code: code, Message: message, Err: errors.New(message)}
	}
	return &Error{Status: status, Code: code, Message: message, Err: fmt.Errorf("%w: %s", kind, message)}
}
