package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes surfaced in API responses.
const (
	CodeValidation         = "validation_error"
	CodeInvalidCredentials = "invalid_credentials"
	CodeInvalidToken       = "invalid_token"
	CodeForbidden          = "forbidden"
	CodeConflict           = "conflict"
	CodeNotFound           = "not_found"
	CodeDownstream         = "downstream_error"
	CodeDownstreamTimeout  = "downstream_timeout"
	CodeInternal           = "internal_error"
)

// Error is the shared failure taxonomy. Every layer returns one of these for
// expected failures; anything else is treated as an internal error at the
// HTTP boundary.
type Error struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on the error code so sentinel-style comparisons work across
// independently constructed instances.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// NewValidation reports malformed or missing input.
func NewValidation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...), Status: http.StatusBadRequest}
}

// NewInvalidCredentials is returned for both unknown email and wrong
// password so callers cannot tell the cases apart.
func NewInvalidCredentials() *Error {
	return &Error{Code: CodeInvalidCredentials, Message: "Wrong email or password.", Status: http.StatusUnauthorized}
}

// NewUnauthorized reports a missing, malformed, expired, or revoked token.
func NewUnauthorized(message string) *Error {
	return &Error{Code: CodeInvalidToken, Message: message, Status: http.StatusUnauthorized}
}

// NewForbidden reports an authenticated principal lacking tenant or role
// access to the target.
func NewForbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message, Status: http.StatusForbidden}
}

// NewConflict reports duplicate rows, numbers already bound, and illegal
// lifecycle transitions.
func NewConflict(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...), Status: http.StatusConflict}
}

// NewNotFound reports a missing entity within the caller's tenant scope.
func NewNotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...), Status: http.StatusNotFound}
}

// NewDownstream reports a provisioning backend failure after the retry
// budget is spent.
func NewDownstream(message string, err error) *Error {
	return &Error{Code: CodeDownstream, Message: message, Status: http.StatusBadGateway, Err: err}
}

// NewDownstreamTimeout is the deadline-exceeded flavor of NewDownstream.
func NewDownstreamTimeout(message string, err error) *Error {
	return &Error{Code: CodeDownstreamTimeout, Message: message, Status: http.StatusGatewayTimeout, Err: err}
}

// NewInternal wraps unexpected storage or infrastructure failures.
func NewInternal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "Internal server error.", Status: http.StatusInternalServerError, Err: err}
}

// AsError unwraps err into the shared taxonomy.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsCode reports whether err carries the given taxonomy code.
func IsCode(err error, code string) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}
