// Package errors defines the service error taxonomy shared by the
// application services and the HTTP boundary.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code classifies a service error.
type Code string

const (
	CodeUnauthorized Code = "unauthorized"
	CodeInvalidToken Code = "invalid_token"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeValidation   Code = "validation_error"
	CodeConflict     Code = "conflict"
	CodeRateLimited  Code = "rate_limited"
	CodeInternal     Code = "internal_error"
)

// ServiceError is the error type returned by application services. The HTTP
// layer maps it straight onto a status code and response body.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	cause      error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As chains.
func (e *ServiceError) Unwrap() error { return e.cause }

// WithDetails attaches a key/value pair to the error and returns it.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code Code, status int, message string, cause error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, cause: cause}
}

// Unauthorized signals a missing or failed authentication.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "authentication required"
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

// InvalidToken signals a malformed, expired or otherwise rejected token.
func InvalidToken(cause error) *ServiceError {
	return newError(CodeInvalidToken, http.StatusUnauthorized, "invalid token", cause)
}

// Forbidden signals a role or ownership check failure.
func Forbidden(message string) *ServiceError {
	if message == "" {
		message = "not allowed"
	}
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

// NotFound signals an absent entity or one outside the organization scope.
func NotFound(message string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, message, nil)
}

// Validation signals rejected input; the operation performed no mutation.
func Validation(message string) *ServiceError {
	return newError(CodeValidation, http.StatusBadRequest, message, nil)
}

// Conflict signals an operation blocked by referential state.
func Conflict(message string) *ServiceError {
	return newError(CodeConflict, http.StatusConflict, message, nil)
}

// RateLimited signals a request rejected by the rate limiter.
func RateLimited() *ServiceError {
	return newError(CodeRateLimited, http.StatusTooManyRequests, "too many requests", nil)
}

// Internal wraps an unexpected failure.
func Internal(message string, cause error) *ServiceError {
	if message == "" {
		message = "internal error"
	}
	return newError(CodeInternal, http.StatusInternalServerError, message, cause)
}

// GetServiceError extracts a *ServiceError from an error chain, or nil.
func GetServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if stderrors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}
