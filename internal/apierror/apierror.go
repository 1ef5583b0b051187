// Package apierror defines the gateway's rejection taxonomy and the uniform
// JSON envelope every rejection is rendered as.
package apierror

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Code is a machine-readable rejection code.
type Code string

const (
	CodeMissingToken       Code = "MISSING_TOKEN"
	CodeInvalidToken       Code = "INVALID_TOKEN"
	CodeTokenRevoked       Code = "TOKEN_REVOKED"
	CodeTenantAccessDenied Code = "TENANT_ACCESS_DENIED"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"
	CodeServiceNotFound    Code = "SERVICE_NOT_FOUND"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeServiceError       Code = "SERVICE_ERROR"
	CodeInternalError      Code = "INTERNAL_ERROR"
	CodeRouteNotFound      Code = "ROUTE_NOT_FOUND"
	CodeForbidden          Code = "FORBIDDEN"
)

// Error is a rejection detected at a pipeline boundary. Context entries are
// merged into the top level of the envelope.
type Error struct {
	Status  int
	Code    Code
	Message string
	Context map[string]any
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

// With returns a copy of e carrying an extra context field.
func (e *Error) With(key string, value any) *Error {
	cp := *e
	cp.Context = make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	cp.Context[key] = value
	return &cp
}

// Envelope renders the error as the wire envelope.
func (e *Error) Envelope() map[string]any {
	body := make(map[string]any, len(e.Context)+3)
	for k, v := range e.Context {
		body[k] = v
	}
	body["success"] = false
	body["message"] = e.Message
	body["code"] = e.Code
	return body
}

func New(status int, code Code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func MissingToken() *Error {
	return New(http.StatusUnauthorized, CodeMissingToken, "Access token is required")
}

func TokenRevoked() *Error {
	return New(http.StatusUnauthorized, CodeTokenRevoked, "Token has been revoked")
}

func InvalidToken() *Error {
	return New(http.StatusForbidden, CodeInvalidToken, "Invalid or expired token")
}

func TenantAccessDenied() *Error {
	return New(http.StatusForbidden, CodeTenantAccessDenied, "Tenant access denied")
}

func Forbidden(message string) *Error {
	return New(http.StatusForbidden, CodeForbidden, message)
}

// RateLimitExceeded carries retryAfter in whole seconds.
func RateLimitExceeded(message string, retryAfter int) *Error {
	return New(http.StatusTooManyRequests, CodeRateLimitExceeded, message).With("retryAfter", retryAfter)
}

func ServiceNotFound(path string) *Error {
	return New(http.StatusNotFound, CodeServiceNotFound, "No service found for the requested path").With("path", path)
}

func ServiceUnavailable(service string) *Error {
	return New(http.StatusServiceUnavailable, CodeServiceUnavailable, "Service temporarily unavailable").With("service", service)
}

func ServiceError(service string) *Error {
	return New(http.StatusBadGateway, CodeServiceError, "Service communication error").With("service", service)
}

func Internal() *Error {
	return New(http.StatusInternalServerError, CodeInternalError, "Internal server error")
}

func RouteNotFound(method, path string) *Error {
	return New(http.StatusNotFound, CodeRouteNotFound, "Route not found").
		With("path", path).
		With("method", method)
}

// Write renders err as the envelope. Errors that are not *Error become
// INTERNAL_ERROR without leaking their text.
func Write(w http.ResponseWriter, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = Internal()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	_ = json.NewEncoder(w).Encode(apiErr.Envelope())
}
