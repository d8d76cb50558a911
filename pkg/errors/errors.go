// Package errors defines the error types returned by vaultclient operations.
// Non-2xx responses from the service are mapped to ServerError; failures that
// happen on the client side (credentials, transport, decoding) are ClientError.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrCredentials marks failures to obtain a token before any request is sent.
// Callers should treat it as an authentication failure.
var ErrCredentials = errors.New("vault credentials unavailable")

// Error types used to classify ServerError values.
const (
	TypeAuthentication     = "authentication_error"
	TypePermissionDenied   = "permission_denied"
	TypeInvalidRequest     = "invalid_request_error"
	TypeNotFound           = "not_found_error"
	TypeRateLimit          = "rate_limit_error"
	TypeSealed             = "sealed_error"
	TypeServiceUnavailable = "service_unavailable_error"
	TypeInternalError      = "internal_error"
	TypeUnexpectedStatus   = "unexpected_status"
)

// ServerError is returned when the service answers with an unexpected status.
type ServerError struct {
	StatusCode int      `json:"status_code"`
	Errors     []string `json:"errors"`
	Type       string   `json:"type"`
	Method     string   `json:"method,omitempty"`
	Path       string   `json:"path,omitempty"`
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("Response Code: %d, Messages: %s", e.StatusCode, strings.Join(e.Errors, ", "))
}

// Retryable reports whether repeating the same request may succeed.
func (e *ServerError) Retryable() bool {
	switch e.Type {
	case TypeRateLimit, TypeServiceUnavailable, TypeSealed:
		return true
	default:
		return false
	}
}

// NewServerError classifies a status code and error list returned by the service.
func NewServerError(statusCode int, errs []string) *ServerError {
	if errs == nil {
		errs = []string{}
	}
	return &ServerError{
		StatusCode: statusCode,
		Errors:     errs,
		Type:       TypeForStatus(statusCode),
	}
}

// TypeForStatus maps an HTTP status code to an error type constant.
func TypeForStatus(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return TypeInvalidRequest
	case http.StatusUnauthorized:
		return TypeAuthentication
	case http.StatusForbidden:
		return TypePermissionDenied
	case http.StatusNotFound:
		return TypeNotFound
	case http.StatusTooManyRequests:
		return TypeRateLimit
	case http.StatusInternalServerError:
		return TypeInternalError
	case http.StatusServiceUnavailable:
		// Vault answers 503 while sealed or in maintenance.
		return TypeSealed
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return TypeServiceUnavailable
	default:
		return TypeUnexpectedStatus
	}
}

// ClientError is returned when a request fails before a usable response is
// available: missing credentials, I/O failures or undecodable bodies.
type ClientError struct {
	Message    string
	StatusCode int // 0 when no response was received
	Err        error
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap returns the underlying error.
func (e *ClientError) Unwrap() error {
	return e.Err
}

// NewClientError creates a ClientError wrapping err.
func NewClientError(message string, err error) *ClientError {
	return &ClientError{Message: message, Err: err}
}

// NewCredentialsError wraps a credentials resolution failure so that both
// ErrCredentials and the underlying cause match with errors.Is.
func NewCredentialsError(err error) *ClientError {
	return &ClientError{
		Message: "resolve vault credentials",
		Err:     fmt.Errorf("%w: %w", ErrCredentials, err),
	}
}

// IsStatus reports whether err is a ServerError with the given status code.
func IsStatus(err error, statusCode int) bool {
	var serverErr *ServerError
	return errors.As(err, &serverErr) && serverErr.StatusCode == statusCode
}

// IsNotFound reports whether err is a 404 ServerError.
func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}

// IsAuthentication reports whether err stems from missing or rejected credentials.
func IsAuthentication(err error) bool {
	if errors.Is(err, ErrCredentials) {
		return true
	}
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Type == TypeAuthentication || serverErr.Type == TypePermissionDenied
	}
	return false
}
