package oauth

import (
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorClass partitions provider error codes by the recovery action they
// allow. Every component that inspects a provider error goes through this one
// enumeration; nothing else in the codebase matches on raw code strings.
type ErrorClass int

const (
	// ClassUnknown is an unrecognized code. Treated as terminal.
	ClassUnknown ErrorClass = iota
	// ClassAuth means the access token was rejected. Recoverable by exactly
	// one refresh followed by one retry.
	ClassAuth
	// ClassTransient means the endpoint or tenant was momentarily
	// overloaded or unreachable. Recoverable by bounded retry with backoff.
	ClassTransient
	// ClassReauth means the grant itself is dead (revoked, expired refresh
	// token, uninstalled app). Only a fresh installation flow recovers.
	ClassReauth
	// ClassApplication means the request was semantically rejected (bad
	// parameters, unknown method, missing scope). Never retried.
	ClassApplication
)

// String returns the class name for log output.
func (c ErrorClass) String() string {
	switch c {
	case ClassAuth:
		return "auth"
	case ClassTransient:
		return "transient"
	case ClassReauth:
		return "reauthorization"
	case ClassApplication:
		return "application"
	}
	return "unknown"
}

// providerCodes maps every provider error code this service reacts to onto
// its class. Codes arrive in both the OAuth error register (lowercase) and
// the REST error register (uppercase); both live here.
var providerCodes = map[string]ErrorClass{
	// token rejected, refresh may recover
	"expired_token":   ClassAuth,
	"invalid_token":   ClassAuth,
	"WRONG_AUTH_TYPE": ClassAuth,
	"NO_AUTH_FOUND":   ClassAuth,

	// grant dead, only reinstall recovers
	"invalid_grant":         ClassReauth,
	"invalid_client":        ClassReauth,
	"PAYMENT_REQUIRED":      ClassReauth,
	"ACCESS_DENIED":         ClassReauth,
	"application_not_found": ClassReauth,

	// momentary, bounded retry recovers
	"QUERY_LIMIT_EXCEEDED":  ClassTransient,
	"OVERLOAD_LIMIT":        ClassTransient,
	"INTERNAL_SERVER_ERROR": ClassTransient,

	// caller's request is wrong, retrying changes nothing
	"invalid_request":        ClassApplication,
	"insufficient_scope":     ClassApplication,
	"ERROR_METHOD_NOT_FOUND": ClassApplication,
	"ERROR_ARGUMENT":         ClassApplication,
	"ERROR_REQUIRED_FIELD":   ClassApplication,
}

// ClassifyCode returns the class for a provider error code.
func ClassifyCode(code string) ErrorClass {
	if class, ok := providerCodes[code]; ok {
		return class
	}
	return ClassUnknown
}

// ProviderError is a structured rejection from the provider: an error code,
// the human description, and the HTTP status it arrived with.
type ProviderError struct {
	Code        string
	Description string
	HTTPStatus  int
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("provider error %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("provider error %s (http %d)", e.Code, e.HTTPStatus)
}

// Class returns the recovery class for this error. The HTTP status is the
// fallback signal when the code is unrecognized.
func (e *ProviderError) Class() ErrorClass {
	if class := ClassifyCode(e.Code); class != ClassUnknown {
		return class
	}
	switch {
	case e.HTTPStatus == http.StatusUnauthorized:
		return ClassAuth
	case e.HTTPStatus == http.StatusTooManyRequests:
		return ClassTransient
	case e.HTTPStatus >= 500:
		return ClassTransient
	}
	return ClassUnknown
}

// IsTransportError reports whether err is a network-level failure (refused
// connection, reset, timeout) rather than a provider rejection. Transport
// errors are always transient.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	var ne net.Error
	if stderrors.As(err, &ne) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "EOF")
}

// IsTransient reports whether err warrants a bounded retry: either a
// transport failure or a provider error classed transient. Used as the
// RetryableErrors predicate for the retry helper.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if stderrors.As(err, &pe) {
		return pe.Class() == ClassTransient
	}
	return IsTransportError(err)
}

// TokenEndpointSuccessful is the circuit accounting predicate for token
// exchanges. A provider rejection with a definitive class is an answer from a
// healthy endpoint, not an endpoint failure; only transport errors and
// transient provider states count toward opening the circuit.
func TokenEndpointSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var pe *ProviderError
	if stderrors.As(err, &pe) {
		return pe.Class() != ClassTransient
	}
	return false
}
