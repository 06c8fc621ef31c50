// Package errors defines the typed error taxonomy shared by the credential
// lifecycle, the call executor, and the HTTP glue layer.
package errors

import (
	"fmt"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeValidation represents validation errors
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeConfig represents configuration errors
	ErrTypeConfig ErrorType = "config"
	// ErrTypeInternal represents internal system errors
	ErrTypeInternal ErrorType = "internal"
	// ErrTypeTimeout represents timeout errors
	ErrTypeTimeout ErrorType = "timeout"
	// ErrTypeStorage represents persistence layer I/O failures
	ErrTypeStorage ErrorType = "storage"
	// ErrTypeNoCredential means no installation has ever authorized
	ErrTypeNoCredential ErrorType = "no_credential"
	// ErrTypeReauthRequired means the credential cannot be made valid without
	// a fresh installation/authorization flow
	ErrTypeReauthRequired ErrorType = "reauthorization_required"
	// ErrTypeOAuthExchange means the provider rejected an authorization-code exchange
	ErrTypeOAuthExchange ErrorType = "oauth_exchange"
	// ErrTypeRefreshFailed means the provider rejected a refresh-token exchange
	ErrTypeRefreshFailed ErrorType = "refresh_failed"
	// ErrTypeRemoteApplication means the remote call failed for a non-auth,
	// non-transient reason (bad parameters, insufficient scope)
	ErrTypeRemoteApplication ErrorType = "remote_application"
	// ErrTypeRemoteUnavailable means the remote endpoint stayed unreachable
	// after the retry budget was exhausted
	ErrTypeRemoteUnavailable ErrorType = "remote_unavailable"
)

// AppError represents a structured application error
type AppError struct {
	Type        ErrorType              `json:"type"`
	Message     string                 `json:"message"`
	Code        string                 `json:"code,omitempty"`
	Description string                 `json:"description,omitempty"`
	Cause       error                  `json:"-"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}

	if e.Description != "" {
		parts = append(parts, fmt.Sprintf("description=%s", e.Description))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// ValidationError creates a new validation error
func ValidationError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeValidation,
		Message: msg,
	}
}

// ConfigError creates a new configuration error
func ConfigError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeConfig,
		Message: msg,
	}
}

// InternalError creates a new internal error
func InternalError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeInternal,
		Message: msg,
		Cause:   cause,
	}
}

// TimeoutError creates a new timeout error
func TimeoutError(operation string) *AppError {
	return &AppError{
		Type:    ErrTypeTimeout,
		Message: fmt.Sprintf("timeout during %s", operation),
	}
}

// StorageError wraps a persistence layer I/O failure. Storage failures are
// always surfaced to callers, never swallowed.
func StorageError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeStorage,
		Message: msg,
		Cause:   cause,
	}
}

// NoCredentialError creates the error returned when no installation has ever
// authorized. Recoverable only by driving a fresh acquisition flow.
func NoCredentialError() *AppError {
	return &AppError{
		Type:    ErrTypeNoCredential,
		Message: "no credential has been acquired for this installation",
	}
}

// ReauthorizationRequiredError creates the error returned when the stored
// credential cannot be refreshed. Recoverable only by a fresh acquisition
// flow, not by a retry.
func ReauthorizationRequiredError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeReauthRequired,
		Message: msg,
	}
}

// NoRefreshTokenError creates the error returned when a refresh is requested
// for a credential without a refresh token (the simplified path).
func NoRefreshTokenError() *AppError {
	return &AppError{
		Type:    ErrTypeReauthRequired,
		Message: "credential has no refresh token, re-authorization required",
		Code:    "no_refresh_token",
	}
}

// OAuthExchangeError creates the error returned when the provider rejects an
// authorization-code exchange. Carries the provider's error code and
// description; never retried (codes are single-use).
func OAuthExchangeError(code, description string) *AppError {
	return &AppError{
		Type:        ErrTypeOAuthExchange,
		Message:     "provider rejected the authorization code exchange",
		Code:        code,
		Description: description,
	}
}

// RefreshFailedError creates the error returned when the provider rejects a
// refresh-token exchange.
func RefreshFailedError(code, description string) *AppError {
	return &AppError{
		Type:        ErrTypeRefreshFailed,
		Message:     "provider rejected the token refresh",
		Code:        code,
		Description: description,
	}
}

// RemoteApplicationError creates the error returned when the remote call
// failed for a non-auth, non-transient reason. Surfaced as-is, not retried.
func RemoteApplicationError(code, description string) *AppError {
	return &AppError{
		Type:        ErrTypeRemoteApplication,
		Message:     "remote call rejected by provider",
		Code:        code,
		Description: description,
	}
}

// RemoteUnavailableError creates the error returned after the transient retry
// budget is exhausted.
func RemoteUnavailableError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeRemoteUnavailable,
		Message: msg,
		Cause:   cause,
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}

	return appErr.Type == errType
}

// GetType returns the error type if it's an AppError, otherwise returns ErrTypeInternal
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return ErrTypeInternal
	}

	return appErr.Type
}
