package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		contains []string
	}{
		{
			name:     "type and message only",
			err:      ValidationError("field is required"),
			contains: []string{"validation", "field is required"},
		},
		{
			name:     "with provider code and description",
			err:      OAuthExchangeError("invalid_grant", "code has expired"),
			contains: []string{"oauth_exchange", "code=invalid_grant", "description=code has expired"},
		},
		{
			name:     "with cause",
			err:      StorageError("save failed", fmt.Errorf("disk full")),
			contains: []string{"storage", "save failed", "cause=disk full"},
		},
		{
			name:     "with context",
			err:      RemoteUnavailableError("endpoint unreachable", nil).WithContext("attempts", 3),
			contains: []string{"remote_unavailable", "attempts=3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.contains {
				assert.Contains(t, msg, want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := RemoteUnavailableError("gave up after retries", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestTypedConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		wantType ErrorType
		wantCode string
	}{
		{"no credential", NoCredentialError(), ErrTypeNoCredential, ""},
		{"reauthorization required", ReauthorizationRequiredError("refresh rejected"), ErrTypeReauthRequired, ""},
		{"no refresh token", NoRefreshTokenError(), ErrTypeReauthRequired, "no_refresh_token"},
		{"oauth exchange", OAuthExchangeError("invalid_grant", "expired"), ErrTypeOAuthExchange, "invalid_grant"},
		{"refresh failed", RefreshFailedError("invalid_token", "revoked"), ErrTypeRefreshFailed, "invalid_token"},
		{"remote application", RemoteApplicationError("ERROR_METHOD_NOT_FOUND", "unknown method"), ErrTypeRemoteApplication, "ERROR_METHOD_NOT_FOUND"},
		{"remote unavailable", RemoteUnavailableError("retries exhausted", nil), ErrTypeRemoteUnavailable, ""},
		{"storage", StorageError("write failed", nil), ErrTypeStorage, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.True(t, IsType(tt.err, tt.wantType))
		})
	}
}

func TestIsType(t *testing.T) {
	assert.False(t, IsType(nil, ErrTypeStorage))
	assert.False(t, IsType(fmt.Errorf("plain error"), ErrTypeStorage))
	assert.False(t, IsType(NoCredentialError(), ErrTypeStorage))
	assert.True(t, IsType(NoCredentialError(), ErrTypeNoCredential))
}

func TestGetType(t *testing.T) {
	assert.Equal(t, ErrorType(""), GetType(nil))
	assert.Equal(t, ErrTypeInternal, GetType(fmt.Errorf("plain error")))
	assert.Equal(t, ErrTypeRefreshFailed, GetType(RefreshFailedError("invalid_grant", "")))
}
