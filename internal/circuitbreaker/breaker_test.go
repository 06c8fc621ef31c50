package circuitbreaker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lead-relay/internal/common/errors"
)

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{MaxFailures: 0, Timeout: time.Second, MaxConcurrentRequests: 1}.Validate())
	assert.Error(t, Config{MaxFailures: 3, Timeout: 0, MaxConcurrentRequests: 1}.Validate())
	assert.Error(t, Config{MaxFailures: 3, Timeout: time.Second, MaxConcurrentRequests: 0}.Validate())
}

func TestBreaker_PassesThroughSuccess(t *testing.T) {
	b := New("test", DefaultConfig(), nil)

	err := b.Execute(context.Background(), func() error { return nil })
	assert.NoError(t, err)
	assert.False(t, b.IsOpen())
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := New("test", Config{MaxFailures: 3, Timeout: time.Minute, MaxConcurrentRequests: 1}, nil)

	transport := fmt.Errorf("connection refused")
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), func() error { return transport })
	}
	require.True(t, b.IsOpen())

	err := b.Execute(context.Background(), func() error { return nil })
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeRemoteUnavailable))
}

func TestBreaker_ProviderRejectionsDoNotTrip(t *testing.T) {
	b := New("test", Config{MaxFailures: 2, Timeout: time.Minute, MaxConcurrentRequests: 1}, nil)

	rejection := errors.OAuthExchangeError("invalid_grant", "code expired")
	for i := 0; i < 10; i++ {
		err := b.Execute(context.Background(), func() error { return rejection })
		require.Error(t, err)
	}
	assert.False(t, b.IsOpen(), "provider-side rejections must not open the circuit")
}

func TestBreaker_CustomSuccessPredicate(t *testing.T) {
	rejection := fmt.Errorf("definitive rejection")
	b := New("test", Config{
		MaxFailures:           2,
		Timeout:               time.Minute,
		MaxConcurrentRequests: 1,
		IsSuccessful:          func(err error) bool { return err == rejection },
	}, nil)

	// errors the predicate accepts never count against the circuit
	for i := 0; i < 10; i++ {
		err := b.Execute(context.Background(), func() error { return rejection })
		require.Error(t, err)
	}
	assert.False(t, b.IsOpen())

	// errors it refuses still trip it
	transport := fmt.Errorf("connection refused")
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func() error { return transport })
	}
	assert.True(t, b.IsOpen())
}

func TestNew_InvalidConfigFallsBackToDefaults(t *testing.T) {
	b := New("test", Config{}, nil)
	require.NotNil(t, b)

	err := b.Execute(context.Background(), func() error { return nil })
	assert.NoError(t, err)
}
