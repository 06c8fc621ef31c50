package oauth

import (
	"context"
	stderrors "errors"
	"net/url"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"lead-relay/internal/circuitbreaker"
	"lead-relay/internal/common/errors"
	"lead-relay/internal/common/logging"
	"lead-relay/internal/common/utils"
)

// refreshTimeout bounds a refresh exchange independently of the caller's
// context. A caller hanging up must not abandon a half-applied rotation.
const refreshTimeout = 30 * time.Second

// Manager owns the credential lifecycle after acquisition: it hands out valid
// tokens, refreshes expired ones on demand, and serializes rotation so
// concurrent callers never race a refresh.
type Manager struct {
	config AcquirerConfig
	store  CredentialStore
	client *tokenClient
	logger logging.Logger

	// refreshMu serializes refresh. Readers that find a fresh token never
	// touch it.
	refreshMu sync.Mutex

	// now is injected so tests can drive the expiry clock.
	now func() time.Time

	cron *cron.Cron
}

// NewManager creates a lifecycle manager over the given store. The breaker is
// shared with the acquirer so both grants count against the same circuit.
func NewManager(config AcquirerConfig, store CredentialStore, breaker *circuitbreaker.Breaker, logger logging.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Manager{
		config: config,
		store:  store,
		client: newTokenClient(config.TokenURL, breaker, logger),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// GetValidCredential returns a credential whose access token is usable right
// now, refreshing first when the stored one has expired. Expiry is an exact
// comparison against the wall clock: a token is expired iff now >= expires_at.
func (m *Manager) GetValidCredential(ctx context.Context) (*CredentialRecord, error) {
	record, err := m.store.GetCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errors.NoCredentialError()
	}

	if !record.Expired(m.now()) {
		return record, nil
	}

	return m.refresh(ctx, record)
}

// ForceRefresh rotates the token regardless of its expiry state. The call
// executor uses this after the provider rejects a token that looked valid
// locally.
func (m *Manager) ForceRefresh(ctx context.Context) (*CredentialRecord, error) {
	record, err := m.store.GetCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errors.NoCredentialError()
	}
	return m.refresh(ctx, record)
}

// refresh exchanges the refresh token for a new access token and applies the
// rotation to the store. Exactly one refresh runs at a time; callers that
// lost the race reuse the winner's result via the double-check reload.
func (m *Manager) refresh(ctx context.Context, stale *CredentialRecord) (*CredentialRecord, error) {
	if !stale.Refreshable() {
		if stale.Method == MethodSimplified {
			// Simplified tokens never expire; landing here means the
			// provider rejected one, which only a reinstall fixes.
			return nil, errors.ReauthorizationRequiredError("simplified token rejected by provider, re-install required")
		}
		return nil, errors.NoRefreshTokenError()
	}

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	// Another caller may have finished the rotation while we waited.
	current, err := m.store.GetCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, errors.NoCredentialError()
	}
	if current.AccessToken != stale.AccessToken && !current.Expired(m.now()) {
		return current, nil
	}

	// The rotation must complete even if the caller hangs up mid-exchange;
	// an abandoned half-applied rotation would strand a used-up refresh
	// token.
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
	defer cancel()

	resp, err := m.exchangeRefresh(refreshCtx, current.RefreshToken)
	if err != nil {
		return nil, err
	}

	now := m.now()
	patch := CredentialPatch{
		AccessToken: &resp.AccessToken,
		ExpiresIn:   &resp.ExpiresIn,
		IssuedAt:    &now,
		ExpiresAt:   expiryFrom(now, resp.ExpiresIn),
		UpdatedAt:   now,
	}
	if resp.RefreshToken != "" {
		patch.RefreshToken = &resp.RefreshToken
	}
	if resp.Status != "" {
		patch.Status = &resp.Status
	}

	if err := m.store.Update(refreshCtx, patch); err != nil {
		return nil, err
	}

	m.logger.Info("Access token refreshed",
		logging.Field{Key: "member_id", Value: current.MemberID},
		logging.Field{Key: "expires_in", Value: resp.ExpiresIn},
		logging.Secret("access_token", resp.AccessToken),
	)

	return m.store.GetCurrent(refreshCtx)
}

// exchangeRefresh runs the refresh grant with a bounded transient retry.
// Provider rejections are classified once: dead grants surface as
// reauthorization, everything else as a refresh failure.
func (m *Manager) exchangeRefresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("client_id", m.config.ClientID)
	data.Set("client_secret", m.config.ClientSecret)
	data.Set("refresh_token", refreshToken)

	retryConfig := utils.RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    time.Second,
		MaxDelay:        30 * time.Second,
		Linear:          true,
		RetryableErrors: IsTransient,
	}

	var resp *TokenResponse
	err := utils.RetryWithBackoff(ctx, retryConfig, func() error {
		var exchErr error
		resp, exchErr = m.client.exchange(ctx, data)
		return exchErr
	})
	if err == nil {
		return resp, nil
	}

	var pe *ProviderError
	if stderrors.As(err, &pe) {
		if pe.Class() == ClassReauth {
			return nil, errors.ReauthorizationRequiredError("refresh token rejected, re-authorization required").
				WithCode(pe.Code)
		}
		return nil, errors.RefreshFailedError(pe.Code, pe.Description)
	}
	if errors.IsType(err, errors.ErrTypeRemoteUnavailable) {
		return nil, err
	}
	return nil, errors.RemoteUnavailableError("token endpoint unreachable during refresh", err)
}

// Status returns the redacted diagnostic view of the current credential. The
// access token itself never leaves this method, only its length.
func (m *Manager) Status(ctx context.Context) (*TokenStatus, error) {
	record, err := m.store.GetCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return &TokenStatus{Authorized: false}, nil
	}

	return &TokenStatus{
		Authorized:  true,
		Method:      record.Method,
		Domain:      record.Domain,
		MemberID:    record.MemberID,
		Scope:       record.Scope,
		ExpiresAt:   record.ExpiresAt,
		Expired:     record.Expired(m.now()),
		TokenLength: len(record.AccessToken),
		Refreshable: record.Refreshable(),
		AcquiredAt:  record.CreatedAt,
		LastRefresh: record.UpdatedAt,
	}, nil
}

// Clear drops the stored credential, returning the installation to the
// unauthorized state.
func (m *Manager) Clear(ctx context.Context) error {
	return m.store.Clear(ctx)
}

// StartProactiveRefresh schedules a background rotation check on the given
// cron expression. The check refreshes only credentials that expire within
// the lookahead window, keeping interactive calls off the refresh path most
// of the time.
func (m *Manager) StartProactiveRefresh(spec string, lookahead time.Duration) error {
	if m.cron != nil {
		return errors.ValidationError("proactive refresh already started")
	}

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		m.proactiveRefresh(ctx, lookahead)
	})
	if err != nil {
		return errors.ConfigError("invalid proactive refresh schedule: " + err.Error())
	}

	m.cron = c
	c.Start()
	m.logger.Info("Proactive refresh scheduled",
		logging.Field{Key: "schedule", Value: spec},
		logging.Field{Key: "lookahead", Value: lookahead.String()},
	)
	return nil
}

// StopProactiveRefresh stops the background schedule and waits for a running
// check to finish.
func (m *Manager) StopProactiveRefresh() {
	if m.cron == nil {
		return
	}
	<-m.cron.Stop().Done()
	m.cron = nil
}

func (m *Manager) proactiveRefresh(ctx context.Context, lookahead time.Duration) {
	record, err := m.store.GetCurrent(ctx)
	if err != nil {
		m.logger.Warn("Proactive refresh could not load credential",
			logging.Field{Key: "error", Value: err.Error()})
		return
	}
	if record == nil || !record.Refreshable() || record.ExpiresAt == nil {
		return
	}
	if record.ExpiresAt.After(m.now().Add(lookahead)) {
		return
	}

	if _, err := m.refresh(ctx, record); err != nil {
		m.logger.Warn("Proactive refresh failed",
			logging.Field{Key: "error", Value: err.Error()})
	}
}
