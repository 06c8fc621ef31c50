package oauth

import (
	"context"
	"net/url"
	"time"

	"lead-relay/internal/circuitbreaker"
	"lead-relay/internal/common/errors"
	"lead-relay/internal/common/logging"
)

// AcquirerConfig carries the application registration needed to talk to the
// provider's authorization server.
type AcquirerConfig struct {
	// ClientID and ClientSecret identify this application to the provider.
	ClientID     string
	ClientSecret string
	// AuthURL is the user consent endpoint for the authorization-code flow.
	AuthURL string
	// TokenURL is the token endpoint used by code exchange and refresh.
	TokenURL string
	// RedirectURL is where the provider sends the user back with a code.
	RedirectURL string
	// Scope requested during authorization.
	Scope string
}

// Validate checks the fields the acquisition paths depend on.
func (c AcquirerConfig) Validate() error {
	if c.ClientID == "" {
		return errors.ConfigError("client_id is required")
	}
	if c.ClientSecret == "" {
		return errors.ConfigError("client_secret is required")
	}
	if c.TokenURL == "" {
		return errors.ConfigError("token_url is required")
	}
	return nil
}

// Acquirer turns the three inbound authorization paths into persisted
// credential records. Every path ends in Save, so acquiring always supersedes
// whatever record existed before.
type Acquirer struct {
	config AcquirerConfig
	store  CredentialStore
	client *tokenClient
	logger logging.Logger
	now    func() time.Time
}

// NewAcquirer creates an acquirer over the given store. The breaker guards
// the token endpoint and is shared with the lifecycle manager.
func NewAcquirer(config AcquirerConfig, store CredentialStore, breaker *circuitbreaker.Breaker, logger logging.Logger) (*Acquirer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Acquirer{
		config: config,
		store:  store,
		client: newTokenClient(config.TokenURL, breaker, logger),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// AuthorizeURL builds the consent URL that starts the authorization-code
// flow. The state value round-trips through the provider for CSRF protection.
func (a *Acquirer) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", a.config.ClientID)
	q.Set("response_type", "code")
	if a.config.RedirectURL != "" {
		q.Set("redirect_uri", a.config.RedirectURL)
	}
	if a.config.Scope != "" {
		q.Set("scope", a.config.Scope)
	}
	if state != "" {
		q.Set("state", state)
	}
	return a.config.AuthURL + "?" + q.Encode()
}

// FromSimplified stores a provider-issued non-expiring bearer token. The
// value is persisted verbatim; this path never synthesizes or derives a token
// locally. The record has no refresh token and no expiry, so the lifecycle
// manager will never attempt to refresh it.
func (a *Acquirer) FromSimplified(ctx context.Context, install SimplifiedInstall) (*CredentialRecord, error) {
	if install.AuthToken == "" {
		return nil, errors.ValidationError("auth_token is required for simplified installation")
	}
	if install.MemberID == "" {
		return nil, errors.ValidationError("member_id is required for simplified installation")
	}

	now := a.now()
	record := &CredentialRecord{
		AccessToken: install.AuthToken,
		IssuedAt:    now,
		Domain:      install.Domain,
		Scope:       install.Scope,
		MemberID:    install.MemberID,
		Method:      MethodSimplified,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := a.store.Save(ctx, record); err != nil {
		return nil, err
	}

	a.logger.Info("Credential acquired via simplified installation",
		logging.Field{Key: "member_id", Value: install.MemberID},
		logging.Field{Key: "domain", Value: install.Domain},
		logging.Secret("auth_token", install.AuthToken),
	)
	return record, nil
}

// FromInstallationEvent stores the complete OAuth2 grant pushed inline by the
// provider's installation callback. No token endpoint round trip happens; the
// grant arrives ready to use.
func (a *Acquirer) FromInstallationEvent(ctx context.Context, event InstallationEvent) (*CredentialRecord, error) {
	grant := event.Auth
	if grant.AccessToken == "" {
		return nil, errors.ValidationError("installation event carries no access token")
	}
	if grant.MemberID == "" {
		return nil, errors.ValidationError("installation event carries no member_id")
	}

	now := a.now()
	record := &CredentialRecord{
		AccessToken:    grant.AccessToken,
		RefreshToken:   grant.RefreshToken,
		ExpiresIn:      grant.ExpiresIn,
		IssuedAt:       now,
		ExpiresAt:      expiryFrom(now, grant.ExpiresIn),
		Domain:         grant.Domain,
		Scope:          grant.Scope,
		ClientEndpoint: grant.ClientEndpoint,
		ServerEndpoint: grant.ServerEndpoint,
		MemberID:       grant.MemberID,
		Status:         grant.Status,
		Method:         MethodInstallationEvent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := a.store.Save(ctx, record); err != nil {
		return nil, err
	}

	a.logger.Info("Credential acquired via installation event",
		logging.Field{Key: "member_id", Value: grant.MemberID},
		logging.Field{Key: "domain", Value: grant.Domain},
		logging.Field{Key: "expires_in", Value: grant.ExpiresIn},
		logging.Secret("access_token", grant.AccessToken),
	)
	return record, nil
}

// ExchangeCode runs the authorization-code grant against the token endpoint
// and persists the result. Codes are single-use, so a rejected exchange is
// never retried; the caller must restart the consent flow.
func (a *Acquirer) ExchangeCode(ctx context.Context, code string) (*CredentialRecord, error) {
	if code == "" {
		return nil, errors.ValidationError("authorization code is required")
	}

	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("client_id", a.config.ClientID)
	data.Set("client_secret", a.config.ClientSecret)
	data.Set("code", code)
	if a.config.RedirectURL != "" {
		data.Set("redirect_uri", a.config.RedirectURL)
	}

	resp, err := a.client.exchange(ctx, data)
	if err != nil {
		if pe, ok := err.(*ProviderError); ok {
			return nil, errors.OAuthExchangeError(pe.Code, pe.Description)
		}
		if errors.IsType(err, errors.ErrTypeRemoteUnavailable) {
			return nil, err
		}
		return nil, errors.RemoteUnavailableError("token endpoint unreachable during code exchange", err)
	}

	now := a.now()
	record := &CredentialRecord{
		AccessToken:    resp.AccessToken,
		RefreshToken:   resp.RefreshToken,
		ExpiresIn:      resp.ExpiresIn,
		IssuedAt:       now,
		ExpiresAt:      expiryFrom(now, resp.ExpiresIn),
		Domain:         resp.Domain,
		Scope:          resp.Scope,
		ClientEndpoint: resp.ClientEndpoint,
		ServerEndpoint: resp.ServerEndpoint,
		MemberID:       resp.MemberID,
		Status:         resp.Status,
		Method:         MethodAuthorizationCode,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := a.store.Save(ctx, record); err != nil {
		return nil, err
	}

	a.logger.Info("Credential acquired via authorization code exchange",
		logging.Field{Key: "member_id", Value: resp.MemberID},
		logging.Field{Key: "domain", Value: resp.Domain},
		logging.Field{Key: "expires_in", Value: resp.ExpiresIn},
		logging.Secret("access_token", resp.AccessToken),
	)
	return record, nil
}

// expiryFrom computes issued-at plus lifetime. Zero or negative lifetimes
// yield no expiry.
func expiryFrom(issuedAt time.Time, expiresIn int) *time.Time {
	if expiresIn <= 0 {
		return nil
	}
	t := issuedAt.Add(time.Duration(expiresIn) * time.Second)
	return &t
}
