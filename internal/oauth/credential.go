package oauth

import (
	"time"
)

// AcquisitionMethod records which installation path produced a credential.
// The method determines refresh eligibility and how the executor attaches the
// token to outbound calls.
type AcquisitionMethod string

const (
	// MethodSimplified is a non-expiring bearer token delivered directly in
	// an installation POST. Never refreshed.
	MethodSimplified AcquisitionMethod = "simplified"
	// MethodInstallationEvent is a full OAuth2 grant pushed by the provider's
	// installation callback.
	MethodInstallationEvent AcquisitionMethod = "installation_event"
	// MethodAuthorizationCode is the standard three-legged flow (consent
	// redirect, code, token exchange).
	MethodAuthorizationCode AcquisitionMethod = "authorization_code"
)

// Valid reports whether m is one of the known acquisition methods.
func (m AcquisitionMethod) Valid() bool {
	switch m {
	case MethodSimplified, MethodInstallationEvent, MethodAuthorizationCode:
		return true
	}
	return false
}

// CredentialRecord is the persisted unit of authorization for one
// installation. At most one current record exists per installation; acquiring
// a new one supersedes the prior record wholesale.
type CredentialRecord struct {
	// AccessToken is the bearer secret for authenticated calls. Replaced
	// wholesale on refresh, never mutated.
	AccessToken string `json:"access_token"`
	// RefreshToken mints new access tokens; empty for the simplified path.
	RefreshToken string `json:"refresh_token,omitempty"`
	// ExpiresIn is the lifetime in seconds reported at acquisition/refresh.
	ExpiresIn int `json:"expires_in,omitempty"`
	// IssuedAt is when the current access token was issued.
	IssuedAt time.Time `json:"issued_at"`
	// ExpiresAt is IssuedAt + ExpiresIn. Nil means non-expiring (simplified).
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	// Domain is the tenant domain the installation belongs to.
	Domain string `json:"domain,omitempty"`
	// Scope is the capability list granted by the authorization server.
	Scope string `json:"scope,omitempty"`
	// ClientEndpoint is the per-installation base URL for authenticated calls.
	ClientEndpoint string `json:"client_endpoint,omitempty"`
	// ServerEndpoint is the provider-assigned server-side endpoint base.
	ServerEndpoint string `json:"server_endpoint,omitempty"`
	// MemberID is the opaque identifier of the authorized tenant.
	MemberID string `json:"member_id"`
	// Status is the installation status string reported by the provider.
	Status string `json:"status,omitempty"`
	// Method is the acquisition path that produced this record.
	Method AcquisitionMethod `json:"method"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether the record's access token has expired at the given
// instant. The comparison is exact: a record is expired iff now >= ExpiresAt.
// Simplified credentials and records without an expiry never expire.
func (c *CredentialRecord) Expired(now time.Time) bool {
	if c.Method == MethodSimplified || c.ExpiresAt == nil {
		return false
	}
	return !now.Before(*c.ExpiresAt)
}

// Refreshable reports whether the record carries a refresh token. A record
// with a refresh token must be refreshed, never re-acquired from scratch.
func (c *CredentialRecord) Refreshable() bool {
	return c.RefreshToken != ""
}

// EndpointBase returns the base URL authenticated calls must be sent to.
func (c *CredentialRecord) EndpointBase() string {
	if c.ClientEndpoint != "" {
		return c.ClientEndpoint
	}
	return c.ServerEndpoint
}

// CredentialPatch carries the fields the refresh operation may update in
// place. Nil pointer fields are left untouched by Update.
type CredentialPatch struct {
	AccessToken  *string
	RefreshToken *string
	ExpiresIn    *int
	IssuedAt     *time.Time
	ExpiresAt    *time.Time
	Status       *string
	UpdatedAt    time.Time
}

// TokenStatus is the redacted diagnostic view of the current credential.
// It carries token presence and length, never the secret itself.
type TokenStatus struct {
	Authorized   bool              `json:"authorized"`
	Method       AcquisitionMethod `json:"method,omitempty"`
	Domain       string            `json:"domain,omitempty"`
	MemberID     string            `json:"member_id,omitempty"`
	Scope        string            `json:"scope,omitempty"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	Expired      bool              `json:"expired"`
	TokenLength  int               `json:"token_length"`
	Refreshable  bool              `json:"refreshable"`
	AcquiredAt   time.Time         `json:"acquired_at,omitempty"`
	LastRefresh  time.Time         `json:"last_refresh,omitempty"`
}

// TokenResponse maps the provider token endpoint's success response.
type TokenResponse struct {
	AccessToken    string `json:"access_token"`
	RefreshToken   string `json:"refresh_token,omitempty"`
	ExpiresIn      int    `json:"expires_in"`
	Scope          string `json:"scope,omitempty"`
	Domain         string `json:"domain,omitempty"`
	ClientEndpoint string `json:"client_endpoint,omitempty"`
	ServerEndpoint string `json:"server_endpoint,omitempty"`
	MemberID       string `json:"member_id,omitempty"`
	Status         string `json:"status,omitempty"`
}

// SimplifiedInstall is the inbound payload for the simplified installation
// path: a provider-issued bearer value that is valid verbatim, with no
// companion refresh secret. The bearer value is used as delivered; this
// service never synthesizes tokens locally.
type SimplifiedInstall struct {
	AuthToken string `json:"auth_token"`
	Domain    string `json:"domain,omitempty"`
	MemberID  string `json:"member_id"`
	Scope     string `json:"scope,omitempty"`
}

// InstallationGrant is the "auth" object of the provider's ONAPPINSTALL
// callback, carrying a complete OAuth2 grant inline.
type InstallationGrant struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int    `json:"expires_in"`
	Scope            string `json:"scope,omitempty"`
	Domain           string `json:"domain,omitempty"`
	ClientEndpoint   string `json:"client_endpoint,omitempty"`
	ServerEndpoint   string `json:"server_endpoint,omitempty"`
	MemberID         string `json:"member_id"`
	Status           string `json:"status,omitempty"`
	ApplicationToken string `json:"application_token,omitempty"`
}

// InstallationEvent is the provider-pushed installation callback envelope.
type InstallationEvent struct {
	Event string            `json:"event"`
	Auth  InstallationGrant `json:"auth"`
}
