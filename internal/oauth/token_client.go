package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lead-relay/internal/circuitbreaker"
	"lead-relay/internal/common/logging"
)

// tokenClient performs the form-encoded POST shared by the authorization-code
// exchange and the refresh exchange. Both grants hit the same provider token
// endpoint and share one circuit breaker, so a broken endpoint trips once.
type tokenClient struct {
	httpClient *http.Client
	tokenURL   string
	breaker    *circuitbreaker.Breaker
	logger     logging.Logger
}

// NewTokenEndpointBreaker builds the circuit breaker shared by the
// authorization-code and refresh exchanges. Failure accounting goes through
// TokenEndpointSuccessful so a dead grant being rejected over and over cannot
// open the circuit and mask the reauthorization signal.
func NewTokenEndpointBreaker(logger logging.Logger) *circuitbreaker.Breaker {
	config := circuitbreaker.TokenEndpointConfig
	config.IsSuccessful = TokenEndpointSuccessful
	return circuitbreaker.New("token-endpoint", config, logger)
}

func newTokenClient(tokenURL string, breaker *circuitbreaker.Breaker, logger logging.Logger) *tokenClient {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &tokenClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokenURL:   tokenURL,
		breaker:    breaker,
		logger:     logger,
	}
}

// exchange posts the grant parameters and decodes the response. Provider
// rejections come back as *ProviderError so callers can classify them;
// transport failures come back raw.
func (c *tokenClient) exchange(ctx context.Context, data url.Values) (*TokenResponse, error) {
	var tokenResp *TokenResponse

	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(data.Encode()))
		if err != nil {
			return fmt.Errorf("failed to create token request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("failed to read token response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return parseProviderError(resp.StatusCode, body)
		}

		var parsed TokenResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return fmt.Errorf("failed to decode token response: %w", err)
		}
		if parsed.AccessToken == "" {
			// Some deployments return 200 with an error payload.
			return parseProviderError(resp.StatusCode, body)
		}
		tokenResp = &parsed
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Token endpoint exchange succeeded",
		logging.Field{Key: "grant_type", Value: data.Get("grant_type")},
		logging.Secret("access_token", tokenResp.AccessToken),
		logging.Secret("refresh_token", tokenResp.RefreshToken),
		logging.Field{Key: "expires_in", Value: tokenResp.ExpiresIn},
	)
	return tokenResp, nil
}

// parseProviderError extracts the provider's error code and description from
// a token endpoint failure body. Falls back to the HTTP status when the body
// is not the expected JSON shape.
func parseProviderError(status int, body []byte) *ProviderError {
	var errResp struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &ProviderError{
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
			HTTPStatus:  status,
		}
	}
	return &ProviderError{
		Code:       fmt.Sprintf("http_%d", status),
		HTTPStatus: status,
	}
}
