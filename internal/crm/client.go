// Package crm executes authenticated calls against the tenant's CRM REST
// endpoint, handling token attachment, transient retry, and the single
// refresh-and-retry recovery after an auth rejection.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lead-relay/internal/common/errors"
	"lead-relay/internal/common/logging"
	"lead-relay/internal/common/utils"
	"lead-relay/internal/oauth"
)

// CredentialSource is the slice of the lifecycle manager the executor needs:
// a valid credential on demand and a forced rotation after the provider
// rejects one.
type CredentialSource interface {
	GetValidCredential(ctx context.Context) (*oauth.CredentialRecord, error)
	ForceRefresh(ctx context.Context) (*oauth.CredentialRecord, error)
}

// CallResult is the provider's success envelope. Result is kept raw because
// its shape depends on the method called.
type CallResult struct {
	Result json.RawMessage `json:"result"`
	Total  int64           `json:"total,omitempty"`
	Time   json.RawMessage `json:"time,omitempty"`
}

// callError is the provider's failure envelope.
type callError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Client is the authenticated call executor.
type Client struct {
	source      CredentialSource
	httpClient  *http.Client
	logger      logging.Logger
	retryConfig utils.RetryConfig
}

// NewClient creates an executor over the given credential source.
func NewClient(source CredentialSource, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	retryConfig := utils.DefaultRetryConfig()
	retryConfig.RetryableErrors = oauth.IsTransient
	return &Client{
		source:      source,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
		retryConfig: retryConfig,
	}
}

// Call invokes the named REST method with the given parameters. The flow is
// two nested loops, both bounded: the outer loop runs at most twice (initial
// attempt, then one retry after a forced refresh recovers an auth rejection),
// the inner loop retries transient failures up to the retry budget.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (*CallResult, error) {
	var lastErr error

	for authAttempt := 1; authAttempt <= 2; authAttempt++ {
		record, err := c.credential(ctx, authAttempt)
		if err != nil {
			return nil, err
		}

		var result *CallResult
		err = utils.RetryWithBackoff(ctx, c.retryConfig, func() error {
			var callErr error
			result, callErr = c.doCall(ctx, record, method, params)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err

		var pe *oauth.ProviderError
		if stderrors.As(err, &pe) {
			switch pe.Class() {
			case oauth.ClassAuth:
				if authAttempt == 1 {
					c.logger.Warn("Provider rejected access token, forcing refresh",
						logging.Field{Key: "method", Value: method},
						logging.Field{Key: "code", Value: pe.Code},
					)
					continue
				}
				// A freshly rotated token was rejected too; retrying
				// further cannot help.
				return nil, errors.ReauthorizationRequiredError("provider rejected a freshly refreshed token").
					WithCode(pe.Code)
			case oauth.ClassReauth:
				return nil, errors.ReauthorizationRequiredError("provider reports the grant is no longer valid").
					WithCode(pe.Code)
			case oauth.ClassTransient:
				return nil, errors.RemoteUnavailableError(
					fmt.Sprintf("call %s failed after retries", method), err)
			default:
				return nil, errors.RemoteApplicationError(pe.Code, pe.Description)
			}
		}

		if errors.IsType(err, errors.ErrTypeRemoteUnavailable) {
			return nil, err
		}
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.TimeoutError("call " + method)
		}
		return nil, errors.RemoteUnavailableError(
			fmt.Sprintf("call %s failed: endpoint unreachable", method), err)
	}

	return nil, errors.RemoteUnavailableError("call retry budget exhausted", lastErr)
}

// credential fetches a valid credential, forcing a rotation on the second
// auth attempt.
func (c *Client) credential(ctx context.Context, authAttempt int) (*oauth.CredentialRecord, error) {
	if authAttempt > 1 {
		return c.source.ForceRefresh(ctx)
	}
	return c.source.GetValidCredential(ctx)
}

// doCall performs one HTTP round trip. Provider rejections come back as
// *oauth.ProviderError so the caller can classify them.
func (c *Client) doCall(ctx context.Context, record *oauth.CredentialRecord, method string, params interface{}) (*CallResult, error) {
	endpoint, useBearer := callURL(record, method)

	body, err := json.Marshal(params)
	if err != nil {
		return nil, errors.ValidationError("failed to serialize call parameters: " + err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if useBearer {
		req.Header.Set("Authorization", "Bearer "+record.AccessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var failure callError
	if err := json.Unmarshal(respBody, &failure); err == nil && failure.Error != "" {
		return nil, &oauth.ProviderError{
			Code:        failure.Error,
			Description: failure.ErrorDescription,
			HTTPStatus:  resp.StatusCode,
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &oauth.ProviderError{
			Code:       fmt.Sprintf("http_%d", resp.StatusCode),
			HTTPStatus: resp.StatusCode,
		}
	}

	var result CallResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// callURL builds the request URL for a method. OAuth credentials call the
// per-installation endpoint with a bearer header; simplified credentials
// embed the provider-issued token in the path, webhook style, and need no
// header.
func callURL(record *oauth.CredentialRecord, method string) (string, bool) {
	base := strings.TrimSuffix(record.EndpointBase(), "/") + "/"
	if record.Method == oauth.MethodSimplified {
		return base + record.AccessToken + "/" + method + ".json", false
	}
	return base + method + ".json", true
}
