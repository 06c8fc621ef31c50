// Package handlers wires the HTTP surface: installation callbacks, the form
// webhook, and the admin API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"lead-relay/internal/auth"
	"lead-relay/internal/common/errors"
	"lead-relay/internal/common/logging"
	"lead-relay/internal/crm"
	"lead-relay/internal/middleware"
	"lead-relay/internal/oauth"
)

// LeadSubmitter is the slice of the CRM client the form webhook needs.
type LeadSubmitter interface {
	AddLead(ctx context.Context, lead *crm.Lead) (int64, error)
}

// CredentialAcquirer covers the three acquisition paths.
type CredentialAcquirer interface {
	AuthorizeURL(state string) string
	FromSimplified(ctx context.Context, install oauth.SimplifiedInstall) (*oauth.CredentialRecord, error)
	FromInstallationEvent(ctx context.Context, event oauth.InstallationEvent) (*oauth.CredentialRecord, error)
	ExchangeCode(ctx context.Context, code string) (*oauth.CredentialRecord, error)
}

// CredentialLifecycle covers the manager operations the admin API exposes.
type CredentialLifecycle interface {
	Status(ctx context.Context) (*oauth.TokenStatus, error)
	ForceRefresh(ctx context.Context) (*oauth.CredentialRecord, error)
	Clear(ctx context.Context) error
}

// Handlers holds the dependencies for all routes.
type Handlers struct {
	acquirer  CredentialAcquirer
	lifecycle CredentialLifecycle
	submitter LeadSubmitter
	admin     *auth.Auth
	logger    logging.Logger
}

// New creates the handler set. admin may be nil, which leaves the admin API
// unmounted.
func New(acquirer CredentialAcquirer, lifecycle CredentialLifecycle, submitter LeadSubmitter, admin *auth.Auth, logger logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Handlers{
		acquirer:  acquirer,
		lifecycle: lifecycle,
		submitter: submitter,
		admin:     admin,
		logger:    logger,
	}
}

// Routes builds the router with logging and recovery applied to everything.
func (h *Handlers) Routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)

	r.HandleFunc("/install", h.HandleInstall).Methods(http.MethodPost)
	r.HandleFunc("/oauth/authorize", h.HandleAuthorize).Methods(http.MethodGet)
	r.HandleFunc("/oauth/callback", h.HandleCallback).Methods(http.MethodGet)

	r.HandleFunc("/webhook/form", h.HandleFormSubmission).Methods(http.MethodPost)

	if h.admin != nil {
		r.HandleFunc("/auth/login", h.HandleLogin).Methods(http.MethodPost)

		adminRouter := r.PathPrefix("/admin").Subrouter()
		adminRouter.Use(mux.MiddlewareFunc(h.admin.RequireAuth))
		adminRouter.HandleFunc("/status", h.HandleStatus).Methods(http.MethodGet)
		adminRouter.HandleFunc("/refresh", h.HandleForceRefresh).Methods(http.MethodPost)
		adminRouter.HandleFunc("/credential", h.HandleClearCredential).Methods(http.MethodDelete)
	}

	r.Use(mux.MiddlewareFunc(middleware.Recovery(h.logger)))
	r.Use(mux.MiddlewareFunc(middleware.RequestLogging(h.logger)))

	return r
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("Failed to encode response",
			logging.Field{Key: "error", Value: err.Error()})
	}
}

// respondError maps the error taxonomy onto HTTP statuses and a stable JSON
// error shape.
func (h *Handlers) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	errType := errors.GetType(err)

	switch errType {
	case errors.ErrTypeValidation, errors.ErrTypeOAuthExchange:
		status = http.StatusBadRequest
	case errors.ErrTypeNoCredential, errors.ErrTypeReauthRequired:
		status = http.StatusUnauthorized
	case errors.ErrTypeRefreshFailed, errors.ErrTypeRemoteApplication:
		status = http.StatusBadGateway
	case errors.ErrTypeRemoteUnavailable:
		status = http.StatusServiceUnavailable
	case errors.ErrTypeTimeout:
		status = http.StatusGatewayTimeout
	}

	body := map[string]interface{}{
		"error": string(errType),
	}
	if appErr, ok := err.(*errors.AppError); ok {
		body["message"] = appErr.Message
		if appErr.Code != "" {
			body["code"] = appErr.Code
		}
	} else {
		body["message"] = "internal error"
	}

	if status >= 500 {
		h.logger.Error("Request failed", err,
			logging.Field{Key: "status", Value: status},
		)
	}
	h.respondJSON(w, status, body)
}
