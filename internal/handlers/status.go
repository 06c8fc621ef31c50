package handlers

import (
	"encoding/json"
	"net/http"

	"lead-relay/internal/common/errors"
)

// HandleLogin exchanges the admin username and password for a bearer token.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		h.respondError(w, errors.ValidationError("invalid login payload"))
		return
	}

	token, err := h.admin.Login(creds.Username, creds.Password)
	if err != nil {
		h.respondJSON(w, http.StatusUnauthorized, map[string]string{
			"error":   "validation",
			"message": "invalid username or password",
		})
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

// HandleStatus returns the redacted credential diagnostics.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.lifecycle.Status(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, status)
}

// HandleForceRefresh rotates the token immediately.
func (h *Handlers) HandleForceRefresh(w http.ResponseWriter, r *http.Request) {
	record, err := h.lifecycle.ForceRefresh(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"result":     "refreshed",
		"expires_at": record.ExpiresAt,
	})
}

// HandleClearCredential drops the stored credential, returning the service to
// the unauthorized state.
func (h *Handlers) HandleClearCredential(w http.ResponseWriter, r *http.Request) {
	if err := h.lifecycle.Clear(r.Context()); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"result": "cleared"})
}
