package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"lead-relay/internal/common/errors"
	"lead-relay/internal/common/logging"
	"lead-relay/internal/oauth"
)

// HandleInstall receives the provider's installation POST. The same endpoint
// serves both shapes: an ONAPPINSTALL event carrying a full grant, and a
// simplified payload carrying a bare non-expiring token. The payload may
// arrive as JSON or as a form post depending on the provider's mood.
func (h *Handlers) HandleInstall(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.respondError(w, errors.ValidationError("failed to read installation payload"))
		return
	}

	if len(body) > 0 && body[0] == '{' {
		h.installFromJSON(w, r, body)
		return
	}
	h.installFromForm(w, r)
}

func (h *Handlers) installFromJSON(w http.ResponseWriter, r *http.Request, body []byte) {
	var event oauth.InstallationEvent
	if err := json.Unmarshal(body, &event); err == nil && event.Auth.AccessToken != "" {
		record, err := h.acquirer.FromInstallationEvent(r.Context(), event)
		if err != nil {
			h.respondError(w, err)
			return
		}
		h.respondJSON(w, http.StatusOK, map[string]interface{}{
			"result":    "installed",
			"method":    record.Method,
			"member_id": record.MemberID,
		})
		return
	}

	var install oauth.SimplifiedInstall
	if err := json.Unmarshal(body, &install); err != nil || install.AuthToken == "" {
		h.respondError(w, errors.ValidationError("unrecognized installation payload"))
		return
	}

	record, err := h.acquirer.FromSimplified(r.Context(), install)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"result":    "installed",
		"method":    record.Method,
		"member_id": record.MemberID,
	})
}

// installFromForm handles the form-encoded variant of the installation POST.
// A full grant arrives as AUTH_ID/REFRESH_ID pairs; a simplified install
// arrives with AUTH_ID only.
func (h *Handlers) installFromForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.respondError(w, errors.ValidationError("failed to parse installation form"))
		return
	}

	authID := r.PostFormValue("AUTH_ID")
	refreshID := r.PostFormValue("REFRESH_ID")
	memberID := r.PostFormValue("member_id")
	domain := r.PostFormValue("DOMAIN")
	if domain == "" {
		domain = r.URL.Query().Get("DOMAIN")
	}

	if authID == "" {
		h.respondError(w, errors.ValidationError("installation form carries no AUTH_ID"))
		return
	}

	if refreshID == "" {
		record, err := h.acquirer.FromSimplified(r.Context(), oauth.SimplifiedInstall{
			AuthToken: authID,
			Domain:    domain,
			MemberID:  memberID,
		})
		if err != nil {
			h.respondError(w, err)
			return
		}
		h.respondJSON(w, http.StatusOK, map[string]interface{}{
			"result":    "installed",
			"method":    record.Method,
			"member_id": record.MemberID,
		})
		return
	}

	expiresIn := 3600
	if v := r.PostFormValue("AUTH_EXPIRES"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			expiresIn = parsed
		}
	}

	record, err := h.acquirer.FromInstallationEvent(r.Context(), oauth.InstallationEvent{
		Event: r.PostFormValue("event"),
		Auth: oauth.InstallationGrant{
			AccessToken:  authID,
			RefreshToken: refreshID,
			ExpiresIn:    expiresIn,
			Domain:       domain,
			MemberID:     memberID,
			Status:       r.PostFormValue("status"),
		},
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"result":    "installed",
		"method":    record.Method,
		"member_id": record.MemberID,
	})
}

// HandleAuthorize starts the authorization-code flow by redirecting the
// browser to the provider's consent page.
func (h *Handlers) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	http.Redirect(w, r, h.acquirer.AuthorizeURL(state), http.StatusFound)
}

// HandleCallback finishes the authorization-code flow: the provider redirects
// here with a single-use code, which is exchanged and persisted.
func (h *Handlers) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if errCode := r.URL.Query().Get("error"); errCode != "" {
		h.logger.Warn("Authorization denied at consent page",
			logging.Field{Key: "code", Value: errCode})
		h.respondError(w, errors.OAuthExchangeError(errCode, r.URL.Query().Get("error_description")))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.respondError(w, errors.ValidationError("callback carries no authorization code"))
		return
	}

	record, err := h.acquirer.ExchangeCode(r.Context(), code)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"result":    "authorized",
		"method":    record.Method,
		"member_id": record.MemberID,
	})
}
