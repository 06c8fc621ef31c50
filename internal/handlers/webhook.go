package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"lead-relay/internal/common/errors"
	"lead-relay/internal/crm"
)

// HandleFormSubmission receives a website form post and relays it to the CRM
// as a lead. Accepts JSON and classic form encoding.
func (h *Handlers) HandleFormSubmission(w http.ResponseWriter, r *http.Request) {
	lead, err := parseLead(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	id, err := h.submitter.AddLead(r.Context(), lead)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"result":  "created",
		"lead_id": id,
	})
}

func parseLead(r *http.Request) (*crm.Lead, error) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "application/json") {
		var lead crm.Lead
		if err := json.NewDecoder(r.Body).Decode(&lead); err != nil {
			return nil, errors.ValidationError("invalid JSON form payload")
		}
		return &lead, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, errors.ValidationError("invalid form payload")
	}
	return &crm.Lead{
		Title:    r.PostFormValue("title"),
		Name:     r.PostFormValue("name"),
		LastName: r.PostFormValue("last_name"),
		Phone:    r.PostFormValue("phone"),
		Email:    r.PostFormValue("email"),
		Comments: r.PostFormValue("comments"),
		SourceID: r.PostFormValue("source_id"),
	}, nil
}
