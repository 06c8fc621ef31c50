package crm

import (
	"context"
	"encoding/json"
	"strings"

	"lead-relay/internal/common/errors"
	"lead-relay/internal/common/logging"
)

// Lead is a form submission normalized into the CRM's lead fields.
type Lead struct {
	Title    string `json:"title"`
	Name     string `json:"name,omitempty"`
	LastName string `json:"last_name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Comments string `json:"comments,omitempty"`
	SourceID string `json:"source_id,omitempty"`
}

// Validate checks the minimum a lead needs before relaying: a title and at
// least one way to reach the person.
func (l *Lead) Validate() error {
	if strings.TrimSpace(l.Title) == "" {
		return errors.ValidationError("lead title is required")
	}
	if strings.TrimSpace(l.Phone) == "" && strings.TrimSpace(l.Email) == "" {
		return errors.ValidationError("lead needs a phone or an email")
	}
	return nil
}

// fields maps the lead onto the provider's field register. Multi-value
// fields (phone, email) use the provider's VALUE/VALUE_TYPE shape.
func (l *Lead) fields() map[string]interface{} {
	fields := map[string]interface{}{
		"TITLE": l.Title,
	}
	if l.Name != "" {
		fields["NAME"] = l.Name
	}
	if l.LastName != "" {
		fields["LAST_NAME"] = l.LastName
	}
	if l.Comments != "" {
		fields["COMMENTS"] = l.Comments
	}
	if l.SourceID != "" {
		fields["SOURCE_ID"] = l.SourceID
	}
	if l.Phone != "" {
		fields["PHONE"] = []map[string]string{{"VALUE": l.Phone, "VALUE_TYPE": "WORK"}}
	}
	if l.Email != "" {
		fields["EMAIL"] = []map[string]string{{"VALUE": l.Email, "VALUE_TYPE": "WORK"}}
	}
	return fields
}

// AddLead relays a lead to the CRM and returns the created lead's ID.
func (c *Client) AddLead(ctx context.Context, lead *Lead) (int64, error) {
	if err := lead.Validate(); err != nil {
		return 0, err
	}

	result, err := c.Call(ctx, "crm.lead.add", map[string]interface{}{
		"fields": lead.fields(),
	})
	if err != nil {
		return 0, err
	}

	var id int64
	if err := json.Unmarshal(result.Result, &id); err != nil {
		return 0, errors.InternalError("unexpected crm.lead.add result shape", err)
	}

	c.logger.Info("Lead relayed to CRM",
		logging.Field{Key: "lead_id", Value: id},
		logging.Field{Key: "title", Value: lead.Title},
	)
	return id, nil
}
