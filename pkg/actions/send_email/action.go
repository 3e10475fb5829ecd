// Package sendemail hands a message off to the configured delivery
// endpoint. The engine treats delivery as fire-and-forget: a 2xx from
// the endpoint counts as success, anything else fails the action.
package sendemail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/magnusmagz/crm-k-sub002/pkg/actions"
)

type SendEmailAction struct {
	endpoint string
	client   *http.Client

	Subject    string
	TemplateID string
	Body       string
	ToField    string
}

type deliveryRequest struct {
	To         string `json:"to"`
	Subject    string `json:"subject"`
	TemplateID string `json:"template_id,omitempty"`
	Body       string `json:"body,omitempty"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

func (a *SendEmailAction) Execute(ctx context.Context, actx actions.Context) (map[string]any, error) {
	logger := actx.Logger.With("action_type", "send_email")

	recipient, _ := actx.Snapshot[a.ToField].(string)
	if recipient == "" {
		return nil, fmt.Errorf("entity has no address in field '%s'", a.ToField)
	}

	if a.endpoint == "" {
		return nil, fmt.Errorf("no delivery endpoint configured")
	}

	payload, err := json.Marshal(deliveryRequest{
		To:         recipient,
		Subject:    a.Subject,
		TemplateID: a.TemplateID,
		Body:       a.Body,
		EntityType: string(actx.EntityType),
		EntityID:   actx.EntityID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode delivery request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("delivery request failed: %w", err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("delivery endpoint returned status %d", resp.StatusCode)
	}

	logger.Info("Queued email for delivery", "to", recipient, "subject", a.Subject)

	return map[string]any{"to": recipient, "subject": a.Subject, "status_code": resp.StatusCode}, nil
}
