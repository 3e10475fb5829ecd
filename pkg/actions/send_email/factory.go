package sendemail

import (
	"fmt"
	"net/http"
	"time"

	"github.com/magnusmagz/crm-k-sub002/pkg/actions"
)

const defaultRecipientField = "email"

func NewSendEmailActionFactory(endpoint string, client *http.Client) *SendEmailActionFactory {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &SendEmailActionFactory{endpoint: endpoint, client: client}
}

type SendEmailActionFactory struct {
	endpoint string
	client   *http.Client
}

func (f *SendEmailActionFactory) ID() string {
	return "send_email"
}

func (f *SendEmailActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"subject": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Email subject line.",
			},
			"template_id": map[string]any{
				"type":        "string",
				"description": "Delivery-side template identifier.",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Plain-text body. Ignored when template_id is set.",
			},
			"to_field": map[string]any{
				"type":        "string",
				"description": "Snapshot field holding the recipient address. Defaults to 'email'.",
			},
		},
		"required": []string{"subject"},
	}
}

func (f *SendEmailActionFactory) Create(config map[string]any) (actions.Action, error) {
	subject, _ := config["subject"].(string)
	if subject == "" {
		return nil, fmt.Errorf("send_email requires a subject")
	}

	templateID, _ := config["template_id"].(string)
	body, _ := config["body"].(string)

	toField, _ := config["to_field"].(string)
	if toField == "" {
		toField = defaultRecipientField
	}

	return &SendEmailAction{
		endpoint:   f.endpoint,
		client:     f.client,
		Subject:    subject,
		TemplateID: templateID,
		Body:       body,
		ToField:    toField,
	}, nil
}
