package httprequest

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/magnusmagz/crm-k-sub002/pkg/actions"
)

const defaultTimeout = 30 * time.Second

func NewHTTPRequestActionFactory() *HTTPRequestActionFactory {
	return &HTTPRequestActionFactory{}
}

type HTTPRequestActionFactory struct{}

func (f *HTTPRequestActionFactory) ID() string {
	return "http_request"
}

func (f *HTTPRequestActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Request URL.",
			},
			"method": map[string]any{
				"type":        "string",
				"enum":        []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
				"description": "HTTP method. Defaults to POST.",
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Request headers as string key/value pairs.",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Raw request body.",
			},
			"timeout_seconds": map[string]any{
				"type":        "number",
				"minimum":     1,
				"description": "Per-request timeout. Defaults to 30 seconds.",
			},
		},
		"required": []string{"url"},
	}
}

func (f *HTTPRequestActionFactory) Create(config map[string]any) (actions.Action, error) {
	url, _ := config["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("http_request requires a url")
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	headers := make(map[string]string)
	if headersConfig, ok := config["headers"].(map[string]any); ok {
		for k, v := range headersConfig {
			if strVal, ok := v.(string); ok {
				headers[k] = strVal
			}
		}
	}

	body, _ := config["body"].(string)

	timeout := defaultTimeout
	if seconds, ok := config["timeout_seconds"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds * float64(time.Second))
	}

	return &HTTPRequestAction{
		Method:  strings.ToUpper(method),
		URL:     url,
		Headers: headers,
		Body:    body,
		Timeout: timeout,
		client:  &http.Client{},
	}, nil
}
