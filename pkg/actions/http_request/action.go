// Package httprequest performs an outbound HTTP call as a step action.
package httprequest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/magnusmagz/crm-k-sub002/pkg/actions"
)

type HTTPRequestAction struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
	Timeout time.Duration

	client *http.Client
}

func (a *HTTPRequestAction) Execute(ctx context.Context, actx actions.Context) (map[string]any, error) {
	logger := actx.Logger.With("action_type", "http_request", "method", a.Method, "url", a.URL)
	logger.Info("Executing HTTP request")

	reqCtx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	var bodyReader io.Reader
	if a.Body != "" {
		bodyReader = strings.NewReader(a.Body)
	}

	req, err := http.NewRequestWithContext(reqCtx, a.Method, a.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	for key, value := range a.Headers {
		req.Header.Set(key, value)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http request returned status %d", resp.StatusCode)
	}

	result := map[string]any{"status_code": resp.StatusCode}

	var decoded any
	if json.Unmarshal(respBody, &decoded) == nil {
		result["body"] = decoded
	} else {
		result["body"] = string(respBody)
	}

	logger.Info("HTTP request completed", "status_code", resp.StatusCode)

	return result, nil
}
