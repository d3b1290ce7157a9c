package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const maxResponseBody = 2000

var ErrInvalidConfig = errors.New("invalid action config")

// HTTPError is a non-2xx provider response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.Status, e.Body)
}

// IsRetryable reports whether err is worth another attempt: transport
// failures, 429 and 5xx responses.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrInvalidConfig) || errors.Is(err, context.Canceled) {
		return false
	}
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr.Status == http.StatusTooManyRequests || herr.Status >= 500
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Code == "ratelimited" || perr.Code == "service_unavailable"
	}
	return true
}

// IsAuthFailure reports whether the provider rejected the account credentials.
func IsAuthFailure(err error) bool {
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr.Status == http.StatusUnauthorized || herr.Status == http.StatusForbidden
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		switch perr.Code {
		case "invalid_auth", "not_authed", "token_revoked", "token_expired", "account_inactive":
			return true
		}
	}
	return false
}

// ProviderError is an application-level error reported in a 2xx body.
type ProviderError struct {
	Code string
}

func (e *ProviderError) Error() string { return "provider error: " + e.Code }

// ExecRequest carries everything an executor needs for one invocation. Config
// is already rendered against the event payload.
type ExecRequest struct {
	Provider  *ProviderConfig
	Account   *IntegrationAccount
	Operation string
	Config    map[string]interface{}
	Payload   map[string]interface{}
}

// Executor performs a provider operation and returns the raw response body.
type Executor interface {
	Execute(ctx context.Context, req ExecRequest) (string, error)
}

func configString(cfg map[string]interface{}, key string) string {
	s, _ := cfg[key].(string)
	return strings.TrimSpace(s)
}

func requireKeys(cfg map[string]interface{}, keys ...string) error {
	for _, k := range keys {
		if configString(cfg, k) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidConfig, k)
		}
	}
	return nil
}

func doJSON(ctx context.Context, client *http.Client, method, target string, headers map[string]string, body interface{}) (string, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "linkmarket-automation/1.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	text := strings.ToValidUTF8(string(raw), "")
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return text, &HTTPError{Status: resp.StatusCode, Body: text}
	}
	return text, nil
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// --- webhook/post_json ---

// WebhookExecutor posts JSON to an arbitrary http(s) URL. The body is the
// rendered "body" config value, or the event payload when absent.
type WebhookExecutor struct {
	client *http.Client
}

func (e *WebhookExecutor) Execute(ctx context.Context, req ExecRequest) (string, error) {
	target := configString(req.Config, "url")
	if err := ValidateHTTPURL(target); err != nil {
		return "", err
	}

	headers := map[string]string{}
	if h, ok := req.Config["headers"].(map[string]interface{}); ok {
		for k, v := range h {
			if s, ok := v.(string); ok {
				headers[k] = s
			}
		}
	}
	if req.Account != nil && req.Account.APIKey != "" {
		headers["Authorization"] = "Bearer " + req.Account.APIKey
	}

	var body interface{} = req.Payload
	if b, ok := req.Config["body"]; ok {
		body = b
	}
	return doJSON(ctx, e.client, http.MethodPost, target, headers, body)
}

// ValidateHTTPURL accepts absolute http and https URLs only.
func ValidateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be an absolute http(s) URL", ErrInvalidConfig)
	}
	return nil
}

// --- slack/post_message ---

type SlackExecutor struct {
	client *http.Client
}

func (e *SlackExecutor) Execute(ctx context.Context, req ExecRequest) (string, error) {
	if err := requireKeys(req.Config, "channel", "text"); err != nil {
		return "", err
	}
	if req.Account == nil || req.Account.AccessToken == "" {
		return "", fmt.Errorf("%w: slack account has no access token", ErrInvalidConfig)
	}

	body := map[string]interface{}{
		"channel": configString(req.Config, "channel"),
		"text":    configString(req.Config, "text"),
	}
	resp, err := doJSON(ctx, e.client, http.MethodPost, req.Provider.BaseURL+"/chat.postMessage", bearer(req.Account.AccessToken), body)
	if err != nil {
		return resp, err
	}

	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(resp), &result); err != nil {
		return resp, fmt.Errorf("slack: unreadable response: %w", err)
	}
	if !result.OK {
		return resp, &ProviderError{Code: result.Error}
	}
	return resp, nil
}

// --- trello/create_card ---

type TrelloExecutor struct {
	client *http.Client
}

func (e *TrelloExecutor) Execute(ctx context.Context, req ExecRequest) (string, error) {
	if err := requireKeys(req.Config, "list_id", "name"); err != nil {
		return "", err
	}
	if req.Account == nil || req.Account.APIKey == "" || req.Account.AccessToken == "" {
		return "", fmt.Errorf("%w: trello account needs an api key and token", ErrInvalidConfig)
	}

	q := url.Values{}
	q.Set("key", req.Account.APIKey)
	q.Set("token", req.Account.AccessToken)
	q.Set("idList", configString(req.Config, "list_id"))
	q.Set("name", configString(req.Config, "name"))
	if desc := configString(req.Config, "desc"); desc != "" {
		q.Set("desc", desc)
	}
	return doJSON(ctx, e.client, http.MethodPost, req.Provider.BaseURL+"/1/cards?"+q.Encode(), nil, nil)
}

// --- google_sheets/append_row ---

type SheetsExecutor struct {
	client *http.Client
}

func (e *SheetsExecutor) Execute(ctx context.Context, req ExecRequest) (string, error) {
	if err := requireKeys(req.Config, "spreadsheet_id", "range"); err != nil {
		return "", err
	}
	values, ok := req.Config["values"].([]interface{})
	if !ok || len(values) == 0 {
		return "", fmt.Errorf("%w: values must be a non-empty list", ErrInvalidConfig)
	}
	if req.Account == nil || req.Account.AccessToken == "" {
		return "", fmt.Errorf("%w: sheets account has no access token", ErrInvalidConfig)
	}

	target := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s:append?valueInputOption=USER_ENTERED&insertDataOption=INSERT_ROWS",
		req.Provider.BaseURL,
		url.PathEscape(configString(req.Config, "spreadsheet_id")),
		url.PathEscape(configString(req.Config, "range")),
	)
	body := map[string]interface{}{"values": []interface{}{values}}
	return doJSON(ctx, e.client, http.MethodPost, target, bearer(req.Account.AccessToken), body)
}

// DefaultExecutors returns an executor for each built-in provider.
func DefaultExecutors(client *http.Client) map[string]Executor {
	return map[string]Executor{
		ProviderWebhook:      &WebhookExecutor{client: client},
		ProviderSlack:        &SlackExecutor{client: client},
		ProviderTrello:       &TrelloExecutor{client: client},
		ProviderGoogleSheets: &SheetsExecutor{client: client},
	}
}

// ValidateActionConfig checks the static shape of an action config before it
// is stored. Values may still contain placeholders.
func ValidateActionConfig(provider, op string, cfg map[string]interface{}) error {
	switch provider + "/" + op {
	case ProviderWebhook + "/" + OpPostJSON:
		target := configString(cfg, "url")
		if placeholder.MatchString(target) {
			return requireKeys(cfg, "url")
		}
		return ValidateHTTPURL(target)
	case ProviderSlack + "/" + OpPostMessage:
		return requireKeys(cfg, "channel", "text")
	case ProviderTrello + "/" + OpCreateCard:
		return requireKeys(cfg, "list_id", "name")
	case ProviderGoogleSheets + "/" + OpAppendRow:
		if err := requireKeys(cfg, "spreadsheet_id", "range"); err != nil {
			return err
		}
		if v, ok := cfg["values"].([]interface{}); !ok || len(v) == 0 {
			return fmt.Errorf("%w: values must be a non-empty list", ErrInvalidConfig)
		}
		return nil
	}
	return fmt.Errorf("%w: unsupported operation %s/%s", ErrInvalidConfig, provider, op)
}
