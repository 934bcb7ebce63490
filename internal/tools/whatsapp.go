package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clara-assistant/clara/internal/adapters/retry"
)

// WhatsAppConfig carries the messenger provider credentials.
type WhatsAppConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string // e.g. "whatsapp:+14155238886"
	BaseURL    string // provider API base, defaults to Twilio
}

const defaultTwilioBaseURL = "https://api.twilio.com"

// SendWhatsAppTool sends a WhatsApp message through the Twilio REST API.
type SendWhatsAppTool struct {
	cfg         WhatsAppConfig
	httpClient  *http.Client
	retryConfig retry.BackoffConfig
}

func NewSendWhatsAppTool(cfg WhatsAppConfig) *SendWhatsAppTool {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwilioBaseURL
	}
	return &SendWhatsAppTool{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		retryConfig: retry.HTTPConfig(),
	}
}

func (t *SendWhatsAppTool) Name() string { return "send_whatsapp" }

func (t *SendWhatsAppTool) Description() string {
	return "Sends a WhatsApp message to a phone number. The number must include the country code."
}

func (t *SendWhatsAppTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"type":        "string",
				"description": "Destination number, e.g. +34600000001",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Message text",
			},
		},
		"required": []string{"to", "body"},
	}
}

func (t *SendWhatsAppTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	to, _ := args["to"].(string)
	body, _ := args["body"].(string)
	if to == "" || body == "" {
		return nil, fmt.Errorf("to and body are required")
	}
	if !strings.HasPrefix(to, "whatsapp:") {
		to = "whatsapp:" + to
	}

	form := url.Values{}
	form.Set("From", t.cfg.FromNumber)
	form.Set("To", to)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.cfg.BaseURL, t.cfg.AccountSID)

	var respBody []byte
	err := retry.WithBackoffHTTP(ctx, t.retryConfig, func() (int, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)

		resp, err := t.httpClient.Do(req)
		if err != nil {
			return 0, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode >= 300 {
			return resp.StatusCode, fmt.Errorf("provider error: %s - %s", resp.Status, string(respBody))
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		return nil, err
	}

	var created struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return WhatsAppSendResult{
		MessageSID: created.SID,
		To:         to,
		Status:     created.Status,
	}, nil
}

type WhatsAppSendResult struct {
	MessageSID string `json:"message_sid"`
	To         string `json:"to"`
	Status     string `json:"status"`
}
