package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

var (
	// ErrDisabled is returned when no webhook is configured.
	ErrDisabled = errors.New("webhook disabled")
	// ErrRejected is returned when the webhook answered without errcode 0.
	ErrRejected = errors.New("webhook rejected message")
)

// Sender delivers one text message.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// New returns a webhook sender, or a log-only sender when url is empty.
func New(url string, timeout time.Duration) Sender {
	if url == "" {
		return LogSender{}
	}
	return NewWebhookSender(url, timeout)
}

// WebhookSender posts text messages to a group-bot webhook.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender builds a sender with the given request timeout (30s when zero).
func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookSender{url: url, client: &http.Client{Timeout: timeout}}
}

type textPayload struct {
	MsgType string      `json:"msgtype"`
	Text    textContent `json:"text"`
}

type textContent struct {
	Content string `json:"content"`
}

type webhookResponse struct {
	ErrCode *int   `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Send posts text and succeeds only when the response carries errcode 0.
func (s *WebhookSender) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(textPayload{MsgType: "text", Text: textContent{Content: text}})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading webhook response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrRejected, resp.StatusCode)
	}

	var result webhookResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("%w: undecodable response: %v", ErrRejected, err)
	}
	if result.ErrCode == nil {
		return fmt.Errorf("%w: response without errcode", ErrRejected)
	}
	if *result.ErrCode != 0 {
		return fmt.Errorf("%w: errcode %d: %s", ErrRejected, *result.ErrCode, result.ErrMsg)
	}
	return nil
}

// LogSender stands in when no webhook is configured: it logs the message
// and reports ErrDisabled so nothing is marked delivered.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, text string) error {
	slog.Warn("webhook not configured, message not delivered", "chars", len([]rune(text)))
	slog.Debug("undelivered message", "content", text)
	return ErrDisabled
}
