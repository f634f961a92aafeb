// Package webhook posts response notifications to owner-configured URLs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Sender interface {
	Send(ctx context.Context, url string, payload any) error
	ProviderID() string
}

type HTTPSender struct {
	token     string
	userAgent string
	http      *http.Client
}

func NewHTTPSender(token string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSender{
		token:     strings.TrimSpace(token),
		userAgent: "whenmeet-notifier/1",
		http:      &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSender) ProviderID() string {
	return "webhook"
}

func (s *HTTPSender) Send(ctx context.Context, url string, payload any) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return fmt.Errorf("webhook url is empty")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

type NoopSender struct{}

func (NoopSender) ProviderID() string {
	return "webhook-noop"
}

func (NoopSender) Send(context.Context, string, any) error {
	return nil
}
