// Package mail delivers transactional email.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"docsign/internal/docsign"
)

const (
	DefaultResendEndpoint = "https://api.resend.com/emails"
	DefaultFrom           = "onboarding@resend.dev"
)

// ResendMailer sends email through the Resend HTTP API.
type ResendMailer struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
}

var _ docsign.Mailer = (*ResendMailer)(nil)

// NewResendMailer creates a mailer. Empty endpoint and from fall back to the
// Resend defaults.
func NewResendMailer(endpoint, apiKey, from string, timeout time.Duration) (*ResendMailer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend mailer requires an API key")
	}
	if endpoint == "" {
		endpoint = DefaultResendEndpoint
	}
	if from == "" {
		from = DefaultFrom
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ResendMailer{
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     from,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Name    string `json:"name"`
}

// APIError is a non-2xx response from Resend.
type APIError struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("resend: %d %s: %s", e.StatusCode, e.Name, e.Message)
	}
	return fmt.Sprintf("resend: %d: %s", e.StatusCode, e.Message)
}

// Permanent reports whether retrying cannot help. Client errors are
// permanent except rate limiting.
func (e *APIError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

func (m *ResendMailer) Send(ctx context.Context, msg docsign.Email) error {
	body, err := json.Marshal(resendRequest{
		From:    m.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("encoding email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	var out resendResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Name: out.Name, Message: out.Message}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	return nil
}
