package mail

import (
	"context"
	"fmt"
	"os"
	"sync"

	"docsign/internal/config"
	"docsign/internal/docsign"
)

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	logger docsign.Logger
}

var _ docsign.Mailer = (*LogMailer)(nil)

func NewLogMailer(logger docsign.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg docsign.Email) error {
	m.logger.Info("email", "to", msg.To, "subject", msg.Subject, "bytes", len(msg.HTML))
	return nil
}

// MemoryMailer records messages. Err, when set, is returned by Send instead.
type MemoryMailer struct {
	mu   sync.Mutex
	sent []docsign.Email
	Err  error
}

var _ docsign.Mailer = (*MemoryMailer)(nil)

func NewMemoryMailer() *MemoryMailer {
	return &MemoryMailer{}
}

func (m *MemoryMailer) Send(_ context.Context, msg docsign.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of the delivered messages.
func (m *MemoryMailer) Sent() []docsign.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]docsign.Email(nil), m.sent...)
}

// NewMailerFromConfig creates a Mailer based on the mailer config type.
func NewMailerFromConfig(cfg config.MailerConfig, network config.NetworkConfig, logger docsign.Logger) (docsign.Mailer, error) {
	switch cfg.Type {
	case "log", "":
		return NewLogMailer(logger), nil
	case "memory":
		return NewMemoryMailer(), nil
	case "resend":
		key := cfg.ResendAPIKey
		if key == "" {
			key = os.Getenv("RESEND_API_KEY")
		}
		return NewResendMailer(cfg.ResendEndpoint, key, cfg.From, network.Timeout.Duration)
	default:
		return nil, fmt.Errorf("unknown mailer type: %s", cfg.Type)
	}
}
