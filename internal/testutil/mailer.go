package testutil

import (
	"context"
	"sync"

	"docsign/internal/docsign"
)

// RecordingMailer records sent messages. The first Failures calls return
// Err instead.
type RecordingMailer struct {
	mu       sync.Mutex
	sent     []docsign.Email
	attempts int
	Err      error
	Failures int
}

var _ docsign.Mailer = (*RecordingMailer)(nil)

func NewRecordingMailer() *RecordingMailer {
	return &RecordingMailer{}
}

func (m *RecordingMailer) Send(_ context.Context, msg docsign.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.Failures > 0 {
		m.Failures--
		return m.Err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *RecordingMailer) Sent() []docsign.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]docsign.Email(nil), m.sent...)
}

// Attempts returns the number of Send calls, failed ones included.
func (m *RecordingMailer) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}
