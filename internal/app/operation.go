package app

import "time"

// Operation is the CLI command an app instance runs. It is logged when it
// starts and when the app closes, and traced as the root span.
type Operation struct {
	Name      string
	Status    string // "success" or "error"
	StartedAt time.Time
}

// NewOperation creates a successful operation started at now.
func NewOperation(name string, now time.Time) *Operation {
	return &Operation{
		Name:      name,
		Status:    "success",
		StartedAt: now,
	}
}

// Fail marks the operation as failed.
func (op *Operation) Fail() {
	op.Status = "error"
}

// Failed reports whether Fail was called.
func (op *Operation) Failed() bool {
	return op.Status == "error"
}

// Elapsed returns the time since the operation started.
func (op *Operation) Elapsed(now time.Time) time.Duration {
	return now.Sub(op.StartedAt)
}
