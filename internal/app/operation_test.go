package app

import (
	"testing"
	"time"
)

func TestNewOperation(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	op := NewOperation("SignDocument", start)

	if op.Name != "SignDocument" {
		t.Errorf("Name = %q, want %q", op.Name, "SignDocument")
	}
	if op.Status != "success" {
		t.Errorf("Status = %q, want %q", op.Status, "success")
	}
	if op.Failed() {
		t.Error("Failed() = true for a new operation")
	}
	if got := op.Elapsed(start.Add(1500 * time.Millisecond)); got != 1500*time.Millisecond {
		t.Errorf("Elapsed() = %v, want 1.5s", got)
	}
}

func TestOperation_Fail(t *testing.T) {
	op := NewOperation("ShareDocument", time.Now())
	op.Fail()

	if !op.Failed() {
		t.Error("Failed() = false after Fail()")
	}
	if op.Status != "error" {
		t.Errorf("Status = %q, want %q", op.Status, "error")
	}
}
