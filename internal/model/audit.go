package model

import (
	"time"
)

// Outcome classifies what happened to a single (listener, event) dispatch
// attempt. Rate-limit and eligibility skips are deliberate no-fires, recorded
// distinctly from failures.
type Outcome string

const (
	OutcomeDispatched  Outcome = "dispatched"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeSkipped     Outcome = "skipped"
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	return string(o)
}

// AuditEntry is an append-only record written once per dispatch attempt.
type AuditEntry struct {
	ID         int64     `json:"id"`
	ListenerID string    `json:"listener_id"`
	TaskID     string    `json:"task_id,omitempty"`
	EventID    string    `json:"event_id"`
	Outcome    Outcome   `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
