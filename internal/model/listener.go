package model

import (
	"encoding/json"
	"time"
)

// ActionType is the effect a listener produces when it fires.
type ActionType string

const (
	ActionWakeLLM ActionType = "wake_llm"
	ActionScript  ActionType = "script"
)

// String returns the string representation of the action type.
func (a ActionType) String() string {
	return string(a)
}

// IsValid checks whether the action type is a known value.
func (a ActionType) IsValid() bool {
	switch a {
	case ActionWakeLLM, ActionScript:
		return true
	}
	return false
}

// DefaultDailyCap is the per-listener execution ceiling applied when a
// listener is created without an explicit cap.
const DefaultDailyCap = 5

// Listener is a stored condition/action pair that reacts to events.
// The engine reads the eligibility fields and writes back DailyExecutions,
// LastExecutionAt, and (for one-time listeners) Enabled, always through the
// store's atomic fire acquisition, never via read-then-write.
type Listener struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	SourceID        SourceID        `json:"source_id"`
	Condition       Condition       `json:"condition"`
	ActionType      ActionType      `json:"action_type"`
	ActionConfig    json.RawMessage `json:"action_config,omitempty"`
	ConversationID  string          `json:"conversation_id,omitempty"`
	Enabled         bool            `json:"enabled"`
	OneTime         bool            `json:"one_time"`
	DailyCap        int             `json:"daily_cap"`
	DailyExecutions int             `json:"daily_executions"`
	LastExecutionAt *time.Time      `json:"last_execution_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ScriptConfig is the action_config shape for script listeners.
type ScriptConfig struct {
	ScriptID   string   `json:"script_id"`
	Arguments  []string `json:"arguments,omitempty"`
	TimeoutSec int      `json:"timeout_sec,omitempty"`
}

// ValidateListener checks a Listener for constraint violations, including
// eager validation of its condition tree against the source's payload
// fields. It returns a *ValidationError if any rules fail.
func ValidateListener(l *Listener, fields map[string]FieldType) error {
	var ve ValidationError

	if l.Name == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "name", Message: "is required"})
	}
	if !l.SourceID.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "source_id",
			Message: "invalid value " + quote(string(l.SourceID)),
		})
	}
	if !l.ActionType.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "action_type",
			Message: "invalid value " + quote(string(l.ActionType)),
		})
	}
	if l.DailyCap < 1 {
		ve.Errors = append(ve.Errors, FieldError{Field: "daily_cap", Message: "must be at least 1"})
	}
	if len(l.ActionConfig) > 0 && !json.Valid(l.ActionConfig) {
		ve.Errors = append(ve.Errors, FieldError{Field: "action_config", Message: "contains invalid JSON"})
	}

	switch l.ActionType {
	case ActionWakeLLM:
		if l.ConversationID == "" {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   "conversation_id",
				Message: "is required for wake_llm listeners",
			})
		}
	case ActionScript:
		var sc ScriptConfig
		if err := json.Unmarshal(l.ActionConfig, &sc); err != nil || sc.ScriptID == "" {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   "action_config",
				Message: "script listeners require a script_id",
			})
		}
	}

	if err := ValidateCondition(&l.Condition, fields); err != nil {
		if cve, ok := err.(*ValidationError); ok {
			ve.Errors = append(ve.Errors, cve.Errors...)
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
