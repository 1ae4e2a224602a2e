package model

import (
	"encoding/json"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskRetrying  TaskStatus = "retrying"
)

// String returns the string representation of the status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskRunning, TaskSucceeded, TaskFailed, TaskRetrying:
		return true
	}
	return false
}

// IsTerminal reports whether the status is a terminal state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// DefaultMaxAttempts is the retry budget applied to new tasks.
const DefaultMaxAttempts = 3

// Task is a unit of asynchronous work produced by a fired listener.
// Created pending by the dispatcher, exclusively owned by the worker
// afterwards. A task always reaches succeeded or failed; it is never
// silently discarded.
type Task struct {
	ID             string          `json:"id"`
	Type           ActionType      `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	Status         TaskStatus      `json:"status"`
	AttemptCount   int             `json:"attempt_count"`
	MaxAttempts    int             `json:"max_attempts"`
	LastError      string          `json:"last_error,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	ListenerID     string          `json:"listener_id,omitempty"`
	EventID        string          `json:"event_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// WakeLLMPayload is the task payload for wake_llm tasks: a summarized event
// context handed to the conversational-turn invoker.
type WakeLLMPayload struct {
	ConversationID string    `json:"conversation_id"`
	ListenerName   string    `json:"listener_name"`
	SourceID       SourceID  `json:"source_id"`
	EventType      string    `json:"event_type"`
	ContextSummary string    `json:"context_summary"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// ScriptPayload is the task payload for script tasks.
type ScriptPayload struct {
	ScriptID   string   `json:"script_id"`
	Arguments  []string `json:"arguments,omitempty"`
	TimeoutSec int      `json:"timeout_sec,omitempty"`
}
