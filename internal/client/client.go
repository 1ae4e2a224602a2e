// Package client provides a transport-agnostic interface for the reflex
// service and an HTTP/JSON implementation that talks to the reflex REST API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alfredjeanlab/reflex/internal/engine"
	"github.com/alfredjeanlab/reflex/internal/model"
)

// ReflexClient is the interface that all reflex CLI commands use to
// communicate with the server. It is implemented by HTTPClient (default) and
// can be backed by any transport.
type ReflexClient interface {
	// Events
	SubmitEvent(ctx context.Context, req *SubmitEventRequest) (*engine.SubmitResult, error)

	// Tasks
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, status model.TaskStatus, limit int) ([]*model.Task, error)

	// Listeners
	CreateListener(ctx context.Context, req *CreateListenerRequest) (*model.Listener, error)
	GetListener(ctx context.Context, id string) (*model.Listener, error)
	ListListeners(ctx context.Context, req *ListListenersRequest) ([]*model.Listener, error)
	EnableListener(ctx context.Context, id string) (*model.Listener, error)
	DisableListener(ctx context.Context, id string) (*model.Listener, error)
	DeleteListener(ctx context.Context, id string) error

	// Audit
	ListAudit(ctx context.Context, since time.Time, limit int) ([]*model.AuditEntry, error)

	// Messages
	AppendMessage(ctx context.Context, conversationID string, req *AppendMessageRequest) (*model.Message, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// SubmitEventRequest holds parameters for submitting an event.
type SubmitEventRequest struct {
	SourceID  model.SourceID  `json:"source_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// CreateListenerRequest holds parameters for creating a listener.
type CreateListenerRequest struct {
	Name           string           `json:"name"`
	SourceID       model.SourceID   `json:"source_id"`
	Condition      model.Condition  `json:"condition"`
	ActionType     model.ActionType `json:"action_type"`
	ActionConfig   json.RawMessage  `json:"action_config,omitempty"`
	ConversationID string           `json:"conversation_id,omitempty"`
	OneTime        bool             `json:"one_time"`
	DailyCap       *int             `json:"daily_cap,omitempty"`
}

// ListListenersRequest holds parameters for listing listeners.
type ListListenersRequest struct {
	SourceID model.SourceID
	Enabled  *bool
	Limit    int
	Offset   int
}

// AppendMessageRequest holds parameters for appending a conversation message.
type AppendMessageRequest struct {
	InterfaceType model.InterfaceType `json:"interface_type"`
	Role          string              `json:"role,omitempty"`
	Body          string              `json:"body"`
}

// APIError is an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}
