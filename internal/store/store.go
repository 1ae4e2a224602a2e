package store

import (
	"context"
	"time"

	"github.com/alfredjeanlab/reflex/internal/model"
)

// ListenerFilter narrows ListListeners results.
type ListenerFilter struct {
	SourceID model.SourceID
	Enabled  *bool
	Limit    int
	Offset   int
}

// Store defines the persistence interface for reflex.
type Store interface {
	// Listeners
	CreateListener(ctx context.Context, l *model.Listener) error
	GetListener(ctx context.Context, id string) (*model.Listener, error)
	ListListeners(ctx context.Context, filter ListenerFilter) ([]*model.Listener, error)
	// EnabledListenersBySource returns enabled listeners for a source in
	// creation order, so matching and audit output are reproducible.
	EnabledListenersBySource(ctx context.Context, src model.SourceID) ([]*model.Listener, error)
	SetListenerEnabled(ctx context.Context, id string, enabled bool) error
	DeleteListener(ctx context.Context, id string) error
	// AcquireFire atomically records one execution of a listener: it
	// increments daily_executions (restarting the count when the UTC day
	// rolled over), stamps last_execution_at, and disables one-time
	// listeners, all in a single conditional update. It returns false when
	// the listener is disabled, already fired (one-time), or at its cap.
	AcquireFire(ctx context.Context, id string, now time.Time) (bool, error)

	// Tasks
	CreateTask(ctx context.Context, t *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	// ClaimTask transitions a pending or retrying task to running. It
	// returns false when the task was already claimed or is terminal,
	// guaranteeing single execution.
	ClaimTask(ctx context.Context, id string, now time.Time) (bool, error)
	MarkTaskSucceeded(ctx context.Context, id string, attempts int, now time.Time) error
	MarkTaskRetrying(ctx context.Context, id string, attempts int, lastError string, now time.Time) error
	MarkTaskFailed(ctx context.Context, id string, attempts int, lastError string, now time.Time) error
	// RequeueRunningTasks flips running tasks back to retrying. Called on
	// startup so work interrupted by a crash or shutdown is never lost.
	RequeueRunningTasks(ctx context.Context, now time.Time) ([]string, error)
	ListTasks(ctx context.Context, status model.TaskStatus, limit int) ([]*model.Task, error)

	// Audit trail
	RecordAudit(ctx context.Context, e *model.AuditEntry) error
	ListAudit(ctx context.Context, since time.Time, limit int) ([]*model.AuditEntry, error)

	// Messages
	AppendMessage(ctx context.Context, m *model.Message) error
	GetMessagesAfter(ctx context.Context, conversationID string, iface model.InterfaceType, cursor time.Time) ([]*model.Message, error)

	// Lifecycle
	Close() error
}
