// Package bus publishes engine outcomes to external delivery transports.
//
// Every externally interesting transition (event accepted or rejected, task
// created and finished, message appended) is emitted on its own subject so
// transports outside this process can react without polling. The bus is
// optional; when no broker is configured the engine runs with the noop
// publisher.
package bus

import (
	"context"
	"time"

	"github.com/alfredjeanlab/reflex/internal/model"
)

// Subject constants.
const (
	TopicEventAccepted = "reflex.event.accepted"
	TopicEventRejected = "reflex.event.rejected"

	TopicTaskCreated   = "reflex.task.created"
	TopicTaskSucceeded = "reflex.task.succeeded"
	TopicTaskFailed    = "reflex.task.failed"
	TopicTaskRetrying  = "reflex.task.retrying"

	TopicListenerFired       = "reflex.listener.fired"
	TopicListenerRateLimited = "reflex.listener.rate_limited"

	TopicMessageAppended = "reflex.message.appended"
)

// Payload types.

type EventAccepted struct {
	Event *model.Event `json:"event"`
}

type EventRejected struct {
	SourceID model.SourceID `json:"source_id"`
	Reason   string         `json:"reason"`
}

type TaskCreated struct {
	Task *model.Task `json:"task"`
}

type TaskFinished struct {
	TaskID       string           `json:"task_id"`
	Type         model.ActionType `json:"type"`
	Status       model.TaskStatus `json:"status"`
	AttemptCount int              `json:"attempt_count"`
	LastError    string           `json:"last_error,omitempty"`
}

type ListenerFired struct {
	ListenerID string `json:"listener_id"`
	EventID    string `json:"event_id"`
	TaskID     string `json:"task_id"`
}

type ListenerRateLimited struct {
	ListenerID string `json:"listener_id"`
	EventID    string `json:"event_id"`
}

type MessageAppended struct {
	MessageID      string              `json:"message_id"`
	ConversationID string              `json:"conversation_id"`
	InterfaceType  model.InterfaceType `json:"interface_type"`
	CreatedAt      time.Time           `json:"created_at"`
}

// Publisher is the interface for emitting bus messages.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg any) error
	Close() error
}

// Subscriber receives bus messages.
type Subscriber interface {
	// Subscribe delivers raw message payloads on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}
