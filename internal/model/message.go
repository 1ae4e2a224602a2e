package model

import (
	"time"
)

// InterfaceType identifies the delivery surface a subscriber is attached
// through. Notifications for one interface type never reach subscribers of
// another, even within the same conversation.
type InterfaceType string

const (
	InterfaceWeb  InterfaceType = "web"
	InterfaceChat InterfaceType = "chat"
)

// String returns the string representation of the interface type.
func (i InterfaceType) String() string {
	return string(i)
}

// IsValid reports whether the interface type is a non-empty string.
// Interface types are extensible; any non-empty value is accepted.
func (i InterfaceType) IsValid() bool {
	return i != ""
}

// Message is a persisted conversation message. The notifier delivers
// lightweight references to it; subscribers re-fetch bodies by cursor.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	InterfaceType  InterfaceType `json:"interface_type"`
	Role           string        `json:"role,omitempty"`
	Body           string        `json:"body"`
	CreatedAt      time.Time     `json:"created_at"`
}
