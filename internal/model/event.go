package model

import (
	"time"
)

// SourceID identifies the origin feed of an event.
type SourceID string

const (
	SourceStateFeed    SourceID = "state_feed"
	SourceContentIndex SourceID = "content_index"
	SourceWebhook      SourceID = "webhook"
	SourceSchedule     SourceID = "schedule"
)

// String returns the string representation of the source ID.
func (s SourceID) String() string {
	return string(s)
}

// IsValid checks whether the source ID is a known value.
func (s SourceID) IsValid() bool {
	switch s {
	case SourceStateFeed, SourceContentIndex, SourceWebhook, SourceSchedule:
		return true
	}
	return false
}

// Event is a normalized record of something that happened at a source.
// Events are immutable once created; the pipeline only ever reads them.
type Event struct {
	ID         string         `json:"id"`
	SourceID   SourceID       `json:"source_id"`
	EventType  string         `json:"event_type"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}
