// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for each record type.
const (
	EventPrefix    = "ev-"
	ListenerPrefix = "ls-"
	TaskPrefix     = "tk-"
	MessagePrefix  = "ms-"
)

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 10

// NewEventID returns a new unique event ID.
func NewEventID() (string, error) { return GenerateWithPrefix(EventPrefix) }

// NewListenerID returns a new unique listener ID.
func NewListenerID() (string, error) { return GenerateWithPrefix(ListenerPrefix) }

// NewTaskID returns a new unique task ID.
func NewTaskID() (string, error) { return GenerateWithPrefix(TaskPrefix) }

// NewMessageID returns a new unique message ID.
func NewMessageID() (string, error) { return GenerateWithPrefix(MessagePrefix) }

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
