// Package event turns source-tagged raw payloads into canonical events and
// matches them against listener conditions.
package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alfredjeanlab/reflex/internal/idgen"
	"github.com/alfredjeanlab/reflex/internal/model"
	"github.com/alfredjeanlab/reflex/internal/schema"
)

// RejectionError reports a payload that failed schema validation. The raw
// input never becomes an event; the caller is told exactly why.
type RejectionError struct {
	SourceID model.SourceID
	Err      error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("event rejected for source %q: %v", e.SourceID, e.Err)
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

// Normalizer converts raw source payloads into canonical events, validating
// each against its source's declared schema.
type Normalizer struct {
	schemas *schema.Registry
}

// NewNormalizer returns a Normalizer backed by the given schema registry.
func NewNormalizer(schemas *schema.Registry) *Normalizer {
	return &Normalizer{schemas: schemas}
}

// Normalize validates raw JSON from a source and produces an immutable Event.
// A schema violation returns a *RejectionError and no event is created.
func (n *Normalizer) Normalize(sourceID model.SourceID, eventType string, raw []byte) (*model.Event, error) {
	if !sourceID.IsValid() {
		return nil, &RejectionError{SourceID: sourceID, Err: fmt.Errorf("unknown source %q", sourceID)}
	}
	if eventType == "" {
		return nil, &RejectionError{SourceID: sourceID, Err: fmt.Errorf("event_type is required")}
	}

	payload, err := decodePayload(raw)
	if err != nil {
		return nil, &RejectionError{SourceID: sourceID, Err: err}
	}
	if err := n.schemas.ValidatePayload(sourceID, payload); err != nil {
		return nil, &RejectionError{SourceID: sourceID, Err: err}
	}

	id, err := idgen.NewEventID()
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}

	return &model.Event{
		ID:         id,
		SourceID:   sourceID,
		EventType:  eventType,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}, nil
}

// decodePayload strictly decodes raw JSON into a flat key/value map.
// Numbers decode as json.Number so integer payload values survive intact.
func decodePayload(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("payload contains trailing data")
	}

	// Flatten json.Number to float64 so downstream comparisons see one
	// numeric representation.
	for k, v := range payload {
		if num, ok := v.(json.Number); ok {
			f, err := num.Float64()
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			payload[k] = f
		}
	}
	return payload, nil
}
