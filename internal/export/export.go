// Package export periodically snapshots the audit trail and listener set as
// JSONL to external destinations such as S3-compatible storage.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/reflex/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version       string    `json:"version"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	ListenerCount int       `json:"listener_count"`
	AuditCount    int       `json:"audit_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes all listeners and the audit entries recorded at or
// after since as JSONL to w. Listeners come out in creation order, audit
// entries in append order.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer, since time.Time) error {
	listeners, err := s.ListListeners(ctx, store.ListenerFilter{})
	if err != nil {
		return fmt.Errorf("list listeners: %w", err)
	}
	entries, err := s.ListAudit(ctx, since, 0)
	if err != nil {
		return fmt.Errorf("list audit entries: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:       "1",
		Type:          "header",
		Timestamp:     time.Now().UTC(),
		ListenerCount: len(listeners),
		AuditCount:    len(entries),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, l := range listeners {
		if err := enc.Encode(record{Type: "listener", Data: l}); err != nil {
			return fmt.Errorf("encode listener %s: %w", l.ID, err)
		}
	}
	for _, e := range entries {
		if err := enc.Encode(record{Type: "audit", Data: e}); err != nil {
			return fmt.Errorf("encode audit entry %d: %w", e.ID, err)
		}
	}
	return nil
}
