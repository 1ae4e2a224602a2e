package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alfredjeanlab/reflex/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanListener scans a single row into a model.Listener.
// The row must contain columns in the order defined by listenerColumns.
func scanListener(row scannable) (*model.Listener, error) {
	var l model.Listener
	var (
		condition       []byte
		actionConfig    []byte
		conversationID  sql.NullString
		lastExecutionAt sql.NullTime
	)

	err := row.Scan(
		&l.ID,
		&l.Name,
		&l.SourceID,
		&condition,
		&l.ActionType,
		&actionConfig,
		&conversationID,
		&l.Enabled,
		&l.OneTime,
		&l.DailyCap,
		&l.DailyExecutions,
		&lastExecutionAt,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(condition, &l.Condition); err != nil {
		return nil, fmt.Errorf("decode condition for listener %s: %w", l.ID, err)
	}
	if len(actionConfig) > 0 {
		l.ActionConfig = json.RawMessage(actionConfig)
	}
	l.ConversationID = conversationID.String
	if lastExecutionAt.Valid {
		t := lastExecutionAt.Time
		l.LastExecutionAt = &t
	}

	return &l, nil
}

func scanListeners(rows *sql.Rows) ([]*model.Listener, error) {
	var listeners []*model.Listener
	for rows.Next() {
		l, err := scanListener(rows)
		if err != nil {
			return nil, err
		}
		listeners = append(listeners, l)
	}
	return listeners, rows.Err()
}

// scanTask scans a single row into a model.Task.
// The row must contain columns in the order defined by taskColumns.
func scanTask(row scannable) (*model.Task, error) {
	var t model.Task
	var (
		payload        []byte
		lastError      sql.NullString
		conversationID sql.NullString
		listenerID     sql.NullString
		eventID        sql.NullString
	)

	err := row.Scan(
		&t.ID,
		&t.Type,
		&payload,
		&t.Status,
		&t.AttemptCount,
		&t.MaxAttempts,
		&lastError,
		&conversationID,
		&listenerID,
		&eventID,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(payload) > 0 {
		t.Payload = json.RawMessage(payload)
	}
	t.LastError = lastError.String
	t.ConversationID = conversationID.String
	t.ListenerID = listenerID.String
	t.EventID = eventID.String

	return &t, nil
}

// scanAuditEntry scans a single audit_log row.
func scanAuditEntry(row scannable) (*model.AuditEntry, error) {
	var e model.AuditEntry
	var (
		taskID sql.NullString
		detail sql.NullString
	)

	err := row.Scan(
		&e.ID,
		&e.ListenerID,
		&taskID,
		&e.EventID,
		&e.Outcome,
		&detail,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.TaskID = taskID.String
	e.Detail = detail.String
	return &e, nil
}

// scanMessage scans a single messages row.
func scanMessage(row scannable) (*model.Message, error) {
	var m model.Message
	var role sql.NullString

	err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&m.InterfaceType,
		&role,
		&m.Body,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Role = role.String
	return &m, nil
}

// nullString converts an empty string to a SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullTimePtr converts a nil time pointer to a SQL NULL.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// jsonbBytes normalizes raw JSON for a jsonb column, mapping empty input to NULL.
func jsonbBytes(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// conditionBytes serializes a condition tree for its jsonb column.
// Conditions are validated long before they reach the store, so a marshal
// failure here is a programming error surfaced as empty JSON.
func conditionBytes(c *model.Condition) []byte {
	b, err := json.Marshal(c)
	if err != nil {
		return []byte(`{}`)
	}
	return b
}
