package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/alfredjeanlab/reflex/internal/model"
	"github.com/alfredjeanlab/reflex/internal/store"
)

// listenerColumns is the column list used for SELECT statements on the listeners table.
const listenerColumns = `id, name, source_id, condition, action_type, action_config,
	conversation_id, enabled, one_time, daily_cap, daily_executions,
	last_execution_at, created_at`

// taskColumns is the column list used for SELECT statements on the tasks table.
const taskColumns = `id, type, payload, status, attempt_count, max_attempts,
	last_error, conversation_id, listener_id, event_id, created_at, updated_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryCreateListener(ctx context.Context, db executor, l *model.Listener) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO listeners (
			id, name, source_id, condition, action_type, action_config,
			conversation_id, enabled, one_time, daily_cap, daily_executions,
			last_execution_at, daily_reset_on, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14
		)`,
		l.ID,
		l.Name,
		string(l.SourceID),
		conditionBytes(&l.Condition),
		string(l.ActionType),
		jsonbBytes(l.ActionConfig),
		nullString(l.ConversationID),
		l.Enabled,
		l.OneTime,
		l.DailyCap,
		l.DailyExecutions,
		nullTimePtr(l.LastExecutionAt),
		l.CreatedAt.UTC().Format("2006-01-02"),
		l.CreatedAt,
	)
	return err
}

func queryGetListener(ctx context.Context, db executor, id string) (*model.Listener, error) {
	row := db.QueryRowContext(ctx, `SELECT `+listenerColumns+` FROM listeners WHERE id = $1`, id)
	return scanListener(row)
}

func queryListListeners(ctx context.Context, db executor, filter store.ListenerFilter) ([]*model.Listener, error) {
	var (
		where []string
		args  []any
	)
	if filter.SourceID != "" {
		args = append(args, string(filter.SourceID))
		where = append(where, fmt.Sprintf("source_id = $%d", len(args)))
	}
	if filter.Enabled != nil {
		args = append(args, *filter.Enabled)
		where = append(where, fmt.Sprintf("enabled = $%d", len(args)))
	}

	q := `SELECT ` + listenerColumns + ` FROM listeners`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanListeners(rows)
}

func queryEnabledListenersBySource(ctx context.Context, db executor, src model.SourceID) ([]*model.Listener, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+listenerColumns+`
		FROM listeners
		WHERE source_id = $1 AND enabled
		ORDER BY created_at, id`,
		string(src),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanListeners(rows)
}

func querySetListenerEnabled(ctx context.Context, db executor, id string, enabled bool) error {
	res, err := db.ExecContext(ctx, `UPDATE listeners SET enabled = $2 WHERE id = $1`, id, enabled)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func queryDeleteListener(ctx context.Context, db executor, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM listeners WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// queryAcquireFire performs the compare-and-increment that upholds the daily
// cap. The WHERE clause re-checks every eligibility condition inside the
// update itself, so concurrent acquisitions serialize on the row lock and the
// cap can never be exceeded. The count restarts when the stored accounting
// day is older than the current UTC day. One-time listeners are disabled in
// the same statement that records their first execution.
func queryAcquireFire(ctx context.Context, db executor, id string, now time.Time) (bool, error) {
	day := now.UTC().Format("2006-01-02")
	res, err := db.ExecContext(ctx, `
		UPDATE listeners SET
			daily_executions = CASE WHEN daily_reset_on < $2::date THEN 1 ELSE daily_executions + 1 END,
			daily_reset_on = $2::date,
			last_execution_at = $3,
			enabled = CASE WHEN one_time THEN FALSE ELSE enabled END
		WHERE id = $1
			AND enabled
			AND (NOT one_time OR last_execution_at IS NULL)
			AND (daily_reset_on < $2::date OR daily_executions < daily_cap)`,
		id, day, now,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func queryCreateTask(ctx context.Context, db executor, t *model.Task) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, type, payload, status, attempt_count, max_attempts,
			last_error, conversation_id, listener_id, event_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12
		)`,
		t.ID,
		string(t.Type),
		jsonbBytes(t.Payload),
		string(t.Status),
		t.AttemptCount,
		t.MaxAttempts,
		nullString(t.LastError),
		nullString(t.ConversationID),
		nullString(t.ListenerID),
		nullString(t.EventID),
		t.CreatedAt,
		t.UpdatedAt,
	)
	return err
}

func queryGetTask(ctx context.Context, db executor, id string) (*model.Task, error) {
	row := db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	return scanTask(row)
}

// queryClaimTask takes the execution lease on a task. Only pending and
// retrying tasks can be claimed; a second claim on the same task finds the
// status already running and affects zero rows.
func queryClaimTask(ctx context.Context, db executor, id string, now time.Time) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE tasks SET status = 'running', updated_at = $2
		WHERE id = $1 AND status IN ('pending', 'retrying')`,
		id, now,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func queryMarkTask(ctx context.Context, db executor, id string, status model.TaskStatus, attempts int, lastError string, now time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE tasks SET status = $2, attempt_count = $3, last_error = $4, updated_at = $5
		WHERE id = $1`,
		id, string(status), attempts, nullString(lastError), now,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func queryRequeueRunningTasks(ctx context.Context, db executor, now time.Time) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		UPDATE tasks SET status = 'retrying', updated_at = $1
		WHERE status = 'running'
		RETURNING id`,
		now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func queryListTasks(ctx context.Context, db executor, status model.TaskStatus, limit int) ([]*model.Task, error) {
	var (
		args  []any
		where string
	)
	if status != "" {
		args = append(args, string(status))
		where = " WHERE status = $1"
	}
	q := `SELECT ` + taskColumns + ` FROM tasks` + where + ` ORDER BY created_at, id`
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func queryRecordAudit(ctx context.Context, db executor, e *model.AuditEntry) error {
	row := db.QueryRowContext(ctx, `
		INSERT INTO audit_log (listener_id, task_id, event_id, outcome, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		e.ListenerID,
		nullString(e.TaskID),
		e.EventID,
		string(e.Outcome),
		nullString(e.Detail),
		e.CreatedAt,
	)
	return row.Scan(&e.ID)
}

func queryListAudit(ctx context.Context, db executor, since time.Time, limit int) ([]*model.AuditEntry, error) {
	args := []any{since}
	q := `
		SELECT id, listener_id, task_id, event_id, outcome, detail, created_at
		FROM audit_log
		WHERE created_at > $1
		ORDER BY id`
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*model.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func queryAppendMessage(ctx context.Context, db executor, m *model.Message) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, interface_type, role, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID,
		m.ConversationID,
		string(m.InterfaceType),
		nullString(m.Role),
		m.Body,
		m.CreatedAt,
	)
	return err
}

func queryGetMessagesAfter(ctx context.Context, db executor, conversationID string, iface model.InterfaceType, cursor time.Time) ([]*model.Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, conversation_id, interface_type, role, body, created_at
		FROM messages
		WHERE conversation_id = $1 AND interface_type = $2 AND created_at > $3
		ORDER BY created_at, id`,
		conversationID, string(iface), cursor,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
