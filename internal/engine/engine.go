// Package engine runs the dispatch pipeline: normalize an incoming payload,
// match it against enabled listeners, pass each match through the rate-limit
// gate, and create tasks for the matches that fired.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alfredjeanlab/reflex/internal/bus"
	"github.com/alfredjeanlab/reflex/internal/event"
	"github.com/alfredjeanlab/reflex/internal/idgen"
	"github.com/alfredjeanlab/reflex/internal/model"
	"github.com/alfredjeanlab/reflex/internal/store"
)

// TaskEnqueuer hands created tasks to the worker. Satisfied by *task.Worker.
type TaskEnqueuer interface {
	Enqueue(id string) error
}

// DispatchRecord is the outcome of one (listener, event) pair.
type DispatchRecord struct {
	ListenerID string        `json:"listener_id"`
	TaskID     string        `json:"task_id,omitempty"`
	Outcome    model.Outcome `json:"outcome"`
	Detail     string        `json:"detail,omitempty"`
}

// SubmitResult summarizes one pipeline run.
type SubmitResult struct {
	Event   *model.Event     `json:"event"`
	Records []DispatchRecord `json:"records"`
}

// Engine wires the pipeline stages together.
type Engine struct {
	store      store.Store
	normalizer *event.Normalizer
	tasks      TaskEnqueuer
	pub        bus.Publisher
	logger     *slog.Logger
}

// New creates an Engine.
func New(st store.Store, n *event.Normalizer, tasks TaskEnqueuer, pub bus.Publisher, logger *slog.Logger) *Engine {
	return &Engine{store: st, normalizer: n, tasks: tasks, pub: pub, logger: logger}
}

// Submit runs one raw payload through the full pipeline. A schema violation
// returns a *event.RejectionError and touches nothing. Listeners are
// processed in creation order; a failure dispatching one listener does not
// stop the others, and every processed pair leaves an audit record.
func (e *Engine) Submit(ctx context.Context, sourceID model.SourceID, eventType string, raw []byte) (*SubmitResult, error) {
	ev, err := e.normalizer.Normalize(sourceID, eventType, raw)
	if err != nil {
		var rej *event.RejectionError
		if errors.As(err, &rej) {
			e.logger.Warn("event rejected", "source_id", sourceID, "event_type", eventType, "error", rej.Err)
			e.publish(ctx, bus.TopicEventRejected, bus.EventRejected{SourceID: sourceID, Reason: rej.Err.Error()})
		}
		return nil, err
	}

	e.logger.Info("event accepted", "event_id", ev.ID, "source_id", ev.SourceID, "event_type", ev.EventType)
	e.publish(ctx, bus.TopicEventAccepted, bus.EventAccepted{Event: ev})

	listeners, err := e.store.EnabledListenersBySource(ctx, ev.SourceID)
	if err != nil {
		return nil, fmt.Errorf("load listeners for %s: %w", ev.SourceID, err)
	}

	result := &SubmitResult{Event: ev}
	var errs []error
	for _, l := range event.Match(ev, listeners) {
		rec, err := e.dispatch(ctx, ev, l)
		if err != nil {
			errs = append(errs, fmt.Errorf("listener %s: %w", l.ID, err))
			continue
		}
		result.Records = append(result.Records, rec)
	}
	return result, errors.Join(errs...)
}

// dispatch passes one matched listener through the fire gate and, when it
// fires, creates and enqueues its task. Exactly one audit record is written
// per call.
func (e *Engine) dispatch(ctx context.Context, ev *model.Event, l *model.Listener) (DispatchRecord, error) {
	now := time.Now().UTC()
	acquired, err := e.store.AcquireFire(ctx, l.ID, now)
	if err != nil {
		return DispatchRecord{}, fmt.Errorf("acquire fire: %w", err)
	}
	if !acquired {
		return e.recordNoFire(ctx, ev, l)
	}

	taskID, err := e.createTask(ctx, ev, l, now)
	if err != nil {
		// The fire slot is consumed but no task exists. Record the failure
		// so the audit trail explains the gap.
		e.audit(ctx, &model.AuditEntry{
			ListenerID: l.ID,
			EventID:    ev.ID,
			Outcome:    model.OutcomeSkipped,
			Detail:     "dispatch failed: " + err.Error(),
			CreatedAt:  now,
		})
		return DispatchRecord{}, err
	}

	e.audit(ctx, &model.AuditEntry{
		ListenerID: l.ID,
		TaskID:     taskID,
		EventID:    ev.ID,
		Outcome:    model.OutcomeDispatched,
		CreatedAt:  now,
	})
	e.logger.Info("listener fired", "listener_id", l.ID, "event_id", ev.ID, "task_id", taskID)
	e.publish(ctx, bus.TopicListenerFired, bus.ListenerFired{ListenerID: l.ID, EventID: ev.ID, TaskID: taskID})

	return DispatchRecord{ListenerID: l.ID, TaskID: taskID, Outcome: model.OutcomeDispatched}, nil
}

// recordNoFire classifies a refused fire. The gate refuses for a disabled or
// spent listener (skipped) or an exhausted daily cap (rate_limited); the
// distinction comes from re-reading the listener after the refusal.
func (e *Engine) recordNoFire(ctx context.Context, ev *model.Event, l *model.Listener) (DispatchRecord, error) {
	now := time.Now().UTC()
	outcome := model.OutcomeRateLimited
	detail := fmt.Sprintf("daily cap %d reached", l.DailyCap)

	cur, err := e.store.GetListener(ctx, l.ID)
	if err == nil {
		switch {
		case !cur.Enabled:
			outcome, detail = model.OutcomeSkipped, "listener disabled"
		case cur.OneTime && cur.LastExecutionAt != nil:
			outcome, detail = model.OutcomeSkipped, "one-time listener already fired"
		}
	}

	e.audit(ctx, &model.AuditEntry{
		ListenerID: l.ID,
		EventID:    ev.ID,
		Outcome:    outcome,
		Detail:     detail,
		CreatedAt:  now,
	})
	if outcome == model.OutcomeRateLimited {
		e.logger.Info("listener rate limited", "listener_id", l.ID, "event_id", ev.ID)
		e.publish(ctx, bus.TopicListenerRateLimited, bus.ListenerRateLimited{ListenerID: l.ID, EventID: ev.ID})
	}
	return DispatchRecord{ListenerID: l.ID, Outcome: outcome, Detail: detail}, nil
}

func (e *Engine) createTask(ctx context.Context, ev *model.Event, l *model.Listener, now time.Time) (string, error) {
	payload, err := taskPayload(ev, l)
	if err != nil {
		return "", err
	}
	id, err := idgen.NewTaskID()
	if err != nil {
		return "", fmt.Errorf("generate task id: %w", err)
	}
	t := &model.Task{
		ID:             id,
		Type:           l.ActionType,
		Payload:        payload,
		Status:         model.TaskPending,
		MaxAttempts:    model.DefaultMaxAttempts,
		ConversationID: l.ConversationID,
		ListenerID:     l.ID,
		EventID:        ev.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.CreateTask(ctx, t); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	e.publish(ctx, bus.TopicTaskCreated, bus.TaskCreated{Task: t})
	if err := e.tasks.Enqueue(id); err != nil {
		// The pending row survives; the next worker start picks it up.
		e.logger.Warn("task created but not enqueued", "task_id", id, "error", err)
	}
	return id, nil
}

func taskPayload(ev *model.Event, l *model.Listener) (json.RawMessage, error) {
	switch l.ActionType {
	case model.ActionWakeLLM:
		return json.Marshal(model.WakeLLMPayload{
			ConversationID: l.ConversationID,
			ListenerName:   l.Name,
			SourceID:       ev.SourceID,
			EventType:      ev.EventType,
			ContextSummary: summarize(ev),
			OccurredAt:     ev.OccurredAt,
		})
	case model.ActionScript:
		var cfg model.ScriptConfig
		if len(l.ActionConfig) > 0 {
			if err := json.Unmarshal(l.ActionConfig, &cfg); err != nil {
				return nil, fmt.Errorf("decode action_config: %w", err)
			}
		}
		if cfg.ScriptID == "" {
			return nil, fmt.Errorf("listener %s has no script_id", l.ID)
		}
		return json.Marshal(model.ScriptPayload{
			ScriptID:   cfg.ScriptID,
			Arguments:  cfg.Arguments,
			TimeoutSec: cfg.TimeoutSec,
		})
	default:
		return nil, fmt.Errorf("unknown action type %q", l.ActionType)
	}
}

// summarize renders an event as a single line suitable for waking a
// conversation. Keys are sorted so the summary is stable.
func summarize(ev *model.Event) string {
	keys := make([]string, 0, len(ev.Payload))
	for k := range ev.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%s event %s", ev.SourceID, ev.EventType)
	for i, k := range keys {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", k, ev.Payload[k])
	}
	return b.String()
}

func (e *Engine) audit(ctx context.Context, entry *model.AuditEntry) {
	if err := e.store.RecordAudit(ctx, entry); err != nil {
		e.logger.Error("failed to record audit entry",
			"listener_id", entry.ListenerID, "event_id", entry.EventID, "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, topic string, msg any) {
	if err := e.pub.Publish(ctx, topic, msg); err != nil {
		e.logger.Warn("failed to publish", "topic", topic, "error", err)
	}
}
