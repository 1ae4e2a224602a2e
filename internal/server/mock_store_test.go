package server

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/reflex/internal/model"
	"github.com/alfredjeanlab/reflex/internal/store"
)

// mockStore is a minimal in-memory store for worker tests. Guarded by a
// mutex because the worker runs tasks concurrently.
type mockStore struct {
	mu        sync.Mutex
	listeners map[string]*model.Listener
	resetOn   map[string]time.Time
	tasks     map[string]*model.Task
	audit     []*model.AuditEntry
	messages  []*model.Message
}

func newMockStore() *mockStore {
	return &mockStore{
		listeners: make(map[string]*model.Listener),
		resetOn:   make(map[string]time.Time),
		tasks:     make(map[string]*model.Task),
	}
}

func (m *mockStore) CreateListener(_ context.Context, l *model.Listener) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners[l.ID] = l
	return nil
}

func (m *mockStore) GetListener(_ context.Context, id string) (*model.Listener, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listeners[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return l, nil
}

func (m *mockStore) ListListeners(_ context.Context, filter store.ListenerFilter) ([]*model.Listener, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.Listener
	for _, l := range m.listeners {
		if filter.SourceID != "" && l.SourceID != filter.SourceID {
			continue
		}
		if filter.Enabled != nil && l.Enabled != *filter.Enabled {
			continue
		}
		result = append(result, l)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *mockStore) EnabledListenersBySource(ctx context.Context, src model.SourceID) ([]*model.Listener, error) {
	enabled := true
	return m.ListListeners(ctx, store.ListenerFilter{SourceID: src, Enabled: &enabled})
}

func (m *mockStore) SetListenerEnabled(_ context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listeners[id]
	if !ok {
		return sql.ErrNoRows
	}
	l.Enabled = enabled
	return nil
}

func (m *mockStore) DeleteListener(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listeners[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.listeners, id)
	return nil
}

func (m *mockStore) AcquireFire(_ context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listeners[id]
	if !ok {
		return false, sql.ErrNoRows
	}
	if !l.Enabled {
		return false, nil
	}
	if l.OneTime && l.LastExecutionAt != nil {
		return false, nil
	}
	day := now.UTC().Truncate(24 * time.Hour)
	if m.resetOn[id].Before(day) {
		l.DailyExecutions = 0
		m.resetOn[id] = day
	}
	if l.DailyExecutions >= l.DailyCap {
		return false, nil
	}
	l.DailyExecutions++
	t := now
	l.LastExecutionAt = &t
	if l.OneTime {
		l.Enabled = false
	}
	return true, nil
}

func (m *mockStore) CreateTask(_ context.Context, t *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *mockStore) GetTask(_ context.Context, id string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (m *mockStore) ClaimTask(_ context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return false, sql.ErrNoRows
	}
	if t.Status != model.TaskPending && t.Status != model.TaskRetrying {
		return false, nil
	}
	t.Status = model.TaskRunning
	t.UpdatedAt = now
	return true, nil
}

func (m *mockStore) MarkTaskSucceeded(_ context.Context, id string, attempts int, now time.Time) error {
	return m.finish(id, model.TaskSucceeded, attempts, "", now)
}

func (m *mockStore) MarkTaskRetrying(_ context.Context, id string, attempts int, lastError string, now time.Time) error {
	return m.finish(id, model.TaskRetrying, attempts, lastError, now)
}

func (m *mockStore) MarkTaskFailed(_ context.Context, id string, attempts int, lastError string, now time.Time) error {
	return m.finish(id, model.TaskFailed, attempts, lastError, now)
}

func (m *mockStore) finish(id string, status model.TaskStatus, attempts int, lastError string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return sql.ErrNoRows
	}
	t.Status = status
	t.AttemptCount = attempts
	t.LastError = lastError
	t.UpdatedAt = now
	return nil
}

func (m *mockStore) RequeueRunningTasks(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, t := range m.tasks {
		if t.Status == model.TaskRunning {
			t.Status = model.TaskRetrying
			t.UpdatedAt = now
			ids = append(ids, t.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *mockStore) ListTasks(_ context.Context, status model.TaskStatus, limit int) ([]*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.Task
	for _, t := range m.tasks {
		if status != "" && t.Status != status {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockStore) RecordAudit(_ context.Context, e *model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	return nil
}

func (m *mockStore) ListAudit(_ context.Context, since time.Time, limit int) ([]*model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.AuditEntry
	for _, e := range m.audit {
		if !e.CreatedAt.Before(since) {
			result = append(result, e)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockStore) AppendMessage(_ context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockStore) GetMessagesAfter(_ context.Context, conversationID string, iface model.InterfaceType, cursor time.Time) ([]*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*model.Message
	for _, msg := range m.messages {
		if msg.ConversationID != conversationID || msg.InterfaceType != iface {
			continue
		}
		if msg.CreatedAt.After(cursor) {
			result = append(result, msg)
		}
	}
	return result, nil
}

func (m *mockStore) Close() error { return nil }
