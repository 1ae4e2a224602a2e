package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/reflex/internal/event"
	"github.com/alfredjeanlab/reflex/internal/model"
	"github.com/alfredjeanlab/reflex/internal/schema"
)

type mockQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (q *mockQueue) Enqueue(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return q.err
}

func (q *mockQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

type mockPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *mockPublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *mockPublisher) Close() error { return nil }

func (p *mockPublisher) has(topic string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.topics {
		if t == topic {
			return true
		}
	}
	return false
}

func newTestEngine(t *testing.T, st *mockStore) (*Engine, *mockQueue, *mockPublisher) {
	t.Helper()
	reg, err := schema.Default()
	if err != nil {
		t.Fatalf("schema.Default: %v", err)
	}
	q := &mockQueue{}
	pub := &mockPublisher{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(st, event.NewNormalizer(reg), q, pub, logger), q, pub
}

func seedListener(st *mockStore, id string, l model.Listener) *model.Listener {
	l.ID = id
	if l.SourceID == "" {
		l.SourceID = model.SourceStateFeed
	}
	if l.ActionType == "" {
		l.ActionType = model.ActionWakeLLM
		l.ConversationID = "conv-1"
	}
	if l.DailyCap == 0 {
		l.DailyCap = model.DefaultDailyCap
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	l.Enabled = true
	_ = st.CreateListener(context.Background(), &l)
	lp, _ := st.GetListener(context.Background(), id)
	return lp
}

func stateLeaf(state string) model.Condition {
	return model.Condition{Field: "state", Operator: model.OpEquals, Value: state}
}

func TestSubmitRejectsInvalidPayload(t *testing.T) {
	st := newMockStore()
	eng, q, pub := newTestEngine(t, st)

	_, err := eng.Submit(context.Background(), model.SourceStateFeed, "state.changed",
		[]byte(`{"entity":"door","state":"open","bogus":1}`))

	var rej *event.RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("got %v, want RejectionError", err)
	}
	if len(q.ids) != 0 {
		t.Errorf("rejected event created tasks: %v", q.ids)
	}
	if len(st.audit) != 0 {
		t.Errorf("rejected event wrote audit entries")
	}
	if !pub.has("reflex.event.rejected") {
		t.Error("expected event.rejected publication")
	}
}

func TestSubmitDispatchesMatchingListeners(t *testing.T) {
	st := newMockStore()
	eng, q, pub := newTestEngine(t, st)

	seedListener(st, "ls-1", model.Listener{Name: "door open", Condition: stateLeaf("open")})
	seedListener(st, "ls-2", model.Listener{Name: "door closed", Condition: stateLeaf("closed")})

	res, err := eng.Submit(context.Background(), model.SourceStateFeed, "state.changed",
		[]byte(`{"entity":"door","state":"open"}`))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if len(res.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(res.Records))
	}
	rec := res.Records[0]
	if rec.ListenerID != "ls-1" || rec.Outcome != model.OutcomeDispatched || rec.TaskID == "" {
		t.Errorf("record = %+v", rec)
	}

	created, err := st.GetTask(context.Background(), rec.TaskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if created.Status != model.TaskPending || created.Type != model.ActionWakeLLM {
		t.Errorf("task = %+v", created)
	}
	if created.ListenerID != "ls-1" || created.EventID != res.Event.ID {
		t.Errorf("task provenance = listener %s event %s", created.ListenerID, created.EventID)
	}
	if len(q.ids) != 1 || q.ids[0] != rec.TaskID {
		t.Errorf("enqueued = %v", q.ids)
	}
	if len(st.audit) != 1 || st.audit[0].Outcome != model.OutcomeDispatched {
		t.Errorf("audit = %+v", st.audit)
	}
	for _, topic := range []string{"reflex.event.accepted", "reflex.task.created", "reflex.listener.fired"} {
		if !pub.has(topic) {
			t.Errorf("missing publication %s", topic)
		}
	}
}

func TestSubmitRateLimitsAtDailyCap(t *testing.T) {
	st := newMockStore()
	eng, q, pub := newTestEngine(t, st)

	seedListener(st, "ls-1", model.Listener{Name: "door open", Condition: stateLeaf("open"), DailyCap: 1})
	raw := []byte(`{"entity":"door","state":"open"}`)

	if _, err := eng.Submit(context.Background(), model.SourceStateFeed, "state.changed", raw); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	res, err := eng.Submit(context.Background(), model.SourceStateFeed, "state.changed", raw)
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}

	if len(res.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(res.Records))
	}
	rec := res.Records[0]
	if rec.Outcome != model.OutcomeRateLimited || rec.TaskID != "" {
		t.Errorf("record = %+v", rec)
	}
	if len(q.ids) != 1 {
		t.Errorf("enqueued %d tasks, want 1", len(q.ids))
	}
	if len(st.audit) != 2 || st.audit[1].Outcome != model.OutcomeRateLimited {
		t.Errorf("audit = %+v", st.audit)
	}
	if !pub.has("reflex.listener.rate_limited") {
		t.Error("expected listener.rate_limited publication")
	}
}

func TestSubmitConcurrentEventsNeverExceedCap(t *testing.T) {
	const dailyCap, events = 3, 8

	st := newMockStore()
	eng, q, _ := newTestEngine(t, st)
	seedListener(st, "ls-1", model.Listener{Name: "door open", Condition: stateLeaf("open"), DailyCap: dailyCap})
	raw := []byte(`{"entity":"door","state":"open"}`)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		dispatched int
		limited    int
	)
	for i := 0; i < events; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := eng.Submit(context.Background(), model.SourceStateFeed, "state.changed", raw)
			if err != nil {
				t.Errorf("Submit: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, rec := range res.Records {
				switch rec.Outcome {
				case model.OutcomeDispatched:
					dispatched++
				case model.OutcomeRateLimited:
					limited++
				}
			}
		}()
	}
	wg.Wait()

	if dispatched != dailyCap {
		t.Errorf("dispatched = %d, want %d", dispatched, dailyCap)
	}
	if limited != events-dailyCap {
		t.Errorf("rate limited = %d, want %d", limited, events-dailyCap)
	}
	if q.len() != dailyCap {
		t.Errorf("enqueued %d tasks, want %d", q.len(), dailyCap)
	}
	l, err := st.GetListener(context.Background(), "ls-1")
	if err != nil {
		t.Fatalf("GetListener: %v", err)
	}
	if l.DailyExecutions != dailyCap {
		t.Errorf("daily executions = %d, want %d", l.DailyExecutions, dailyCap)
	}
}

func TestSubmitOneTimeFiresOnce(t *testing.T) {
	st := newMockStore()
	eng, q, _ := newTestEngine(t, st)

	seedListener(st, "ls-1", model.Listener{Name: "first boot", Condition: stateLeaf("open"), OneTime: true})
	raw := []byte(`{"entity":"door","state":"open"}`)

	if _, err := eng.Submit(context.Background(), model.SourceStateFeed, "state.changed", raw); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	l, err := st.GetListener(context.Background(), "ls-1")
	if err != nil {
		t.Fatalf("GetListener: %v", err)
	}
	if l.Enabled {
		t.Error("one-time listener should be disabled after firing")
	}

	res, err := eng.Submit(context.Background(), model.SourceStateFeed, "state.changed", raw)
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if len(res.Records) != 0 {
		t.Errorf("disabled listener matched: %+v", res.Records)
	}
	if len(q.ids) != 1 {
		t.Errorf("enqueued %d tasks, want 1", len(q.ids))
	}
}

func TestSubmitSkipsSpentOneTime(t *testing.T) {
	st := newMockStore()
	eng, _, _ := newTestEngine(t, st)

	// Inconsistent state a concurrent fire can leave behind: matched as
	// enabled, but the fire slot is already spent.
	fired := time.Now().UTC().Add(-time.Minute)
	l := seedListener(st, "ls-1", model.Listener{Name: "first boot", Condition: stateLeaf("open"), OneTime: true})
	l.LastExecutionAt = &fired

	res, err := eng.Submit(context.Background(), model.SourceStateFeed, "state.changed",
		[]byte(`{"entity":"door","state":"open"}`))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].Outcome != model.OutcomeSkipped {
		t.Errorf("records = %+v, want one skipped", res.Records)
	}
}

func TestSubmitProcessesInCreationOrder(t *testing.T) {
	st := newMockStore()
	eng, _, _ := newTestEngine(t, st)

	base := time.Now().UTC()
	seedListener(st, "ls-b", model.Listener{Name: "second", Condition: stateLeaf("open"), CreatedAt: base.Add(time.Second)})
	seedListener(st, "ls-a", model.Listener{Name: "first", Condition: stateLeaf("open"), CreatedAt: base})

	res, err := eng.Submit(context.Background(), model.SourceStateFeed, "state.changed",
		[]byte(`{"entity":"door","state":"open"}`))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(res.Records))
	}
	if res.Records[0].ListenerID != "ls-a" || res.Records[1].ListenerID != "ls-b" {
		t.Errorf("order = %s, %s", res.Records[0].ListenerID, res.Records[1].ListenerID)
	}
}

func TestSubmitBuildsScriptPayload(t *testing.T) {
	st := newMockStore()
	eng, _, _ := newTestEngine(t, st)

	seedListener(st, "ls-1", model.Listener{
		Name:         "run backup",
		Condition:    stateLeaf("open"),
		ActionType:   model.ActionScript,
		ActionConfig: []byte(`{"script_id":"backup.sh","arguments":["--full"]}`),
	})

	res, err := eng.Submit(context.Background(), model.SourceStateFeed, "state.changed",
		[]byte(`{"entity":"door","state":"open"}`))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	task, err := st.GetTask(context.Background(), res.Records[0].TaskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Type != model.ActionScript {
		t.Errorf("type = %s", task.Type)
	}
	if !strings.Contains(string(task.Payload), `"script_id":"backup.sh"`) {
		t.Errorf("payload = %s", task.Payload)
	}
}

func TestSummarize(t *testing.T) {
	ev := &model.Event{
		SourceID:  model.SourceStateFeed,
		EventType: "state.changed",
		Payload:   map[string]any{"state": "open", "entity": "door"},
	}
	got := summarize(ev)
	want := "state_feed event state.changed: entity=door, state=open"
	if got != want {
		t.Errorf("summarize = %q, want %q", got, want)
	}
}
