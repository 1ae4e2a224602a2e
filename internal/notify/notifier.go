// Package notify fans out message-appended signals to live subscribers.
//
// Subscribers are keyed by (conversation_id, interface_type) and receive
// lightweight notifications, not message bodies. Delivery is in-process and
// single-instance; scaling past one process needs an external broker, which
// is a known limitation. Each subscriber queue is bounded with drop-oldest
// overflow: correctness comes from the timestamp cursor, not from queue
// contents. A heartbeat ticker keeps live connections distinguishable from
// dead ones, and a reaper removes subscribers that stop polling.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/reflex/internal/model"
)

// ErrSubscriberClosed is returned by Poll after the subscriber was
// deregistered or reaped.
var ErrSubscriberClosed = errors.New("subscriber closed")

// Notification is the lightweight signal delivered to subscribers.
// Heartbeats carry no message ID.
type Notification struct {
	MessageID      string              `json:"message_id,omitempty"`
	ConversationID string              `json:"conversation_id,omitempty"`
	InterfaceType  model.InterfaceType `json:"interface_type,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	Heartbeat      bool                `json:"heartbeat,omitempty"`
}

type subKey struct {
	conversationID string
	iface          model.InterfaceType
}

// Subscriber is one live connection. Created by Register, destroyed by
// Deregister or the reaper. Not persisted.
type Subscriber struct {
	key      subKey
	ch       chan Notification
	done     chan struct{}
	lastPoll time.Time // guarded by the notifier mutex
}

// Config holds notifier tuning.
type Config struct {
	// QueueSize bounds each subscriber queue. Default 64.
	QueueSize int
	// HeartbeatInterval is how often heartbeats are sent. Default 15s.
	HeartbeatInterval time.Duration
	// ReapAfter removes subscribers that have not polled for this long.
	// Default 60s.
	ReapAfter time.Duration
}

// MessageReader supplies the catch-up read for reconnecting subscribers.
type MessageReader interface {
	GetMessagesAfter(ctx context.Context, conversationID string, iface model.InterfaceType, cursor time.Time) ([]*model.Message, error)
}

// Notifier is the conversation-scoped fan-out hub.
type Notifier struct {
	cfg    Config
	store  MessageReader
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[subKey]map[*Subscriber]struct{}

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a Notifier. Call Start to run the heartbeat and reaper loops.
func New(store MessageReader, logger *slog.Logger, cfg Config) *Notifier {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if cfg.ReapAfter <= 0 {
		cfg.ReapAfter = 60 * time.Second
	}
	return &Notifier{
		cfg:    cfg,
		store:  store,
		logger: logger,
		subs:   make(map[subKey]map[*Subscriber]struct{}),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the heartbeat and reaper loop. Idempotent.
func (n *Notifier) Start() {
	if n.started.CompareAndSwap(false, true) {
		go n.loop()
	}
}

// Stop shuts the loop down and closes every subscriber.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() {
		close(n.stop)
		if n.started.Load() {
			<-n.done
		}

		n.mu.Lock()
		defer n.mu.Unlock()
		for _, set := range n.subs {
			for s := range set {
				close(s.done)
			}
		}
		n.subs = make(map[subKey]map[*Subscriber]struct{})
	})
}

// Register attaches a subscriber for one conversation/interface pair and
// returns it with the registration cursor. Live delivery starts before this
// returns, so a catch-up read with the caller's own cursor sees everything
// appended up to and across registration with no gap.
func (n *Notifier) Register(conversationID string, iface model.InterfaceType) (*Subscriber, time.Time, error) {
	if conversationID == "" {
		return nil, time.Time{}, fmt.Errorf("conversation_id is required")
	}
	if !iface.IsValid() {
		return nil, time.Time{}, fmt.Errorf("invalid interface_type %q", iface)
	}

	key := subKey{conversationID: conversationID, iface: iface}
	s := &Subscriber{
		key:  key,
		ch:   make(chan Notification, n.cfg.QueueSize),
		done: make(chan struct{}),
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	cursor := time.Now().UTC()
	s.lastPoll = cursor
	set, ok := n.subs[key]
	if !ok {
		set = make(map[*Subscriber]struct{})
		n.subs[key] = set
	}
	set[s] = struct{}{}
	return s, cursor, nil
}

// Deregister removes a subscriber. Safe to call more than once; an already
// removed subscriber is a no-op.
func (n *Notifier) Deregister(s *Subscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.remove(s)
}

// remove must be called with the write lock held.
func (n *Notifier) remove(s *Subscriber) {
	set, ok := n.subs[s.key]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(n.subs, s.key)
	}
	close(s.done)
}

// Notify delivers a message-appended signal to exactly the subscribers
// registered for the message's conversation and interface type. Slow
// subscribers lose their oldest queued notification, never the newest.
func (n *Notifier) Notify(m *model.Message) {
	key := subKey{conversationID: m.ConversationID, iface: m.InterfaceType}
	note := Notification{
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		InterfaceType:  m.InterfaceType,
		CreatedAt:      m.CreatedAt,
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	for s := range n.subs[key] {
		deliver(s.ch, note)
	}
}

// deliver enqueues with drop-oldest overflow. Only hub goroutines send on
// subscriber channels, so the evict-retry pair cannot livelock.
func deliver(ch chan Notification, note Notification) {
	select {
	case ch <- note:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- note:
	default:
	}
}

// Poll blocks until a notification or heartbeat is available, the context
// ends, or the subscriber is closed.
func (n *Notifier) Poll(ctx context.Context, s *Subscriber) (Notification, error) {
	n.mu.Lock()
	s.lastPoll = time.Now().UTC()
	n.mu.Unlock()

	select {
	case note := <-s.ch:
		return note, nil
	case <-s.done:
		return Notification{}, ErrSubscriberClosed
	case <-ctx.Done():
		return Notification{}, ctx.Err()
	}
}

// CatchUp reads the messages a subscriber missed: everything for its
// conversation and interface type with created_at after the cursor, in
// order.
func (n *Notifier) CatchUp(ctx context.Context, s *Subscriber, cursor time.Time) ([]*model.Message, error) {
	msgs, err := n.store.GetMessagesAfter(ctx, s.key.conversationID, s.key.iface, cursor)
	if err != nil {
		return nil, fmt.Errorf("catch-up read for %s: %w", s.key.conversationID, err)
	}
	return msgs, nil
}

func (n *Notifier) loop() {
	defer close(n.done)
	ticker := time.NewTicker(n.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stop:
			return
		case now := <-ticker.C:
			n.heartbeatAndReap(now.UTC())
		}
	}
}

func (n *Notifier) heartbeatAndReap(now time.Time) {
	note := Notification{CreatedAt: now, Heartbeat: true}
	cutoff := now.Add(-n.cfg.ReapAfter)

	n.mu.Lock()
	defer n.mu.Unlock()
	var reaped int
	for _, set := range n.subs {
		for s := range set {
			if s.lastPoll.Before(cutoff) {
				n.remove(s)
				reaped++
				continue
			}
			deliver(s.ch, note)
		}
	}
	if reaped > 0 {
		n.logger.Info("reaped idle subscribers", "count", reaped)
	}
}
