package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/alfredjeanlab/reflex/internal/bus"
	"github.com/alfredjeanlab/reflex/internal/idgen"
	"github.com/alfredjeanlab/reflex/internal/model"
	"github.com/alfredjeanlab/reflex/internal/notify"
)

type appendMessageInput struct {
	InterfaceType model.InterfaceType `json:"interface_type"`
	Role          string              `json:"role,omitempty"`
	Body          string              `json:"body"`
}

// handleAppendMessage handles POST /v1/conversations/{id}/messages.
// Persists the message, then signals the notifier so live subscribers of
// exactly this conversation/interface pair hear about it.
func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	var in appendMessageInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !in.InterfaceType.IsValid() {
		writeError(w, http.StatusBadRequest, "interface_type is required")
		return
	}
	if in.Body == "" {
		writeError(w, http.StatusBadRequest, "body is required")
		return
	}

	id, err := idgen.NewMessageID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	m := &model.Message{
		ID:             id,
		ConversationID: conversationID,
		InterfaceType:  in.InterfaceType,
		Role:           in.Role,
		Body:           in.Body,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.AppendMessage(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.notifier.Notify(m)
	if err := s.pub.Publish(r.Context(), bus.TopicMessageAppended, bus.MessageAppended{
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		InterfaceType:  m.InterfaceType,
		CreatedAt:      m.CreatedAt,
	}); err != nil {
		s.logger.Warn("failed to publish message.appended", "message_id", m.ID, "error", err)
	}

	writeJSON(w, http.StatusCreated, m)
}

// handleStream handles GET /v1/conversations/{id}/stream (SSE endpoint).
// The client passes interface_type and an optional cursor; it first receives
// the messages after the cursor, then live notifications, so a reconnect
// sees no gap and no duplicate.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	q := r.URL.Query()
	iface := model.InterfaceType(q.Get("interface_type"))
	if !iface.IsValid() {
		writeError(w, http.StatusBadRequest, "interface_type is required")
		return
	}

	sub, registeredAt, err := s.notifier.Register(r.PathValue("id"), iface)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer s.notifier.Deregister(sub)

	// The catch-up read happens after registration, so messages appended
	// while the stream is being set up land either in the read or in the
	// live queue, never nowhere.
	cursor := registeredAt
	if v := q.Get("cursor"); v != "" {
		parsed, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "cursor must be RFC 3339")
			return
		}
		cursor = parsed
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	missed, err := s.notifier.CatchUp(r.Context(), sub, cursor)
	if err != nil {
		s.logger.Error("catch-up read failed", "conversation_id", r.PathValue("id"), "error", err)
		return
	}
	for _, m := range missed {
		writeSSEEvent(w, "message", m)
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		note, err := s.notifier.Poll(ctx, sub)
		if err != nil {
			// Client gone or subscriber reaped; either way the stream ends.
			if !errors.Is(err, ctx.Err()) && !errors.Is(err, notify.ErrSubscriberClosed) {
				s.logger.Warn("poll failed", "error", err)
			}
			return
		}
		if note.Heartbeat {
			writeSSEEvent(w, "heartbeat", note)
		} else {
			writeSSEEvent(w, "notification", note)
		}
		flusher.Flush()
	}
}

// writeSSEEvent writes one event in text/event-stream framing.
func writeSSEEvent(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("event: " + event + "\ndata: " + string(payload) + "\n\n"))
}
