package task

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/reflex/internal/model"
	"github.com/alfredjeanlab/reflex/internal/store"
)

// Handler executes one attempt of a task. The store handle is the one owned
// by the worker invoking the handler, passed explicitly; handlers must never
// open or resolve their own data-store connections.
type Handler interface {
	Execute(ctx context.Context, st store.Store, t *model.Task) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, st store.Store, t *model.Task) error

func (f HandlerFunc) Execute(ctx context.Context, st store.Store, t *model.Task) error {
	return f(ctx, st, t)
}

// ConversationInvoker starts a conversational turn in response to a fired
// wake_llm listener. Implemented by the model client outside this core.
type ConversationInvoker interface {
	WakeConversation(ctx context.Context, conversationID, contextSummary string) error
}

// ScriptRunner executes a named user script. Implemented by ExecRunner or a
// sandboxed alternative.
type ScriptRunner interface {
	Run(ctx context.Context, scriptID string, args []string) (string, error)
}

// WakeLLMHandler executes wake_llm tasks by invoking a conversational turn
// bound to the listener's conversation.
type WakeLLMHandler struct {
	invoker ConversationInvoker
}

func NewWakeLLMHandler(invoker ConversationInvoker) *WakeLLMHandler {
	return &WakeLLMHandler{invoker: invoker}
}

func (h *WakeLLMHandler) Execute(ctx context.Context, st store.Store, t *model.Task) error {
	var p model.WakeLLMPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return Permanent(fmt.Errorf("decode wake_llm payload: %w", err))
	}
	if p.ConversationID == "" {
		return Permanent(fmt.Errorf("wake_llm task %s has no conversation_id", t.ID))
	}
	// Invoker failures are transient: the model endpoint may be briefly
	// unavailable and the turn is worth retrying.
	if err := h.invoker.WakeConversation(ctx, p.ConversationID, p.ContextSummary); err != nil {
		return fmt.Errorf("wake conversation %s: %w", p.ConversationID, err)
	}
	return nil
}

// ScriptHandler executes script tasks through a ScriptRunner.
type ScriptHandler struct {
	runner ScriptRunner
}

func NewScriptHandler(runner ScriptRunner) *ScriptHandler {
	return &ScriptHandler{runner: runner}
}

func (h *ScriptHandler) Execute(ctx context.Context, st store.Store, t *model.Task) error {
	var p model.ScriptPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return Permanent(fmt.Errorf("decode script payload: %w", err))
	}
	if p.ScriptID == "" {
		return Permanent(fmt.Errorf("script task %s has no script_id", t.ID))
	}
	if _, err := h.runner.Run(ctx, p.ScriptID, p.Arguments); err != nil {
		return fmt.Errorf("run script %s: %w", p.ScriptID, err)
	}
	return nil
}
