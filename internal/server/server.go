// Package server exposes the dispatch pipeline and the notifier over HTTP.
package server

import (
	"context"
	"log/slog"

	"github.com/alfredjeanlab/reflex/internal/bus"
	"github.com/alfredjeanlab/reflex/internal/engine"
	"github.com/alfredjeanlab/reflex/internal/model"
	"github.com/alfredjeanlab/reflex/internal/notify"
	"github.com/alfredjeanlab/reflex/internal/schema"
	"github.com/alfredjeanlab/reflex/internal/store"
)

// EventSubmitter runs one raw payload through the pipeline.
// Satisfied by *engine.Engine.
type EventSubmitter interface {
	Submit(ctx context.Context, sourceID model.SourceID, eventType string, raw []byte) (*engine.SubmitResult, error)
}

// Server handles the HTTP API.
type Server struct {
	store    store.Store
	engine   EventSubmitter
	notifier *notify.Notifier
	schemas  *schema.Registry
	pub      bus.Publisher
	logger   *slog.Logger
}

// New returns a Server wired to its collaborators.
func New(st store.Store, eng EventSubmitter, notifier *notify.Notifier, schemas *schema.Registry, pub bus.Publisher, logger *slog.Logger) *Server {
	return &Server{
		store:    st,
		engine:   eng,
		notifier: notifier,
		schemas:  schemas,
		pub:      pub,
		logger:   logger,
	}
}

// inputError indicates invalid user input.
// Transport layers map this to 400.
type inputError string

func (e inputError) Error() string { return string(e) }
