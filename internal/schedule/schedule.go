// Package schedule turns cron triggers into synthetic schedule-source events.
//
// Triggers are declared in a TOML file and submitted into the pipeline like
// any other event, so listeners on the schedule source are matched, rate
// limited, and audited exactly like listeners on external sources.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"

	"github.com/alfredjeanlab/reflex/internal/engine"
	"github.com/alfredjeanlab/reflex/internal/model"
)

// EventSubmitter runs one raw payload through the pipeline.
// Satisfied by *engine.Engine.
type EventSubmitter interface {
	Submit(ctx context.Context, sourceID model.SourceID, eventType string, raw []byte) (*engine.SubmitResult, error)
}

// Trigger is one cron-driven event source.
type Trigger struct {
	Name      string `toml:"name"`
	Spec      string `toml:"cron"`
	EventType string `toml:"event_type"`
}

type tomlFile struct {
	Triggers []Trigger `toml:"triggers"`
}

// LoadFile reads triggers from a TOML file.
func LoadFile(path string) ([]Trigger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read triggers file %s: %w", path, err)
	}
	var f tomlFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse triggers file %s: %w", path, err)
	}
	for i, t := range f.Triggers {
		if t.Name == "" {
			return nil, fmt.Errorf("trigger %d has no name", i)
		}
		if t.Spec == "" {
			return nil, fmt.Errorf("trigger %q has no cron spec", t.Name)
		}
	}
	return f.Triggers, nil
}

// Scheduler fires triggers on their cron specs.
type Scheduler struct {
	cron      *cron.Cron
	submitter EventSubmitter
	logger    *slog.Logger
}

// New creates a Scheduler. Add triggers, then Start.
func New(submitter EventSubmitter, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		submitter: submitter,
		logger:    logger,
	}
}

// Add registers one trigger. An invalid cron spec is rejected here, before
// the scheduler starts.
func (s *Scheduler) Add(t Trigger) error {
	eventType := t.EventType
	if eventType == "" {
		eventType = "schedule.fired"
	}
	_, err := s.cron.AddFunc(t.Spec, func() {
		s.fire(t, eventType)
	})
	if err != nil {
		return fmt.Errorf("trigger %q: %w", t.Name, err)
	}
	return nil
}

func (s *Scheduler) fire(t Trigger, eventType string) {
	now := time.Now().UTC()
	payload, err := json.Marshal(map[string]any{
		"trigger":       t.Name,
		"cron":          t.Spec,
		"fired_at_unix": now.Unix(),
	})
	if err != nil {
		s.logger.Error("failed to build trigger payload", "trigger", t.Name, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res, err := s.submitter.Submit(ctx, model.SourceSchedule, eventType, payload)
	if err != nil {
		s.logger.Error("trigger submission failed", "trigger", t.Name, "error", err)
		return
	}
	s.logger.Info("trigger fired", "trigger", t.Name, "event_id", res.Event.ID, "records", len(res.Records))
}

// Start begins firing triggers on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for in-flight trigger submissions.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
