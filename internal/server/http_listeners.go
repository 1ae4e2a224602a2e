package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alfredjeanlab/reflex/internal/idgen"
	"github.com/alfredjeanlab/reflex/internal/model"
	"github.com/alfredjeanlab/reflex/internal/store"
)

type createListenerInput struct {
	Name           string           `json:"name"`
	SourceID       model.SourceID   `json:"source_id"`
	Condition      model.Condition  `json:"condition"`
	ActionType     model.ActionType `json:"action_type"`
	ActionConfig   json.RawMessage  `json:"action_config,omitempty"`
	ConversationID string           `json:"conversation_id,omitempty"`
	OneTime        bool             `json:"one_time"`
	DailyCap       *int             `json:"daily_cap,omitempty"`
}

// handleCreateListener handles POST /v1/listeners. A malformed condition is
// rejected here, never at evaluation time.
func (s *Server) handleCreateListener(w http.ResponseWriter, r *http.Request) {
	var in createListenerInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	l, err := s.createListener(r.Context(), in)
	if err != nil {
		var ie inputError
		var ve *model.ValidationError
		switch {
		case errors.As(err, &ie):
			writeError(w, http.StatusBadRequest, ie.Error())
		case errors.As(err, &ve):
			writeError(w, http.StatusBadRequest, ve.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) createListener(ctx context.Context, in createListenerInput) (*model.Listener, error) {
	fields, ok := s.schemas.Fields(in.SourceID)
	if !ok {
		return nil, inputError("unknown source_id " + strconv.Quote(string(in.SourceID)))
	}

	dailyCap := model.DefaultDailyCap
	if in.DailyCap != nil {
		dailyCap = *in.DailyCap
	}

	id, err := idgen.NewListenerID()
	if err != nil {
		return nil, err
	}
	l := &model.Listener{
		ID:             id,
		Name:           in.Name,
		SourceID:       in.SourceID,
		Condition:      in.Condition,
		ActionType:     in.ActionType,
		ActionConfig:   in.ActionConfig,
		ConversationID: in.ConversationID,
		Enabled:        true,
		OneTime:        in.OneTime,
		DailyCap:       dailyCap,
		CreatedAt:      time.Now().UTC(),
	}
	if err := model.ValidateListener(l, fields); err != nil {
		return nil, err
	}
	if err := s.store.CreateListener(ctx, l); err != nil {
		return nil, err
	}
	s.logger.Info("listener created", "listener_id", l.ID, "source_id", l.SourceID, "action_type", l.ActionType)
	return l, nil
}

// handleGetListener handles GET /v1/listeners/{id}.
func (s *Server) handleGetListener(w http.ResponseWriter, r *http.Request) {
	l, err := s.store.GetListener(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "listener not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// listenerFilterFromQuery maps query parameters onto a store filter.
func listenerFilterFromQuery(q url.Values) store.ListenerFilter {
	var filter store.ListenerFilter
	filter.SourceID = model.SourceID(q.Get("source_id"))
	if v := q.Get("enabled"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			filter.Enabled = &b
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}
	return filter
}

// handleListListeners handles GET /v1/listeners.
func (s *Server) handleListListeners(w http.ResponseWriter, r *http.Request) {
	filter := listenerFilterFromQuery(r.URL.Query())

	listeners, err := s.store.ListListeners(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listeners": listeners})
}

// handleEnableListener handles POST /v1/listeners/{id}/enable.
func (s *Server) handleEnableListener(w http.ResponseWriter, r *http.Request) {
	s.setListenerEnabled(w, r, true)
}

// handleDisableListener handles POST /v1/listeners/{id}/disable.
func (s *Server) handleDisableListener(w http.ResponseWriter, r *http.Request) {
	s.setListenerEnabled(w, r, false)
}

func (s *Server) setListenerEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id := r.PathValue("id")
	if err := s.store.SetListenerEnabled(r.Context(), id, enabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "listener not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	l, err := s.store.GetListener(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// handleDeleteListener handles DELETE /v1/listeners/{id}.
func (s *Server) handleDeleteListener(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteListener(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "listener not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
