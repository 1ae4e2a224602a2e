package server

import (
	"encoding/json"
	"net/http"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/events", s.handleSubmitEvent)
	mux.HandleFunc("GET /v1/tasks", s.handleListTasks)
	mux.HandleFunc("GET /v1/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("POST /v1/listeners", s.handleCreateListener)
	mux.HandleFunc("GET /v1/listeners", s.handleListListeners)
	mux.HandleFunc("GET /v1/listeners/{id}", s.handleGetListener)
	mux.HandleFunc("POST /v1/listeners/{id}/enable", s.handleEnableListener)
	mux.HandleFunc("POST /v1/listeners/{id}/disable", s.handleDisableListener)
	mux.HandleFunc("DELETE /v1/listeners/{id}", s.handleDeleteListener)
	mux.HandleFunc("GET /v1/audit", s.handleListAudit)
	mux.HandleFunc("POST /v1/conversations/{id}/messages", s.handleAppendMessage)
	mux.HandleFunc("GET /v1/conversations/{id}/stream", s.handleStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return AuthMiddleware(authToken, mux)
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
