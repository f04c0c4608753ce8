package api

import (
	"encoding/json"
	"net/http"
)

// startDetectionRequest is the optional body for POST /detection/start.
type startDetectionRequest struct {
	Scope string `json:"scope"`
}

// handleStartDetection activates the card-detection session. A start
// while a session is already active preempts it; the newest enrollment
// form wins.
func (s *Server) handleStartDetection(w http.ResponseWriter, r *http.Request) {
	var req startDetectionRequest
	if r.Body != nil {
		// The body is optional; decode errors just leave the default scope.
		//nolint:errcheck
		json.NewDecoder(r.Body).Decode(&req)
	}
	scope := req.Scope
	if scope == "" {
		scope = "enrollment"
	}

	session := s.engine.Session()
	preempted := session.Active()
	session.Start(scope)

	writeJSON(w, http.StatusOK, map[string]any{
		"active":    true,
		"scope":     scope,
		"preempted": preempted,
	})
}

// handlePeekDetection returns the session state and the current capture
// without consuming it.
func (s *Server) handlePeekDetection(w http.ResponseWriter, _ *http.Request) {
	session := s.engine.Session()

	resp := map[string]any{
		"active": session.Active(),
		"scope":  session.Scope(),
	}
	if capture, ok := session.Peek(); ok {
		resp["capture"] = capture
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStopDetection deactivates the session and clears any capture.
func (s *Server) handleStopDetection(w http.ResponseWriter, _ *http.Request) {
	s.engine.Session().Stop()
	writeJSON(w, http.StatusOK, map[string]any{
		"active": false,
	})
}
