package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/doorhub-io/doorhub-core/internal/accesslog"
)

// handleListAccessLogs returns access log entries, newest event first.
//
// Query parameters:
//   - hostname: filter by originating device
//   - since: RFC 3339 timestamp lower bound on event time
//   - limit: maximum entries to return (default 200)
func (s *Server) handleListAccessLogs(w http.ResponseWriter, r *http.Request) {
	filter := accesslog.Filter{
		Hostname: r.URL.Query().Get("hostname"),
	}

	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	entries, err := s.logs.List(r.Context(), filter)
	if err != nil {
		writeInternalError(w, "failed to list access logs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleAccessLogStats returns per-device access event counts.
func (s *Server) handleAccessLogStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.logs.CountByDevice(r.Context())
	if err != nil {
		writeInternalError(w, "failed to count access logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"by_device": counts,
	})
}
