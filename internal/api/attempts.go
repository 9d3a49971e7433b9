package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-connector/internal/audit"
	"github.com/nerrad567/gray-logic-connector/internal/connector"
	"github.com/nerrad567/gray-logic-connector/internal/infrastructure/config"
)

// handleListAttempts returns a page of journaled connection attempts,
// newest first.
//
// Query parameters: limit, offset, transport, state, failed.
func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	if s.attempts == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "attempt journal is disabled")
		return
	}

	filter, msg := parseAttemptFilter(r)
	if msg != "" {
		writeBadRequest(w, msg)
		return
	}

	result, err := s.attempts.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing connection attempts failed", "error", err)
		writeInternalError(w, "failed to list connection attempts")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// parseAttemptFilter reads the list filter from the query string. A
// non-empty message describes the first invalid parameter.
func parseAttemptFilter(r *http.Request) (audit.Filter, string) {
	q := r.URL.Query()
	var filter audit.Filter

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, "limit must be a non-negative integer"
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, "offset must be a non-negative integer"
		}
		filter.Offset = n
	}

	switch v := q.Get("transport"); v {
	case "", config.TransportTCP, config.TransportWebSocket:
		filter.Transport = v
	default:
		return filter, "transport must be tcp or websocket"
	}

	if v := q.Get("state"); v != "" {
		if _, err := connector.ParseState(v); err != nil {
			return filter, err.Error()
		}
		filter.State = v
	}

	if v := q.Get("failed"); v != "" {
		failed, err := strconv.ParseBool(v)
		if err != nil {
			return filter, "failed must be a boolean"
		}
		filter.FailedOnly = failed
	}

	return filter, ""
}
