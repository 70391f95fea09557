package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/plantpulse/core/internal/correlator"
)

// handleRecentEvents returns classified lifecycle events, newest first,
// merged across the requested categories.
//
// Query parameters:
//   - category: filter to one or more categories (repeatable or
//     comma-separated); empty means all
//   - limit: maximum number of events to return (default 100)
func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	if s.correlator == nil {
		writeUnavailable(w, "event correlator not configured")
		return
	}

	var categories []correlator.Category
	for _, raw := range r.URL.Query()["category"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			cat, ok := correlator.ParseCategory(part)
			if !ok {
				writeBadRequest(w, "unknown category: "+part)
				return
			}
			categories = append(categories, cat)
		}
	}

	limit := 0 // correlator applies its own default
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := s.correlator.RecentEvents(r.Context(), categories, limit)
	if err != nil {
		s.logger.Error("failed to read recent events", "error", err)
		writeInternalError(w, "failed to read recent events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}
