package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/plantpulse/core/internal/store"
	"github.com/plantpulse/core/internal/telemetry"
)

// defaultAlertLimit is the alert page size when the query omits limit.
const defaultAlertLimit = 100

// handleGetEntityState returns the latest cached state document for an
// entity. The document is whatever the entity last reported, plus the
// injected device_id and timestamp fields.
func (s *Server) handleGetEntityState(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		writeUnavailable(w, "telemetry pipeline not configured")
		return
	}

	id := chi.URLParam(r, "id")
	doc, err := s.pipeline.LatestState(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(w, "no cached state for entity")
			return
		}
		s.logger.Error("failed to read entity state", "entity_id", id, "error", err)
		writeInternalError(w, "failed to read entity state")
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// handleListEntityAlerts returns buffered alerts for an entity, newest
// first.
//
// Query parameters:
//   - limit: maximum number of alerts to return (default 100)
func (s *Server) handleListEntityAlerts(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		writeUnavailable(w, "telemetry pipeline not configured")
		return
	}

	limit := defaultAlertLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	id := chi.URLParam(r, "id")
	alerts, err := s.pipeline.RecentAlerts(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("failed to read entity alerts", "entity_id", id, "error", err)
		writeInternalError(w, "failed to read entity alerts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entity_id": id,
		"alerts":    alerts,
		"count":     len(alerts),
	})
}

// handlePushEntityConfig publishes a configuration document to the
// entity's config topic.
//
// This is an asynchronous operation: the document is published at QoS 1
// and the response is 202 Accepted. The entity applies it on its own
// schedule; observers of the entity's room see the resulting config
// acknowledgement arrive through the normal pipeline.
func (s *Server) handlePushEntityConfig(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		writeUnavailable(w, "telemetry pipeline not configured")
		return
	}
	if s.broker == nil {
		writeUnavailable(w, "message broker not configured")
		return
	}

	id := chi.URLParam(r, "id")
	if !validEntityID(id) {
		writeBadRequest(w, "invalid entity id")
		return
	}

	var doc map[string]any
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(doc) == 0 {
		writeBadRequest(w, "configuration document must not be empty")
		return
	}

	topic := s.pipeline.Topics().Config(id)
	if err := s.broker.PublishJSON(topic, doc, 1, false); err != nil {
		s.logger.Warn("config push failed", "entity_id", id, "topic", topic, "error", err)
		writeUnavailable(w, "broker rejected publish: "+err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":    "accepted",
		"entity_id": id,
		"topic":     topic,
	})
}

// validEntityID rejects IDs that would collide with reserved topic
// segments or break out of the topic tree.
func validEntityID(id string) bool {
	if id == "" || id == telemetry.SegmentSystem || id == telemetry.SegmentBroadcast {
		return false
	}
	return !strings.ContainsAny(id, "/+#")
}
