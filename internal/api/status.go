package api

import (
	"net/http"
	"time"

	"github.com/plantpulse/core/internal/correlator"
	"github.com/plantpulse/core/internal/infrastructure/mqtt"
)

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Components    map[string]string `json:"components,omitempty"`
}

// StatusResponse is the full operational snapshot of the service.
type StatusResponse struct {
	Version       string             `json:"version"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Primary       *mqtt.Status       `json:"primary,omitempty"`
	Correlator    *correlator.Status `json:"correlator,omitempty"`
	WebSocket     WSStatus           `json:"websocket"`
}

// WSStatus reports fan-out hub occupancy.
type WSStatus struct {
	Clients int `json:"clients"`
	Rooms   int `json:"rooms"`
}

// handleHealth returns liveness plus the state of each broker session.
//
// The response is "ok" while everything that is configured is healthy
// and "degraded" when a session reports failed or disconnected. The
// endpoint itself never returns non-200; consumers inspect the body.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	components := make(map[string]string)

	if s.broker != nil {
		state := s.broker.State()
		components["mqtt"] = string(state)
		if state != mqtt.StateConnected {
			status = "degraded"
		}
	}
	if s.correlator != nil {
		state := s.correlator.Status().State
		components["correlator"] = string(state)
		if state == mqtt.StateFailed {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        status,
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Components:    components,
	})
}

// handleStatus returns the detailed connection snapshot: broker states,
// subscribed topics, correlator reconnect attempts, hub occupancy.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		WebSocket: WSStatus{
			Clients: s.hub.ClientCount(),
			Rooms:   s.hub.RoomCount(),
		},
	}

	if s.broker != nil {
		st := s.broker.Status()
		resp.Primary = &st
	}
	if s.correlator != nil {
		st := s.correlator.Status()
		resp.Correlator = &st
	}

	writeJSON(w, http.StatusOK, resp)
}
