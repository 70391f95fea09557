package telemetry

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/plantpulse/core/internal/store"
)

func alertKey(entityID string) string {
	return "alerts:" + entityID
}

// handleData processes a sensor readings batch.
//
// The payload must carry a "readings" array. Readings are validated
// individually: anything without a string sensor_id and a value is
// skipped and the rest of the batch survives. The cache receives the
// full payload with the readings array filtered to the valid entries;
// numeric values are additionally forwarded to the time-series sink.
func (s *Service) handleData(ctx context.Context, ev Event) error {
	raw, ok := ev.Payload["readings"]
	if !ok {
		return fmt.Errorf("%w: missing readings array", ErrMalformedPayload)
	}
	items, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("%w: readings is not an array", ErrMalformedPayload)
	}

	valid := make([]any, 0, len(items))
	for i, item := range items {
		reading, ok := item.(map[string]any)
		if !ok {
			s.logger.Debug("skipping malformed reading",
				"entity_id", ev.EntityID, "index", i, "reason", "not an object")
			s.recordReadingSkipped()
			continue
		}
		sensorID, ok := reading["sensor_id"].(string)
		if !ok || sensorID == "" {
			s.logger.Debug("skipping malformed reading",
				"entity_id", ev.EntityID, "index", i, "reason", "missing sensor_id")
			s.recordReadingSkipped()
			continue
		}
		value, ok := reading["value"]
		if !ok {
			s.logger.Debug("skipping malformed reading",
				"entity_id", ev.EntityID, "index", i, "reason", "missing value")
			s.recordReadingSkipped()
			continue
		}

		valid = append(valid, reading)

		if s.sink != nil {
			if f, ok := numeric(value); ok {
				s.sink.WriteReading(ev.EntityID, sensorID, f, ev.ReceivedAt)
			}
		}
	}

	doc := make(map[string]any, len(ev.Payload))
	for k, v := range ev.Payload {
		doc[k] = v
	}
	doc["readings"] = valid

	if err := s.cache.Set(ctx, ev.EntityID, doc); err != nil {
		s.recordCacheWrite(err)
		return fmt.Errorf("caching data state: %w", err)
	}
	s.recordCacheWrite(nil)

	s.emitRoom(ev.EntityID, ev)
	return nil
}

// handleStatus replaces the entity's cached state with the status
// document and notifies the entity's room.
func (s *Service) handleStatus(ctx context.Context, ev Event) error {
	if err := s.cache.Set(ctx, ev.EntityID, ev.Payload); err != nil {
		s.recordCacheWrite(err)
		return fmt.Errorf("caching status: %w", err)
	}
	s.recordCacheWrite(nil)

	s.emitRoom(ev.EntityID, ev)
	return nil
}

// handleAlert enriches the alert and appends it to the entity's
// bounded buffer, newest first.
//
// Enrichment: a generated alert_id, severity defaulted to "info" when
// absent, timestamp defaulted to arrival time when absent. The fanned
// out event carries the enriched alert, not the raw payload.
func (s *Service) handleAlert(ctx context.Context, ev Event) error {
	alert := make(map[string]any, len(ev.Payload)+2)
	for k, v := range ev.Payload {
		alert[k] = v
	}
	alert["alert_id"] = uuid.NewString()
	if _, ok := alert["severity"]; !ok {
		alert["severity"] = defaultSeverity
	}
	if _, ok := alert["timestamp"]; !ok {
		alert["timestamp"] = ev.ReceivedAt.Format(time.RFC3339)
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}

	buf := store.NewBuffer(s.store, alertKey(ev.EntityID), s.alertCap)
	if err := buf.Push(ctx, data); err != nil {
		return fmt.Errorf("buffering alert: %w", err)
	}
	s.recordAlertBuffered()

	enriched := ev
	enriched.Payload = alert
	s.emitRoom(ev.EntityID, enriched)
	return nil
}

// handleConfig acknowledges a configuration push. Persistence of
// configuration is external; the pipeline logs it and lets observers
// of the entity's room see it happen.
func (s *Service) handleConfig(_ context.Context, ev Event) error {
	s.logger.Info("configuration update received",
		"entity_id", ev.EntityID,
		"topic", ev.SourceTopic)

	s.emitRoom(ev.EntityID, ev)
	return nil
}

// handleSystem fans a system message out to every connected observer.
// Nothing is cached; the subtype rides in the payload.
func (s *Service) handleSystem(_ context.Context, ev Event) error {
	s.emitAll(ev)
	return nil
}

// handleBroadcast fans an operator broadcast out to every connected
// observer. Same shape as system messages, separate topic family.
func (s *Service) handleBroadcast(_ context.Context, ev Event) error {
	s.emitAll(ev)
	return nil
}

// numeric reports v as a float64 when the decoded JSON value is a
// number. Booleans and strings are cached but never forwarded to the
// time-series sink.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
