package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/plantpulse/core/internal/infrastructure/metrics"
	"github.com/plantpulse/core/internal/infrastructure/mqtt"
	"github.com/plantpulse/core/internal/store"
)

// Pipeline constants.
const (
	// subscribeQoS is the QoS level for every pipeline subscription.
	// At-least-once: duplicates are possible and not deduplicated.
	subscribeQoS byte = 1

	// defaultCacheTTL bounds the lifetime of latest-state entries when
	// no TTL is configured.
	defaultCacheTTL = time.Hour

	// defaultAlertCap bounds per-entity alert buffers when no capacity
	// is configured.
	defaultAlertCap = 1000

	// defaultSeverity is assigned to alerts that arrive without one.
	defaultSeverity = "info"
)

// Logger defines the logging interface used by the Service.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Broker is the slice of the MQTT client the pipeline needs.
// Subscriptions registered here survive reconnects; the client re-issues
// them every time the session comes back.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Emitter delivers events to connected observers.
// Implemented by fanout.Hub; nil disables fan-out.
type Emitter interface {
	EmitRoom(room string, event any)
	EmitAll(event any)
}

// Sink receives validated numeric readings for long-term storage.
// Implemented by the InfluxDB writer; nil disables forwarding.
type Sink interface {
	WriteReading(entityID, sensorID string, value float64, ts time.Time)
}

// Service is the primary ingestion pipeline: one subscription set, one
// router, one handler per message kind.
//
// Thread Safety: handlers run on the MQTT client's goroutines; all
// shared state is behind the store boundary or immutable after Start.
type Service struct {
	topics   Topics
	broker   Broker
	store    store.Store
	cache    *StateCache
	emitter  Emitter
	sink     Sink
	metrics  *metrics.Registry
	alertCap int

	handlers map[Kind]func(context.Context, Event) error

	// Lifecycle context: cancelled on Stop, aborts in-flight store writes.
	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once

	logger Logger
	now    func() time.Time // test hook
}

// Options holds configuration for creating a Service.
type Options struct {
	// Namespace is the root topic segment (e.g. "iiot"). Required.
	Namespace string

	// CacheTTL bounds latest-state entries. Zero means one hour.
	CacheTTL time.Duration

	// AlertCap bounds per-entity alert buffers. Zero means 1000.
	AlertCap int

	// Broker is the MQTT session to subscribe on. Required.
	Broker Broker

	// Store backs the latest-state cache and the alert buffers. Required.
	Store store.Store

	// Emitter is the optional fan-out hub.
	Emitter Emitter

	// Sink is the optional time-series writer for numeric readings.
	Sink Sink

	// Metrics is the optional metrics registry.
	Metrics *metrics.Registry

	// Logger is the optional structured logger.
	Logger Logger
}

// NewService creates the pipeline. Call Start to begin consuming.
func NewService(opts Options) (*Service, error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("telemetry: namespace is required")
	}
	if opts.Broker == nil {
		return nil, fmt.Errorf("telemetry: broker is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("telemetry: store is required")
	}

	cacheTTL := opts.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	alertCap := opts.AlertCap
	if alertCap <= 0 {
		alertCap = defaultAlertCap
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		topics:    NewTopics(opts.Namespace),
		broker:    opts.Broker,
		store:     opts.Store,
		cache:     NewStateCache(opts.Store, cacheTTL),
		emitter:   opts.Emitter,
		sink:      opts.Sink,
		metrics:   opts.Metrics,
		alertCap:  alertCap,
		ctx:       ctx,
		ctxCancel: cancel,
		logger:    logger,
		now:       time.Now,
	}

	s.handlers = map[Kind]func(context.Context, Event) error{
		KindData:      s.handleData,
		KindStatus:    s.handleStatus,
		KindAlert:     s.handleAlert,
		KindConfig:    s.handleConfig,
		KindSystem:    s.handleSystem,
		KindBroadcast: s.handleBroadcast,
	}

	return s, nil
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// Topics returns the topic scheme the service routes.
func (s *Service) Topics() Topics {
	return s.topics
}

// LatestState returns the cached state document for an entity.
// Returns store.ErrNotFound when no entry exists or it has expired.
func (s *Service) LatestState(ctx context.Context, entityID string) (map[string]any, error) {
	return s.cache.Get(ctx, entityID)
}

// RecentAlerts returns up to limit buffered alerts for an entity,
// newest first. A limit of zero or less returns the whole buffer.
// Entries that fail to decode are skipped, not fatal.
func (s *Service) RecentAlerts(ctx context.Context, entityID string, limit int) ([]map[string]any, error) {
	buf := store.NewBuffer(s.store, alertKey(entityID), s.alertCap)
	raw, err := buf.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("reading alerts for %s: %w", entityID, err)
	}

	alerts := make([]map[string]any, 0, len(raw))
	for _, data := range raw {
		var alert map[string]any
		if err := json.Unmarshal(data, &alert); err != nil {
			s.logger.Warn("skipping undecodable alert entry",
				"entity_id", entityID, "error", err)
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// Start subscribes the six pipeline patterns.
//
// Each pattern is attempted independently: one broker rejection is
// logged and counted but never aborts the rest. Start fails only when
// no pattern at all could be subscribed.
func (s *Service) Start() error {
	patterns := []string{
		s.topics.AllData(),
		s.topics.AllStatus(),
		s.topics.AllAlerts(),
		s.topics.AllConfig(),
		s.topics.AllSystem(),
		s.topics.AllBroadcast(),
	}

	subscribed := 0
	for _, pattern := range patterns {
		if err := s.broker.Subscribe(pattern, subscribeQoS, s.handleMessage); err != nil {
			s.logger.Error("subscription failed", "pattern", pattern, "error", err)
			s.recordDrop("subscribe")
			continue
		}
		subscribed++
	}

	if subscribed == 0 {
		return fmt.Errorf("telemetry: no pipeline pattern could be subscribed")
	}

	s.logger.Info("telemetry pipeline started",
		"namespace", s.topics.Namespace(),
		"patterns", subscribed)

	return nil
}

// Stop cancels in-flight store operations. Broker subscriptions are
// torn down with the client's session, not here.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.ctxCancel()
		s.logger.Info("telemetry pipeline stopped")
	})
}

// handleMessage routes one inbound message: parse, decode, dispatch.
//
// It always returns nil. Drops and handler failures are logged and
// counted here; propagating them to the broker layer would only log
// them twice.
func (s *Service) handleMessage(topic string, payload []byte) error {
	route, err := s.topics.Parse(topic)
	if err != nil {
		s.logger.Warn("dropping message with unroutable topic", "topic", topic, "error", err)
		s.recordDrop("topic")
		return nil
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		s.logger.Warn("dropping message with malformed payload", "topic", topic, "error", err)
		s.recordDrop("payload")
		return nil
	}
	if fields == nil {
		// JSON null decodes to a nil map
		fields = make(map[string]any)
	}

	if route.Subtype != "" {
		// The topic-derived subtype is authoritative over any payload field
		fields["subtype"] = route.Subtype
	}

	ev := Event{
		EntityID:    route.EntityID,
		Kind:        route.Kind,
		Payload:     fields,
		ReceivedAt:  s.now().UTC(),
		SourceTopic: topic,
	}

	handler, ok := s.handlers[route.Kind]
	if !ok {
		s.logger.Warn("no handler registered for kind", "kind", string(route.Kind))
		s.recordDrop("kind")
		return nil
	}

	if err := handler(s.ctx, ev); err != nil {
		s.logger.Warn("handler failed",
			"kind", string(route.Kind),
			"entity_id", ev.EntityID,
			"topic", topic,
			"error", err)
		s.recordMessage(route.Kind, err)
		return nil
	}

	s.recordMessage(route.Kind, nil)
	return nil
}

// =============================================================================
// Metrics guards (registry is optional)
// =============================================================================

func (s *Service) recordMessage(kind Kind, err error) {
	if s.metrics != nil {
		s.metrics.RecordMessage(string(kind), err)
	}
}

func (s *Service) recordDrop(reason string) {
	if s.metrics != nil {
		s.metrics.RecordDrop(reason)
	}
}

func (s *Service) recordReadingSkipped() {
	if s.metrics != nil {
		s.metrics.RecordReadingSkipped()
	}
}

func (s *Service) recordCacheWrite(err error) {
	if s.metrics != nil {
		s.metrics.RecordCacheWrite(err)
	}
}

func (s *Service) recordAlertBuffered() {
	if s.metrics != nil {
		s.metrics.RecordAlertBuffered()
	}
}

// =============================================================================
// Fan-out guards (emitter is optional)
// =============================================================================

func (s *Service) emitRoom(room string, ev Event) {
	if s.emitter != nil {
		s.emitter.EmitRoom(room, ev)
	}
}

func (s *Service) emitAll(ev Event) {
	if s.emitter != nil {
		s.emitter.EmitAll(ev)
	}
}
