package correlator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/plantpulse/core/internal/infrastructure/metrics"
	"github.com/plantpulse/core/internal/infrastructure/mqtt"
	"github.com/plantpulse/core/internal/store"
)

// Retry and subscription constants.
const (
	// defaultMaxRetries is the reconnect budget after the initial
	// attempt. Spending it leaves the correlator in StateFailed.
	defaultMaxRetries = 10

	// defaultRetryBaseDelay is the first backoff delay; every further
	// attempt doubles it.
	defaultRetryBaseDelay = 5 * time.Second

	// defaultConnectTimeout bounds each connection attempt. The
	// secondary session tolerates a slower broker than the primary.
	defaultConnectTimeout = 10 * time.Second

	// defaultBufferCap caps each per-category history list.
	defaultBufferCap = 1000

	// defaultRelayChannel is the store pub/sub channel shared by all
	// instances for the consistent cross-process event stream.
	defaultRelayChannel = "plantpulse:aas-events"

	// sessionProbeInterval is how often an established session is
	// checked for silent death, covering disconnects that race the
	// callback registration.
	sessionProbeInterval = 30 * time.Second

	// subscribeQoS is the quality-of-service level for all event
	// subscriptions.
	subscribeQoS = 1

	// metricsSession labels this connection on the shared broker gauge.
	metricsSession = "correlator"
)

// connectBroker establishes one broker session. Tests replace this to
// simulate connect failures without a live broker.
var connectBroker = func(cfg mqtt.Config) (brokerSession, error) {
	return mqtt.Connect(cfg)
}

// brokerSession is the slice of the MQTT client the correlator drives.
type brokerSession interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	SetOnDisconnect(callback func(err error))
	SetLogger(logger mqtt.Logger)
	IsConnected() bool
	Topics() []string
	Close() error
}

// Emitter delivers relayed events to connected clients.
type Emitter interface {
	EmitRoom(room string, event any)
}

// Logger defines the logging interface used by the correlator.
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

// Options configures a Correlator.
type Options struct {
	// Broker is the secondary session configuration. AutoReconnect is
	// forced off; the correlator owns its own bounded retry policy.
	Broker mqtt.Config

	// Prefixes overrides the category topic prefixes.
	Prefixes Prefixes

	// BufferCap caps each per-category history. Zero means 1000.
	BufferCap int

	// MaxRetries is the reconnect budget after the initial attempt.
	// Zero means 10.
	MaxRetries int

	// RetryBaseDelay is the first backoff delay, doubled per attempt.
	// Zero means 5 seconds.
	RetryBaseDelay time.Duration

	// RelayChannel is the cross-process event channel. Zero means
	// "plantpulse:aas-events".
	RelayChannel string

	// Store persists per-category history and carries the relay
	// channel. Required.
	Store store.Store

	// Emitter receives relayed events, one room per category. Optional;
	// without it the relay consumer is not started.
	Emitter Emitter

	// Metrics records connection state and classified events. Optional.
	Metrics *metrics.Registry

	// Logger for correlator events. Optional.
	Logger Logger
}

// binding ties one category to its topic pattern and history buffer.
type binding struct {
	category Category
	prefix   string
	pattern  string
	buffer   *store.Buffer
}

// Correlator supervises the secondary broker session, classifies asset
// events into per-category histories and relays them across instances.
//
// Unlike the primary telemetry session it never reconnects forever: a
// bounded exponential backoff budget applies, and spending it leaves
// the correlator in the terminal StateFailed until it is stopped and
// started again.
type Correlator struct {
	broker       mqtt.Config
	bindings     []*binding
	byPrefix     map[string]*binding
	relayChannel string
	maxRetries   int
	baseDelay    time.Duration

	store   store.Store
	emitter Emitter
	metrics *metrics.Registry
	logger  Logger

	mu        sync.RWMutex
	state     mqtt.State
	session   brokerSession
	attempts  int
	lastErr   error
	runCancel context.CancelFunc
	group     *errgroup.Group

	// Test hooks.
	now       func() time.Time
	timeAfter func(d time.Duration) <-chan time.Time
}

// Status is a point-in-time snapshot for health reporting.
type Status struct {
	State             mqtt.State `json:"state"`
	Connected         bool       `json:"connected"`
	ReconnectAttempts int        `json:"reconnect_attempts"`
	SubscribedTopics  []string   `json:"subscribed_topics,omitempty"`
}

// NewCorrelator creates a correlator from the given options.
//
// Returns an error if required dependencies are missing or the
// category prefixes collide.
func NewCorrelator(opts Options) (*Correlator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Broker.BrokerHost == "" {
		return nil, fmt.Errorf("broker host is required")
	}

	bufferCap := opts.BufferCap
	if bufferCap <= 0 {
		bufferCap = defaultBufferCap
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	baseDelay := opts.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultRetryBaseDelay
	}
	relayChannel := opts.RelayChannel
	if relayChannel == "" {
		relayChannel = defaultRelayChannel
	}

	broker := opts.Broker
	broker.AutoReconnect = false
	if broker.ConnectTimeout == 0 {
		broker.ConnectTimeout = defaultConnectTimeout
	}

	prefixes := opts.Prefixes.withDefaults()
	bindings := make([]*binding, 0, len(categoryOrder))
	byPrefix := make(map[string]*binding, len(categoryOrder))
	for _, cat := range categoryOrder {
		prefix := prefixes.forCategory(cat)
		if _, dup := byPrefix[prefix]; dup {
			return nil, fmt.Errorf("duplicate category prefix %q", prefix)
		}
		b := &binding{
			category: cat,
			prefix:   prefix,
			pattern:  prefix + "/+/" + topicEventSegment + "/+",
			buffer:   store.NewBuffer(opts.Store, eventKey(cat), bufferCap),
		}
		bindings = append(bindings, b)
		byPrefix[prefix] = b
	}

	c := &Correlator{
		broker:       broker,
		bindings:     bindings,
		byPrefix:     byPrefix,
		relayChannel: relayChannel,
		maxRetries:   maxRetries,
		baseDelay:    baseDelay,
		store:        opts.Store,
		emitter:      opts.Emitter,
		metrics:      opts.Metrics,
		logger:       noopLogger{},
		state:        mqtt.StateDisconnected,
		now:          time.Now,
		timeAfter:    time.After,
	}
	if opts.Logger != nil {
		c.logger = opts.Logger
	}
	return c, nil
}

// SetLogger sets the logger for the correlator.
func (c *Correlator) SetLogger(logger Logger) {
	c.logger = logger
}

// Start launches the connection supervisor and, when an emitter is
// configured, the relay consumer. The relay subscription is
// established before Start returns; connection progress is observable
// through Status.
//
// A correlator that reached StateFailed must be stopped before it can
// be started again.
func (c *Correlator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.runCancel != nil {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	c.runCancel = cancel
	c.group = group
	c.state = mqtt.StateConnecting
	c.attempts = 0
	c.lastErr = nil
	c.mu.Unlock()

	var relayMsgs <-chan store.Message
	if c.emitter != nil {
		msgs, err := c.store.Subscribe(runCtx, c.relayChannel)
		if err != nil {
			cancel()
			c.mu.Lock()
			c.runCancel = nil
			c.group = nil
			c.state = mqtt.StateDisconnected
			c.mu.Unlock()
			return fmt.Errorf("subscribing to relay channel %s: %w", c.relayChannel, err)
		}
		relayMsgs = msgs
	}

	group.Go(func() error {
		return c.supervise(groupCtx)
	})
	if relayMsgs != nil {
		group.Go(func() error {
			return c.consumeRelay(relayMsgs)
		})
	}

	c.logger.Info("correlator starting",
		"broker_host", c.broker.BrokerHost,
		"broker_port", c.broker.BrokerPort,
		"max_retries", c.maxRetries,
	)
	return nil
}

// Stop cancels the supervisor, waits for its goroutines and closes any
// live session. Stopping a correlator that never started is a no-op.
// A failed correlator keeps reporting StateFailed after Stop.
func (c *Correlator) Stop() {
	c.mu.Lock()
	cancel := c.runCancel
	group := c.group
	c.runCancel = nil
	c.group = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if group != nil {
		_ = group.Wait()
	}

	c.mu.Lock()
	session := c.session
	c.session = nil
	if c.state != mqtt.StateFailed {
		c.state = mqtt.StateDisconnected
	}
	c.mu.Unlock()

	if session != nil {
		_ = session.Close()
	}
	if c.metrics != nil {
		c.metrics.SetBrokerConnected(metricsSession, false)
	}
	c.logger.Info("correlator stopped")
}

// Status returns the current connection snapshot.
func (c *Correlator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Status{
		State:             c.state,
		Connected:         c.state == mqtt.StateConnected,
		ReconnectAttempts: c.attempts,
	}
	if c.session != nil {
		st.Connected = c.session.IsConnected()
		st.SubscribedTopics = c.session.Topics()
	}
	return st
}

// LastError returns the most recent connection error, nil when the
// session is healthy.
func (c *Correlator) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// supervise owns the broker session for the correlator's lifetime:
// connect within the retry budget, hold the session until it drops,
// then run a fresh budget.
func (c *Correlator) supervise(ctx context.Context) error {
	for {
		session, err := c.connectWithRetry(ctx)
		if err != nil {
			// Budget exhausted or shutting down. Terminal either way;
			// the relay consumer keeps serving peer events.
			return nil
		}

		down := make(chan error, 1)
		session.SetOnDisconnect(func(err error) {
			select {
			case down <- err:
			default:
			}
		})

		c.attachSession(ctx, session)

		if !c.waitSessionDown(ctx, session, down) {
			return nil
		}

		c.detachSession(session)
		c.setState(mqtt.StateReconnecting)
	}
}

// connectWithRetry attempts to connect up to 1+maxRetries times with
// exponentially growing delays. The failure of the final attempt moves
// the correlator to StateFailed and returns ErrRetriesExhausted.
func (c *Correlator) connectWithRetry(ctx context.Context) (brokerSession, error) {
	delay := c.baseDelay
	attempts := 1 + c.maxRetries

	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		c.mu.Lock()
		c.attempts = attempt
		c.mu.Unlock()

		session, err := connectBroker(c.broker)
		if err == nil {
			return session, nil
		}

		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.RecordCorrelatorReconnect()
		}
		c.logger.Warn("connect attempt failed",
			"attempt", attempt,
			"max_attempts", attempts,
			"error", err,
		)

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.timeAfter(delay):
		}
		delay *= 2
	}

	c.setState(mqtt.StateFailed)
	c.logger.Error("reconnect budget exhausted, correlator failed",
		"attempts", attempts,
		"error", c.LastError(),
	)
	return nil, ErrRetriesExhausted
}

// attachSession adopts a fresh session: subscribes every category
// pattern and publishes the connected state. Subscription failures are
// isolated per pattern.
func (c *Correlator) attachSession(ctx context.Context, session brokerSession) {
	session.SetLogger(c.logger)

	c.mu.Lock()
	c.session = session
	c.attempts = 0
	c.lastErr = nil
	c.mu.Unlock()
	c.setState(mqtt.StateConnected)

	handler := func(topic string, payload []byte) error {
		return c.handleEventMessage(ctx, topic, payload)
	}

	subscribed := 0
	for _, b := range c.bindings {
		if err := session.Subscribe(b.pattern, subscribeQoS, handler); err != nil {
			c.logger.Error("event subscription failed",
				"pattern", b.pattern, "error", err)
			continue
		}
		subscribed++
	}

	c.logger.Info("correlator connected",
		"patterns", subscribed,
		"categories", len(c.bindings),
	)
}

// waitSessionDown blocks until the session drops or ctx ends. It
// reports true when a reconnect cycle should run.
func (c *Correlator) waitSessionDown(ctx context.Context, session brokerSession, down <-chan error) bool {
	probe := time.NewTicker(sessionProbeInterval)
	defer probe.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case err := <-down:
			c.logger.Warn("correlator connection lost", "error", err)
			return true
		case <-probe.C:
			if !session.IsConnected() {
				c.logger.Warn("correlator connection found dead on probe")
				return true
			}
		}
	}
}

// detachSession drops a dead session before a reconnect cycle.
func (c *Correlator) detachSession(session brokerSession) {
	c.mu.Lock()
	if c.session == session {
		c.session = nil
	}
	c.mu.Unlock()
	_ = session.Close()
}

func (c *Correlator) setState(s mqtt.State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetBrokerConnected(metricsSession, s == mqtt.StateConnected)
	}
}

func (c *Correlator) recordDrop(reason string) {
	if c.metrics != nil {
		c.metrics.RecordDrop(reason)
	}
}
