package mqtt

import (
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken satisfies pahomqtt.Token for scripted outcomes.
type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool {
	return true
}

func (t *fakeToken) WaitTimeout(time.Duration) bool {
	return !t.timeout
}

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *fakeToken) Error() error {
	return t.err
}

type publishedMessage struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePahoClient is a scriptable in-memory stand-in for the paho client.
// It records publishes and subscriptions so tests can verify wrapper
// behaviour without a live broker.
type fakePahoClient struct {
	mu sync.Mutex

	connected    bool
	connectErr   error
	connectHangs bool
	subscribeErr error
	publishErr   error

	published      []publishedMessage
	handlers       map[string]pahomqtt.MessageHandler
	subscribeCalls []string
	disconnects    int

	opts *pahomqtt.ClientOptions
}

func (f *fakePahoClient) Connect() pahomqtt.Token {
	if f.connectHangs {
		return &fakeToken{timeout: true}
	}
	if f.connectErr != nil {
		return &fakeToken{err: f.connectErr}
	}

	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return &fakeToken{}
}

func (f *fakePahoClient) Disconnect(quiesce uint) {
	f.mu.Lock()
	f.connected = false
	f.disconnects++
	f.mu.Unlock()
}

func (f *fakePahoClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePahoClient) IsConnectionOpen() bool {
	return f.IsConnected()
}

func (f *fakePahoClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	if f.publishErr != nil {
		return &fakeToken{err: f.publishErr}
	}

	var body []byte
	switch p := payload.(type) {
	case []byte:
		body = p
	case string:
		body = []byte(p)
	}

	f.mu.Lock()
	f.published = append(f.published, publishedMessage{
		topic:    topic,
		qos:      qos,
		retained: retained,
		payload:  body,
	})
	f.mu.Unlock()
	return &fakeToken{}
}

func (f *fakePahoClient) Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	f.subscribeCalls = append(f.subscribeCalls, topic)
	if f.subscribeErr == nil {
		if f.handlers == nil {
			f.handlers = make(map[string]pahomqtt.MessageHandler)
		}
		f.handlers[topic] = callback
	}
	f.mu.Unlock()

	if f.subscribeErr != nil {
		return &fakeToken{err: f.subscribeErr}
	}
	return &fakeToken{}
}

func (f *fakePahoClient) SubscribeMultiple(filters map[string]byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	return &fakeToken{}
}

func (f *fakePahoClient) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	for _, topic := range topics {
		delete(f.handlers, topic)
	}
	f.mu.Unlock()
	return &fakeToken{}
}

func (f *fakePahoClient) AddRoute(topic string, callback pahomqtt.MessageHandler) {}

func (f *fakePahoClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// deliver invokes the handler registered for the exact topic pattern,
// as the broker would for a matching message.
func (f *fakePahoClient) deliver(pattern, topic string, payload []byte) {
	f.mu.Lock()
	handler := f.handlers[pattern]
	f.mu.Unlock()

	if handler != nil {
		handler(f, &fakeMessage{topic: topic, payload: payload})
	}
}

func (f *fakePahoClient) publishedTo(topic string) []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []publishedMessage
	for _, p := range f.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakePahoClient) subscribeCallCount(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, t := range f.subscribeCalls {
		if t == topic {
			n++
		}
	}
	return n
}

// fakeMessage satisfies pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// mockLogger implements Logger interface for testing.
type mockLogger struct {
	errors []string
	warns  []string
	mu     sync.Mutex
}

func (l *mockLogger) Error(msg string, args ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *mockLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

func (l *mockLogger) warnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}
