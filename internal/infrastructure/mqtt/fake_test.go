package mqtt

import (
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken completes immediately with err.
type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type published struct {
	topic    string
	payload  string
	retained bool
}

// fakePaho records every call in order and lets tests script failures.
type fakePaho struct {
	mu sync.Mutex

	connectErrs    []error
	connectTimeout bool
	publishErr     error
	subscribeErrs  map[string]error

	connected   bool
	disconnects int
	events      []string
	published   []published
	handlers    map[string]pahomqtt.MessageHandler
}

func newFakePaho() *fakePaho {
	return &fakePaho{
		subscribeErrs: make(map[string]error),
		handlers:      make(map[string]pahomqtt.MessageHandler),
	}
}

func (f *fakePaho) record(event string) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

func (f *fakePaho) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakePaho) Published() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) IsConnectionOpen() bool { return f.IsConnected() }

func (f *fakePaho) Connect() pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, "connect")
	if f.connectTimeout {
		return &fakeToken{timeout: true}
	}
	var err error
	if len(f.connectErrs) > 0 {
		err = f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
	}
	f.connected = err == nil
	return &fakeToken{err: err}
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "disconnect")
	f.connected = false
	f.disconnects++
}

func (f *fakePaho) Publish(topic string, _ byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body string
	switch p := payload.(type) {
	case []byte:
		body = string(p)
	case string:
		body = p
	default:
		body = fmt.Sprint(p)
	}
	f.events = append(f.events, "publish "+topic)
	if f.publishErr != nil {
		return &fakeToken{err: f.publishErr}
	}
	f.published = append(f.published, published{topic: topic, payload: body, retained: retained})
	return &fakeToken{}
}

func (f *fakePaho) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, "subscribe "+topic)
	if err := f.subscribeErrs[topic]; err != nil {
		return &fakeToken{err: err}
	}
	f.handlers[topic] = callback
	return &fakeToken{}
}

func (f *fakePaho) SubscribeMultiple(filters map[string]byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	for topic, qos := range filters {
		if tok := f.Subscribe(topic, qos, callback); tok.Error() != nil {
			return tok
		}
	}
	return &fakeToken{}
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, topic := range topics {
		delete(f.handlers, topic)
	}
	return &fakeToken{}
}

func (f *fakePaho) AddRoute(topic string, callback pahomqtt.MessageHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = callback
}

func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// deliver simulates the broker pushing a message on a paho goroutine.
func (f *fakePaho) deliver(topic, payload string) bool {
	f.mu.Lock()
	handler, ok := f.handlers[topic]
	f.mu.Unlock()
	if !ok {
		return false
	}
	handler(f, &fakeMessage{topic: topic, payload: []byte(payload)})
	return true
}

// recordingLogger captures warnings for assertions.
type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordingLogger) Info(string, ...any) {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	l.mu.Unlock()
}
