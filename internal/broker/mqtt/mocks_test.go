package mqtt

import (
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"voxl-mqtt-bridge/internal/logger"
)

// mockToken implements pahomqtt.Token for testing.
type mockToken struct {
	err  error
	done chan struct{}
}

func newMockToken(err error) *mockToken {
	t := &mockToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *mockToken) Wait() bool                       { return true }
func (t *mockToken) WaitTimeout(d time.Duration) bool { return true }
func (t *mockToken) Error() error                     { return t.err }
func (t *mockToken) Done() <-chan struct{}            { return t.done }

// mockPahoClient implements pahomqtt.Client for testing.
type mockPahoClient struct {
	connected atomic.Bool

	mu          sync.Mutex
	published   []publishedMsg
	subscribed  map[string]pahomqtt.MessageHandler
	publishErr  error
	subscribeTo string
}

type publishedMsg struct {
	topic   string
	qos     byte
	payload []byte
}

func newMockPahoClient() *mockPahoClient {
	m := &mockPahoClient{subscribed: make(map[string]pahomqtt.MessageHandler)}
	m.connected.Store(true)
	return m
}

func (m *mockPahoClient) Connect() pahomqtt.Token {
	m.connected.Store(true)
	return newMockToken(nil)
}

func (m *mockPahoClient) Disconnect(quiesce uint) {
	m.connected.Store(false)
}

func (m *mockPahoClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return newMockToken(m.publishErr)
	}
	m.published = append(m.published, publishedMsg{topic: topic, qos: qos, payload: payload.([]byte)})
	return newMockToken(nil)
}

func (m *mockPahoClient) Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed[topic] = callback
	return newMockToken(nil)
}

func (m *mockPahoClient) SubscribeMultiple(filters map[string]byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	return newMockToken(nil)
}

func (m *mockPahoClient) Unsubscribe(topics ...string) pahomqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range topics {
		delete(m.subscribed, t)
	}
	return newMockToken(nil)
}

func (m *mockPahoClient) AddRoute(topic string, callback pahomqtt.MessageHandler) {}
func (m *mockPahoClient) IsConnected() bool                                      { return m.connected.Load() }
func (m *mockPahoClient) IsConnectionOpen() bool                                 { return m.connected.Load() }
func (m *mockPahoClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// mockMessage implements pahomqtt.Message for testing.
type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 0 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}

func newTestLogger() *logger.Logger {
	log, _ := logger.NewLogger(logger.Options{Level: "error"})
	return log
}
