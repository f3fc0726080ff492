package bridge

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"voxl-mqtt-bridge/internal/broker"
	"voxl-mqtt-bridge/internal/logger"
	"voxl-mqtt-bridge/internal/pipe"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.Options{Level: "error"})
	require.NoError(t, err)
	return log
}

type publishedMsg struct {
	topic   string
	payload []byte
	qos     byte
}

// fakeClient is a scriptable broker.Client. Connect completes synchronously
// through the installed handlers unless connectErr is set.
type fakeClient struct {
	mu         sync.Mutex
	handlers   broker.Handlers
	connected  bool
	connectErr error
	publishErr error

	published    []publishedMsg
	subscribed   []string
	unsubscribed []string
	disconnects  int
	connects     int
}

func (c *fakeClient) Connect() error {
	c.mu.Lock()
	c.connects++
	err := c.connectErr
	c.mu.Unlock()

	if err != nil {
		return err
	}
	c.mu.Lock()
	c.connected = true
	onConnect := c.handlers.OnConnect
	c.mu.Unlock()
	if onConnect != nil {
		onConnect(0)
	}
	return nil
}

func (c *fakeClient) Disconnect() {
	c.mu.Lock()
	c.connected = false
	c.disconnects++
	c.mu.Unlock()
}

func (c *fakeClient) Publish(topic string, payload []byte, qos byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	data := make([]byte, len(payload))
	copy(data, payload)
	c.published = append(c.published, publishedMsg{topic: topic, payload: data, qos: qos})
	return nil
}

func (c *fakeClient) Subscribe(topic string, qos byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, topic)
	return nil
}

func (c *fakeClient) Unsubscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, topic)
	return nil
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) publishedMsgs() []publishedMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]publishedMsg, len(c.published))
	copy(out, c.published)
	return out
}

func (c *fakeClient) subscribedTopics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.subscribed))
	copy(out, c.subscribed)
	return out
}

func (c *fakeClient) connectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// loseConnection simulates the broker dropping the session.
func (c *fakeClient) loseConnection() {
	c.mu.Lock()
	c.connected = false
	onDisconnect := c.handlers.OnDisconnect
	c.mu.Unlock()
	if onDisconnect != nil {
		onDisconnect(1)
	}
}

// deliver simulates an inbound broker message.
func (c *fakeClient) deliver(topic string, payload []byte) {
	c.mu.Lock()
	onMessage := c.handlers.OnMessage
	c.mu.Unlock()
	if onMessage != nil {
		onMessage(topic, payload)
	}
}

// fakeTransport is an in-memory pipe.Transport that records writes.
type fakeTransport struct {
	mu       sync.Mutex
	opened   map[int]pipe.Mode
	writes   map[int][][]byte
	writeErr error
	closed   bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		opened: make(map[int]pipe.Mode),
		writes: make(map[int][][]byte),
	}
}

func (f *fakeTransport) Open(ch int, name string, mode pipe.Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.opened[ch]; exists {
		return fmt.Errorf("channel %d already open", ch)
	}
	f.opened[ch] = mode
	return nil
}

func (f *fakeTransport) Write(ch int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	mode, ok := f.opened[ch]
	if !ok {
		return fmt.Errorf("channel %d not open", ch)
	}
	if mode != pipe.ModeWrite {
		return fmt.Errorf("channel %d is not writable", ch)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	f.writes[ch] = append(f.writes[ch], buf)
	return nil
}

func (f *fakeTransport) CloseAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeTransport) writesFor(ch int) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes[ch]))
	copy(out, f.writes[ch])
	return out
}
