package bridge

import (
	"fmt"
	"sync"
	"time"

	"voxl-mqtt-bridge/internal/broker"
	"voxl-mqtt-bridge/internal/logger"
	"voxl-mqtt-bridge/internal/metrics"
)

// ConnManager owns the broker link state machine. All transitions happen on
// the bridge's event loop or supervisor, never on transport callbacks.
type ConnManager struct {
	client  broker.Client
	log     *logger.Logger
	metrics *metrics.Metrics

	mu            sync.RWMutex
	state         State
	since         time.Time
	everConnected bool
}

// NewConnManager wraps a broker client in the link state machine. The
// initial state is Disconnected.
func NewConnManager(client broker.Client, log *logger.Logger, m *metrics.Metrics) *ConnManager {
	return &ConnManager{
		client:  client,
		log:     log,
		metrics: m,
		state:   StateDisconnected,
		since:   time.Now(),
	}
}

// State returns the current link state.
func (c *ConnManager) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connect starts an asynchronous connection attempt. The state moves to
// Connecting on the first ever attempt and Reconnecting afterwards;
// completion arrives through HandleConnected or HandleDisconnected.
func (c *ConnManager) Connect() error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	if c.everConnected {
		c.state = StateReconnecting
		if c.metrics != nil {
			c.metrics.IncReconnects()
		}
	} else {
		c.state = StateConnecting
	}
	c.since = time.Now()
	c.mu.Unlock()

	if err := c.client.Connect(); err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.since = time.Now()
		c.mu.Unlock()
		return fmt.Errorf("broker connect failed: %w", err)
	}
	return nil
}

// AttemptAge returns how long the current connect attempt has been in
// flight, or zero when none is. The supervisor uses it to age out attempts
// whose completion notification was lost.
func (c *ConnManager) AttemptAge() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateConnecting && c.state != StateReconnecting {
		return 0
	}
	return time.Since(c.since)
}

// HandleConnected records a completed handshake.
func (c *ConnManager) HandleConnected() {
	c.mu.Lock()
	c.state = StateConnected
	c.since = time.Now()
	c.everConnected = true
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetConnectionStatus(true)
	}
	c.log.Info("broker session established")
}

// HandleDisconnected records a lost or failed session.
func (c *ConnManager) HandleDisconnected(code int) {
	c.mu.Lock()
	prev := c.state
	c.state = StateDisconnected
	c.since = time.Now()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetConnectionStatus(false)
	}
	if prev == StateConnected {
		c.log.Warn("broker session lost", "code", code)
	} else {
		c.log.Warn("broker connect attempt failed", "code", code)
	}
}

// Publish sends a payload when the link is up and fails without side
// effects otherwise.
func (c *ConnManager) Publish(topic string, payload []byte, qos byte) error {
	if c.State() != StateConnected {
		return fmt.Errorf("cannot publish to %s: link is %s", topic, c.State())
	}
	return c.client.Publish(topic, payload, qos)
}

// Subscribe registers a topic when the link is up.
func (c *ConnManager) Subscribe(topic string, qos byte) error {
	if c.State() != StateConnected {
		return fmt.Errorf("cannot subscribe to %s: link is %s", topic, c.State())
	}
	return c.client.Subscribe(topic, qos)
}

// Unsubscribe removes a topic registration when the link is up.
func (c *ConnManager) Unsubscribe(topic string) error {
	if c.State() != StateConnected {
		return fmt.Errorf("cannot unsubscribe from %s: link is %s", topic, c.State())
	}
	return c.client.Unsubscribe(topic)
}

// Disconnect tears the session down and forces the state to Disconnected
// whatever the backend reports.
func (c *ConnManager) Disconnect() {
	c.client.Disconnect()

	c.mu.Lock()
	c.state = StateDisconnected
	c.since = time.Now()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetConnectionStatus(false)
	}
}
