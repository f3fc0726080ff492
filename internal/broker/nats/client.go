// Package nats implements the broker capability over a NATS connection.
// MQTT-style topics are mapped to NATS subjects on the way in and out, so
// the routing configuration stays backend-agnostic.
package nats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"voxl-mqtt-bridge/config"
	"voxl-mqtt-bridge/internal/broker"
	"voxl-mqtt-bridge/internal/logger"
)

const (
	connectResultOK     = 0
	connectResultFailed = 1
)

// Client implements broker.Client over NATS. Core NATS delivery is
// at-most-once, so the qos argument is accepted and ignored. Reconnection
// is left to the bridge supervisor.
type Client struct {
	url      string
	name     string
	opts     []nats.Option
	log      *logger.Logger
	handlers broker.Handlers

	mu        sync.Mutex
	conn      *nats.Conn
	subs      map[string]*nats.Subscription
	connected atomic.Bool
}

// NewClient builds a NATS client from configuration. It does not connect.
func NewClient(cfg *config.Config, log *logger.Logger, handlers broker.Handlers) (*Client, error) {
	name := cfg.ClientID
	if name == "" {
		name = "voxl-mqtt-bridge-" + uuid.NewString()[:8]
	}

	opts := []nats.Option{
		nats.Name(name),
		nats.NoReconnect(),
		nats.Timeout(10 * time.Second),
	}

	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	scheme := "nats"
	if cfg.UseTLS {
		scheme = "tls"
		if cfg.CACertPath == "" {
			return nil, fmt.Errorf("ca_cert_path is required when use_tls is enabled")
		}
		opts = append(opts, nats.RootCAs(cfg.CACertPath))
		if cfg.CertPath != "" && cfg.KeyPath != "" {
			opts = append(opts, nats.ClientCert(cfg.CertPath, cfg.KeyPath))
		}
	}

	c := &Client{
		url:      fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerHost, cfg.BrokerPort),
		name:     name,
		log:      log,
		handlers: handlers,
		subs:     make(map[string]*nats.Subscription),
	}

	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		c.log.Error("nats connection lost", "error", err)
		c.connected.Store(false)
		if c.handlers.OnDisconnect != nil {
			c.handlers.OnDisconnect(connectResultFailed)
		}
	}))

	c.opts = opts
	return c, nil
}

// Connect dials the server. The result is reported through the connect
// handler to keep parity with asynchronous backends.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.IsConnected() {
		// the connection is already up; re-signal so a caller whose
		// completion notification was lost can catch up
		c.connected.Store(true)
		if c.handlers.OnConnect != nil {
			go c.handlers.OnConnect(connectResultOK)
		}
		return nil
	}

	conn, err := nats.Connect(c.url, c.opts...)
	if err != nil {
		c.log.Error("nats connect failed", "url", c.url, "error", err)
		if c.handlers.OnConnect != nil {
			go c.handlers.OnConnect(connectResultFailed)
		}
		return nil
	}

	c.conn = conn
	c.subs = make(map[string]*nats.Subscription)
	c.connected.Store(true)
	if c.handlers.OnConnect != nil {
		go c.handlers.OnConnect(connectResultOK)
	}
	return nil
}

// Disconnect closes the connection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected.Store(false)
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.subs = make(map[string]*nats.Subscription)
}

// IsConnected reports whether the connection is established.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.conn.IsConnected() && c.connected.Load()
}

// Publish sends a payload; the topic is converted to a NATS subject.
func (c *Client) Publish(topic string, payload []byte, qos byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected to nats server")
	}

	subject := ToSubject(topic)
	if err := conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish failed on subject %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers for a topic; deliveries arrive via the message handler
// with the subject converted back to topic form.
func (c *Client) Subscribe(topic string, qos byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected to nats server")
	}

	subject := ToSubject(topic)
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(ToTopic(msg.Subject), msg.Data)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe failed on subject %s: %w", subject, err)
	}

	c.subs[topic] = sub
	return nil
}

// Unsubscribe removes a topic subscription.
func (c *Client) Unsubscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subs[topic]
	if !ok {
		return nil
	}
	delete(c.subs, topic)

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("unsubscribe failed on topic %s: %w", topic, err)
	}
	return nil
}
