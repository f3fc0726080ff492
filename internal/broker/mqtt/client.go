// Package mqtt implements the broker capability over an MQTT session using
// the paho client.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"voxl-mqtt-bridge/config"
	"voxl-mqtt-bridge/internal/broker"
	"voxl-mqtt-bridge/internal/logger"
)

const (
	connectResultOK     = 0
	connectResultFailed = 1

	opTimeout = 5 * time.Second
)

// Client implements broker.Client over paho. Automatic reconnection is
// disabled: the bridge supervisor owns retry.
type Client struct {
	client    pahomqtt.Client
	log       *logger.Logger
	handlers  broker.Handlers
	connected atomic.Bool
}

// NewClient builds an MQTT client from configuration. It does not connect.
func NewClient(cfg *config.Config, log *logger.Logger, handlers broker.Handlers) (*Client, error) {
	c := &Client{
		log:      log,
		handlers: handlers,
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "voxl-mqtt-bridge-" + uuid.NewString()[:8]
	}

	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerHost, cfg.BrokerPort)).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetKeepAlive(time.Duration(cfg.Keepalive) * time.Second).
		SetConnectTimeout(10 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	if cfg.UseTLS {
		tlsConfig, err := newTLSConfig(cfg.CACertPath, cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.connected.Store(true)
		if c.handlers.OnConnect != nil {
			c.handlers.OnConnect(connectResultOK)
		}
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.log.Error("mqtt connection lost", "error", err)
		c.connected.Store(false)
		if c.handlers.OnDisconnect != nil {
			c.handlers.OnDisconnect(connectResultFailed)
		}
	})

	c.client = pahomqtt.NewClient(opts)
	return c, nil
}

// NewClientWithPaho creates a client around a provided paho client (for
// testing).
func NewClientWithPaho(client pahomqtt.Client, log *logger.Logger, handlers broker.Handlers) *Client {
	c := &Client{
		client:   client,
		log:      log,
		handlers: handlers,
	}
	c.connected.Store(true)
	return c
}

// Connect initiates a session. Handshake completion is reported through the
// connect handler, not the return value.
func (c *Client) Connect() error {
	if c.client.IsConnected() {
		// the session is already up; re-signal so a caller whose
		// completion notification was lost can catch up
		c.connected.Store(true)
		if c.handlers.OnConnect != nil {
			go c.handlers.OnConnect(connectResultOK)
		}
		return nil
	}

	token := c.client.Connect()
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			c.log.Error("mqtt connect failed", "error", err)
			if c.handlers.OnConnect != nil {
				c.handlers.OnConnect(connectResultFailed)
			}
		}
	}()
	return nil
}

// Disconnect tears down the session.
func (c *Client) Disconnect() {
	c.connected.Store(false)
	c.client.Disconnect(250)
}

// IsConnected reports whether the session is established.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client.IsConnected()
}

// Publish sends a payload to a topic.
func (c *Client) Publish(topic string, payload []byte, qos byte) error {
	token := c.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(opTimeout) {
		return fmt.Errorf("publish timeout on topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed on topic %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers for a topic; deliveries arrive via the message handler.
func (c *Client) Subscribe(topic string, qos byte) error {
	token := c.client.Subscribe(topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(msg.Topic(), msg.Payload())
		}
	})
	if !token.WaitTimeout(opTimeout) {
		return fmt.Errorf("subscribe timeout on topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe failed on topic %s: %w", topic, err)
	}
	return nil
}

// Unsubscribe removes a topic subscription.
func (c *Client) Unsubscribe(topic string) error {
	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(opTimeout) {
		return fmt.Errorf("unsubscribe timeout on topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("unsubscribe failed on topic %s: %w", topic, err)
	}
	return nil
}

// newTLSConfig builds TLS material per the bridge contract: the CA
// certificate enables TLS, the client certificate pair is optional.
func newTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	if caFile == "" {
		return nil, fmt.Errorf("ca_cert_path is required when use_tls is enabled")
	}

	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	tlsConfig := &tls.Config{
		RootCAs:    caCertPool,
		MinVersion: tls.VersionTLS12,
	}

	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}
