// Package config loads the bridge configuration from the fleet's key=value
// config file format and provides defaults, printing and default-file
// generation for the CLI.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultPath is the fixed location of the bridge configuration file.
const DefaultPath = "/etc/modalai/voxl-mqtt-bridge.conf"

// Broker backend types selectable via the broker_type key.
const (
	BrokerTypeMQTT = "mqtt"
	BrokerTypeNATS = "nats"
)

// TopicRoute is one configured mapping between a local pipe and a broker
// topic. The publish list maps pipe -> topic, the subscribe list maps
// topic -> pipe.
type TopicRoute struct {
	Topic    string
	PipeName string
	QoS      int
}

// Config holds all bridge settings. Values are populated with defaults
// before the file is read; a missing file is not an error.
type Config struct {
	BrokerType     string
	BrokerHost     string
	BrokerPort     int
	ClientID       string
	Username       string
	Password       string
	UseTLS         bool
	CACertPath     string
	CertPath       string
	KeyPath        string
	Keepalive      int // seconds
	ReconnectDelay int // seconds
	FlushInterval  int // seconds

	LogLevel string
	LogDir   string // when set, logs also rotate into this directory

	MetricsEnabled bool
	MetricsAddr    string
	MetricsPath    string

	PublishTopics   []TopicRoute
	SubscribeTopics []TopicRoute
}

// Default returns a configuration populated with the stock fleet defaults,
// including the default route set.
func Default() *Config {
	return &Config{
		BrokerType:     BrokerTypeMQTT,
		BrokerHost:     "localhost",
		BrokerPort:     1883,
		ClientID:       "voxl-mqtt-bridge",
		Keepalive:      60,
		ReconnectDelay: 5,
		FlushInterval:  1,
		LogLevel:       "info",
		MetricsAddr:    ":2112",
		MetricsPath:    "/metrics",
		PublishTopics: []TopicRoute{
			{Topic: "voxl/vio", PipeName: "vvhub_aligned_vio", QoS: 0},
			{Topic: "voxl/battery", PipeName: "/run/mpa/mavlink_sys_status/", QoS: 0},
			{Topic: "voxl/heartbeat", PipeName: "mavlink_ap_heartbeat", QoS: 0},
		},
		SubscribeTopics: []TopicRoute{
			{Topic: "voxl/offboard_cmd", PipeName: "offboard_mqtt_cmd", QoS: 0},
		},
	}
}

// Load reads the configuration file at path. Defaults are applied first; a
// missing file returns the defaults. Malformed lines and records are skipped
// rather than aborting the load.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	const (
		sectionNone = iota
		sectionPublish
		sectionSubscribe
	)

	section := sectionNone
	var current TopicRoute

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch line {
		case "[publish_topics]":
			section = sectionPublish
			cfg.PublishTopics = nil
			continue
		case "[subscribe_topics]":
			section = sectionSubscribe
			cfg.SubscribeTopics = nil
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = sectionNone
			continue
		}

		eq := strings.Index(line, "=")
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		value := unquote(strings.TrimSpace(line[eq+1:]))

		switch section {
		case sectionPublish, sectionSubscribe:
			switch key {
			case "topic":
				current.Topic = value
			case "pipe_name":
				current.PipeName = value
			case "qos":
				// qos is the trailing field, it closes the record
				qos, err := strconv.Atoi(value)
				if err != nil || qos < 0 || qos > 2 {
					continue
				}
				current.QoS = qos
				if section == sectionPublish {
					cfg.PublishTopics = append(cfg.PublishTopics, current)
				} else {
					cfg.SubscribeTopics = append(cfg.SubscribeTopics, current)
				}
			}
		default:
			cfg.applyKey(key, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return cfg, nil
}

// applyKey sets a single top-level key, keeping the prior value when the
// new one does not parse. Unknown keys are ignored.
func (c *Config) applyKey(key, value string) {
	switch key {
	case "broker_type":
		if value == BrokerTypeMQTT || value == BrokerTypeNATS {
			c.BrokerType = value
		}
	case "broker_host":
		c.BrokerHost = value
	case "broker_port":
		c.BrokerPort = atoiOr(value, c.BrokerPort)
	case "client_id":
		c.ClientID = value
	case "username":
		c.Username = value
	case "password":
		c.Password = value
	case "use_tls":
		c.UseTLS = parseBool(value)
	case "ca_cert_path":
		c.CACertPath = value
	case "cert_path":
		c.CertPath = value
	case "key_path":
		c.KeyPath = value
	case "keepalive":
		c.Keepalive = atoiOr(value, c.Keepalive)
	case "reconnect_delay":
		c.ReconnectDelay = atoiOr(value, c.ReconnectDelay)
	case "flush_interval":
		c.FlushInterval = atoiOr(value, c.FlushInterval)
	case "log_level":
		switch value {
		case "debug", "info", "warn", "error":
			c.LogLevel = value
		}
	case "log_dir":
		c.LogDir = value
	case "metrics_enabled":
		c.MetricsEnabled = parseBool(value)
	case "metrics_addr":
		c.MetricsAddr = value
	case "metrics_path":
		c.MetricsPath = value
	}
}

func unquote(value string) string {
	if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
		return value[1 : len(value)-1]
	}
	return value
}

func atoiOr(value string, fallback int) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(value string) bool {
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// SaveDefault writes a commented default configuration file to path,
// creating the parent directory if needed.
func SaveDefault(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	var b strings.Builder
	b.WriteString("# VOXL MQTT Bridge Configuration\n")
	b.WriteString("# Maps local pipes to broker topics in both directions\n\n")

	b.WriteString("[broker]\n")
	b.WriteString("broker_type = \"mqtt\"\n")
	b.WriteString("broker_host = \"localhost\"\n")
	b.WriteString("broker_port = 1883\n")
	b.WriteString("client_id = \"voxl-mqtt-bridge\"\n")
	b.WriteString("username = \"\"\n")
	b.WriteString("password = \"\"\n")
	b.WriteString("keepalive = 60\n")
	b.WriteString("reconnect_delay = 5\n")
	b.WriteString("flush_interval = 1\n\n")

	b.WriteString("[tls]\n")
	b.WriteString("use_tls = false\n")
	b.WriteString("ca_cert_path = \"\"\n")
	b.WriteString("cert_path = \"\"\n")
	b.WriteString("key_path = \"\"\n\n")

	b.WriteString("[publish_topics]\n")
	b.WriteString("topic = \"voxl/imu\"\n")
	b.WriteString("pipe_name = \"imu\"\n")
	b.WriteString("qos = 0\n\n")
	b.WriteString("topic = \"voxl/qvio\"\n")
	b.WriteString("pipe_name = \"qvio\"\n")
	b.WriteString("qos = 0\n\n")

	b.WriteString("[subscribe_topics]\n")
	b.WriteString("# Broker topics to subscribe to and forward to local pipes\n")
	b.WriteString("topic = \"voxl/offboard_cmd\"\n")
	b.WriteString("pipe_name = \"offboard_mqtt_cmd\"\n")
	b.WriteString("qos = 0\n\n")

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Print writes a human-readable summary of the configuration to w.
func (c *Config) Print(w io.Writer) {
	fmt.Fprintf(w, "VOXL MQTT Bridge Configuration:\n")
	fmt.Fprintf(w, "  Broker: %s://%s:%d\n", c.BrokerType, c.BrokerHost, c.BrokerPort)
	fmt.Fprintf(w, "  Client ID: %s\n", c.ClientID)
	fmt.Fprintf(w, "  Username: %s\n", c.Username)
	fmt.Fprintf(w, "  TLS: %s\n", enabledStr(c.UseTLS))
	fmt.Fprintf(w, "  Keepalive: %ds\n", c.Keepalive)
	fmt.Fprintf(w, "  Reconnect delay: %ds\n", c.ReconnectDelay)
	fmt.Fprintf(w, "  Flush interval: %ds\n", c.FlushInterval)
	fmt.Fprintf(w, "  Metrics: %s\n", enabledStr(c.MetricsEnabled))

	fmt.Fprintf(w, "\nPublish Topics (Pipe -> Broker):\n")
	for _, r := range c.PublishTopics {
		fmt.Fprintf(w, "  %s <- %s (QoS %d)\n", r.Topic, r.PipeName, r.QoS)
	}

	fmt.Fprintf(w, "\nSubscribe Topics (Broker -> Pipe):\n")
	for _, r := range c.SubscribeTopics {
		fmt.Fprintf(w, "  %s -> %s (QoS %d)\n", r.Topic, r.PipeName, r.QoS)
	}
	fmt.Fprintln(w)
}

func enabledStr(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
