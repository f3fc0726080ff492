package bridge

import (
	"voxl-mqtt-bridge/config"
	"voxl-mqtt-bridge/internal/logger"
)

// Route is one immutable channel<->topic mapping. Publish routes carry data
// from a pipe to the broker; subscribe routes carry broker messages to a
// pipe.
type Route struct {
	Channel  int
	PipeName string
	Topic    string
	QoS      byte
}

// Table holds both routing directions. It is built once from configuration
// and never mutated, so lookups need no locking. Channel IDs are assigned
// deterministically from the configuration order: publish routes take
// 0..n-1, subscribe routes continue from n.
type Table struct {
	publish   map[int]Route    // channel -> publish route
	subscribe map[string]Route // topic -> subscribe route

	publishOrder   []Route
	subscribeOrder []Route
}

// NewTable builds the routing table. Malformed entries (missing topic or
// pipe name) and duplicate subscribe topics are skipped without aborting
// the rest of the table.
func NewTable(pub, sub []config.TopicRoute, log *logger.Logger) *Table {
	t := &Table{
		publish:   make(map[int]Route),
		subscribe: make(map[string]Route),
	}

	ch := 0
	for _, r := range pub {
		if r.Topic == "" || r.PipeName == "" {
			log.Warn("skipping malformed publish route",
				"topic", r.Topic,
				"pipe", r.PipeName)
			continue
		}
		route := Route{Channel: ch, PipeName: r.PipeName, Topic: r.Topic, QoS: byte(r.QoS)}
		t.publish[ch] = route
		t.publishOrder = append(t.publishOrder, route)
		ch++
	}

	for _, r := range sub {
		if r.Topic == "" || r.PipeName == "" {
			log.Warn("skipping malformed subscribe route",
				"topic", r.Topic,
				"pipe", r.PipeName)
			continue
		}
		if _, exists := t.subscribe[r.Topic]; exists {
			log.Warn("skipping duplicate subscribe topic", "topic", r.Topic)
			continue
		}
		route := Route{Channel: ch, PipeName: r.PipeName, Topic: r.Topic, QoS: byte(r.QoS)}
		t.subscribe[r.Topic] = route
		t.subscribeOrder = append(t.subscribeOrder, route)
		ch++
	}

	return t
}

// PublishRoute resolves the broker destination for a pipe channel.
func (t *Table) PublishRoute(ch int) (Route, bool) {
	r, ok := t.publish[ch]
	return r, ok
}

// SubscribeRoute resolves the pipe destination for a broker topic.
func (t *Table) SubscribeRoute(topic string) (Route, bool) {
	r, ok := t.subscribe[topic]
	return r, ok
}

// PublishRoutes returns the publish routes in channel order.
func (t *Table) PublishRoutes() []Route {
	return t.publishOrder
}

// SubscribeRoutes returns the subscribe routes in channel order.
func (t *Table) SubscribeRoutes() []Route {
	return t.subscribeOrder
}
