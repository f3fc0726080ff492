package bridge

import (
	"voxl-mqtt-bridge/internal/encoding"
	"voxl-mqtt-bridge/internal/logger"
	"voxl-mqtt-bridge/internal/metrics"
)

// inbound turns pipe payloads into buffered broker messages. Data on a
// channel with no publish route is counted and dropped.
type inbound struct {
	routes  *Table
	chain   *encoding.Chain
	buffer  *CoalescingBuffer
	log     *logger.Logger
	metrics *metrics.Metrics
}

func newInbound(routes *Table, chain *encoding.Chain, buffer *CoalescingBuffer, log *logger.Logger, m *metrics.Metrics) *inbound {
	return &inbound{
		routes:  routes,
		chain:   chain,
		buffer:  buffer,
		log:     log,
		metrics: m,
	}
}

// handle processes one payload from a local pipe channel.
func (in *inbound) handle(ch int, data []byte) {
	route, ok := in.routes.PublishRoute(ch)
	if !ok {
		in.log.Debug("dropping data on unrouted channel", "channel", ch)
		if in.metrics != nil {
			in.metrics.IncPipeMessages("unrouted")
		}
		return
	}

	encoded := in.chain.Encode(route.PipeName, data)
	in.buffer.Update(route.Channel, route.Topic, encoded, route.QoS)

	if in.metrics != nil {
		in.metrics.IncPipeMessages("received")
	}
}
