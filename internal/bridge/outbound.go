package bridge

import (
	"voxl-mqtt-bridge/internal/logger"
	"voxl-mqtt-bridge/internal/metrics"
	"voxl-mqtt-bridge/internal/pipe"
)

// outbound delivers broker messages to local pipes. Messages on topics with
// no subscribe route are dropped; a pipe with no reader attached drops the
// payload without affecting the broker session.
type outbound struct {
	routes  *Table
	pipes   pipe.Transport
	log     *logger.Logger
	metrics *metrics.Metrics
}

func newOutbound(routes *Table, pipes pipe.Transport, log *logger.Logger, m *metrics.Metrics) *outbound {
	return &outbound{
		routes:  routes,
		pipes:   pipes,
		log:     log,
		metrics: m,
	}
}

// handle processes one broker message.
func (out *outbound) handle(topic string, payload []byte) {
	route, ok := out.routes.SubscribeRoute(topic)
	if !ok {
		out.log.Debug("dropping message on unrouted topic", "topic", topic)
		if out.metrics != nil {
			out.metrics.IncForwards("dropped")
		}
		return
	}

	if err := out.pipes.Write(route.Channel, payload); err != nil {
		out.log.Debug("pipe delivery failed",
			"topic", topic,
			"pipe", route.PipeName,
			"error", err)
		if out.metrics != nil {
			out.metrics.IncForwards("error")
		}
		return
	}

	if out.metrics != nil {
		out.metrics.IncForwards("forwarded")
	}
}
