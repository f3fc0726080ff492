// Package metrics exposes prometheus instrumentation for the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all bridge metric instruments. All methods are safe for
// concurrent use.
type Metrics struct {
	connectionStatus prometheus.Gauge
	reconnectsTotal  prometheus.Counter

	pipeMessagesTotal *prometheus.CounterVec
	publishesTotal    *prometheus.CounterVec
	forwardsTotal     *prometheus.CounterVec
	coalescedTotal    prometheus.Counter

	bufferChannels prometheus.Gauge
	bufferPending  prometheus.Gauge

	goroutines prometheus.Gauge
	memAlloc   prometheus.Gauge
}

// NewMetrics creates and registers all bridge metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		connectionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_broker_connected",
			Help: "Whether the broker link is currently connected (1) or not (0)",
		}),
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_broker_reconnects_total",
			Help: "Total number of broker reconnection attempts",
		}),
		pipeMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_pipe_messages_total",
			Help: "Local pipe data events by result",
		}, []string{"result"}),
		publishesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_publishes_total",
			Help: "Broker publishes from the flush timer by result",
		}, []string{"result"}),
		forwardsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_forwards_total",
			Help: "Broker messages forwarded to local pipes by result",
		}, []string{"result"}),
		coalescedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_coalesced_updates_total",
			Help: "Pending payloads overwritten before a flush could publish them",
		}),
		bufferChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_buffer_channels",
			Help: "Number of channels with a buffer entry",
		}),
		bufferPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_buffer_pending",
			Help: "Number of buffer entries awaiting the next flush",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_goroutines",
			Help: "Current number of goroutines",
		}),
		memAlloc: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_memory_alloc_bytes",
			Help: "Current heap allocation in bytes",
		}),
	}

	if reg != nil {
		collectors := []prometheus.Collector{
			m.connectionStatus,
			m.reconnectsTotal,
			m.pipeMessagesTotal,
			m.publishesTotal,
			m.forwardsTotal,
			m.coalescedTotal,
			m.bufferChannels,
			m.bufferPending,
			m.goroutines,
			m.memAlloc,
		}
		for _, c := range collectors {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

// SetConnectionStatus records the broker link state.
func (m *Metrics) SetConnectionStatus(connected bool) {
	if connected {
		m.connectionStatus.Set(1)
	} else {
		m.connectionStatus.Set(0)
	}
}

// IncReconnects counts a reconnection attempt.
func (m *Metrics) IncReconnects() {
	m.reconnectsTotal.Inc()
}

// IncPipeMessages counts a pipe data event; result is "received" or "unrouted".
func (m *Metrics) IncPipeMessages(result string) {
	m.pipeMessagesTotal.WithLabelValues(result).Inc()
}

// IncPublishes counts a flush publish attempt; result is "success" or "error".
func (m *Metrics) IncPublishes(result string) {
	m.publishesTotal.WithLabelValues(result).Inc()
}

// IncForwards counts an outbound delivery; result is "forwarded", "dropped"
// or "error".
func (m *Metrics) IncForwards(result string) {
	m.forwardsTotal.WithLabelValues(result).Inc()
}

// IncCoalesced counts a pending payload overwritten before publication.
func (m *Metrics) IncCoalesced() {
	m.coalescedTotal.Inc()
}

// SetBufferChannels records the number of channels tracked by the buffer.
func (m *Metrics) SetBufferChannels(n float64) {
	m.bufferChannels.Set(n)
}

// SetBufferPending records the number of entries awaiting the next flush.
func (m *Metrics) SetBufferPending(n float64) {
	m.bufferPending.Set(n)
}
