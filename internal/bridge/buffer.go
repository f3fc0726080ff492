package bridge

import (
	"sync"
	"time"

	"voxl-mqtt-bridge/internal/metrics"
)

// bufferedItem is the pending payload for one outbound channel.
type bufferedItem struct {
	topic      string
	payload    []byte
	qos        byte
	pending    bool
	lastUpdate time.Time
}

// PublishFunc sends one payload to the broker.
type PublishFunc func(topic string, payload []byte, qos byte) error

// CoalescingBuffer bounds broker traffic to at most one message per channel
// per flush interval. Updates overwrite the pending payload (last value
// wins); intermediate values are dropped by design. One mutex keeps Update
// and Flush mutually exclusive.
type CoalescingBuffer struct {
	mu       sync.Mutex
	items    map[int]*bufferedItem
	pendingN int
	metrics  *metrics.Metrics
}

// NewCoalescingBuffer creates an empty buffer. Metrics may be nil.
func NewCoalescingBuffer(m *metrics.Metrics) *CoalescingBuffer {
	return &CoalescingBuffer{
		items:   make(map[int]*bufferedItem),
		metrics: m,
	}
}

// Update stores the newest payload for a channel, replacing any pending
// value. Entries are created lazily on first data.
func (b *CoalescingBuffer) Update(ch int, topic string, payload []byte, qos byte) {
	data := make([]byte, len(payload))
	copy(data, payload)

	b.mu.Lock()
	defer b.mu.Unlock()

	item, ok := b.items[ch]
	if !ok {
		item = &bufferedItem{}
		b.items[ch] = item
	}
	if item.pending {
		if b.metrics != nil {
			b.metrics.IncCoalesced()
		}
	} else {
		b.pendingN++
	}

	item.topic = topic
	item.payload = data
	item.qos = qos
	item.pending = true
	item.lastUpdate = time.Now()

	if b.metrics != nil {
		b.metrics.SetBufferChannels(float64(len(b.items)))
		b.metrics.SetBufferPending(float64(b.pendingN))
	}
}

// Flush publishes every pending entry and clears its flag regardless of
// publish success: a failed publish is not retried until new data arrives.
// It returns the number of publish attempts made.
func (b *CoalescingBuffer) Flush(publish PublishFunc) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	published := 0
	for _, item := range b.items {
		if !item.pending {
			continue
		}
		item.pending = false
		published++

		if err := publish(item.topic, item.payload, item.qos); err != nil {
			if b.metrics != nil {
				b.metrics.IncPublishes("error")
			}
			continue
		}
		if b.metrics != nil {
			b.metrics.IncPublishes("success")
		}
	}

	b.pendingN = 0
	if b.metrics != nil {
		b.metrics.SetBufferPending(0)
	}
	return published
}

// Pending returns the number of entries awaiting the next flush.
func (b *CoalescingBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingN
}

// Clear empties the buffer. Used on shutdown.
func (b *CoalescingBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = make(map[int]*bufferedItem)
	b.pendingN = 0
	if b.metrics != nil {
		b.metrics.SetBufferChannels(0)
		b.metrics.SetBufferPending(0)
	}
}
