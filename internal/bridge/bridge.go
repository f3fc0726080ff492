package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"voxl-mqtt-bridge/config"
	"voxl-mqtt-bridge/internal/broker"
	"voxl-mqtt-bridge/internal/encoding"
	"voxl-mqtt-bridge/internal/logger"
	"voxl-mqtt-bridge/internal/metrics"
	"voxl-mqtt-bridge/internal/pipe"
)

const (
	eventQueueSize     = 256
	supervisorInterval = time.Second

	// a connect attempt older than this is presumed to have lost its
	// completion notification and is reset so the supervisor retries
	connectStaleAfter = 30 * time.Second
)

// ClientFactory builds a broker client wired to the bridge's handlers. The
// bridge supplies the handlers so backend callbacks become queued events.
type ClientFactory func(handlers broker.Handlers) (broker.Client, error)

// Bridge links local pipes to a publish/subscribe broker. It runs three
// goroutines: the event loop that serializes all routing work, the flush
// ticker that drains the coalescing buffer, and the supervisor that keeps
// the broker link alive.
type Bridge struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics

	routes *Table
	buffer *CoalescingBuffer
	conn   *ConnManager
	in     *inbound
	out    *outbound
	pipes  pipe.Transport

	events chan event

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New assembles a bridge from configuration. The factory receives the
// handlers the bridge needs installed on the backend before it connects.
func New(cfg *config.Config, log *logger.Logger, m *metrics.Metrics, pipes pipe.Transport, factory ClientFactory) (*Bridge, error) {
	b := &Bridge{
		cfg:     cfg,
		log:     log,
		metrics: m,
		pipes:   pipes,
		events:  make(chan event, eventQueueSize),
	}

	b.routes = NewTable(cfg.PublishTopics, cfg.SubscribeTopics, log)
	b.buffer = NewCoalescingBuffer(m)

	client, err := factory(broker.Handlers{
		OnConnect: func(code int) {
			if code == 0 {
				b.enqueue(event{kind: eventConnected})
			} else {
				b.enqueue(event{kind: eventDisconnected, code: code})
			}
		},
		OnDisconnect: func(code int) {
			b.enqueue(event{kind: eventDisconnected, code: code})
		},
		OnMessage: func(topic string, payload []byte) {
			data := make([]byte, len(payload))
			copy(data, payload)
			b.enqueue(event{kind: eventMessage, topic: topic, payload: data})
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create broker client: %w", err)
	}

	b.conn = NewConnManager(client, log, m)
	b.in = newInbound(b.routes, encoding.NewChain(log), b.buffer, log, m)
	b.out = newOutbound(b.routes, pipes, log, m)
	return b, nil
}

// enqueue adds an event without blocking. A full queue drops the event;
// pipe data is coalesced anyway, and a connect attempt whose completion
// notification was dropped is aged out by the supervisor.
func (b *Bridge) enqueue(ev event) {
	select {
	case b.events <- ev:
	default:
		b.log.Warn("event queue full, dropping event", "kind", ev.kind)
	}
}

// Start opens the configured pipe channels, kicks off the first connect and
// launches the worker goroutines. Pipe channels that fail to open are
// skipped so one bad route never takes the bridge down.
func (b *Bridge) Start(ctx context.Context) error {
	if b.started {
		return fmt.Errorf("bridge already started")
	}
	b.started = true

	ctx, b.cancel = context.WithCancel(ctx)

	for _, r := range b.routes.PublishRoutes() {
		if err := b.pipes.Open(r.Channel, r.PipeName, pipe.ModeRead); err != nil {
			b.log.Warn("failed to open pipe for reading",
				"pipe", r.PipeName,
				"error", err)
			continue
		}
		b.log.Info("watching pipe", "pipe", r.PipeName, "topic", r.Topic)
	}
	for _, r := range b.routes.SubscribeRoutes() {
		if err := b.pipes.Open(r.Channel, r.PipeName, pipe.ModeWrite); err != nil {
			b.log.Warn("failed to create pipe for writing",
				"pipe", r.PipeName,
				"error", err)
			continue
		}
		b.log.Info("serving pipe", "pipe", r.PipeName, "topic", r.Topic)
	}

	if err := b.conn.Connect(); err != nil {
		// the supervisor retries; a failed first attempt is not fatal
		b.log.Warn("initial broker connect failed", "error", err)
	}

	b.wg.Add(3)
	go b.eventLoop(ctx)
	go b.flushLoop(ctx)
	go b.superviseLoop(ctx)

	b.log.Info("bridge started",
		"publish_routes", len(b.routes.PublishRoutes()),
		"subscribe_routes", len(b.routes.SubscribeRoutes()))
	return nil
}

// HandleChannelData is the pipe transport's data callback. It runs on a
// transport goroutine and only enqueues.
func (b *Bridge) HandleChannelData(ch int, data []byte) {
	b.enqueue(event{kind: eventChannelData, channel: ch, payload: data})
}

// State returns the current broker link state.
func (b *Bridge) State() State {
	return b.conn.State()
}

// eventLoop serializes all connection and routing work.
func (b *Bridge) eventLoop(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.events:
			switch ev.kind {
			case eventConnected:
				b.conn.HandleConnected()
				b.subscribeAll()
			case eventDisconnected:
				b.conn.HandleDisconnected(ev.code)
			case eventMessage:
				b.out.handle(ev.topic, ev.payload)
			case eventChannelData:
				b.in.handle(ev.channel, ev.payload)
			}
		}
	}
}

// subscribeAll registers every subscribe route. Runs after each successful
// connect so subscriptions survive session loss.
func (b *Bridge) subscribeAll() {
	for _, r := range b.routes.SubscribeRoutes() {
		if err := b.conn.Subscribe(r.Topic, r.QoS); err != nil {
			b.log.Error("subscribe failed", "topic", r.Topic, "error", err)
			continue
		}
		b.log.Info("subscribed", "topic", r.Topic, "pipe", r.PipeName)
	}
}

// flushLoop drains the coalescing buffer once per flush interval.
func (b *Bridge) flushLoop(ctx context.Context) {
	defer b.wg.Done()

	interval := time.Duration(b.cfg.FlushInterval) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := b.buffer.Flush(b.conn.Publish)
			if n > 0 {
				b.log.Debug("flushed buffer", "published", n)
			}
		}
	}
}

// superviseLoop checks the link once per second and, when it is down,
// waits the configured reconnect delay before trying again. The delay is
// fixed; there is no backoff.
func (b *Bridge) superviseLoop(ctx context.Context) {
	defer b.wg.Done()

	delay := time.Duration(b.cfg.ReconnectDelay) * time.Second
	ticker := time.NewTicker(supervisorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			switch b.conn.State() {
			case StateConnected:
				continue
			case StateConnecting, StateReconnecting:
				if b.conn.AttemptAge() > connectStaleAfter {
					b.log.Warn("connect attempt stalled, resetting link state")
					b.conn.HandleDisconnected(0)
				}
				continue
			}
			if delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
			}
			if b.conn.State() != StateDisconnected {
				continue
			}
			b.log.Info("attempting broker reconnect")
			if err := b.conn.Connect(); err != nil {
				b.log.Warn("reconnect attempt failed", "error", err)
			}
		}
	}
}

// Stop shuts the bridge down: workers exit, the buffer is discarded, the
// broker session is closed and all pipe channels are released.
func (b *Bridge) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()

	b.buffer.Clear()
	b.conn.Disconnect()
	b.pipes.CloseAll()
	b.log.Info("bridge stopped")
}
