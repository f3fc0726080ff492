package metrics

import (
	"runtime"
	"sync"
	"time"
)

// Collector periodically samples process-level stats into the metrics
// service.
type Collector struct {
	metrics  *Metrics
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

// NewCollector creates a collector updating process metrics at the given
// interval.
func NewCollector(m *Metrics, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		metrics:  m,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the background sampling loop.
func (c *Collector) Start() {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.sample()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.sample()
			}
		}
	}()
}

// Stop halts the sampling loop and waits for it to exit.
func (c *Collector) Stop() {
	c.once.Do(func() { close(c.stop) })
	<-c.done
}

func (c *Collector) sample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	c.metrics.goroutines.Set(float64(runtime.NumGoroutine()))
	c.metrics.memAlloc.Set(float64(ms.Alloc))
}
