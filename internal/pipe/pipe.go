// Package pipe provides the local named-pipe transport the bridge reads
// telemetry from and writes commands to. Pipes follow the on-device layout
// of one directory per pipe containing a "data" FIFO.
package pipe

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"voxl-mqtt-bridge/internal/logger"
)

// DefaultBaseDir is where relative pipe names are resolved on the device.
const DefaultBaseDir = "/run/mpa"

const (
	readBufSize  = 4096
	readPollWait = 100 * time.Millisecond
)

// Mode selects the direction of an opened channel.
type Mode int

const (
	// ModeRead consumes data from an existing pipe and delivers it via
	// the data callback.
	ModeRead Mode = iota
	// ModeWrite owns the pipe and accepts payloads via Write.
	ModeWrite
)

// Callbacks receive channel events. OnData runs on a transport-owned
// goroutine and must not block.
type Callbacks struct {
	OnData       func(ch int, data []byte)
	OnConnect    func(ch int)
	OnDisconnect func(ch int)
}

// Transport is the local channel capability the bridge consumes.
type Transport interface {
	Open(ch int, name string, mode Mode) error
	Write(ch int, data []byte) error
	CloseAll()
}

type channelState struct {
	name string
	mode Mode
	path string

	mu     sync.Mutex
	writer *os.File // lazily opened for ModeWrite
}

// FIFOTransport implements Transport over named FIFOs.
type FIFOTransport struct {
	base string
	log  *logger.Logger
	cbs  Callbacks

	mu       sync.Mutex
	channels map[int]*channelState
	closed   bool
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewFIFOTransport creates a FIFO transport rooted at base (DefaultBaseDir
// when empty).
func NewFIFOTransport(base string, log *logger.Logger, cbs Callbacks) *FIFOTransport {
	if base == "" {
		base = DefaultBaseDir
	}
	return &FIFOTransport{
		base:     base,
		log:      log,
		cbs:      cbs,
		channels: make(map[int]*channelState),
		done:     make(chan struct{}),
	}
}

// Path resolves a pipe name to its data FIFO. Absolute names are used
// as-is, relative names resolve under the base directory.
func (t *FIFOTransport) Path(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Join(name, "data")
	}
	return filepath.Join(t.base, name, "data")
}

// Open registers a channel. Read channels start a reader goroutine that
// survives the pipe appearing later; write channels create the FIFO.
func (t *FIFOTransport) Open(ch int, name string, mode Mode) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transport is closed")
	}
	if _, exists := t.channels[ch]; exists {
		return fmt.Errorf("channel %d already open", ch)
	}

	state := &channelState{
		name: name,
		mode: mode,
		path: t.Path(name),
	}

	if mode == ModeWrite {
		if err := os.MkdirAll(filepath.Dir(state.path), 0755); err != nil {
			return fmt.Errorf("failed to create pipe directory for %s: %w", name, err)
		}
		if err := syscall.Mkfifo(state.path, 0666); err != nil && !errors.Is(err, syscall.EEXIST) {
			return fmt.Errorf("failed to create pipe %s: %w", name, err)
		}
	}

	t.channels[ch] = state

	if mode == ModeRead {
		t.wg.Add(1)
		go t.readLoop(ch, state)
	}
	return nil
}

// readLoop opens the FIFO non-blocking and keeps delivering payloads until
// the transport closes. A missing pipe is retried, so a publisher that
// starts late is picked up.
func (t *FIFOTransport) readLoop(ch int, state *channelState) {
	defer t.wg.Done()

	var f *os.File
	defer func() {
		if f != nil {
			f.Close()
			if t.cbs.OnDisconnect != nil {
				t.cbs.OnDisconnect(ch)
			}
		}
	}()

	buf := make([]byte, readBufSize)
	for {
		select {
		case <-t.done:
			return
		default:
		}

		if f == nil {
			var err error
			f, err = os.OpenFile(state.path, os.O_RDONLY|syscall.O_NONBLOCK, 0)
			if err != nil {
				t.sleep(readPollWait)
				continue
			}
			if t.cbs.OnConnect != nil {
				t.cbs.OnConnect(ch)
			}
		}

		f.SetReadDeadline(time.Now().Add(readPollWait))
		n, err := f.Read(buf)
		if n > 0 && t.cbs.OnData != nil {
			data := make([]byte, n)
			copy(data, buf[:n])
			t.cbs.OnData(ch, data)
		}
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			if errors.Is(err, io.EOF) {
				// no writer at the moment; poll until one shows up
				t.sleep(readPollWait)
				continue
			}
			t.log.Error("pipe read failed", "channel", ch, "pipe", state.name, "error", err)
			f.Close()
			f = nil
			if t.cbs.OnDisconnect != nil {
				t.cbs.OnDisconnect(ch)
			}
			t.sleep(readPollWait)
		}
	}
}

func (t *FIFOTransport) sleep(d time.Duration) {
	select {
	case <-t.done:
	case <-time.After(d):
	}
}

// Write delivers a payload to a write-mode channel. The FIFO is opened
// lazily; with no reader attached the write fails with a status error.
func (t *FIFOTransport) Write(ch int, data []byte) error {
	t.mu.Lock()
	state, ok := t.channels[ch]
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("channel %d not open", ch)
	}
	if state.mode != ModeWrite {
		return fmt.Errorf("channel %d is not writable", ch)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.writer == nil {
		f, err := os.OpenFile(state.path, os.O_WRONLY|syscall.O_NONBLOCK, 0)
		if err != nil {
			return fmt.Errorf("no reader on pipe %s: %w", state.name, err)
		}
		state.writer = f
	}

	if _, err := state.writer.Write(data); err != nil {
		state.writer.Close()
		state.writer = nil
		return fmt.Errorf("write to pipe %s failed: %w", state.name, err)
	}
	return nil
}

// CloseAll stops all readers, closes writers and forgets every channel.
func (t *FIFOTransport) CloseAll() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.done)
	channels := t.channels
	t.channels = make(map[int]*channelState)
	t.mu.Unlock()

	t.wg.Wait()

	for _, state := range channels {
		state.mu.Lock()
		if state.writer != nil {
			state.writer.Close()
			state.writer = nil
		}
		state.mu.Unlock()
	}
}
