package results

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-relay/internal/obslog"
)

const defaultRecordTimeout = 10 * time.Second

// Dispatcher fans results out to sinks from a single worker goroutine.
// Submit never blocks; results are dropped when the buffer is full.
type Dispatcher struct {
	sinks   []Sink
	queue   chan Result
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	start  sync.Once
	done   chan struct{}
}

func NewDispatcher(buffer int, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	active := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return &Dispatcher{
		sinks:   active,
		queue:   make(chan Result, buffer),
		timeout: defaultRecordTimeout,
		done:    make(chan struct{}),
	}
}

// Sinks reports how many sinks are attached.
func (d *Dispatcher) Sinks() int {
	if d == nil {
		return 0
	}
	return len(d.sinks)
}

// Start launches the worker. Calling it more than once has no effect.
func (d *Dispatcher) Start() {
	if d == nil {
		return
	}
	d.start.Do(func() { go d.run() })
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for r := range d.queue {
		d.deliver(r)
	}
}

func (d *Dispatcher) deliver(r Result) {
	for _, s := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := s.Record(ctx, r)
		cancel()
		if err != nil {
			obslog.L().Error("relay_result_persist_error", zap.String("sink", s.Name()), zap.String("session_id", r.SessionID), zap.Error(err))
			continue
		}
		obslog.L().Info("relay_result_persist", zap.String("sink", s.Name()), zap.String("session_id", r.SessionID), zap.String("winner", r.Winner), zap.String("method", r.Method))
	}
}

// Submit queues r. It reports false when there are no sinks, the dispatcher is closed,
// or the buffer is full.
func (d *Dispatcher) Submit(r Result) bool {
	if d == nil || len(d.sinks) == 0 {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- r:
		return true
	default:
		obslog.L().Warn("relay_result_dropped", zap.String("session_id", r.SessionID))
		return false
	}
}

// Close stops accepting results and waits for queued ones until ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.Start()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
