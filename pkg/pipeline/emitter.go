package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sensai-labs/go-proctor/internal/log"
	"github.com/sensai-labs/go-proctor/pkg/violation"
)

// Sink receives finalized violation events. Implementations must be
// safe for use from the emitter's drain goroutine.
type Sink interface {
	Emit(ctx context.Context, e violation.Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, e violation.Event) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, e violation.Event) error { return f(ctx, e) }

// MultiSink fans each event out to every sink. All sinks are offered
// the event; the first error encountered is returned.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(ctx context.Context, e violation.Event) error {
	var first error
	for _, s := range m {
		if err := s.Emit(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// EmitterStats counts emitter outcomes since construction.
type EmitterStats struct {
	Emitted uint64
	Dropped uint64
	Failed  uint64
}

// Emitter decouples the synchronous frame loop from sink I/O. Offer
// never blocks: events queue onto a bounded buffer and a full buffer
// drops the new event. A single drain goroutine delivers events to the
// sink with a bounded per-event timeout; delivery failures are logged
// and never retried.
type Emitter struct {
	sink    Sink
	timeout time.Duration

	ch   chan violation.Event
	done chan struct{}

	emitted uint64
	dropped uint64
	failed  uint64

	closeOnce sync.Once
}

// NewEmitter starts an emitter draining into sink. Non-positive buffer
// and timeout values fall back to 64 events and 2s.
func NewEmitter(sink Sink, buffer int, timeout time.Duration) *Emitter {
	if buffer < 1 {
		buffer = 64
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	e := &Emitter{
		sink:    sink,
		timeout: timeout,
		ch:      make(chan violation.Event, buffer),
		done:    make(chan struct{}),
	}
	go e.drain()
	return e
}

// Offer queues an event for delivery without blocking. Returns false
// when the buffer is full and the event was dropped.
func (e *Emitter) Offer(ev violation.Event) bool {
	select {
	case e.ch <- ev:
		return true
	default:
		atomic.AddUint64(&e.dropped, 1)
		return false
	}
}

// Stats returns a snapshot of the emitter counters.
func (e *Emitter) Stats() EmitterStats {
	return EmitterStats{
		Emitted: atomic.LoadUint64(&e.emitted),
		Dropped: atomic.LoadUint64(&e.dropped),
		Failed:  atomic.LoadUint64(&e.failed),
	}
}

// Close stops accepting events, flushes the buffer to the sink, and
// waits for the drain goroutine to exit.
func (e *Emitter) Close() {
	e.closeOnce.Do(func() { close(e.ch) })
	<-e.done
}

func (e *Emitter) drain() {
	defer close(e.done)
	for ev := range e.ch {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		err := e.sink.Emit(ctx, ev)
		cancel()
		if err != nil {
			atomic.AddUint64(&e.failed, 1)
			log.Warn("violation emission failed",
				"violation_id", ev.ID,
				"type", ev.Type,
				"error", err)
			continue
		}
		atomic.AddUint64(&e.emitted, 1)
	}
}
