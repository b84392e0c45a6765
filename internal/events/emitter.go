package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Emitter provides non-blocking emission of BusEvents to a Bus.
//
// Emit never blocks callers (drops when the buffer is full); events are
// published from a single worker goroutine so subscriber fan-out happens
// off the producer's path.
type Emitter struct {
	bus  *Bus
	ch   chan BusEvent
	quit chan struct{}
	done chan struct{}

	dropped atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewEmitter creates an emitter for the given bus.
func NewEmitter(bus *Bus, buffer int) *Emitter {
	if buffer < 1 {
		buffer = 256
	}
	return &Emitter{
		bus:  bus,
		ch:   make(chan BusEvent, buffer),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start launches the background publisher loop (idempotent).
func (e *Emitter) Start() {
	e.startOnce.Do(func() {
		go func() {
			defer close(e.done)
			for {
				select {
				case ev := <-e.ch:
					e.bus.Publish(ev)
				case <-e.quit:
					// Deliver what was queued before shutdown.
					for {
						select {
						case ev := <-e.ch:
							e.bus.Publish(ev)
						default:
							return
						}
					}
				}
			}
		}()
	})
}

// Emit enqueues an event for async publish. If the buffer is full, the
// event is dropped. Emit after Close is a no-op.
func (e *Emitter) Emit(ev BusEvent) {
	if ev == nil {
		return
	}
	e.Start()
	select {
	case <-e.quit:
		return
	default:
	}
	select {
	case e.ch <- ev:
	default:
		n := e.dropped.Add(1)
		// Avoid log spam: report the first drop and then every 1000 drops.
		if n == 1 || n%1000 == 0 {
			slog.Default().Debug("event emitter dropped events (buffer full)",
				"dropped", n, "event_type", ev.EventType())
		}
	}
}

// Close delivers queued events and stops the worker goroutine.
func (e *Emitter) Close() {
	e.Start()
	e.stopOnce.Do(func() {
		close(e.quit)
	})
	<-e.done
}

// Dropped returns the number of dropped events.
func (e *Emitter) Dropped() int64 {
	return e.dropped.Load()
}
