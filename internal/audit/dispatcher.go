package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls how auth events are queued for the sink.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events when the queue is full instead of making
	// the emitting request wait for space.
	DropIfFull bool
	// OnDrop is called on the emitting goroutine for every discarded event.
	// The engine counts these in its metrics.
	OnDrop func(Event)
}

// Dispatcher hands auth events to a sink from a single background goroutine.
// Events still queued at Close are delivered before Close returns; events
// emitted after Close are ignored.
type Dispatcher struct {
	sink   Sink
	queue  chan Event
	stop   chan struct{}
	onDrop func(Event)
	drop   bool

	closed    atomic.Bool
	closeOnce sync.Once
	worker    sync.WaitGroup
}

// NewDispatcher starts a dispatcher for sink. It returns nil when cfg is not
// enabled; a nil Dispatcher accepts and discards every call.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	onDrop := cfg.OnDrop
	if onDrop == nil {
		onDrop = func(Event) {}
	}

	d := &Dispatcher{
		sink:   sink,
		queue:  make(chan Event, size),
		stop:   make(chan struct{}),
		onDrop: onDrop,
		drop:   cfg.DropIfFull,
	}
	d.worker.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer d.worker.Done()
	for {
		select {
		case ev := <-d.queue:
			d.forward(ev)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.forward(ev)
		default:
			return
		}
	}
}

// forward runs detached from the request that produced ev, which has
// usually finished by now.
func (d *Dispatcher) forward(ev Event) {
	d.sink.Emit(context.Background(), ev)
}

// Emit queues ev. With DropIfFull it never blocks and reports a full queue
// through OnDrop; otherwise it waits for space, ctx cancellation or Close.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.drop {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			d.onDrop(ev)
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close stops accepting events and waits until the queue is delivered.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.worker.Wait()
	})
}
