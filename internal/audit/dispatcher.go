package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Overflow decides what Emit does when the buffer is full.
type Overflow string

const (
	// OverflowDropOldest evicts the oldest buffered event so the most recent
	// transitions, such as a final logout, survive a burst.
	OverflowDropOldest Overflow = "drop_oldest"
	// OverflowDropNewest discards the event being emitted.
	OverflowDropNewest Overflow = "drop_newest"
	// OverflowBlock waits for space until ctx is done.
	OverflowBlock Overflow = "block"
)

// Valid reports whether o is a known policy.
func (o Overflow) Valid() bool {
	switch o {
	case OverflowDropOldest, OverflowDropNewest, OverflowBlock:
		return true
	}
	return false
}

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	Overflow   Overflow
}

// Dispatcher forwards session events to a sink on its own goroutine.
// Emit stamps the event and enqueues it; only OverflowBlock can make the
// caller wait.
type Dispatcher struct {
	cfg  Config
	sink Sink
	now  func() time.Time

	queue chan Event
	stop  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once

	closed    atomic.Bool
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewDispatcher returns nil when auditing is disabled; a nil *Dispatcher is
// safe to use.
func NewDispatcher(cfg Config, sink Sink, now func() time.Time) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if !cfg.Overflow.Valid() {
		cfg.Overflow = OverflowDropOldest
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if now == nil {
		now = time.Now
	}

	d := &Dispatcher{
		cfg:   cfg,
		sink:  sink,
		now:   now,
		queue: make(chan Event, cfg.BufferSize),
		stop:  make(chan struct{}),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
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
			d.deliver(ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	d.sink.Emit(context.Background(), ev)
	d.delivered.Add(1)
}

// Emit enqueues event, stamping Timestamp when it is zero.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.now()
	}

	select {
	case d.queue <- event:
		return
	default:
	}

	switch d.cfg.Overflow {
	case OverflowBlock:
		if ctx == nil {
			ctx = context.Background()
		}
		select {
		case d.queue <- event:
		case <-ctx.Done():
			d.dropped.Add(1)
		case <-d.stop:
		}
	case OverflowDropNewest:
		d.dropped.Add(1)
	default:
		select {
		case <-d.queue:
			d.dropped.Add(1)
		default:
		}
		select {
		case d.queue <- event:
		default:
			// Another emitter took the freed slot.
			d.dropped.Add(1)
		}
	}
}

// Close delivers what is buffered and waits for the worker to exit.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.wg.Wait()
	})
}

// Dropped counts events lost to a full buffer.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered counts events handed to the sink.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
