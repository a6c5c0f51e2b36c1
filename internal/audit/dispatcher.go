package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Overflow selects what Emit does when the queue is full.
type Overflow uint8

const (
	// Wait blocks the caller until the queue has room or its context ends.
	Wait Overflow = iota
	// Drop discards the event and counts it.
	Drop
)

// Options sizes the dispatcher queue.
type Options struct {
	Queue    int
	Overflow Overflow
}

// Dispatcher hands events to a single background goroutine that calls the
// sink in order. A nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	sink     Sink
	overflow Overflow
	queue    chan Event
	stop     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
	dropped  atomic.Uint64
}

// Start launches the delivery goroutine.
func Start(opts Options, sink Sink) *Dispatcher {
	if opts.Queue < 1 {
		opts.Queue = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &Dispatcher{
		sink:     sink,
		overflow: opts.Overflow,
		queue:    make(chan Event, opts.Queue),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go d.deliver()
	return d
}

func (d *Dispatcher) deliver() {
	defer close(d.finished)
	bg := context.Background()
	for {
		select {
		case ev := <-d.queue:
			d.sink.Emit(bg, ev)
			continue
		case <-d.stop:
		}
		// stopped: flush whatever is still buffered
		for len(d.queue) > 0 {
			d.sink.Emit(bg, <-d.queue)
		}
		return
	}
}

func (d *Dispatcher) stopped() bool {
	select {
	case <-d.stop:
		return true
	default:
		return false
	}
}

// Emit enqueues ev according to the overflow mode.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.stopped() {
		return
	}
	if d.overflow == Drop {
		select {
		case d.queue <- ev:
		default:
			d.dropped.Add(1)
		}
		return
	}

	var cancelled <-chan struct{}
	if ctx != nil {
		cancelled = ctx.Done()
	}
	select {
	case d.queue <- ev:
	case <-cancelled:
	case <-d.stop:
	}
}

// Close stops intake, flushes the queue and waits for the sink to finish.
// Safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.finished
}

// Dropped counts events discarded under Drop.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
