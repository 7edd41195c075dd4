package listener

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/cuecam/internal/command"
)

// Observer receives status changes and commands. Calls are made in order on a
// single goroutine, never on the caller's goroutine, so an observer may call
// back into the Listener. Observers share that goroutine, so a slow callback
// delays every later notification; long work belongs on the observer's own goroutine.
type Observer interface {
	StatusChanged(Status)
	Command(command.Event)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnStatus  func(Status)
	OnCommand func(command.Event)
}

func (f ObserverFuncs) StatusChanged(s Status) {
	if f.OnStatus != nil {
		f.OnStatus(s)
	}
}

func (f ObserverFuncs) Command(e command.Event) {
	if f.OnCommand != nil {
		f.OnCommand(e)
	}
}

// dispatcher runs queued callbacks in FIFO order on its own goroutine. The
// queue is unbounded so posting never blocks the event loop.
type dispatcher struct {
	logger zerolog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

func newDispatcher(logger zerolog.Logger) *dispatcher {
	d := &dispatcher{logger: logger, done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *dispatcher) post(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, fn)
	d.cond.Signal()
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.invoke(fn)
	}
}

func (d *dispatcher) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Msg("Observer panicked")
		}
	}()
	fn()
}

// close delivers everything already queued, then stops
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	<-d.done
}
