package recognition

import (
	"sync"

	"github.com/google/uuid"
)

const resultBuffer = 32

// stream carries the channel plumbing shared by every Session implementation.
// Results may be emitted from several goroutines; all sends and the final close
// are serialized by mu.
type stream struct {
	id      string
	ready   chan struct{}
	results chan Result
	done    chan struct{}

	readyOnce  sync.Once
	cancelOnce sync.Once
	onCancel   func()

	mu       sync.Mutex
	finished bool
}

func newStream(onCancel func()) *stream {
	return &stream{
		id:       uuid.New().String(),
		ready:    make(chan struct{}),
		results:  make(chan Result, resultBuffer),
		done:     make(chan struct{}),
		onCancel: onCancel,
	}
}

func (s *stream) ID() string             { return s.id }
func (s *stream) Ready() <-chan struct{} { return s.ready }
func (s *stream) Results() <-chan Result { return s.results }
func (s *stream) Done() <-chan struct{}  { return s.done }
func (s *stream) markReady()             { s.readyOnce.Do(func() { close(s.ready) }) }

func (s *stream) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.done)
		if s.onCancel != nil {
			s.onCancel()
		}
	})
}

func (s *stream) cancelled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// emit delivers a transcript update. It reports false once the session has
// finished or been cancelled.
func (s *stream) emit(r Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return false
	}
	select {
	case s.results <- r:
		return true
	case <-s.done:
		return false
	}
}

// finish ends the session, delivering err first unless the session was
// cancelled. Only the first call has any effect.
func (s *stream) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return
	}
	s.finished = true
	if err != nil {
		select {
		case s.results <- Result{Err: err}:
		case <-s.done:
		}
	}
	close(s.results)
}
