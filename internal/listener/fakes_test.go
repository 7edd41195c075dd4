package listener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/cuecam/internal/audio"
	"github.com/lexiqai/cuecam/internal/command"
	"github.com/lexiqai/cuecam/internal/recognition"
	"github.com/lexiqai/cuecam/internal/resilience"
)

const waitTimeout = 2 * time.Second

// fakeDevice records resource calls and tracks whether a tap is installed
type fakeDevice struct {
	mu sync.Mutex

	activated   bool
	tapOpen     bool
	frames      chan audio.Frame
	activations int
	taps        int
	closes      int

	activateErr error
	closeErr    error
}

func (d *fakeDevice) Activate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activations++
	if d.activateErr != nil {
		return d.activateErr
	}
	d.activated = true
	return nil
}

func (d *fakeDevice) Deactivate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activated = false
	return nil
}

func (d *fakeDevice) OpenTap(ctx context.Context) (<-chan audio.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.activated {
		return nil, audio.ErrNotActivated
	}
	if d.tapOpen {
		close(d.frames)
	}
	d.taps++
	d.tapOpen = true
	d.frames = make(chan audio.Frame)
	return d.frames, nil
}

func (d *fakeDevice) CloseTap() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	if d.tapOpen {
		close(d.frames)
		d.tapOpen = false
	}
	return d.closeErr
}

func (d *fakeDevice) Format() audio.Format { return audio.DefaultFormat() }

func (d *fakeDevice) state() (activated, tapOpen bool, taps int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activated, d.tapOpen, d.taps
}

// fakeSession is driven by the test: open it, feed transcripts, fail or end it
type fakeSession struct {
	id      string
	ready   chan struct{}
	results chan recognition.Result
	done    chan struct{}

	readyOnce  sync.Once
	cancelOnce sync.Once
	endOnce    sync.Once
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{
		id:      id,
		ready:   make(chan struct{}),
		results: make(chan recognition.Result),
		done:    make(chan struct{}),
	}
}

func (s *fakeSession) ID() string                         { return s.id }
func (s *fakeSession) Ready() <-chan struct{}             { return s.ready }
func (s *fakeSession) Results() <-chan recognition.Result { return s.results }
func (s *fakeSession) Cancel()                            { s.cancelOnce.Do(func() { close(s.done) }) }

func (s *fakeSession) cancelled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *fakeSession) open() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// send delivers a result unless the session is cancelled first
func (s *fakeSession) send(res recognition.Result) bool {
	select {
	case s.results <- res:
		return true
	case <-s.done:
		return false
	case <-time.After(waitTimeout):
		return false
	}
}

func (s *fakeSession) say(text string) bool {
	return s.send(recognition.Result{Transcript: text})
}

func (s *fakeSession) fail(err error) bool {
	return s.send(recognition.Result{Err: err})
}

func (s *fakeSession) end() {
	s.endOnce.Do(func() { close(s.results) })
}

// fakeEngine hands each new session to the test through a channel
type fakeEngine struct {
	mu       sync.Mutex
	begins   int
	beginErr []error
	block    bool
	ctxs     []context.Context

	sessions chan *fakeSession
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{sessions: make(chan *fakeSession, 16)}
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Healthy(context.Context) (bool, error) { return true, nil }

func (e *fakeEngine) Begin(ctx context.Context, _ <-chan audio.Frame) (recognition.Session, error) {
	e.mu.Lock()
	e.begins++
	n := e.begins
	e.ctxs = append(e.ctxs, ctx)
	var err error
	if len(e.beginErr) > 0 {
		err = e.beginErr[0]
		e.beginErr = e.beginErr[1:]
	}
	block := e.block
	e.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	s := newFakeSession(string(rune('a' + n - 1)))
	e.sessions <- s
	return s, nil
}

func (e *fakeEngine) beginCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.begins
}

func (e *fakeEngine) lastContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctxs[len(e.ctxs)-1]
}

func (e *fakeEngine) next(t *testing.T) *fakeSession {
	t.Helper()
	select {
	case s := <-e.sessions:
		return s
	case <-time.After(waitTimeout):
		t.Fatal("Timed out waiting for a recognition session")
		return nil
	}
}

// recorder is an Observer that buffers everything it is told
type recorder struct {
	statuses chan Status
	events   chan command.Event
}

func newRecorder() *recorder {
	return &recorder{
		statuses: make(chan Status, 256),
		events:   make(chan command.Event, 64),
	}
}

func (r *recorder) StatusChanged(s Status)  { r.statuses <- s }
func (r *recorder) Command(e command.Event) { r.events <- e }

// waitFor drains statuses until one matches the predicate
func (r *recorder) waitFor(t *testing.T, desc string, match func(Status) bool) Status {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case s := <-r.statuses:
			if match(s) {
				return s
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for status: %s", desc)
			return Status{}
		}
	}
}

func (r *recorder) waitState(t *testing.T, state State) Status {
	t.Helper()
	return r.waitFor(t, state.String(), func(s Status) bool { return s.State == state })
}

func (r *recorder) nextEvent(t *testing.T) command.Event {
	t.Helper()
	select {
	case e := <-r.events:
		return e
	case <-time.After(waitTimeout):
		t.Fatal("Timed out waiting for a command")
		return command.Event{}
	}
}

func (r *recorder) expectNoEvent(t *testing.T) {
	t.Helper()
	select {
	case e := <-r.events:
		t.Errorf("Expected no command, got %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

type harness struct {
	listener *Listener
	device   *fakeDevice
	engine   *fakeEngine
	clock    *resilience.ManualClock
	rec      *recorder
}

func testBackoff() resilience.Backoff {
	return resilience.Backoff{
		Initial:     500 * time.Millisecond,
		Max:         4 * time.Second,
		Multiplier:  2,
		MaxAttempts: 3,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		device: &fakeDevice{},
		engine: newFakeEngine(),
		clock:  resilience.NewManualClock(time.Unix(0, 0)),
		rec:    newRecorder(),
	}
	h.listener = New(Deps{
		Device: h.device,
		Engine: h.engine,
		Keywords: StaticKeywords(command.KeywordSet{
			Name:  "action",
			Start: []string{"hey action"},
			Stop:  []string{"hey cut"},
		}),
	}, Options{
		SetupTimeout: 5 * time.Second,
		Backoff:      testBackoff(),
		Clock:        h.clock,
		Logger:       zerolog.Nop(),
	})
	h.listener.Subscribe(h.rec)
	t.Cleanup(h.listener.Close)
	h.rec.waitState(t, Idle)
	return h
}

// listen starts listening and returns the opened session once Listening
func (h *harness) listen(t *testing.T, ctx command.Context) *fakeSession {
	t.Helper()
	h.listener.StartListening(ctx)
	s := h.engine.next(t)
	s.open()
	h.rec.waitState(t, Listening)
	return s
}

// waitTimers waits until the clock has the expected number of armed timers
func (h *harness) waitTimers(t *testing.T, n int) []time.Duration {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for {
		pending := h.clock.PendingTimers()
		if len(pending) == n {
			return pending
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d pending timers, got %v", n, pending)
		}
		time.Sleep(time.Millisecond)
	}
}

var errBoom = errors.New("boom")
