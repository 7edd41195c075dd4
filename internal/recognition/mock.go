package recognition

import (
	"context"
	"sync"
	"time"

	"github.com/lexiqai/cuecam/internal/audio"
)

// MockStep is one scripted event of a mock session
type MockStep struct {
	After      time.Duration
	Transcript string // appended to the cumulative transcript as a final segment
	Err        error  // ends the session with this error
	End        bool   // ends the session cleanly
}

// MockEngine is a recognition engine that plays a script and then transcribes
// whatever is passed to Say. It needs no network or credentials.
type MockEngine struct {
	script []MockStep

	mu       sync.Mutex
	beginErr error
	begins   int
	current  *mockSession
}

// NewMockEngine creates a mock engine replaying script on every session
func NewMockEngine(script ...MockStep) *MockEngine {
	return &MockEngine{script: script}
}

// Name identifies the engine
func (m *MockEngine) Name() string { return "mock" }

// Healthy always reports true
func (m *MockEngine) Healthy(context.Context) (bool, error) { return true, nil }

// FailBegin makes subsequent Begin calls return err until cleared with nil
func (m *MockEngine) FailBegin(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beginErr = err
}

// Begins returns how many sessions were requested
func (m *MockEngine) Begins() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.begins
}

// Say feeds an utterance to the active session. It reports false when no
// session is listening.
func (m *MockEngine) Say(text string) bool {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()

	if s == nil {
		return false
	}
	select {
	case s.feed <- text:
		return true
	case <-s.Done():
		return false
	}
}

// Begin starts a scripted session
func (m *MockEngine) Begin(ctx context.Context, frames <-chan audio.Frame) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.begins++
	if m.beginErr != nil {
		return nil, m.beginErr
	}

	s := &mockSession{feed: make(chan string)}
	s.stream = newStream(nil)
	m.current = s
	go s.run(m.script, frames)
	return s, nil
}

type mockSession struct {
	*stream
	feed       chan string
	transcript Transcript
}

func (s *mockSession) run(script []MockStep, frames <-chan audio.Frame) {
	s.markReady()

	for _, step := range script {
		if step.After > 0 {
			timer := time.NewTimer(step.After)
			select {
			case <-timer.C:
			case <-s.done:
				timer.Stop()
				s.finish(nil)
				return
			}
		}
		switch {
		case step.Err != nil:
			s.finish(step.Err)
			return
		case step.End:
			s.finish(nil)
			return
		case step.Transcript != "":
			s.emit(Result{Transcript: s.transcript.Commit(step.Transcript), IsFinal: true})
		}
	}

	for {
		select {
		case <-s.done:
			s.finish(nil)
			return
		case text := <-s.feed:
			s.emit(Result{Transcript: s.transcript.Commit(text), IsFinal: true})
		case _, ok := <-frames:
			if !ok {
				s.finish(ErrAudioInterrupted)
				return
			}
		}
	}
}
