package recognition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lexiqai/cuecam/internal/audio"
)

func nextResult(t *testing.T, s Session) (Result, bool) {
	t.Helper()
	select {
	case r, ok := <-s.Results():
		return r, ok
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a result")
	}
	return Result{}, false
}

func TestMockEngine_Script(t *testing.T) {
	engine := NewMockEngine(
		MockStep{Transcript: "please"},
		MockStep{Transcript: "hey action"},
		MockStep{Err: ErrNoSpeech},
	)

	s, err := engine.Begin(context.Background(), nil)
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}

	select {
	case <-s.Ready():
	case <-time.After(time.Second):
		t.Fatal("Expected session to become ready")
	}

	if r, _ := nextResult(t, s); r.Transcript != "please" {
		t.Errorf("Expected %q, got %q", "please", r.Transcript)
	}
	if r, _ := nextResult(t, s); r.Transcript != "please hey action" {
		t.Errorf("Expected cumulative transcript, got %q", r.Transcript)
	}
	if r, _ := nextResult(t, s); !errors.Is(r.Err, ErrNoSpeech) {
		t.Errorf("Expected ErrNoSpeech, got %+v", r)
	}
	if _, ok := nextResult(t, s); ok {
		t.Error("Expected results to be closed after the error")
	}
}

func TestMockEngine_SayAndCancel(t *testing.T) {
	engine := NewMockEngine()
	s, _ := engine.Begin(context.Background(), nil)

	if !engine.Say("hey cut") {
		t.Fatal("Expected Say to reach the active session")
	}
	if r, _ := nextResult(t, s); r.Transcript != "hey cut" {
		t.Errorf("Expected %q, got %q", "hey cut", r.Transcript)
	}

	s.Cancel()
	s.Cancel()
	if r, ok := nextResult(t, s); ok {
		t.Errorf("Expected closed results after cancel, got %+v", r)
	}
	if engine.Say("ignored") {
		t.Error("Expected Say to fail after cancel")
	}
}

func TestMockEngine_FramesClosed(t *testing.T) {
	engine := NewMockEngine()
	frames := make(chan audio.Frame)
	s, _ := engine.Begin(context.Background(), frames)

	close(frames)
	if r, _ := nextResult(t, s); !errors.Is(r.Err, ErrAudioInterrupted) {
		t.Errorf("Expected ErrAudioInterrupted, got %+v", r)
	}
}

func TestMockEngine_FailBegin(t *testing.T) {
	engine := NewMockEngine()
	engine.FailBegin(ErrNotAuthorized)

	if _, err := engine.Begin(context.Background(), nil); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("Expected ErrNotAuthorized, got %v", err)
	}
	engine.FailBegin(nil)
	if _, err := engine.Begin(context.Background(), nil); err != nil {
		t.Errorf("Expected Begin to succeed once cleared, got %v", err)
	}
	if engine.Begins() != 2 {
		t.Errorf("Expected 2 begins, got %d", engine.Begins())
	}
}
