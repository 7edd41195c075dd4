package recognition

import (
	"context"

	"github.com/lexiqai/cuecam/internal/audio"
)

// Result is one update from a recognition session. Transcript is cumulative for
// the whole session, not a delta. A non-nil Err is always the last result.
type Result struct {
	Transcript string
	IsFinal    bool
	Err        error
}

// Engine starts streaming recognition sessions over captured audio
type Engine interface {
	// Name identifies the engine in logs and metrics
	Name() string

	// Begin opens a session that consumes frames until it is cancelled, the
	// engine ends the stream or frames is closed. ctx bounds setup only.
	Begin(ctx context.Context, frames <-chan audio.Frame) (Session, error)

	// Healthy reports whether the engine can currently accept sessions
	Healthy(ctx context.Context) (bool, error)
}

// Session is one contiguous recognition stream
type Session interface {
	ID() string

	// Ready is closed once the engine confirms the stream is open
	Ready() <-chan struct{}

	// Results is closed when the session ends. A clean end (no error result)
	// means the engine finished the stream and the caller should begin again.
	Results() <-chan Result

	// Cancel stops the session. Safe to call repeatedly and from any goroutine;
	// after Cancel no error result is delivered.
	Cancel()
}
