package recognition

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSpeech means the engine heard nothing it could transcribe
	ErrNoSpeech = errors.New("no speech detected")

	// ErrNotAuthorized means microphone or speech recognition access was denied
	ErrNotAuthorized = errors.New("speech recognition not authorized")

	// ErrEngineUnavailable means the engine cannot serve a session right now
	ErrEngineUnavailable = errors.New("speech recognition engine unavailable")

	// ErrAudioInterrupted means the audio input stopped delivering frames
	ErrAudioInterrupted = errors.New("audio input interrupted")
)

// SetupError wraps a failure while acquiring audio or opening a session
type SetupError struct {
	Stage string // "activate", "tap", "begin" or "timeout"
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup failed at %s: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// Kind is the retry class of an error
type Kind int

const (
	KindNone Kind = iota
	KindSetup
	KindNoSpeech
	KindAuthorization
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindSetup:
		return "setup"
	case KindNoSpeech:
		return "no_speech"
	case KindAuthorization:
		return "authorization"
	}
	return "other"
}

// Recoverable reports whether errors of this kind are retried automatically
func (k Kind) Recoverable() bool {
	return k != KindAuthorization
}

// Classify maps an error onto the retry taxonomy. Authorization wins over
// everything, even when it surfaces during setup.
func Classify(err error) Kind {
	var setupErr *SetupError
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotAuthorized):
		return KindAuthorization
	case errors.Is(err, ErrNoSpeech):
		return KindNoSpeech
	case errors.As(err, &setupErr), errors.Is(err, ErrEngineUnavailable):
		return KindSetup
	}
	return KindOther
}

// ErrorRecord is the user-facing form of a failure
type ErrorRecord struct {
	Message     string
	Recoverable bool
	Kind        Kind
}

// Record builds the ErrorRecord for err
func Record(err error) ErrorRecord {
	kind := Classify(err)
	rec := ErrorRecord{Kind: kind, Recoverable: kind.Recoverable()}

	switch kind {
	case KindNone:
		return ErrorRecord{}
	case KindAuthorization:
		rec.Message = "Speech recognition is not authorized. Allow microphone and speech access in system settings."
	case KindNoSpeech:
		rec.Message = "No speech detected"
	case KindSetup:
		rec.Message = "Could not start listening: " + err.Error()
	default:
		rec.Message = err.Error()
	}
	return rec
}
