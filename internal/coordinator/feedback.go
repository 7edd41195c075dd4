package coordinator

import (
	"io"
	"sync"
)

// Cue is an audible or haptic acknowledgement
type Cue string

const (
	CueReady   Cue = "ready"
	CueCommand Cue = "command"
	CueFailed  Cue = "failed"
)

// Feedback plays cues. Implementations must not block for long; they are
// called on the listener's observer goroutine.
type Feedback interface {
	Cue(Cue)
}

// NopFeedback plays nothing
type NopFeedback struct{}

func (NopFeedback) Cue(Cue) {}

// BellFeedback rings the terminal bell: once when a command is taken, twice on
// failure. Readiness is silent.
type BellFeedback struct {
	mu  sync.Mutex
	out io.Writer
}

// NewBellFeedback writes bell characters to out
func NewBellFeedback(out io.Writer) *BellFeedback {
	return &BellFeedback{out: out}
}

func (b *BellFeedback) Cue(cue Cue) {
	var bell string
	switch cue {
	case CueCommand:
		bell = "\a"
	case CueFailed:
		bell = "\a\a"
	default:
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	_, _ = io.WriteString(b.out, bell)
}
