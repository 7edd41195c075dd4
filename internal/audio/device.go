package audio

import (
	"context"
	"errors"
)

var (
	// ErrTapNotInstalled is returned internally when a tap is removed twice
	ErrTapNotInstalled = errors.New("audio tap not installed")
	// ErrNotActivated is returned by OpenTap before Activate
	ErrNotActivated = errors.New("audio device not activated")
)

// Device is the audio input seen by the listener. Activate and Deactivate bracket
// exclusive use of the input. OpenTap installs the single frame tap, removing
// any previous one first. The returned channel is closed when the tap is closed
// or the input is interrupted (route change, device unplugged).
type Device interface {
	Activate() error
	Deactivate() error
	OpenTap(ctx context.Context) (<-chan Frame, error)
	CloseTap() error
	Format() Format
}
