package audio

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// PushConfig configures a PushDevice
type PushConfig struct {
	Format     Format
	Encoding   Encoding
	BufferSize int
	Logger     zerolog.Logger
}

// PushDevice is an audio input fed by a remote client instead of local
// hardware. Bytes pushed while no tap is installed are discarded.
type PushDevice struct {
	cfg    PushConfig
	logger zerolog.Logger

	mu     sync.Mutex
	active bool
	tap    *tap
}

// NewPushDevice creates a push-fed device
func NewPushDevice(cfg PushConfig) *PushDevice {
	if cfg.Format.SampleRate == 0 {
		cfg.Format = DefaultFormat()
	}
	if cfg.Encoding == "" {
		cfg.Encoding = Linear16
	}
	return &PushDevice{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("device", "push").Logger(),
	}
}

// Format returns the PCM format frames are delivered in
func (d *PushDevice) Format() Format {
	return d.cfg.Format
}

// Activate marks the input as in use
func (d *PushDevice) Activate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = true
	return nil
}

// Deactivate releases the input, closing any tap still installed
func (d *PushDevice) Deactivate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeTapLocked()
	d.active = false
	return nil
}

// OpenTap installs a fresh tap, replacing any existing one
func (d *PushDevice) OpenTap(ctx context.Context) (<-chan Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.removeTapLocked() == nil {
		d.logger.Debug().Msg("Replaced existing tap")
	}
	if !d.active {
		return nil, ErrNotActivated
	}

	d.tap = newTap("remote", d.cfg.Format, d.cfg.BufferSize)
	return d.tap.frames, nil
}

// CloseTap removes the tap. Closing when none is installed is a no-op.
func (d *PushDevice) CloseTap() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeTapLocked()
	return nil
}

// Push feeds encoded audio into the installed tap. It reports false when no tap
// is installed and the audio was dropped.
func (d *PushDevice) Push(data []byte) bool {
	if d.cfg.Encoding == Mulaw {
		data = DecodeMulaw(data)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tap == nil {
		return false
	}
	d.tap.write(data)
	return true
}

func (d *PushDevice) removeTapLocked() error {
	if d.tap == nil {
		return ErrTapNotInstalled
	}
	d.tap.close()
	d.tap = nil
	return nil
}
