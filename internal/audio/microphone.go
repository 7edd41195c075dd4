package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"
)

// MicrophoneConfig configures the local capture device
type MicrophoneConfig struct {
	Format     Format
	BufferSize int // ring buffer size in bytes between the capture callback and the frame pump
	Logger     zerolog.Logger
}

// Microphone captures mono 16-bit PCM from the default input through miniaudio
type Microphone struct {
	cfg    MicrophoneConfig
	logger zerolog.Logger

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	tap    *tap
}

// NewMicrophone creates a microphone. No hardware is touched until Activate.
func NewMicrophone(cfg MicrophoneConfig) *Microphone {
	if cfg.Format.SampleRate == 0 {
		cfg.Format = DefaultFormat()
	}
	return &Microphone{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("device", "microphone").Logger(),
	}
}

// Format returns the PCM format frames are delivered in
func (m *Microphone) Format() Format {
	return m.cfg.Format
}

// Activate initializes the audio backend context
func (m *Microphone) Activate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx != nil {
		return nil
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize audio context: %w", err)
	}
	m.ctx = ctx
	m.logger.Debug().Msg("Audio context initialized")
	return nil
}

// Deactivate closes any open tap and releases the audio backend
func (m *Microphone) Deactivate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeTapLocked()
	if m.ctx == nil {
		return nil
	}
	m.ctx.Uninit()
	m.ctx.Free()
	m.ctx = nil
	m.logger.Debug().Msg("Audio context released")
	return nil
}

// OpenTap starts capturing. An existing tap is removed first, since the backend
// allows only one capture device per input.
func (m *Microphone) OpenTap(ctx context.Context) (<-chan Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.removeTapLocked() == nil {
		m.logger.Debug().Msg("Removed stale tap before installing a new one")
	}
	if m.ctx == nil {
		return nil, ErrNotActivated
	}

	t := newTap("microphone", m.cfg.Format, m.cfg.BufferSize)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(m.cfg.Format.SampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			t.write(input)
		},
		// Invoked when the backend stops the device on its own, e.g. the input
		// route changed or the device disappeared.
		Stop: func() {
			t.interrupt()
		},
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		t.close()
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		t.close()
		return nil, fmt.Errorf("failed to start capture device: %w", err)
	}

	m.device = device
	m.tap = t
	m.logger.Info().Int("sample_rate", m.cfg.Format.SampleRate).Msg("Capture started")
	return t.frames, nil
}

// CloseTap stops capturing. Closing when no tap is installed is a no-op.
func (m *Microphone) CloseTap() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.removeTapLocked() == nil {
		m.logger.Info().Msg("Capture stopped")
	}
	return nil
}

func (m *Microphone) removeTapLocked() error {
	if m.tap == nil {
		return ErrTapNotInstalled
	}
	if m.device != nil {
		m.device.Stop()
		m.device.Uninit()
		m.device = nil
	}
	m.tap.close()
	m.tap = nil
	return nil
}
