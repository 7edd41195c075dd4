package coordinator

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrNotRecording is returned when stopping without an active take
	ErrNotRecording = errors.New("camera is not recording")
	// ErrNothingToSave is returned by save or discard without a stopped take
	ErrNothingToSave = errors.New("no recording awaiting a decision")
)

// LogCamera stands in for real capture hardware. It tracks takes by id and
// logs every action.
type LogCamera struct {
	logger zerolog.Logger

	mu      sync.Mutex
	current string
	pending string
	saved   []string
}

// NewLogCamera creates a camera that only logs
func NewLogCamera(logger zerolog.Logger) *LogCamera {
	return &LogCamera{logger: logger.With().Str("component", "camera").Logger()}
}

func (c *LogCamera) StartRecording(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == "" {
		c.current = uuid.New().String()
	}
	c.logger.Info().Str("take", c.current).Msg("Recording started")
	return nil
}

func (c *LogCamera) StopRecording(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == "" {
		return ErrNotRecording
	}
	c.pending, c.current = c.current, ""
	c.logger.Info().Str("take", c.pending).Msg("Recording stopped")
	return nil
}

func (c *LogCamera) SaveRecording(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == "" {
		return ErrNothingToSave
	}
	c.saved = append(c.saved, c.pending)
	c.logger.Info().Str("take", c.pending).Msg("Recording saved")
	c.pending = ""
	return nil
}

func (c *LogCamera) DiscardRecording(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == "" {
		return ErrNothingToSave
	}
	c.logger.Info().Str("take", c.pending).Msg("Recording discarded")
	c.pending = ""
	return nil
}

// Saved lists the ids of saved takes
func (c *LogCamera) Saved() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.saved))
	copy(out, c.saved)
	return out
}
