package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/cuecam/internal/command"
	"github.com/lexiqai/cuecam/internal/listener"
	"github.com/lexiqai/cuecam/internal/observability"
)

// Controller is the part of the listener the coordinator drives
type Controller interface {
	StartListening(ctx command.Context)
	StopListening()
	HandleBackground(background bool)
}

// Camera is the capture collaborator commands are dispatched to
type Camera interface {
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
	SaveRecording(ctx context.Context) error
	DiscardRecording(ctx context.Context) error
}

// Config holds coordinator settings
type Config struct {
	// CameraTimeout bounds each call into the Camera
	CameraTimeout time.Duration
	Logger        zerolog.Logger
}

// Coordinator is the camera screen's side of hands-free control. It reacts to
// commands by driving the camera, switches between the camera and save dialog
// grammars, re-arms listening after each command and plays feedback cues on
// status transitions. Camera actions run on the coordinator's own goroutine so
// listener callbacks never wait on the camera.
type Coordinator struct {
	listener Controller
	camera   Camera
	feedback Feedback
	cfg      Config
	logger   zerolog.Logger

	mu         sync.Mutex
	context    command.Context
	recording  bool
	background bool
	lastState  listener.State
	lastError  string
	busy       bool // a camera action is in flight

	actions   chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a coordinator. Call Arm once it is subscribed to the listener.
func New(l Controller, camera Camera, feedback Feedback, cfg Config) *Coordinator {
	if cfg.CameraTimeout <= 0 {
		cfg.CameraTimeout = 5 * time.Second
	}
	if feedback == nil {
		feedback = NopFeedback{}
	}
	c := &Coordinator{
		listener: l,
		camera:   camera,
		feedback: feedback,
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "coordinator").Logger(),
		actions:  make(chan func(), 4),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.run()
	return c
}

// Close stops the camera worker. Queued actions that have not started are dropped.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() { close(c.quit) })
	<-c.done
}

func (c *Coordinator) run() {
	defer close(c.done)
	for {
		select {
		case <-c.quit:
			return
		case fn := <-c.actions:
			fn()
		}
	}
}

func (c *Coordinator) enqueue(fn func()) bool {
	select {
	case c.actions <- fn:
		return true
	case <-c.quit:
		return false
	}
}

// flush waits until every action queued so far has run
func (c *Coordinator) flush() {
	done := make(chan struct{})
	if c.enqueue(func() { close(done) }) {
		select {
		case <-done:
		case <-c.quit:
		}
	}
}

// Arm starts listening in the current context
func (c *Coordinator) Arm() {
	c.mu.Lock()
	ctx, busy := c.context, c.busy
	c.mu.Unlock()

	if !busy {
		c.listener.StartListening(ctx)
	}
}

// Context returns the grammar the camera screen currently expects
func (c *Coordinator) Context() command.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.context
}

// Recording reports whether the camera is recording
func (c *Coordinator) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Background suspends listening while the app has no audio focus
func (c *Coordinator) Background() {
	c.mu.Lock()
	c.background = true
	c.mu.Unlock()

	c.listener.HandleBackground(true)
}

// Foreground lifts the suspension and re-arms the current context. While a
// camera action is in flight the action re-arms when it completes.
func (c *Coordinator) Foreground() {
	c.mu.Lock()
	c.background = false
	ctx, busy := c.context, c.busy
	c.mu.Unlock()

	c.listener.HandleBackground(false)
	if !busy {
		c.listener.StartListening(ctx)
	}
}

// Command acts on a recognized command. It stops listening right away and
// queues the camera action; the next grammar is armed once the action is done.
func (c *Coordinator) Command(e command.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	logger := c.logger.With().
		Str("token", string(e.Token)).
		Str("context", e.Context.String()).
		Uint64("generation", e.Generation).
		Logger()

	if e.Context != c.context {
		logger.Debug().Str("current", c.context.String()).Msg("Ignoring command for another context")
		return
	}
	if c.busy {
		logger.Debug().Msg("Ignoring command, camera action in progress")
		return
	}

	switch e.Token {
	case command.Start:
		if c.recording {
			logger.Debug().Msg("Already recording")
			return
		}
		c.dispatch(logger, "start_recording", c.camera.StartRecording, func(ok bool) command.Context {
			if ok {
				c.recording = true
			}
			return command.Camera
		})

	case command.Stop:
		if !c.recording {
			logger.Debug().Msg("Not recording")
			return
		}
		c.dispatch(logger, "stop_recording", c.camera.StopRecording, func(bool) command.Context {
			c.recording = false
			return command.SaveDialog
		})

	case command.Yes:
		c.dispatch(logger, "save_recording", c.camera.SaveRecording, func(bool) command.Context {
			return command.Camera
		})

	case command.No:
		c.dispatch(logger, "discard_recording", c.camera.DiscardRecording, func(bool) command.Context {
			return command.Camera
		})
	}
}

// dispatch stops listening and hands the camera action to the worker. done runs
// under c.mu with the action's outcome and returns the grammar to arm next.
// Must be called with c.mu held.
func (c *Coordinator) dispatch(logger zerolog.Logger, action string, fn func(context.Context) error, done func(ok bool) command.Context) {
	c.listener.StopListening()
	c.busy = true

	queued := c.enqueue(func() {
		ok := c.call(logger, action, fn)

		c.mu.Lock()
		defer c.mu.Unlock()
		next := done(ok)
		c.busy = false
		c.feedback.Cue(CueCommand)
		c.rearm(next)
	})
	if !queued {
		c.busy = false
	}
}

// StatusChanged plays cues when listening becomes ready or fails
func (c *Coordinator) StatusChanged(s listener.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.lastState
	c.lastState = s.State

	switch {
	case s.State == listener.Listening && prev != listener.Listening:
		c.lastError = ""
		c.feedback.Cue(CueReady)
	case s.State == listener.Erroring && s.Terminal && s.ErrorMessage != c.lastError:
		c.lastError = s.ErrorMessage
		c.logger.Warn().Str("error", s.ErrorMessage).Msg("Hands-free control unavailable")
		c.feedback.Cue(CueFailed)
	}
}

func (c *Coordinator) rearm(ctx command.Context) {
	c.context = ctx
	if c.background {
		return
	}
	c.listener.StartListening(ctx)
}

// call runs one camera action, logging and counting failures
func (c *Coordinator) call(logger zerolog.Logger, action string, fn func(context.Context) error) bool {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CameraTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		observability.RecordError(action, "coordinator")
		logger.Error().Err(err).Str("action", action).Msg("Camera action failed")
		return false
	}
	logger.Info().Str("action", action).Msg("Camera action")
	return true
}
