package recognition

import (
	"context"
	"time"

	"github.com/lexiqai/cuecam/internal/audio"
	"github.com/lexiqai/cuecam/internal/resilience"
)

// SilenceConfig configures the no-speech watchdog
type SilenceConfig struct {
	Timeout time.Duration
	VAD     *audio.VADConfig
	Clock   resilience.Clock
}

// silenceEngine ends sessions with ErrNoSpeech when the speaker stays quiet.
// Cloud engines keep a silent stream open for a long time, while the listener
// expects a prompt "no speech" so it can restart with a fresh session.
type silenceEngine struct {
	Engine
	cfg SilenceConfig
}

// WithSilenceTimeout wraps engine with a watchdog that fails a session with
// ErrNoSpeech when neither voice activity nor a transcript change is observed
// for cfg.Timeout. A zero timeout returns engine unchanged.
func WithSilenceTimeout(engine Engine, cfg SilenceConfig) Engine {
	if cfg.Timeout <= 0 {
		return engine
	}
	if cfg.Clock == nil {
		cfg.Clock = resilience.SystemClock{}
	}
	return &silenceEngine{Engine: engine, cfg: cfg}
}

func (e *silenceEngine) Begin(ctx context.Context, frames <-chan audio.Frame) (Session, error) {
	forwarded := make(chan audio.Frame, cap(frames))
	activity := make(chan struct{}, 1)
	stopForward := make(chan struct{})

	go forwardFrames(frames, forwarded, activity, stopForward, audio.NewVADDetector(e.cfg.VAD))

	inner, err := e.Engine.Begin(ctx, forwarded)
	if err != nil {
		close(stopForward)
		return nil, err
	}

	s := &silenceSession{inner: inner}
	s.stream = newStream(func() {
		inner.Cancel()
		close(stopForward)
	})
	s.stream.id = inner.ID()
	go s.watch(e.cfg, activity)
	return s, nil
}

func forwardFrames(in <-chan audio.Frame, out chan<- audio.Frame, activity chan<- struct{}, stop <-chan struct{}, vad *audio.VADDetector) {
	defer close(out)

	for {
		select {
		case <-stop:
			return
		case frame, ok := <-in:
			if !ok {
				return
			}
			if vad.Process(frame).Speaking {
				select {
				case activity <- struct{}{}:
				default:
				}
			}
			select {
			case out <- frame:
			case <-stop:
				return
			}
		}
	}
}

type silenceSession struct {
	*stream
	inner Session
}

func (s *silenceSession) Ready() <-chan struct{} {
	return s.inner.Ready()
}

func (s *silenceSession) watch(cfg SilenceConfig, activity <-chan struct{}) {
	timer := cfg.Clock.NewTimer(cfg.Timeout)
	defer func() { timer.Stop() }()

	rearm := func() {
		timer.Stop()
		timer = cfg.Clock.NewTimer(cfg.Timeout)
	}

	last := ""
	for {
		select {
		case <-s.done:
			s.finish(nil)
			return

		case r, ok := <-s.inner.Results():
			if !ok {
				s.finish(nil)
				return
			}
			if r.Err != nil {
				s.finish(r.Err)
				return
			}
			if r.Transcript != last {
				last = r.Transcript
				rearm()
			}
			s.emit(r)

		case <-activity:
			rearm()

		case <-timer.C():
			s.inner.Cancel()
			s.finish(ErrNoSpeech)
			return
		}
	}
}
