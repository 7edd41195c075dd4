package recognition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/lexiqai/cuecam/internal/audio"
	"github.com/lexiqai/cuecam/internal/resilience"
)

// GoogleConfig configures the Google Cloud Speech streaming engine. Credentials
// come from Application Default Credentials.
type GoogleConfig struct {
	Language string
	Format   audio.Format
	// SpeechStartTimeout asks the service to end a session with no speech
	// after this long. Zero leaves it to the service default.
	SpeechStartTimeout time.Duration
	Breaker            *resilience.CircuitBreaker
	Logger             zerolog.Logger
}

// GoogleEngine streams audio to Google Cloud Speech-to-Text
type GoogleEngine struct {
	cfg     GoogleConfig
	client  *speech.Client
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

// NewGoogleEngine creates the speech client
func NewGoogleEngine(ctx context.Context, cfg GoogleConfig) (*GoogleEngine, error) {
	if cfg.Format.SampleRate == 0 {
		cfg.Format = audio.DefaultFormat()
	}
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Speech client: %w", err)
	}
	return &GoogleEngine{
		cfg:     cfg,
		client:  client,
		breaker: cfg.Breaker,
		logger:  cfg.Logger.With().Str("engine", "google").Logger(),
	}, nil
}

// Name identifies the engine
func (g *GoogleEngine) Name() string { return "google" }

// Healthy reports false while the circuit breaker is open
func (g *GoogleEngine) Healthy(context.Context) (bool, error) {
	if g.breaker != nil && g.breaker.GetState() == resilience.StateOpen {
		return false, resilience.ErrCircuitOpen
	}
	return true, nil
}

// Close releases the speech client
func (g *GoogleEngine) Close() error {
	return g.client.Close()
}

type googleSession struct {
	*stream
	logger      zerolog.Logger
	interrupted atomic.Bool
}

// Begin opens a streaming recognize call and sends the stream configuration
func (g *GoogleEngine) Begin(ctx context.Context, frames <-chan audio.Frame) (Session, error) {
	if g.breaker != nil {
		if err := g.breaker.Allow(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
	}
	record := func(success bool) {
		if g.breaker != nil {
			g.breaker.RecordResult(success)
		}
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, sessCancel)
	defer stop()

	rpc, err := g.client.StreamingRecognize(sessCtx)
	if err != nil {
		sessCancel()
		err = classifyGRPC(err)
		record(Classify(err) != KindSetup)
		return nil, err
	}

	err = rpc.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: g.streamingConfig(),
		},
	})
	if err != nil {
		sessCancel()
		err = classifyGRPC(err)
		record(Classify(err) != KindSetup)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		sessCancel()
		return nil, err
	}
	record(true)

	s := &googleSession{}
	s.stream = newStream(sessCancel)
	s.logger = g.logger.With().Str("stream_id", s.ID()).Logger()
	s.markReady()

	go s.send(rpc, frames)
	go s.receive(rpc)

	s.logger.Info().Str("language", g.cfg.Language).Msg("Google streaming session started")
	return s, nil
}

func (g *GoogleEngine) streamingConfig() *speechpb.StreamingRecognitionConfig {
	cfg := &speechpb.StreamingRecognitionConfig{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: int32(g.cfg.Format.SampleRate),
			LanguageCode:    g.cfg.Language,
		},
		InterimResults: true,
	}
	if g.cfg.SpeechStartTimeout > 0 {
		cfg.EnableVoiceActivityEvents = true
		cfg.VoiceActivityTimeout = &speechpb.StreamingRecognitionConfig_VoiceActivityTimeout{
			SpeechStartTimeout: durationpb.New(g.cfg.SpeechStartTimeout),
		}
	}
	return cfg
}

func (s *googleSession) send(rpc speechpb.Speech_StreamingRecognizeClient, frames <-chan audio.Frame) {
	for {
		select {
		case <-s.done:
			return
		case frame, ok := <-frames:
			if !ok {
				s.interrupted.Store(true)
				if err := rpc.CloseSend(); err != nil {
					s.logger.Debug().Err(err).Msg("CloseSend failed")
				}
				return
			}
			err := rpc.Send(&speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
					AudioContent: frame.Data,
				},
			})
			if err != nil {
				// The receive side reports the stream error
				return
			}
		}
	}
}

func (s *googleSession) receive(rpc speechpb.Speech_StreamingRecognizeClient) {
	var transcript Transcript
	last := ""

	for {
		resp, err := rpc.Recv()
		if err == io.EOF {
			if s.interrupted.Load() {
				s.finish(ErrAudioInterrupted)
			} else {
				s.finish(nil)
			}
			return
		}
		if err != nil {
			if s.cancelled() {
				s.finish(nil)
				return
			}
			s.finish(classifyGRPC(err))
			return
		}
		if st := resp.GetError(); st != nil && codes.Code(st.GetCode()) != codes.OK {
			s.finish(classifyGRPC(status.Error(codes.Code(st.GetCode()), st.GetMessage())))
			return
		}
		if resp.GetSpeechEventType() == speechpb.StreamingRecognizeResponse_SPEECH_ACTIVITY_TIMEOUT {
			s.finish(ErrNoSpeech)
			return
		}

		var interim []string
		final := false
		for _, result := range resp.GetResults() {
			alts := result.GetAlternatives()
			if len(alts) == 0 {
				continue
			}
			if result.GetIsFinal() {
				transcript.Commit(alts[0].GetTranscript())
				final = true
			} else {
				interim = append(interim, strings.TrimSpace(alts[0].GetTranscript()))
			}
		}
		text := transcript.SetInterim(strings.Join(interim, " "))
		if text == "" || text == last {
			continue
		}
		last = text
		s.emit(Result{Transcript: text, IsFinal: final && len(interim) == 0})
	}
}

// classifyGRPC maps gRPC status codes from the speech API onto the recognition
// taxonomy. Reaching the maximum stream duration is a clean end.
func classifyGRPC(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("%w: %s", ErrNotAuthorized, st.Message())
	case codes.Unavailable, codes.ResourceExhausted:
		return fmt.Errorf("%w: %s", ErrEngineUnavailable, st.Message())
	case codes.OutOfRange:
		if strings.Contains(strings.ToLower(st.Message()), "maximum allowed stream duration") {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrNoSpeech, st.Message())
	case codes.Canceled:
		return context.Canceled
	}
	return fmt.Errorf("speech recognition failed: %s", st.Message())
}
