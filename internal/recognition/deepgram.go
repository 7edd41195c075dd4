package recognition

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/cuecam/internal/audio"
	"github.com/lexiqai/cuecam/internal/resilience"
)

// DeepgramConfig configures the Deepgram live transcription engine
type DeepgramConfig struct {
	APIKey   string
	Model    string
	Language string
	Format   audio.Format
	Breaker  *resilience.CircuitBreaker
	Logger   zerolog.Logger
}

// DeepgramEngine streams audio to Deepgram's live transcription websocket
type DeepgramEngine struct {
	cfg     DeepgramConfig
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

// NewDeepgramEngine creates the engine. No connection is made until Begin.
func NewDeepgramEngine(cfg DeepgramConfig) *DeepgramEngine {
	if cfg.Format.SampleRate == 0 {
		cfg.Format = audio.DefaultFormat()
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("deepgram", 5, 30*time.Second)
	}
	return &DeepgramEngine{
		cfg:     cfg,
		breaker: breaker,
		logger:  cfg.Logger.With().Str("engine", "deepgram").Logger(),
	}
}

// Name identifies the engine
func (d *DeepgramEngine) Name() string { return "deepgram" }

// Healthy reports false while the circuit breaker is open
func (d *DeepgramEngine) Healthy(context.Context) (bool, error) {
	if d.cfg.APIKey == "" {
		return false, ErrNotAuthorized
	}
	if d.breaker.GetState() == resilience.StateOpen {
		return false, resilience.ErrCircuitOpen
	}
	return true, nil
}

// messageCallbackHandler implements the LiveMessageCallback interface.
// It embeds the default handler and overrides only the methods we need.
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	session *deepgramSession
}

func (m *messageCallbackHandler) Message(msg *msginterfaces.MessageResponse) error {
	m.session.handleMessage(msg)
	return nil
}

func (m *messageCallbackHandler) Error(er *msginterfaces.ErrorResponse) error {
	m.session.handleError(er)
	return nil
}

func (m *messageCallbackHandler) Close(*msginterfaces.CloseResponse) error {
	m.session.finish(nil)
	return nil
}

type deepgramSession struct {
	*stream
	logger  zerolog.Logger
	breaker *resilience.CircuitBreaker

	mu         sync.Mutex
	transcript Transcript
	client     *listenClient.WSCallback
}

// Begin connects a live transcription websocket and starts streaming frames
func (d *DeepgramEngine) Begin(ctx context.Context, frames <-chan audio.Frame) (Session, error) {
	if d.cfg.APIKey == "" {
		return nil, ErrNotAuthorized
	}
	if err := d.breaker.Allow(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	s := &deepgramSession{breaker: d.breaker}
	s.stream = newStream(func() {
		s.mu.Lock()
		client := s.client
		s.mu.Unlock()
		if client != nil {
			client.Finish()
		}
		sessCancel()
	})
	s.logger = d.logger.With().Str("stream_id", s.ID()).Logger()

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.cfg.Model,
		Language:       d.cfg.Language,
		Punctuate:      true,
		InterimResults: true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     d.cfg.Format.SampleRate,
	}
	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		session:                s,
	}

	client, err := listenClient.NewWSUsingCallback(sessCtx, d.cfg.APIKey, nil, tOptions, callback)
	if err != nil {
		sessCancel()
		d.breaker.RecordResult(false)
		return nil, fmt.Errorf("%w: failed to create Deepgram client: %v", ErrEngineUnavailable, err)
	}
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	connected := make(chan bool, 1)
	go func() { connected <- client.Connect() }()

	select {
	case <-ctx.Done():
		s.Cancel()
		return nil, ctx.Err()
	case ok := <-connected:
		if !ok {
			s.Cancel()
			d.breaker.RecordResult(false)
			return nil, fmt.Errorf("%w: failed to connect to Deepgram", ErrEngineUnavailable)
		}
	}

	d.breaker.RecordResult(true)
	s.markReady()
	go s.pump(client, frames)

	s.logger.Info().Str("model", d.cfg.Model).Str("language", d.cfg.Language).Msg("Deepgram session started")
	return s, nil
}

func (s *deepgramSession) pump(client *listenClient.WSCallback, frames <-chan audio.Frame) {
	for {
		select {
		case <-s.done:
			return
		case frame, ok := <-frames:
			if !ok {
				s.finish(ErrAudioInterrupted)
				return
			}
			if _, err := client.Write(frame.Data); err != nil {
				s.finish(fmt.Errorf("failed to send audio to Deepgram: %w", err))
				return
			}
		}
	}
}

func (s *deepgramSession) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil || len(msg.Channel.Alternatives) == 0 {
		return
	}

	alt := msg.Channel.Alternatives[0]
	s.mu.Lock()
	before := s.transcript.Text()
	text := s.transcript.Update(alt.Transcript, msg.IsFinal)
	s.mu.Unlock()

	if text == "" || text == before {
		return
	}
	s.logger.Debug().Bool("final", msg.IsFinal).Str("transcript", text).Msg("Deepgram transcript")
	s.emit(Result{Transcript: text, IsFinal: msg.IsFinal})
}

func (s *deepgramSession) handleError(er *msginterfaces.ErrorResponse) {
	if er == nil {
		return
	}
	err := classifyDeepgram(er.ErrCode, er.ErrMsg+" "+er.Description)
	if Classify(err) == KindSetup {
		s.breaker.RecordResult(false)
	}
	s.logger.Warn().Str("code", er.ErrCode).Str("message", er.ErrMsg).Msg("Deepgram error")
	s.finish(err)
}

// classifyDeepgram maps Deepgram error codes onto the recognition taxonomy.
// NET-0001 is sent when no audio arrived before the server timeout.
func classifyDeepgram(code, message string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	lower := strings.ToLower(message)

	switch {
	case code == "NET-0001":
		return fmt.Errorf("%w: %s", ErrNoSpeech, strings.TrimSpace(message))
	case code == "INVALID_AUTH", code == "INSUFFICIENT_PERMISSIONS",
		strings.Contains(lower, "401"), strings.Contains(lower, "unauthorized"), strings.Contains(lower, "invalid credentials"):
		return fmt.Errorf("%w: %s", ErrNotAuthorized, strings.TrimSpace(message))
	case strings.HasPrefix(code, "NET-"), strings.Contains(lower, "503"), strings.Contains(lower, "unavailable"):
		return fmt.Errorf("%w: %s %s", ErrEngineUnavailable, code, strings.TrimSpace(message))
	}
	return fmt.Errorf("deepgram error %s: %s", code, strings.TrimSpace(message))
}
