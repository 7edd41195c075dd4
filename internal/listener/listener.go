package listener

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/cuecam/internal/audio"
	"github.com/lexiqai/cuecam/internal/command"
	"github.com/lexiqai/cuecam/internal/observability"
	"github.com/lexiqai/cuecam/internal/recognition"
	"github.com/lexiqai/cuecam/internal/resilience"
)

// DefaultSetupTimeout bounds the time from a start request to a ready session
const DefaultSetupTimeout = 5 * time.Second

var errStreamClosed = errors.New("recognition stream closed right after it opened")

// Deps are the collaborators a Listener drives
type Deps struct {
	Device   audio.Device
	Engine   recognition.Engine
	Keywords KeywordSource
}

// Options tune retry and setup behavior
type Options struct {
	SetupTimeout time.Duration
	Backoff      resilience.Backoff
	Clock        resilience.Clock
	Logger       zerolog.Logger
}

type requestKind int

const (
	reqStart requestKind = iota
	reqStop
	reqBackground
)

type request struct {
	kind       requestKind
	context    command.Context
	background bool
	done       chan struct{}
}

type setupResult struct {
	generation uint64
	session    recognition.Session
	keywords   command.KeywordSet
	err        error
}

type setupAttempt struct {
	generation uint64
	cancel     context.CancelFunc
	result     chan setupResult
}

type activeSession struct {
	session  recognition.Session
	detector *command.Detector
	ready    bool
}

// Listener owns the listening lifecycle: it acquires the audio device, opens
// recognition sessions, interprets transcripts and retries failures. All state
// lives on one event-loop goroutine; public methods hand requests to it and
// return once they have been applied.
type Listener struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger

	requests  chan request
	closing   chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	statusMu sync.RWMutex
	status   Status

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int
	dispatch  *dispatcher

	// owned by the event loop
	state      State
	context    command.Context
	suspended  bool
	terminal   bool
	errMessage string
	attempt    int
	quickEnds  int
	generation uint64
	sessionID  string
	pending    *setupAttempt
	active     *activeSession
	setupTimer resilience.Timer
	retryTimer resilience.Timer
	metrics    *observability.SessionMetrics

	listeningSince time.Time
}

// New creates a Listener in the Idle state and starts its event loop
func New(deps Deps, opts Options) *Listener {
	if opts.SetupTimeout <= 0 {
		opts.SetupTimeout = DefaultSetupTimeout
	}
	if opts.Backoff.Initial <= 0 {
		opts.Backoff = resilience.DefaultBackoff()
	}
	if opts.Clock == nil {
		opts.Clock = resilience.SystemClock{}
	}
	if deps.Keywords == nil {
		deps.Keywords = StaticKeywords(command.DefaultCatalog().Default())
	}

	l := &Listener{
		deps:      deps,
		opts:      opts,
		logger:    opts.Logger.With().Str("component", "listener").Logger(),
		requests:  make(chan request),
		closing:   make(chan struct{}),
		loopDone:  make(chan struct{}),
		observers: make(map[int]Observer),
	}
	l.dispatch = newDispatcher(l.logger)
	l.status = l.snapshot()

	go l.loop()
	return l
}

// Subscribe registers an observer. It first receives the current status, then
// every change after it. The returned function removes the observer.
func (l *Listener) Subscribe(obs Observer) func() {
	l.obsMu.Lock()
	id := l.nextObs
	l.nextObs++
	l.observers[id] = obs
	l.obsMu.Unlock()

	current := l.Status()
	l.dispatch.post(func() { obs.StatusChanged(current) })

	return func() {
		l.obsMu.Lock()
		delete(l.observers, id)
		l.obsMu.Unlock()
	}
}

// StartListening begins a session for the given context. Ignored while a start
// is already in progress or while suspended; any other state is torn down and
// restarted.
func (l *Listener) StartListening(ctx command.Context) {
	l.do(request{kind: reqStart, context: ctx})
}

// StopListening tears down any session and returns to Idle. Safe to call in
// any state, repeatedly.
func (l *Listener) StopListening() {
	l.do(request{kind: reqStop})
}

// HandleBackground suspends listening when the app leaves the foreground and
// lifts the suspension when it returns. Returning to the foreground does not
// restart listening on its own.
func (l *Listener) HandleBackground(background bool) {
	l.do(request{kind: reqBackground, background: background})
}

// Status returns the last published status
func (l *Listener) Status() Status {
	l.statusMu.RLock()
	defer l.statusMu.RUnlock()
	return l.status
}

// Close stops listening, releases the audio device and waits until every
// queued observer callback has run.
func (l *Listener) Close() {
	l.closeOnce.Do(func() {
		close(l.closing)
		<-l.loopDone
		l.dispatch.close()
	})
}

func (l *Listener) do(req request) {
	req.done = make(chan struct{})
	select {
	case l.requests <- req:
	case <-l.loopDone:
		return
	}
	select {
	case <-req.done:
	case <-l.loopDone:
	}
}

func (l *Listener) loop() {
	defer close(l.loopDone)

	for {
		var (
			setupC   <-chan setupResult
			readyC   <-chan struct{}
			resultsC <-chan recognition.Result
			setupTC  <-chan time.Time
			retryTC  <-chan time.Time
		)
		if l.pending != nil {
			setupC = l.pending.result
		}
		if l.active != nil {
			if !l.active.ready {
				readyC = l.active.session.Ready()
			}
			resultsC = l.active.session.Results()
		}
		if l.setupTimer != nil {
			setupTC = l.setupTimer.C()
		}
		if l.retryTimer != nil {
			retryTC = l.retryTimer.C()
		}

		select {
		case req := <-l.requests:
			l.handle(req)
			close(req.done)

		case res := <-setupC:
			l.onSetupResult(res)

		case <-readyC:
			l.onReady()

		case res, ok := <-resultsC:
			l.onResult(res, ok)

		case <-setupTC:
			l.setupTimer = nil
			l.onSetupTimeout()

		case <-retryTC:
			l.retryTimer = nil
			l.onRetry()

		case <-l.closing:
			l.teardown()
			l.attempt = 0
			l.terminal = false
			l.errMessage = ""
			l.transition(Idle)
			return
		}
	}
}

func (l *Listener) handle(req request) {
	switch req.kind {
	case reqStart:
		l.handleStart(req.context)
	case reqStop:
		l.handleStop()
	case reqBackground:
		if req.background {
			l.logger.Info().Msg("Entering background, suspending listening")
			l.suspended = true
			l.handleStop()
			return
		}
		l.logger.Info().Msg("Returning to foreground")
		l.suspended = false
		l.publish()
	}
}

func (l *Listener) handleStart(ctx command.Context) {
	if l.suspended {
		l.logger.Debug().Str("context", ctx.String()).Msg("Start ignored while suspended")
		return
	}
	if l.state == Starting {
		l.logger.Debug().Str("context", ctx.String()).Msg("Start ignored, already starting")
		return
	}

	l.teardown()
	l.context = ctx
	l.attempt = 0
	l.quickEnds = 0
	l.begin()
}

func (l *Listener) handleStop() {
	l.teardown()
	l.attempt = 0
	l.quickEnds = 0
	l.terminal = false
	l.errMessage = ""
	l.transition(Idle)
}

// begin enters Starting and runs device and engine setup off the loop
func (l *Listener) begin() {
	l.generation++
	l.sessionID = observability.NewSessionID()
	l.terminal = false
	l.errMessage = ""
	l.metrics = observability.NewSessionMetrics(l.sessionID)

	ctx, cancel := context.WithCancel(context.Background())
	attempt := &setupAttempt{
		generation: l.generation,
		cancel:     cancel,
		result:     make(chan setupResult, 1),
	}
	l.pending = attempt
	l.setupTimer = l.opts.Clock.NewTimer(l.opts.SetupTimeout)

	logger := l.sessionLogger()
	logger.Info().
		Str("context", l.context.String()).
		Int("attempt", l.attempt).
		Msg("Starting listening session")

	go l.setup(ctx, attempt.generation, attempt.result)
	l.transition(Starting)
}

func (l *Listener) setup(ctx context.Context, generation uint64, out chan<- setupResult) {
	res := setupResult{generation: generation}
	defer func() { out <- res }()

	keywords, err := l.deps.Keywords.Keywords(ctx)
	if err != nil {
		res.err = &recognition.SetupError{Stage: "keywords", Err: err}
		return
	}
	res.keywords = keywords

	if err := l.deps.Device.Activate(); err != nil {
		res.err = &recognition.SetupError{Stage: "activate", Err: err}
		return
	}

	frames, err := l.deps.Device.OpenTap(ctx)
	if err != nil {
		res.err = &recognition.SetupError{Stage: "tap", Err: err}
		return
	}

	session, err := l.deps.Engine.Begin(ctx, frames)
	if err != nil {
		res.err = &recognition.SetupError{Stage: "begin", Err: err}
		return
	}
	res.session = session
}

func (l *Listener) onSetupResult(res setupResult) {
	l.pending.cancel()
	l.pending = nil

	if res.generation != l.generation {
		l.logger.Debug().Uint64("generation", res.generation).Msg("Discarding stale setup result")
		if res.session != nil {
			res.session.Cancel()
		}
		return
	}
	if res.err != nil {
		l.fail(res.err)
		return
	}

	l.active = &activeSession{
		session:  res.session,
		detector: command.NewDetector(l.context, res.keywords),
	}
	logger := l.sessionLogger()
	logger.Debug().
		Str("engine", l.deps.Engine.Name()).
		Str("engine_session", res.session.ID()).
		Str("keywords", res.keywords.Name).
		Msg("Recognition session opened")
}

func (l *Listener) onReady() {
	if l.active == nil || l.active.ready {
		return
	}
	l.enterListening()
}

func (l *Listener) enterListening() {
	l.active.ready = true
	if l.setupTimer != nil {
		l.setupTimer.Stop()
		l.setupTimer = nil
	}
	l.attempt = 0
	l.listeningSince = l.opts.Clock.Now()
	l.metrics.RecordReady()
	logger := l.sessionLogger()
	logger.Info().Str("context", l.context.String()).Msg("Listening")
	l.transition(Listening)
}

func (l *Listener) onResult(res recognition.Result, ok bool) {
	if !ok {
		if l.state == Listening {
			l.onStreamEnd()
			return
		}
		l.fail(&recognition.SetupError{Stage: "begin", Err: errors.New("stream ended before it was ready")})
		return
	}

	if res.Err != nil {
		l.fail(res.Err)
		return
	}

	if !l.active.ready {
		l.enterListening()
	}

	token, matched := l.active.detector.Observe(res.Transcript)
	if !matched {
		return
	}

	event := command.Event{
		Token:      token,
		Context:    l.context,
		Transcript: res.Transcript,
		Generation: l.generation,
	}
	observability.RecordCommand(event.Context.String(), string(event.Token))
	logger := l.sessionLogger()
	logger.Info().
		Str("token", string(token)).
		Str("context", l.context.String()).
		Msg("Command recognized")

	l.dispatch.post(func() {
		for _, obs := range l.currentObservers() {
			obs.Command(event)
		}
	})
}

// onStreamEnd restarts a session the engine closed on its own. A stream that
// stayed open for at least the initial backoff restarts at once; one that closed
// sooner goes through the retry schedule, so an engine that accepts and then
// drops every connection cannot spin the device.
func (l *Listener) onStreamEnd() {
	if l.opts.Clock.Now().Sub(l.listeningSince) >= l.opts.Backoff.Initial {
		l.quickEnds = 0
		logger := l.sessionLogger()
		logger.Info().Msg("Recognition stream ended, restarting")
		l.teardown()
		l.begin()
		return
	}

	l.attempt = l.quickEnds
	l.fail(errStreamClosed)
	l.quickEnds = l.attempt
}

func (l *Listener) onSetupTimeout() {
	if l.state != Starting {
		return
	}
	l.fail(&recognition.SetupError{
		Stage: "timeout",
		Err:   fmt.Errorf("not listening after %s", l.opts.SetupTimeout),
	})
}

func (l *Listener) onRetry() {
	if l.state != Erroring || l.suspended {
		return
	}
	l.teardown()
	l.begin()
}

// fail tears the session down and schedules a retry when the error allows one
func (l *Listener) fail(err error) {
	kind := recognition.Classify(err)
	record := recognition.Record(err)
	observability.RecordError(kind.String(), "listener")

	l.teardown()
	l.errMessage = record.Message

	logger := l.sessionLogger()
	switch {
	case !record.Recoverable:
		l.terminal = true
		logger.Error().Err(err).Str("kind", kind.String()).Msg("Listening failed, not retrying")

	case kind != recognition.KindNoSpeech && l.opts.Backoff.Exhausted(l.attempt):
		l.terminal = true
		l.errMessage = fmt.Sprintf("%s (gave up after %d attempts)", record.Message, l.attempt)
		logger.Error().Err(err).Int("attempts", l.attempt).Msg("Listening failed, retries exhausted")

	default:
		// No-speech timeouts are routine while the user is quiet, so they
		// neither escalate the delay nor use up the retry budget.
		delay := l.opts.Backoff.Initial
		if kind != recognition.KindNoSpeech {
			delay = l.opts.Backoff.Delay(l.attempt)
			l.attempt++
		}
		l.retryTimer = l.opts.Clock.NewTimer(delay)
		observability.RecordRetry(kind.String())
		logger.Warn().Err(err).
			Str("kind", kind.String()).
			Dur("retry_in", delay).
			Int("attempt", l.attempt).
			Msg("Listening failed, retry scheduled")
	}

	l.transition(Erroring)
}

// teardown cancels the session and releases the device. It runs before every
// start and on every stop; failures are logged and never surfaced.
func (l *Listener) teardown() {
	if l.setupTimer != nil {
		l.setupTimer.Stop()
		l.setupTimer = nil
	}
	if l.retryTimer != nil {
		l.retryTimer.Stop()
		l.retryTimer = nil
	}

	if p := l.pending; p != nil {
		p.cancel()
		res := <-p.result
		if res.session != nil {
			res.session.Cancel()
		}
		l.pending = nil
	}

	if a := l.active; a != nil {
		a.session.Cancel()
		if a.ready {
			l.metrics.RecordEnd()
		}
		l.active = nil
	}

	if err := l.deps.Device.CloseTap(); err != nil {
		observability.RecordError("teardown", "listener")
		l.logger.Warn().Err(err).Msg("Failed to close audio tap")
	}
	if err := l.deps.Device.Deactivate(); err != nil {
		observability.RecordError("teardown", "listener")
		l.logger.Warn().Err(err).Msg("Failed to deactivate audio device")
	}
}

func (l *Listener) transition(to State) {
	if from := l.state; from != to {
		observability.RecordTransition(from.String(), to.String())
		l.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("State transition")
	}
	l.state = to
	l.publish()
}

func (l *Listener) snapshot() Status {
	return Status{
		State:          l.state,
		IsListening:    l.state == Listening,
		HasError:       l.state == Erroring,
		ErrorMessage:   l.errMessage,
		IsInitializing: l.state == Starting,
		Terminal:       l.terminal,
		Suspended:      l.suspended,
		Context:        l.context,
		Generation:     l.generation,
		SessionID:      l.sessionID,
		Attempt:        l.attempt,
	}
}

// publish stores the current snapshot and queues it for observers if it changed
func (l *Listener) publish() {
	next := l.snapshot()

	l.statusMu.Lock()
	changed := next != l.status
	l.status = next
	l.statusMu.Unlock()

	if !changed {
		return
	}
	l.dispatch.post(func() {
		for _, obs := range l.currentObservers() {
			obs.StatusChanged(next)
		}
	})
}

func (l *Listener) currentObservers() []Observer {
	l.obsMu.Lock()
	defer l.obsMu.Unlock()

	ids := make([]int, 0, len(l.observers))
	for id := range l.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]Observer, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.observers[id])
	}
	return out
}

func (l *Listener) sessionLogger() zerolog.Logger {
	return observability.WithSession(l.logger, l.sessionID).With().
		Uint64("generation", l.generation).
		Logger()
}
