package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/cuecam/internal/command"
	"github.com/lexiqai/cuecam/internal/listener"
	"github.com/lexiqai/cuecam/internal/observability"
	"github.com/lexiqai/cuecam/internal/protocol"
)

const (
	writeTimeout   = 10 * time.Second
	maxMessageSize = 64 * 1024
	outboxSize     = 64
)

var errPresetsUnavailable = errors.New("preset selection is not available")

var upgrader = websocket.Upgrader{
	// The controller is the camera app on the same device or LAN
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Controller is the listener surface exposed to a remote controller
type Controller interface {
	Listening
	Subscribe(obs listener.Observer) func()
}

// Presets manages the keyword preset selection
type Presets interface {
	SelectedPreset(ctx context.Context) (string, error)
	SetSelectedPreset(ctx context.Context, name string) error
	Presets() []command.KeywordSet
}

// AudioSink accepts microphone audio streamed by the controller
type AudioSink interface {
	Push(data []byte) bool
}

// Handler serves the /control websocket. Only one controller may be connected
// at a time since the audio input is exclusive.
type Handler struct {
	ctrl    Controller
	presets Presets
	audio   AudioSink
	logger  zerolog.Logger

	mu        sync.Mutex
	connected bool
}

// NewHandler creates the control endpoint. audio may be nil when audio is
// captured locally.
func NewHandler(ctrl Controller, presets Presets, audio AudioSink, logger zerolog.Logger) *Handler {
	return &Handler{
		ctrl:    ctrl,
		presets: presets,
		audio:   audio,
		logger:  logger.With().Str("component", "remote").Logger(),
	}
}

// Connected reports whether a controller is attached
func (h *Handler) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

func (h *Handler) acquire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.connected {
		return false
	}
	h.connected = true
	return true
}

func (h *Handler) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = false
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.acquire() {
		http.Error(w, "controller already connected", http.StatusConflict)
		return
	}
	defer h.release()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		h.logger.Warn().Err(err).Msg("Failed to upgrade control connection")
		return
	}
	defer conn.Close()

	connID := observability.NewSessionID()
	c := &connection{
		handler: h,
		conn:    conn,
		outbox:  make(chan any, outboxSize),
		done:    make(chan struct{}),
		logger:  h.logger.With().Str("connection_id", connID).Str("remote_addr", r.RemoteAddr).Logger(),
	}
	c.logger.Info().Msg("Controller connected")

	go c.writeLoop()

	// A connected controller is a foreground app
	h.ctrl.HandleBackground(false)
	unsubscribe := h.ctrl.Subscribe(c)

	c.readLoop()

	unsubscribe()
	h.ctrl.HandleBackground(true)
	c.close()
	c.logger.Info().Msg("Controller disconnected, listening suspended")
}

// connection is one attached controller. It is also the listener observer that
// forwards status and commands to the socket.
type connection struct {
	handler *Handler
	conn    *websocket.Conn
	outbox  chan any
	logger  zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func (c *connection) StatusChanged(s listener.Status) {
	c.send(protocol.NewStatus(s, time.Now()))
}

func (c *connection) Command(e command.Event) {
	c.send(protocol.NewCommand(e, time.Now()))
}

// send queues a message without blocking. A controller that stops reading is
// disconnected.
func (c *connection) send(msg any) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.outbox <- msg:
	default:
		observability.RecordError("outbox_full", "remote")
		c.logger.Warn().Msg("Controller is not reading, disconnecting")
		c.close()
	}
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *connection) writeLoop() {
	for {
		select {
		case msg := <-c.outbox:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to write to controller")
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *connection) readLoop() {
	c.conn.SetReadLimit(maxMessageSize)

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			c.handleAudio(data)
		case websocket.TextMessage:
			c.handleControl(data)
		}
	}
}

func (c *connection) handleAudio(data []byte) {
	if c.handler.audio == nil {
		c.logger.Debug().Int("bytes", len(data)).Msg("Ignoring audio, capture is local")
		return
	}
	if !c.handler.audio.Push(data) {
		observability.RecordDroppedFrames("remote", 1)
	}
}

func (c *connection) handleControl(data []byte) {
	ctrl, err := protocol.ParseControl(data)
	if err != nil {
		var hdr struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(data, &hdr)
		c.send(protocol.NewReply(protocol.Control{ID: hdr.ID}, err))
		return
	}

	c.logger.Debug().Str("action", ctrl.Action).Msg("Control message")
	c.send(Dispatch(c.handler.ctrl, c.handler.presets, ctrl))
}
