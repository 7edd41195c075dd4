package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lexiqai/cuecam/internal/command"
	"github.com/lexiqai/cuecam/internal/listener"
)

// Message types sent by the server
const (
	TypeStatus  = "status"
	TypeCommand = "command"
	TypeReply   = "reply"
)

// Control actions accepted from a controller
const (
	ActionStart        = "start"
	ActionStop         = "stop"
	ActionBackground   = "background"
	ActionForeground   = "foreground"
	ActionSelectPreset = "select_preset"
	ActionListPresets  = "list_presets"
)

// Subject suffixes appended to the configured prefix
const (
	SubjectStatus  = "status"
	SubjectCommand = "command"
	SubjectControl = "control"
)

// Subject joins a prefix and a suffix into a NATS subject
func Subject(prefix, suffix string) string {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		return suffix
	}
	return prefix + "." + suffix
}

// Status mirrors listener.Status on the wire
type Status struct {
	Type           string    `json:"type"`
	State          string    `json:"state"`
	IsListening    bool      `json:"is_listening"`
	HasError       bool      `json:"has_error"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	IsInitializing bool      `json:"is_initializing"`
	Terminal       bool      `json:"terminal,omitempty"`
	Suspended      bool      `json:"suspended,omitempty"`
	Context        string    `json:"context"`
	Generation     uint64    `json:"generation"`
	SessionID      string    `json:"session_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewStatus converts a listener status
func NewStatus(s listener.Status, now time.Time) Status {
	return Status{
		Type:           TypeStatus,
		State:          s.State.String(),
		IsListening:    s.IsListening,
		HasError:       s.HasError,
		ErrorMessage:   s.ErrorMessage,
		IsInitializing: s.IsInitializing,
		Terminal:       s.Terminal,
		Suspended:      s.Suspended,
		Context:        s.Context.String(),
		Generation:     s.Generation,
		SessionID:      s.SessionID,
		Timestamp:      now.UTC(),
	}
}

// Command is a recognized command on the wire
type Command struct {
	Type       string    `json:"type"`
	Token      string    `json:"token"`
	Context    string    `json:"context"`
	Transcript string    `json:"transcript,omitempty"`
	Generation uint64    `json:"generation"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewCommand converts a command event
func NewCommand(e command.Event, now time.Time) Command {
	return Command{
		Type:       TypeCommand,
		Token:      string(e.Token),
		Context:    e.Context.String(),
		Transcript: e.Transcript,
		Generation: e.Generation,
		Timestamp:  now.UTC(),
	}
}

// Control is a request from a controller
type Control struct {
	ID      string `json:"id,omitempty"`
	Action  string `json:"action"`
	Context string `json:"context,omitempty"`
	Preset  string `json:"preset,omitempty"`
}

// ParseControl decodes and validates a control message
func ParseControl(data []byte) (Control, error) {
	var c Control
	if err := json.Unmarshal(data, &c); err != nil {
		return Control{}, fmt.Errorf("invalid control message: %w", err)
	}
	c.Action = strings.ToLower(strings.TrimSpace(c.Action))

	switch c.Action {
	case ActionStart:
		if _, err := command.ParseContext(c.Context); err != nil {
			return Control{}, err
		}
	case ActionSelectPreset:
		if strings.TrimSpace(c.Preset) == "" {
			return Control{}, errors.New("select_preset requires a preset")
		}
	case ActionStop, ActionBackground, ActionForeground, ActionListPresets:
	case "":
		return Control{}, errors.New("control message has no action")
	default:
		return Control{}, fmt.Errorf("unknown action %q", c.Action)
	}
	return c, nil
}

// ListeningContext returns the context of a start request
func (c Control) ListeningContext() command.Context {
	ctx, _ := command.ParseContext(c.Context)
	return ctx
}

// Preset describes one selectable keyword preset
type Preset struct {
	Name  string   `json:"name"`
	Label string   `json:"label,omitempty"`
	Start []string `json:"start"`
	Stop  []string `json:"stop"`
}

// NewPreset converts a keyword set
func NewPreset(k command.KeywordSet) Preset {
	return Preset{Name: k.Name, Label: k.Label, Start: k.Start, Stop: k.Stop}
}

// Reply answers a control message
type Reply struct {
	Type     string   `json:"type"`
	ID       string   `json:"id,omitempty"`
	Action   string   `json:"action"`
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Selected string   `json:"selected,omitempty"`
	Presets  []Preset `json:"presets,omitempty"`
}

// NewReply acknowledges c, carrying err's message when it failed
func NewReply(c Control, err error) Reply {
	r := Reply{Type: TypeReply, ID: c.ID, Action: c.Action, OK: err == nil}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}
