package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lexiqai/cuecam/internal/command"
	"github.com/lexiqai/cuecam/internal/listener"
)

func TestParseControl(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		action  string
		wantErr string
	}{
		{"start camera", `{"action":"start","context":"camera"}`, ActionStart, ""},
		{"start default context", `{"action":"START"}`, ActionStart, ""},
		{"start bad context", `{"action":"start","context":"gallery"}`, "", "unknown listening context"},
		{"stop", `{"action":"stop"}`, ActionStop, ""},
		{"background", `{"action":"background"}`, ActionBackground, ""},
		{"select preset", `{"action":"select_preset","preset":"take"}`, ActionSelectPreset, ""},
		{"select without preset", `{"action":"select_preset"}`, "", "requires a preset"},
		{"missing action", `{}`, "", "no action"},
		{"unknown action", `{"action":"zoom"}`, "", "unknown action"},
		{"not json", `start`, "", "invalid control message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseControl([]byte(tt.input))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if c.Action != tt.action {
				t.Errorf("Expected action %q, got %q", tt.action, c.Action)
			}
		})
	}
}

func TestControl_ListeningContext(t *testing.T) {
	c, err := ParseControl([]byte(`{"action":"start","context":"save_dialog"}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if c.ListeningContext() != command.SaveDialog {
		t.Errorf("Expected save dialog, got %v", c.ListeningContext())
	}
}

func TestNewStatus(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := NewStatus(listener.Status{
		State:        listener.Erroring,
		HasError:     true,
		ErrorMessage: "No speech detected",
		Context:      command.SaveDialog,
		Generation:   7,
	}, now)

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, want := range []string{`"type":"status"`, `"state":"erroring"`, `"context":"save_dialog"`, `"generation":7`, `"has_error":true`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("Expected %s in %s", want, data)
		}
	}
}

func TestNewCommand(t *testing.T) {
	msg := NewCommand(command.Event{Token: command.Start, Context: command.Camera, Generation: 3}, time.Now())
	if msg.Type != TypeCommand || msg.Token != "start" || msg.Context != "camera" || msg.Generation != 3 {
		t.Errorf("Unexpected command message: %+v", msg)
	}
}

func TestNewReply(t *testing.T) {
	c := Control{ID: "42", Action: ActionStop}
	if r := NewReply(c, nil); !r.OK || r.ID != "42" || r.Error != "" {
		t.Errorf("Unexpected success reply: %+v", r)
	}
	if r := NewReply(c, errors.New("nope")); r.OK || r.Error != "nope" {
		t.Errorf("Unexpected failure reply: %+v", r)
	}
}

func TestSubject(t *testing.T) {
	if got := Subject("cuecam", SubjectStatus); got != "cuecam.status" {
		t.Errorf("Expected cuecam.status, got %q", got)
	}
	if got := Subject("cuecam.", SubjectCommand); got != "cuecam.command" {
		t.Errorf("Expected cuecam.command, got %q", got)
	}
	if got := Subject("", SubjectControl); got != "control" {
		t.Errorf("Expected control, got %q", got)
	}
}
