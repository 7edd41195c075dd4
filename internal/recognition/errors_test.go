package recognition

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"no speech", fmt.Errorf("engine: %w", ErrNoSpeech), KindNoSpeech},
		{"not authorized", ErrNotAuthorized, KindAuthorization},
		{"authorization during setup", &SetupError{Stage: "begin", Err: ErrNotAuthorized}, KindAuthorization},
		{"unavailable", ErrEngineUnavailable, KindSetup},
		{"tap failure", &SetupError{Stage: "tap", Err: errors.New("device busy")}, KindSetup},
		{"interrupted", ErrAudioInterrupted, KindOther},
		{"anything else", errors.New("socket closed"), KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, expected %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestRecord(t *testing.T) {
	if rec := Record(nil); rec.Message != "" || rec.Kind != KindNone {
		t.Errorf("Expected empty record for nil, got %+v", rec)
	}

	auth := Record(ErrNotAuthorized)
	if auth.Recoverable {
		t.Error("Expected authorization errors to be terminal")
	}

	other := Record(errors.New("socket closed"))
	if !other.Recoverable || other.Message != "socket closed" {
		t.Errorf("Expected recoverable record with the error message, got %+v", other)
	}

	setup := Record(&SetupError{Stage: "tap", Err: errors.New("device busy")})
	if !setup.Recoverable || setup.Message != "Could not start listening: setup failed at tap: device busy" {
		t.Errorf("Unexpected setup record: %+v", setup)
	}
}

func TestClassifyDeepgram(t *testing.T) {
	tests := []struct {
		code    string
		message string
		want    Kind
	}{
		{"NET-0001", "Deepgram did not receive audio data", KindNoSpeech},
		{"INVALID_AUTH", "Invalid credentials.", KindAuthorization},
		{"", "websocket: bad handshake (HTTP 401)", KindAuthorization},
		{"NET-0000", "connection lost", KindSetup},
		{"DATA-0000", "could not decode audio", KindOther},
	}

	for _, tt := range tests {
		if got := Classify(classifyDeepgram(tt.code, tt.message)); got != tt.want {
			t.Errorf("classifyDeepgram(%q, %q) = %s, expected %s", tt.code, tt.message, got, tt.want)
		}
	}
}

func TestClassifyGRPC(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      Kind
		wantClean bool
	}{
		{"permission denied", status.Error(codes.PermissionDenied, "denied"), KindAuthorization, false},
		{"unauthenticated", status.Error(codes.Unauthenticated, "no creds"), KindAuthorization, false},
		{"unavailable", status.Error(codes.Unavailable, "try later"), KindSetup, false},
		{"audio timeout", status.Error(codes.OutOfRange, "Audio Timeout Error: Long duration elapsed without audio."), KindNoSpeech, false},
		{"max duration", status.Error(codes.OutOfRange, "Exceeded maximum allowed stream duration of 305 seconds."), KindNone, true},
		{"internal", status.Error(codes.Internal, "boom"), KindOther, false},
		{"context", context.Canceled, KindOther, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyGRPC(tt.err)
			if tt.wantClean != (err == nil) {
				t.Fatalf("Expected clean end=%v, got %v", tt.wantClean, err)
			}
			if got := Classify(err); got != tt.want {
				t.Errorf("Expected %s, got %s (%v)", tt.want, got, err)
			}
		})
	}
}
