package audio

import (
	"testing"
	"time"
)

func TestBytesToSamples(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234}
	got := BytesToSamples(SamplesToBytes(samples))
	if len(got) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(got))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("Expected %d at %d, got %d", samples[i], i, got[i])
		}
	}

	if got := BytesToSamples([]byte{1, 0, 9}); len(got) != 1 || got[0] != 1 {
		t.Errorf("Expected trailing odd byte to be ignored, got %v", got)
	}
}

func TestMulawToLinear_KnownValues(t *testing.T) {
	tests := []struct {
		in   byte
		want int16
	}{
		{0xFF, 0},
		{0x7F, 0},
		{0x80, 32124},
		{0x00, -32124},
	}

	for _, tt := range tests {
		if got := mulawToLinear(tt.in); got != tt.want {
			t.Errorf("mulawToLinear(0x%02X) = %d, expected %d", tt.in, got, tt.want)
		}
	}
}

func TestDecodeMulaw(t *testing.T) {
	got := BytesToSamples(DecodeMulaw([]byte{0xFF, 0x80, 0x00}))
	want := []int16{0, 32124, -32124}
	if len(got) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestCalculateRMS(t *testing.T) {
	if got := CalculateRMS(nil); got != 0 {
		t.Errorf("Expected 0 for empty input, got %f", got)
	}
	if got := CalculateRMS([]int16{3, -3, 3, -3}); got != 3 {
		t.Errorf("Expected RMS 3, got %f", got)
	}
}

func TestFormat_FrameBytes(t *testing.T) {
	format := Format{SampleRate: 16000, FrameDuration: 20 * time.Millisecond}
	if got := format.SamplesPerFrame(); got != 320 {
		t.Errorf("Expected 320 samples per frame, got %d", got)
	}
	if got := format.FrameBytes(); got != 640 {
		t.Errorf("Expected 640 bytes per frame, got %d", got)
	}
}

func TestParseEncoding(t *testing.T) {
	if enc, err := ParseEncoding("PCMU"); err != nil || enc != Mulaw {
		t.Errorf("Expected Mulaw, got %v (%v)", enc, err)
	}
	if enc, err := ParseEncoding(""); err != nil || enc != Linear16 {
		t.Errorf("Expected Linear16 default, got %v (%v)", enc, err)
	}
	if _, err := ParseEncoding("opus"); err == nil {
		t.Error("Expected error for unknown encoding")
	}
}
