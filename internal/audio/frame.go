package audio

import (
	"fmt"
	"strings"
	"time"
)

// Encoding identifies how raw bytes handed to a push device are encoded
type Encoding string

const (
	// Linear16 is 16-bit signed little-endian PCM
	Linear16 Encoding = "linear16"
	// Mulaw is 8-bit G.711 μ-law
	Mulaw Encoding = "mulaw"
)

// ParseEncoding validates an encoding name
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(s))) {
	case Linear16, "":
		return Linear16, nil
	case Mulaw, "pcmu":
		return Mulaw, nil
	}
	return "", fmt.Errorf("unknown audio encoding %q", s)
}

// Format describes the PCM stream a device delivers. Frames are always mono
// 16-bit little-endian after decoding.
type Format struct {
	SampleRate    int
	FrameDuration time.Duration
}

// DefaultFormat is 16 kHz with 20 ms frames
func DefaultFormat() Format {
	return Format{SampleRate: 16000, FrameDuration: 20 * time.Millisecond}
}

// SamplesPerFrame returns the number of samples in one frame
func (f Format) SamplesPerFrame() int {
	return int(int64(f.SampleRate) * int64(f.FrameDuration) / int64(time.Second))
}

// FrameBytes returns the size in bytes of one frame
func (f Format) FrameBytes() int {
	return f.SamplesPerFrame() * 2
}

// Frame is one fixed-size chunk of captured PCM
type Frame struct {
	Data      []byte
	Sequence  uint64
	Timestamp time.Time
}

// Samples decodes the frame payload
func (f Frame) Samples() []int16 {
	return BytesToSamples(f.Data)
}
