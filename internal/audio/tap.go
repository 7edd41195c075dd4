package audio

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/lexiqai/cuecam/internal/observability"
)

const tapQueueFrames = 64

// tap moves bytes from a producer into fixed-size frames. The producer side
// (write) never blocks; the pump slices the ring into frames and hands them to
// the consumer, dropping frames the consumer is too slow to take.
type tap struct {
	source     string
	ring       *RingBuffer
	frameBytes int

	frames chan Frame
	wake   chan struct{}
	quit   chan struct{}
	done   chan struct{}

	quitOnce sync.Once
	dropped  atomic.Int64
}

func newTap(source string, format Format, bufferSize int) *tap {
	frameBytes := format.FrameBytes()
	if bufferSize < frameBytes*2 {
		bufferSize = frameBytes * 8
	}
	t := &tap{
		source:     source,
		ring:       NewRingBuffer(bufferSize),
		frameBytes: frameBytes,
		frames:     make(chan Frame, tapQueueFrames),
		wake:       make(chan struct{}, 1),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go t.pump()
	return t
}

func (t *tap) write(data []byte) {
	if n := t.ring.Write(data); n < len(data) {
		t.dropped.Add(1)
		observability.RecordDroppedFrames(t.source, 1)
	}
	observability.RecordAudioBytes(t.source, len(data))

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *tap) pump() {
	defer close(t.done)
	defer close(t.frames)

	var seq uint64
	buf := make([]byte, t.frameBytes)
	for {
		select {
		case <-t.quit:
			return
		case <-t.wake:
		}

		for t.ring.Available() >= t.frameBytes {
			t.ring.Read(buf)
			frame := Frame{
				Data:      append([]byte(nil), buf...),
				Sequence:  seq,
				Timestamp: time.Now(),
			}
			seq++

			select {
			case t.frames <- frame:
			case <-t.quit:
				return
			default:
				t.dropped.Add(1)
				observability.RecordDroppedFrames(t.source, 1)
			}
		}
	}
}

// interrupt ends the frame stream without waiting. Safe from device callbacks.
func (t *tap) interrupt() {
	t.quitOnce.Do(func() { close(t.quit) })
}

// close ends the frame stream and waits for the pump to exit
func (t *tap) close() {
	t.interrupt()
	<-t.done
}
