package recorder

import (
	"sync"

	"github.com/pifinski/PanikNippelboard/internal/audio"
)

// frameTap is the bounded hand-off between the audio producer and an
// active capture controller. Offer never blocks: when the controller falls
// behind, the oldest queued frame is dropped in favor of the newest, so a
// slow filesystem can cost output audio but never stalls capture.
type frameTap struct {
	mu      sync.Mutex
	ch      chan audio.SampleFrame
	closed  bool
	dropped int
}

func newFrameTap(size int) *frameTap {
	if size <= 0 {
		size = 256
	}
	return &frameTap{ch: make(chan audio.SampleFrame, size)}
}

// Offer enqueues a frame, dropping the oldest queued frame when full.
func (t *frameTap) Offer(f audio.SampleFrame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	for {
		select {
		case t.ch <- f:
			return
		default:
		}
		select {
		case <-t.ch:
			t.dropped++
		default:
		}
	}
}

// Frames returns the consumer channel. It is closed by Close after the
// already-queued frames drain.
func (t *frameTap) Frames() <-chan audio.SampleFrame {
	return t.ch
}

// Close stops the tap. Queued frames remain readable until drained.
func (t *frameTap) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.ch)
}

// Dropped returns how many frames were discarded due to backpressure.
func (t *frameTap) Dropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}
