package audio

import (
	"fmt"
	"sync"
	"time"
)

// RingBuffer is a fixed-duration circular store of sample frames.
//
// It is the dashcam memory of the recorder: the capture source writes every
// frame into it and the oldest frames are silently evicted once the
// configured duration is exceeded. The buffer is an arena of frame slots
// addressed modulo capacity, so writes and evictions are O(1) and never
// allocate per frame.
//
// Exactly one goroutine may call Write. Any number of goroutines may call
// Snapshot concurrently; a snapshot is a point-in-time copy of the frame
// metadata and shares the immutable frame payloads.
type RingBuffer struct {
	mu sync.RWMutex

	slots []SampleFrame
	head  int // index of the oldest frame
	count int

	samples    int // total samples per channel currently held
	capSamples int
	sampleRate int
	channels   int
}

// NewRingBuffer creates a ring buffer holding up to `capacity` of audio at
// the given rate. frameSamples is the expected samples-per-frame of the
// capture source and only sizes the slot arena; frames of other sizes are
// still accepted.
func NewRingBuffer(sampleRate, channels, frameSamples int, capacity time.Duration) (*RingBuffer, error) {
	if sampleRate <= 0 || channels <= 0 || frameSamples <= 0 || capacity <= 0 {
		return nil, fmt.Errorf("invalid ring buffer config: rate=%d channels=%d frame=%d capacity=%s",
			sampleRate, channels, frameSamples, capacity)
	}

	capSamples := int(capacity * time.Duration(sampleRate) / time.Second)
	slotCount := capSamples/frameSamples + 2

	return &RingBuffer{
		slots:      make([]SampleFrame, slotCount),
		capSamples: capSamples,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// Write appends a frame, evicting the oldest frames as needed to keep the
// stored duration within capacity. It never blocks on readers beyond the
// short slot-arena lock.
func (rb *RingBuffer) Write(frame SampleFrame) {
	if frame.Samples <= 0 {
		return
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	// Evict until the new frame fits, both by sample budget and by slot
	// count. Strict FIFO: the oldest frame always goes first.
	for rb.count > 0 && (rb.samples+frame.Samples > rb.capSamples || rb.count == len(rb.slots)) {
		rb.samples -= rb.slots[rb.head].Samples
		rb.slots[rb.head] = SampleFrame{}
		rb.head = (rb.head + 1) % len(rb.slots)
		rb.count--
	}

	rb.slots[(rb.head+rb.count)%len(rb.slots)] = frame
	rb.count++
	rb.samples += frame.Samples
}

// Snapshot returns the most recent `duration` of frames in write order, or
// everything held if less is available. The returned slice is a consistent
// copy: frames written after the call are not included and frames present
// at call time are not missing, even while writes continue concurrently.
func (rb *RingBuffer) Snapshot(duration time.Duration) []SampleFrame {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.count == 0 {
		return nil
	}

	want := int(duration * time.Duration(rb.sampleRate) / time.Second)
	if want > rb.samples {
		want = rb.samples
	}

	// Walk backwards from the newest frame until enough samples are
	// covered, then copy forward so the result is in timestamp order.
	got := 0
	n := 0
	for n < rb.count && got < want {
		idx := (rb.head + rb.count - 1 - n) % len(rb.slots)
		got += rb.slots[idx].Samples
		n++
	}

	out := make([]SampleFrame, n)
	for i := 0; i < n; i++ {
		out[i] = rb.slots[(rb.head+rb.count-n+i)%len(rb.slots)]
	}
	return out
}

// Len returns the number of frames currently held.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Duration returns the total audio duration currently held.
func (rb *RingBuffer) Duration() time.Duration {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return time.Duration(rb.samples) * time.Second / time.Duration(rb.sampleRate)
}

// Fill returns how full the buffer is, 0.0 to 1.0.
func (rb *RingBuffer) Fill() float64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return float64(rb.samples) / float64(rb.capSamples)
}

// Capacity returns the configured capacity as a duration.
func (rb *RingBuffer) Capacity() time.Duration {
	return time.Duration(rb.capSamples) * time.Second / time.Duration(rb.sampleRate)
}
