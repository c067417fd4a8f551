package audio

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRate  = 16000
	testFrame = 1024
)

// makeFrames produces seq-numbered frames covering `total` of audio,
// starting at the given sequence number and timestamp.
func makeFrames(startSeq uint64, start time.Time, total time.Duration) []SampleFrame {
	frameDur := time.Duration(testFrame) * time.Second / testRate
	n := int(total / frameDur)
	frames := make([]SampleFrame, n)
	for i := range frames {
		frames[i] = SampleFrame{
			Seq:       startSeq + uint64(i),
			Timestamp: start.Add(time.Duration(i) * frameDur),
			Data:      make([]byte, testFrame*2),
			Samples:   testFrame,
		}
	}
	return frames
}

func newTestRing(t *testing.T, capacity time.Duration) *RingBuffer {
	t.Helper()
	rb, err := NewRingBuffer(testRate, 1, testFrame, capacity)
	require.NoError(t, err)
	return rb
}

func TestRingBufferFIFOEviction(t *testing.T) {
	rb := newTestRing(t, 45*time.Second)

	start := time.Now()
	for _, f := range makeFrames(0, start, 100*time.Second) {
		rb.Write(f)
	}

	// Stored duration never exceeds capacity.
	assert.LessOrEqual(t, rb.Duration(), 45*time.Second)
	assert.InDelta(t, 1.0, rb.Fill(), 0.01)

	// Snapshot of the full capacity returns exactly the newest frames,
	// strictly contiguous.
	snap := rb.Snapshot(45 * time.Second)
	require.NotEmpty(t, snap)
	for i := 1; i < len(snap); i++ {
		assert.Equal(t, snap[i-1].Seq+1, snap[i].Seq, "snapshot must be contiguous")
	}

	// The oldest surviving frame belongs to the last 45s of input.
	totalFrames := uint64(100 * testRate / testFrame)
	keptFrames := uint64(45 * testRate / testFrame)
	assert.Equal(t, totalFrames-1, snap[len(snap)-1].Seq)
	assert.GreaterOrEqual(t, snap[0].Seq, totalFrames-keptFrames-1)
}

func TestRingBufferSnapshotDuration(t *testing.T) {
	rb := newTestRing(t, 45*time.Second)

	for _, f := range makeFrames(0, time.Now(), 30*time.Second) {
		rb.Write(f)
	}

	// Asking for more than is buffered returns everything.
	snap := rb.Snapshot(45 * time.Second)
	var samples int
	for _, f := range snap {
		samples += f.Samples
	}
	assert.InDelta(t, 30*testRate, samples, testFrame)

	// Asking for a short window returns just that window, newest-aligned.
	short := rb.Snapshot(5 * time.Second)
	samples = 0
	for _, f := range short {
		samples += f.Samples
	}
	assert.InDelta(t, 5*testRate, samples, testFrame)
	assert.Equal(t, snap[len(snap)-1].Seq, short[len(short)-1].Seq)
}

func TestRingBufferEmptySnapshot(t *testing.T) {
	rb := newTestRing(t, 10*time.Second)
	assert.Nil(t, rb.Snapshot(10*time.Second))
	assert.Equal(t, 0, rb.Len())
	assert.Equal(t, time.Duration(0), rb.Duration())
}

func TestRingBufferConcurrentSnapshots(t *testing.T) {
	rb := newTestRing(t, 2*time.Second)

	frames := makeFrames(0, time.Now(), 20*time.Second)
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, f := range frames {
			rb.Write(f)
		}
		close(done)
	}()

	// Hammer snapshots while the writer runs; every snapshot must be a
	// contiguous run with no duplicate sequence numbers.
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := rb.Snapshot(2 * time.Second)
				for j := 1; j < len(snap); j++ {
					if snap[j].Seq != snap[j-1].Seq+1 {
						t.Errorf("snapshot not contiguous: %d after %d", snap[j].Seq, snap[j-1].Seq)
						return
					}
				}
			}
		}()
	}

	wg.Wait()
}

func TestRingBufferOversizedFrame(t *testing.T) {
	rb := newTestRing(t, 1*time.Second)

	// A frame larger than remaining capacity evicts everything older.
	for _, f := range makeFrames(0, time.Now(), time.Second) {
		rb.Write(f)
	}
	big := SampleFrame{Seq: 100, Data: make([]byte, testRate*2), Samples: testRate}
	rb.Write(big)

	snap := rb.Snapshot(time.Second)
	require.Len(t, snap, 1)
	assert.Equal(t, uint64(100), snap[0].Seq)
}

func TestRingBufferGapDetectable(t *testing.T) {
	rb := newTestRing(t, 45*time.Second)

	start := time.Now()
	for _, f := range makeFrames(0, start, 2*time.Second) {
		rb.Write(f)
	}
	// Source stalls for 3 seconds, then resumes with contiguous sequence
	// numbers but a timestamp jump.
	resumed := makeFrames(uint64(2*testRate/testFrame), start.Add(5*time.Second), 2*time.Second)
	for _, f := range resumed {
		rb.Write(f)
	}

	snap := rb.Snapshot(45 * time.Second)
	frameDur := time.Duration(testFrame) * time.Second / testRate
	var gaps int
	for i := 1; i < len(snap); i++ {
		if snap[i].Timestamp.Sub(snap[i-1].Timestamp) > 2*frameDur {
			gaps++
		}
	}
	assert.Equal(t, 1, gaps, "stall must be visible as exactly one timestamp gap")
}

func TestNewRingBufferValidation(t *testing.T) {
	_, err := NewRingBuffer(0, 1, testFrame, time.Second)
	assert.Error(t, err)
	_, err = NewRingBuffer(testRate, 1, testFrame, 0)
	assert.Error(t, err)
}
