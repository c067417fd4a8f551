// Package recorder implements the capture core: the continuously filled
// ring buffer, the trigger-driven state machine and the two capture
// controllers (bounded clip, open-ended encrypted panic recording).
package recorder

import (
	"crypto/rsa"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pifinski/PanikNippelboard/internal/audio"
	"github.com/pifinski/PanikNippelboard/internal/config"
)

// Options configures a Recorder. All values are fixed at construction;
// changing capture geometry requires a new Recorder.
type Options struct {
	SampleRate int
	Channels   int

	// RingDuration is the pre-trigger history window (default 45s). A clip
	// snapshot covers the whole ring.
	RingDuration time.Duration

	// ClipPost is the live tail collected after a clip trigger.
	ClipPost time.Duration

	// ClipGrace bounds how long the clip controller waits beyond ClipPost
	// for a stalled audio source before emitting a short clip.
	ClipGrace time.Duration

	ClipDir  string
	PanicDir string
	Format   string // config.FormatOgg or config.FormatWAV
	Bitrate  int

	// CryptoMode selects panic artifact protection. Asymmetric mode
	// requires PublicKey; symmetric mode requires Passphrase.
	CryptoMode string
	PublicKey  *rsa.PublicKey
	Passphrase []byte

	// FrameSamples sizes the ring slot arena.
	FrameSamples int

	// TapQueue is the bounded frame queue between producer and an active
	// controller.
	TapQueue int

	// PanicFlushInterval bounds data loss on abrupt termination: buffered
	// ciphertext is sealed and flushed at least this often.
	PanicFlushInterval time.Duration

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Recorder owns the ring buffer and arbitrates the live audio stream
// between the clip and panic controllers. It is the single writer of the
// capture state; all trigger entry points (GPIO wrapper, soundboard GUI,
// hotkeys) funnel into TriggerClip and TogglePanic.
type Recorder struct {
	opts Options
	ring *audio.RingBuffer
	log  *zap.SugaredLogger

	levelBits atomic.Uint64
	levels    *audio.LevelMeter

	mu            sync.Mutex
	state         State
	transitioning bool
	session       *Session
	tap           *frameTap

	// onSaved, when set, is invoked after an artifact has been fully
	// written. Used by the daemon for operator feedback.
	onSaved func(*Session)

	wg sync.WaitGroup
}

// New creates a Recorder. It fails when the crypto configuration cannot
// support panic recordings; a device that cannot encrypt must not offer
// the capability.
func New(opts Options, log *zap.SugaredLogger) (*Recorder, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ClipGrace <= 0 {
		opts.ClipGrace = 5 * time.Second
	}
	if opts.PanicFlushInterval <= 0 {
		opts.PanicFlushInterval = 2 * time.Second
	}

	switch opts.CryptoMode {
	case config.CryptoModeAsymmetric:
		if opts.PublicKey == nil {
			return nil, fmt.Errorf("asymmetric crypto mode requires a public key")
		}
	case config.CryptoModeSymmetric:
		if len(opts.Passphrase) == 0 {
			return nil, fmt.Errorf("symmetric crypto mode requires a passphrase")
		}
	default:
		return nil, fmt.Errorf("unknown crypto mode %q", opts.CryptoMode)
	}

	ring, err := audio.NewRingBuffer(opts.SampleRate, opts.Channels, opts.FrameSamples, opts.RingDuration)
	if err != nil {
		return nil, err
	}

	return &Recorder{
		opts:   opts,
		ring:   ring,
		log:    log,
		levels: audio.NewLevelMeter(0.8),
	}, nil
}

// OnSaved registers a callback invoked after each finished artifact. Must
// be set before frames flow.
func (r *Recorder) OnSaved(fn func(*Session)) {
	r.onSaved = fn
}

// Dispatch feeds one captured frame into the core. It is called from the
// single audio-producer goroutine and never blocks: the ring write is
// constant-time and the tap hand-off drops rather than waits.
func (r *Recorder) Dispatch(frame audio.SampleFrame) {
	r.ring.Write(frame)
	r.levelBits.Store(math.Float64bits(r.levels.Process(frame)))

	r.mu.Lock()
	tap := r.tap
	r.mu.Unlock()
	if tap != nil {
		tap.Offer(frame)
	}
}

// TriggerClip requests a bounded clip capture. It is accepted only from
// Idle; triggers during any other state or mid-transition are silently
// dropped, since spurious edges from physical buttons are expected.
// Returns whether the trigger was accepted.
func (r *Recorder) TriggerClip() bool {
	r.mu.Lock()
	if r.state != StateIdle || r.transitioning {
		state := r.state
		r.mu.Unlock()
		r.log.Debugw("clip trigger ignored", "state", state.String())
		return false
	}
	r.transitioning = true
	r.mu.Unlock()

	sess := newSession(KindClip, r.opts.Now())
	tap := newFrameTap(r.opts.TapQueue)

	// Install the tap before snapshotting so no frame can fall between the
	// buffered history and the live tail; the collector filters the
	// overlap by sequence number.
	r.mu.Lock()
	r.session = sess
	r.tap = tap
	r.state = StateClipCapturing
	r.transitioning = false
	r.mu.Unlock()

	snapshot := r.ring.Snapshot(r.opts.RingDuration)

	r.log.Infow("clip capture started",
		"session", sess.ID,
		"buffered", len(snapshot),
		"post", r.opts.ClipPost,
	)

	r.wg.Add(1)
	go r.runClip(sess, snapshot, tap)
	return true
}

// TogglePanic starts a panic recording from Idle and stops the active one
// from PanicRecording. The same trigger is a toggle by design: one button,
// press to start, press again to stop. Triggers during ClipCapturing or
// mid-transition are dropped. Returns the state after the call.
func (r *Recorder) TogglePanic() State {
	r.mu.Lock()
	if r.transitioning {
		state := r.state
		r.mu.Unlock()
		r.log.Debugw("panic toggle ignored during transition", "state", state.String())
		return state
	}

	switch r.state {
	case StateIdle:
		r.transitioning = true
		r.mu.Unlock()
		if err := r.startPanic(); err != nil {
			r.log.Errorw("failed to start panic recording", "error", err)
			r.mu.Lock()
			r.transitioning = false
			r.mu.Unlock()
			return StateIdle
		}
		return StatePanicRecording

	case StatePanicRecording:
		// Finalization is asynchronous; the state returns to Idle once the
		// artifact is flushed and closed. Until then further triggers are
		// dropped by the transitioning guard.
		r.transitioning = true
		tap := r.tap
		r.mu.Unlock()
		r.log.Infow("panic recording stop requested")
		tap.Close()
		return StatePanicRecording

	default:
		state := r.state
		r.mu.Unlock()
		r.log.Debugw("panic toggle ignored", "state", state.String())
		return state
	}
}

// State returns the current capture state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Status is a point-in-time view for the soundboard GUI.
type Status struct {
	State         State
	RingFill      float64
	RingDuration  time.Duration
	InputLevel    float64
	PanicDuration time.Duration
}

// Status reports the recorder state for display.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	state := r.state
	sess := r.session
	r.mu.Unlock()

	st := Status{
		State:        state,
		RingFill:     r.ring.Fill(),
		RingDuration: r.ring.Duration(),
		InputLevel:   math.Float64frombits(r.levelBits.Load()),
	}
	if state == StatePanicRecording && sess != nil {
		st.PanicDuration = r.opts.Now().Sub(sess.StartedAt)
	}
	return st
}

// Close finalizes any in-flight session and waits for it to be flushed to
// disk. A running clip is cut short at whatever has been collected; a
// running panic recording is stopped and sealed.
func (r *Recorder) Close() {
	r.mu.Lock()
	tap := r.tap
	r.mu.Unlock()
	if tap != nil {
		tap.Close()
	}
	r.wg.Wait()
}

// finishSession returns the state machine to Idle after a controller has
// fully completed or aborted.
func (r *Recorder) finishSession() {
	r.mu.Lock()
	r.session = nil
	r.tap = nil
	r.state = StateIdle
	r.transitioning = false
	r.mu.Unlock()
}

func (r *Recorder) notifySaved(sess *Session) {
	if r.onSaved != nil {
		r.onSaved(sess)
	}
}

// samplesFor converts a duration to a per-channel sample count.
func (r *Recorder) samplesFor(d time.Duration) int {
	return int(d * time.Duration(r.opts.SampleRate) / time.Second)
}
