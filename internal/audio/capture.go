package audio

import (
	"context"
	"time"
)

// CaptureConfig holds configuration for continuous audio capture
type CaptureConfig struct {
	// SampleRate is the number of samples per second (Hz)
	// 16000 is the sweet spot for narrow-band radio audio
	SampleRate int

	// Channels is the number of audio channels (1 = mono)
	Channels int

	// FrameSamples is the number of samples per channel delivered per frame
	// Smaller = lower latency, higher CPU usage
	FrameSamples int

	// FrameQueueSize is the size of the channel buffer between the device
	// callback and the consumer
	FrameQueueSize int

	// DeviceID selects the capture device, empty = default device
	DeviceID string
}

// DefaultCaptureConfig returns a configuration suitable for voice-like
// radio audio
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate:     16000,
		Channels:       1,
		FrameSamples:   1024, // 64ms at 16kHz
		FrameQueueSize: 64,
		DeviceID:       "",
	}
}

// BytesPerSecond returns the PCM data rate for this configuration,
// assuming 16-bit samples.
func (c CaptureConfig) BytesPerSecond() int {
	return c.SampleRate * c.Channels * 2
}

// SampleFrame is a fixed block of interleaved S16LE PCM samples.
//
// Frames are immutable after creation: the capturer allocates fresh Data
// for every frame, and no consumer may modify it. Seq increases by exactly
// one per produced frame, so a consumer can detect device stalls by
// diffing Timestamp across consecutive sequence numbers.
type SampleFrame struct {
	Seq       uint64
	Timestamp time.Time
	Data      []byte // interleaved S16LE
	Samples   int    // samples per channel in this frame
}

// Duration returns the play time covered by the frame.
func (f SampleFrame) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples) * time.Second / time.Duration(sampleRate)
}

// Capturer is the interface for continuous audio capture implementations
type Capturer interface {
	// Start begins audio capture
	Start(ctx context.Context) error

	// Stop stops audio capture and closes the frame channel
	Stop() error

	// Frames returns a channel that receives captured sample frames
	Frames() <-chan SampleFrame

	// Errors returns a channel that receives capture errors
	Errors() <-chan error

	// IsRunning returns true if capture is currently active
	IsRunning() bool
}

// NewCapturer creates a new audio capturer with the given configuration
func NewCapturer(config CaptureConfig) (Capturer, error) {
	return NewMalgoCapturer(config)
}
