package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// MalgoCapturer implements the Capturer interface using malgo
type MalgoCapturer struct {
	config       CaptureConfig
	device       *malgo.Device
	malgoContext *malgo.AllocatedContext
	frames       chan SampleFrame
	errors       chan error
	seq          uint64
	running      bool
	mu           sync.RWMutex
	stopChan     chan struct{}
}

// NewMalgoCapturer creates a new malgo-based audio capturer
func NewMalgoCapturer(config CaptureConfig) (*MalgoCapturer, error) {
	if config.SampleRate <= 0 || config.Channels <= 0 || config.FrameSamples <= 0 {
		return nil, fmt.Errorf("invalid capture config: rate=%d channels=%d frame=%d",
			config.SampleRate, config.Channels, config.FrameSamples)
	}
	queue := config.FrameQueueSize
	if queue <= 0 {
		queue = 64
	}
	return &MalgoCapturer{
		config:   config,
		frames:   make(chan SampleFrame, queue),
		errors:   make(chan error, 10),
		stopChan: make(chan struct{}),
	}, nil
}

// Start begins audio capture
func (m *MalgoCapturer) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("capturer is already running")
	}
	m.running = true
	m.mu.Unlock()

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		m.setStopped()
		return fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	m.malgoContext = malgoCtx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(m.config.Channels)
	deviceConfig.SampleRate = uint32(m.config.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(m.config.FrameSamples)

	// Data callback - called from the device thread whenever a period of
	// audio is available. It must never block, so frames are dropped (with
	// an error signal) when the consumer falls behind.
	var callbacks malgo.DeviceCallbacks
	callbacks.Data = func(pOutputSample, pInputSamples []byte, framecount uint32) {
		dataCopy := make([]byte, len(pInputSamples))
		copy(dataCopy, pInputSamples)

		frame := SampleFrame{
			Seq:       m.nextSeq(),
			Timestamp: time.Now(),
			Data:      dataCopy,
			Samples:   int(framecount),
		}

		select {
		case m.frames <- frame:
		default:
			select {
			case m.errors <- fmt.Errorf("frame queue overflow, dropping frame %d", frame.Seq):
			default:
			}
		}
	}

	device, err := malgo.InitDevice(m.malgoContext.Context, deviceConfig, callbacks)
	if err != nil {
		m.malgoContext.Uninit()
		m.malgoContext.Free()
		m.setStopped()
		return fmt.Errorf("failed to initialize device: %w", err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		m.malgoContext.Uninit()
		m.malgoContext.Free()
		m.setStopped()
		return fmt.Errorf("failed to start device: %w", err)
	}

	go m.watch(ctx)

	return nil
}

// watch stops the capturer when the context is cancelled. It must not be
// tracked by anything Stop waits on, since it calls Stop itself.
func (m *MalgoCapturer) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		m.Stop()
	case <-m.stopChan:
	}
}

// Stop stops audio capture
func (m *MalgoCapturer) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopChan)

	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			return fmt.Errorf("failed to stop device: %w", err)
		}
		m.device.Uninit()
	}

	if m.malgoContext != nil {
		m.malgoContext.Uninit()
		m.malgoContext.Free()
	}

	close(m.frames)
	close(m.errors)

	return nil
}

// Frames returns a channel that receives captured sample frames
func (m *MalgoCapturer) Frames() <-chan SampleFrame {
	return m.frames
}

// Errors returns a channel that receives capture errors
func (m *MalgoCapturer) Errors() <-chan error {
	return m.errors
}

// IsRunning returns true if capture is currently active
func (m *MalgoCapturer) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *MalgoCapturer) nextSeq() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := m.seq
	m.seq++
	return seq
}

func (m *MalgoCapturer) setStopped() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}
