package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMalgoCapturerValidatesConfig(t *testing.T) {
	_, err := NewMalgoCapturer(CaptureConfig{SampleRate: 0, Channels: 1, FrameSamples: 1024})
	assert.Error(t, err)

	c, err := NewMalgoCapturer(DefaultCaptureConfig())
	require.NoError(t, err)
	assert.False(t, c.IsRunning())
}

func TestMalgoCapturerStopBeforeStart(t *testing.T) {
	c, err := NewMalgoCapturer(DefaultCaptureConfig())
	require.NoError(t, err)
	assert.NoError(t, c.Stop())
}

func TestMalgoCapturerContextCancelStops(t *testing.T) {
	c, err := NewMalgoCapturer(DefaultCaptureConfig())
	require.NoError(t, err)

	// Drive the lifecycle without a device: mark the capturer running and
	// hand the watcher a context that is already being torn down. Stop
	// must complete instead of waiting on the goroutine that invoked it.
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	go c.watch(ctx)
	cancel()

	require.Eventually(t, func() bool {
		return !c.IsRunning()
	}, time.Second, 5*time.Millisecond, "cancellation must stop the capturer")

	_, ok := <-c.Frames()
	assert.False(t, ok, "frame channel must be closed after stop")
	_, ok = <-c.Errors()
	assert.False(t, ok, "error channel must be closed after stop")
}

func TestMalgoCapturerStopIdempotent(t *testing.T) {
	c, err := NewMalgoCapturer(DefaultCaptureConfig())
	require.NoError(t, err)

	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	require.NoError(t, c.Stop())
	assert.NoError(t, c.Stop(), "second stop must be a no-op")
}
