// Package app wires configuration, audio capture, triggers and the
// recorder core into the long-running device daemon.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pifinski/PanikNippelboard/internal/audio"
	"github.com/pifinski/PanikNippelboard/internal/config"
	"github.com/pifinski/PanikNippelboard/internal/crypto"
	"github.com/pifinski/PanikNippelboard/internal/input"
	"github.com/pifinski/PanikNippelboard/internal/recorder"
)

// Daemon is the always-on capture service: it keeps the ring buffer fed
// from the configured device and reacts to clip and panic triggers until
// it is signalled to stop.
type Daemon struct {
	cfg *config.Config
	log *zap.SugaredLogger
}

// NewDaemon creates a Daemon around a validated-later configuration.
func NewDaemon(cfg *config.Config, log *zap.SugaredLogger) *Daemon {
	return &Daemon{cfg: cfg, log: log}
}

// Run starts capture and blocks until the context is cancelled or a
// SIGINT/SIGTERM arrives. In-flight sessions are finalized before return.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	opts := recorder.Options{
		SampleRate:   d.cfg.Audio.SampleRate,
		Channels:     d.cfg.Audio.Channels,
		RingDuration: time.Duration(d.cfg.Buffer.RingSeconds) * time.Second,
		ClipPost:     time.Duration(d.cfg.Buffer.ClipPostSeconds) * time.Second,
		ClipDir:      d.cfg.Storage.ClipDir,
		PanicDir:     d.cfg.Storage.PanicDir,
		Format:       d.cfg.Storage.Format,
		Bitrate:      d.cfg.Storage.Bitrate,
		CryptoMode:   d.cfg.Crypto.Mode,
		FrameSamples: d.cfg.Audio.FrameSamples,
	}
	switch d.cfg.Crypto.Mode {
	case config.CryptoModeAsymmetric:
		pub, err := crypto.LoadPublicKey(d.cfg.Crypto.PublicKeyPath)
		if err != nil {
			return fmt.Errorf("failed to load public key: %w", err)
		}
		opts.PublicKey = pub
	case config.CryptoModeSymmetric:
		opts.Passphrase = []byte(d.cfg.Crypto.Passphrase)
	}

	device, err := audio.FindDevice(d.cfg.Audio.Device)
	if err != nil {
		return err
	}
	d.log.Infow("using capture device", "name", device.Name, "id", device.ID)

	capturer, err := audio.NewCapturer(audio.CaptureConfig{
		SampleRate:     d.cfg.Audio.SampleRate,
		Channels:       d.cfg.Audio.Channels,
		FrameSamples:   d.cfg.Audio.FrameSamples,
		FrameQueueSize: 64,
		DeviceID:       device.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to create capturer: %w", err)
	}

	rec, err := recorder.New(opts, d.log)
	if err != nil {
		return err
	}
	rec.OnSaved(func(s *recorder.Session) {
		d.log.Infow("artifact ready", "kind", s.Kind, "path", s.Path, "samples", s.Samples())
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := capturer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	// Hotkeys are the desktop trigger surface. On a headless device with
	// no display server they fail to register; the daemon still runs and
	// the GPIO wrapper keeps triggering via signals or IPC.
	hotkeys := input.NewManager(
		input.Binding{Combo: d.cfg.Triggers.ClipHotkey, Fire: func() { rec.TriggerClip() }},
		input.Binding{Combo: d.cfg.Triggers.PanicHotkey, Fire: func() { rec.TogglePanic() }},
	)
	if err := hotkeys.Start(ctx); err != nil {
		d.log.Warnw("hotkeys unavailable, external triggers only", "error", err)
	} else {
		defer hotkeys.Stop()
		d.log.Infow("hotkeys registered",
			"clip", d.cfg.Triggers.ClipHotkey,
			"panic", d.cfg.Triggers.PanicHotkey,
		)
	}

	d.log.Infow("capture running",
		"sample_rate", d.cfg.Audio.SampleRate,
		"channels", d.cfg.Audio.Channels,
		"ring", opts.RingDuration,
		"format", d.cfg.Storage.Format,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		frames := capturer.Frames()
		errs := capturer.Errors()
		for {
			select {
			case <-gctx.Done():
				return nil
			case frame, ok := <-frames:
				if !ok {
					return fmt.Errorf("capture stream ended unexpectedly")
				}
				rec.Dispatch(frame)
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				// Queue overflow and device hiccups are survivable; the
				// ring keeps whatever did arrive.
				d.log.Warnw("capture error", "error", err)
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				st := rec.Status()
				d.log.Debugw("status",
					"state", st.State.String(),
					"ring_fill", fmt.Sprintf("%.0f%%", st.RingFill*100),
					"level", fmt.Sprintf("%.4f", st.InputLevel),
					"panic_duration", st.PanicDuration,
				)
			}
		}
	})

	runErr := g.Wait()

	if err := capturer.Stop(); err != nil {
		d.log.Warnw("capture stop failed", "error", err)
	}
	rec.Close()
	d.log.Infow("shutdown complete")
	return runErr
}
