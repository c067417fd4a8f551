package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pifinski/PanikNippelboard/internal/config"
	"github.com/pifinski/PanikNippelboard/internal/crypto"
	"github.com/pifinski/PanikNippelboard/internal/encoder"
)

// startPanic opens the encrypted artifact and activates the panic
// controller. The file is created at its final path immediately: a panic
// recording must survive the process being killed, so there is no temp
// file and no rename.
func (r *Recorder) startPanic() error {
	sess := newSession(KindPanic, r.opts.Now())

	if err := os.MkdirAll(r.opts.PanicDir, 0o755); err != nil {
		return fmt.Errorf("failed to create panic dir: %w", err)
	}
	path := filepath.Join(r.opts.PanicDir, encoder.PanicFilename(sess.StartedAt, r.opts.Format))
	sess.Path = path

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create panic artifact: %w", err)
	}

	var sw *crypto.StreamWriter
	switch r.opts.CryptoMode {
	case config.CryptoModeAsymmetric:
		sw, err = crypto.NewStreamWriter(f, r.opts.PublicKey)
	case config.CryptoModeSymmetric:
		sw, err = crypto.NewSymmetricStreamWriter(f, r.opts.Passphrase)
	default:
		err = fmt.Errorf("unknown crypto mode %q", r.opts.CryptoMode)
	}
	if err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to open encrypted stream: %w", err)
	}

	enc, err := encoder.NewStream(sw, r.opts.Format, r.opts.SampleRate, r.opts.Channels, r.opts.Bitrate)
	if err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to open panic encoder: %w", err)
	}

	tap := newFrameTap(r.opts.TapQueue)

	r.mu.Lock()
	r.session = sess
	r.tap = tap
	r.state = StatePanicRecording
	r.transitioning = false
	r.mu.Unlock()

	r.log.Warnw("panic recording started",
		"session", sess.ID,
		"path", path,
		"crypto", r.opts.CryptoMode,
	)

	r.wg.Add(1)
	go r.runPanic(sess, f, sw, enc, tap)
	return nil
}

// runPanic streams live frames through the encoder into the encrypted
// sink until the tap closes. Buffered ciphertext is sealed periodically so
// an abrupt kill loses at most one flush interval of audio.
func (r *Recorder) runPanic(sess *Session, f *os.File, sw *crypto.StreamWriter, enc encoder.Stream, tap *frameTap) {
	defer r.wg.Done()
	defer r.finishSession()

	ticker := time.NewTicker(r.opts.PanicFlushInterval)
	defer ticker.Stop()

	// On error the partial artifact stays on disk. Everything flushed so
	// far is still decryptable up to the failure point.
	abort := func(stage string, err error) {
		r.log.Errorw("panic recording aborted",
			"session", sess.ID,
			"stage", stage,
			"path", sess.Path,
			"error", err,
		)
		f.Close()
		tap.Close()
	}

	for {
		select {
		case frame, ok := <-tap.Frames():
			if !ok {
				if err := enc.Close(); err != nil {
					abort("encoder close", err)
					return
				}
				if err := sw.Close(); err != nil {
					abort("stream close", err)
					return
				}
				if err := f.Sync(); err != nil {
					abort("sync", err)
					return
				}
				if err := f.Close(); err != nil {
					r.log.Warnw("panic artifact close failed", "session", sess.ID, "error", err)
				}
				if dropped := tap.Dropped(); dropped > 0 {
					r.log.Warnw("panic recording dropped frames under backpressure",
						"session", sess.ID, "dropped", dropped)
				}
				r.log.Warnw("panic recording sealed",
					"session", sess.ID,
					"path", sess.Path,
					"duration", r.opts.Now().Sub(sess.StartedAt),
					"bytes", sess.Bytes(),
				)
				r.notifySaved(sess)
				return
			}
			if err := enc.WritePCM(frame.Data); err != nil {
				abort("encode", err)
				return
			}
			sess.addSamples(frame.Samples)
			sess.addBytes(len(frame.Data))

		case <-ticker.C:
			if err := sw.Flush(); err != nil {
				abort("flush", err)
				return
			}
			if err := f.Sync(); err != nil {
				abort("sync", err)
				return
			}
		}
	}
}
