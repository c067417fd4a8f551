package recorder

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pifinski/PanikNippelboard/internal/audio"
	"github.com/pifinski/PanikNippelboard/internal/encoder"
)

// runClip collects the live tail after a clip trigger, splices it onto the
// ring buffer snapshot and writes the encoded artifact. It owns the
// session from activation to the return to Idle.
func (r *Recorder) runClip(sess *Session, snapshot []audio.SampleFrame, tap *frameTap) {
	defer r.wg.Done()
	defer r.finishSession()

	var lastSeq uint64
	hasSnapshot := len(snapshot) > 0
	if hasSnapshot {
		lastSeq = snapshot[len(snapshot)-1].Seq
	}
	for _, f := range snapshot {
		sess.addSamples(f.Samples)
		sess.addBytes(len(f.Data))
	}

	// Collect the live tail. The deadline only matters when the audio
	// source stalls; a healthy source fills the target first.
	target := r.samplesFor(r.opts.ClipPost)
	deadline := time.NewTimer(r.opts.ClipPost + r.opts.ClipGrace)
	defer deadline.Stop()

	var live []audio.SampleFrame
	collected := 0
collect:
	for collected < target {
		select {
		case f, ok := <-tap.Frames():
			if !ok {
				// Shutdown: emit whatever has been collected.
				break collect
			}
			// Frames already covered by the snapshot are skipped so the
			// splice never duplicates audio.
			if hasSnapshot && f.Seq <= lastSeq {
				continue
			}
			live = append(live, f)
			collected += f.Samples
			sess.addSamples(f.Samples)
			sess.addBytes(len(f.Data))
		case <-deadline.C:
			r.log.Warnw("clip live window timed out, emitting short clip",
				"session", sess.ID,
				"collected", collected,
				"target", target,
			)
			break collect
		}
	}
	r.detachTap(tap)

	if hasSnapshot && len(live) > 0 && live[0].Seq != lastSeq+1 {
		// A stall at the splice shortens the clip; it must never be padded
		// or filled by re-reading frames.
		r.log.Warnw("gap at clip splice point",
			"session", sess.ID,
			"expected_seq", lastSeq+1,
			"got_seq", live[0].Seq,
		)
	}
	if dropped := tap.Dropped(); dropped > 0 {
		r.log.Warnw("clip tail dropped frames under backpressure",
			"session", sess.ID, "dropped", dropped)
	}

	path := filepath.Join(r.opts.ClipDir, encoder.ClipFilename(sess.StartedAt, r.opts.Format))
	sess.Path = path

	err := encoder.WriteFileAtomic(path, func(f *os.File) error {
		stream, err := encoder.NewStream(f, r.opts.Format, r.opts.SampleRate, r.opts.Channels, r.opts.Bitrate)
		if err != nil {
			return err
		}
		for _, fr := range snapshot {
			if err := stream.WritePCM(fr.Data); err != nil {
				return err
			}
		}
		for _, fr := range live {
			if err := stream.WritePCM(fr.Data); err != nil {
				return err
			}
		}
		return stream.Close()
	})
	if err != nil {
		// Transient I/O failure: the temp file is already gone, the
		// session aborts and the state machine returns to Idle.
		r.log.Errorw("clip capture aborted", "session", sess.ID, "error", err)
		return
	}

	duration := time.Duration(sess.Samples()) * time.Second / time.Duration(r.opts.SampleRate)
	r.log.Infow("clip saved",
		"session", sess.ID,
		"path", path,
		"duration", duration,
	)
	r.notifySaved(sess)
}

// detachTap removes the tap from the dispatch path and closes it.
func (r *Recorder) detachTap(tap *frameTap) {
	r.mu.Lock()
	if r.tap == tap {
		r.tap = nil
	}
	r.mu.Unlock()
	tap.Close()
}
