// Package encoder turns captured PCM into on-disk audio artifacts.
//
// Two formats are supported: Opus in an OGG container (lossy, tuned for
// narrow-band voice) and plain WAV. OGG is the default and the only format
// whose container stays decodable when a stream is cut off mid-write,
// which is why panic recordings prefer it.
package encoder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Formats accepted by NewStream.
const (
	FormatOgg = "ogg"
	FormatWAV = "wav"
)

// Stream encodes interleaved S16LE PCM pushed incrementally and writes the
// encoded result to an underlying writer.
type Stream interface {
	// WritePCM consumes interleaved S16LE bytes.
	WritePCM(p []byte) error

	// Close flushes any buffered audio and finalizes the container. It
	// does not close the underlying writer.
	Close() error
}

// NewStream creates an encoding stream for the given format. bitrate is
// only meaningful for ogg.
func NewStream(w io.Writer, format string, sampleRate, channels, bitrate int) (Stream, error) {
	switch format {
	case FormatOgg:
		return NewOpusStream(w, sampleRate, channels, bitrate)
	case FormatWAV:
		return NewWAVStream(w, sampleRate, channels), nil
	default:
		return nil, fmt.Errorf("unknown recording format %q", format)
	}
}

// Extension returns the file extension for a format, without dot.
func Extension(format string) string {
	return format
}

// timestampLayout is ISO8601 compact; collision-resistant at one trigger
// per second, which physical buttons cannot exceed after debouncing.
const timestampLayout = "20060102T150405"

// ClipFilename derives the clip artifact name from the session start time.
func ClipFilename(start time.Time, format string) string {
	return fmt.Sprintf("clip_%s.%s", start.Format(timestampLayout), Extension(format))
}

// PanicFilename derives the encrypted panic artifact name from the session
// start time. The .enc suffix follows the inner audio extension.
func PanicFilename(start time.Time, format string) string {
	return fmt.Sprintf("panic_%s.%s.enc", start.Format(timestampLayout), Extension(format))
}

// WriteFileAtomic writes a file via a temporary path in the same directory
// and renames it into place on success, so a failed or interrupted write
// never leaves a partial artifact behind.
func WriteFileAtomic(path string, write func(*os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to sync output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}
