package encoder

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	wavHeaderSize = 44
	// Streaming placeholder when the writer cannot seek; most decoders
	// read to EOF when the RIFF sizes claim more data than present.
	wavUnknownSize = 0xFFFFFFFF
)

// WAVStream writes a 16-bit PCM WAV file incrementally.
//
// The RIFF header carries size fields that are only known at the end. When
// the underlying writer is seekable the sizes are patched on Close;
// otherwise the header keeps streaming placeholders, which keeps a
// killed-mid-write file decodable at the cost of exact length metadata.
type WAVStream struct {
	w          io.Writer
	sampleRate int
	channels   int
	dataBytes  uint32
	started    bool
	closed     bool
}

// NewWAVStream creates a WAV encoding stream.
func NewWAVStream(w io.Writer, sampleRate, channels int) *WAVStream {
	return &WAVStream{w: w, sampleRate: sampleRate, channels: channels}
}

// WritePCM appends interleaved S16LE samples, emitting the header first.
func (s *WAVStream) WritePCM(p []byte) error {
	if s.closed {
		return fmt.Errorf("write on closed wav stream")
	}
	if !s.started {
		if err := s.writeHeader(wavUnknownSize); err != nil {
			return err
		}
		s.started = true
	}
	if _, err := s.w.Write(p); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	s.dataBytes += uint32(len(p))
	return nil
}

// Close finalizes the file, patching the header sizes if possible.
func (s *WAVStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if !s.started {
		// Empty recording still gets a valid header.
		if err := s.writeHeader(0); err != nil {
			return err
		}
		return nil
	}

	seeker, ok := s.w.(io.WriteSeeker)
	if !ok {
		return nil
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind for header patch: %w", err)
	}
	if err := s.writeHeader(s.dataBytes); err != nil {
		return err
	}
	if _, err := seeker.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek back: %w", err)
	}
	return nil
}

func (s *WAVStream) writeHeader(dataBytes uint32) error {
	riffSize := dataBytes
	if dataBytes != wavUnknownSize {
		riffSize = wavHeaderSize - 8 + dataBytes
	}

	blockAlign := uint16(s.channels * 2)
	fields := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		riffSize,
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16), // PCM fmt chunk size
		uint16(1),  // PCM format tag
		uint16(s.channels),
		uint32(s.sampleRate),
		uint32(s.sampleRate) * uint32(blockAlign), // byte rate
		blockAlign,
		uint16(16), // bits per sample
		[4]byte{'d', 'a', 't', 'a'},
		dataBytes,
	}
	for _, f := range fields {
		if err := binary.Write(s.w, binary.LittleEndian, f); err != nil {
			return fmt.Errorf("failed to write wav header: %w", err)
		}
	}
	return nil
}
