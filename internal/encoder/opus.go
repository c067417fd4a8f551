package encoder

import (
	"fmt"
	"io"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"gopkg.in/hraban/opus.v2"
)

const (
	// opusFrameMs is the opus frame duration. 20ms is the codec's
	// recommended general-purpose frame size.
	opusFrameMs = 20

	// The RTP clock for opus is always 48kHz regardless of input rate.
	opusRTPClock   = 48000
	opusRTPPayload = 111
	opusSSRC       = 0x4e495050 // "NIPP"

	maxOpusPacket = 4000
)

// writerOnly strips io.Closer from a destination writer.
type writerOnly struct{ io.Writer }

// OpusStream encodes PCM into Opus packets and containerizes them as an
// OGG stream. Tuned for voice: VoIP application profile, variable bitrate
// around the configured target.
type OpusStream struct {
	enc       *opus.Encoder
	ogg       *oggwriter.OggWriter
	channels  int
	frameSize int // samples per channel per opus frame

	pending []int16
	packet  []byte
	rtpSeq  uint16
	rtpTS   uint32
	closed  bool
}

// NewOpusStream creates an opus/ogg encoding stream. sampleRate must be
// one of the opus-supported rates (8, 12, 16, 24 or 48 kHz).
func NewOpusStream(w io.Writer, sampleRate, channels, bitrate int) (*OpusStream, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	if bitrate > 0 {
		if err := enc.SetBitrate(bitrate); err != nil {
			return nil, fmt.Errorf("failed to set opus bitrate: %w", err)
		}
	}

	// oggwriter.Close closes the destination too when it implements
	// io.Closer. The file lifecycle belongs to the caller here, so hide
	// any Close method behind a plain Writer.
	ogg, err := oggwriter.NewWith(writerOnly{w}, uint32(sampleRate), uint16(channels))
	if err != nil {
		return nil, fmt.Errorf("failed to create ogg writer: %w", err)
	}

	return &OpusStream{
		enc:       enc,
		ogg:       ogg,
		channels:  channels,
		frameSize: sampleRate * opusFrameMs / 1000,
		packet:    make([]byte, maxOpusPacket),
	}, nil
}

// WritePCM consumes interleaved S16LE bytes, encoding every complete
// 20ms frame.
func (s *OpusStream) WritePCM(p []byte) error {
	if s.closed {
		return fmt.Errorf("write on closed opus stream")
	}

	for i := 0; i+1 < len(p); i += 2 {
		s.pending = append(s.pending, int16(p[i])|int16(p[i+1])<<8)
	}

	samplesPerFrame := s.frameSize * s.channels
	for len(s.pending) >= samplesPerFrame {
		if err := s.encodeFrame(s.pending[:samplesPerFrame]); err != nil {
			return err
		}
		s.pending = s.pending[:copy(s.pending, s.pending[samplesPerFrame:])]
	}
	return nil
}

// Close pads the final partial frame with silence, flushes it and
// finalizes the OGG container. The underlying writer stays open.
func (s *OpusStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if len(s.pending) > 0 {
		samplesPerFrame := s.frameSize * s.channels
		frame := make([]int16, samplesPerFrame)
		copy(frame, s.pending)
		if err := s.encodeFrame(frame); err != nil {
			return err
		}
		s.pending = nil
	}

	if err := s.ogg.Close(); err != nil {
		return fmt.Errorf("failed to finalize ogg container: %w", err)
	}
	return nil
}

func (s *OpusStream) encodeFrame(frame []int16) error {
	n, err := s.enc.Encode(frame, s.packet)
	if err != nil {
		return fmt.Errorf("opus encode failed: %w", err)
	}

	payload := make([]byte, n)
	copy(payload, s.packet[:n])

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    opusRTPPayload,
			SequenceNumber: s.rtpSeq,
			Timestamp:      s.rtpTS,
			SSRC:           opusSSRC,
		},
		Payload: payload,
	}
	if err := s.ogg.WriteRTP(pkt); err != nil {
		return fmt.Errorf("failed to write ogg page: %w", err)
	}

	s.rtpSeq++
	s.rtpTS += opusRTPClock * opusFrameMs / 1000
	return nil
}
