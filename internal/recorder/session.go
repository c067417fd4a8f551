package recorder

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the two capture session types.
type Kind string

const (
	KindClip  Kind = "clip"
	KindPanic Kind = "panic"
)

// Session represents one in-progress or finished capture. Counters are
// atomic because the capturing goroutine updates them while status queries
// read them.
type Session struct {
	ID        uuid.UUID
	Kind      Kind
	StartedAt time.Time
	Path      string

	samples atomic.Int64
	bytes   atomic.Int64
}

func newSession(kind Kind, start time.Time) *Session {
	return &Session{
		ID:        uuid.New(),
		Kind:      kind,
		StartedAt: start,
	}
}

func (s *Session) addSamples(n int) { s.samples.Add(int64(n)) }
func (s *Session) addBytes(n int)   { s.bytes.Add(int64(n)) }

// Samples returns the number of samples per channel captured so far.
func (s *Session) Samples() int64 { return s.samples.Load() }

// Bytes returns the number of PCM bytes captured so far.
func (s *Session) Bytes() int64 { return s.bytes.Load() }
