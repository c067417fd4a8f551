package recorder

// State is the capture arbitration state. Exactly one capture session can
// own the live stream at a time; every trigger is serialized through the
// Recorder, which is the only writer of this state.
type State int

const (
	// StateIdle means the ring buffer is filling and no session is active.
	StateIdle State = iota

	// StateClipCapturing means a bounded clip is collecting its live tail
	// or being written out.
	StateClipCapturing

	// StatePanicRecording means an open-ended encrypted recording is
	// streaming to disk.
	StatePanicRecording
)

// String returns the state name for status display.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateClipCapturing:
		return "ClipCapturing"
	case StatePanicRecording:
		return "PanicRecording"
	default:
		return "Unknown"
	}
}
