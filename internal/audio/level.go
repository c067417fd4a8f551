package audio

import "math"

// LevelMeter tracks a smoothed input level for status display.
//
// The soundboard GUI polls it to show whether the receiver is actually
// delivering audio; it has no influence on capture decisions.
type LevelMeter struct {
	smoothing float64
	level     float64
}

// NewLevelMeter creates a meter with the given smoothing factor (0..1,
// higher = slower decay).
func NewLevelMeter(smoothing float64) *LevelMeter {
	if smoothing < 0 || smoothing >= 1 {
		smoothing = 0.8
	}
	return &LevelMeter{smoothing: smoothing}
}

// Process folds a frame's RMS energy into the smoothed level and returns
// the updated level.
func (l *LevelMeter) Process(frame SampleFrame) float64 {
	energy := rmsEnergy(frame.Data)
	l.level = l.smoothing*l.level + (1-l.smoothing)*energy
	return l.level
}

// Level returns the current smoothed level, 0.0 to 1.0.
func (l *LevelMeter) Level() float64 {
	return l.level
}

// rmsEnergy calculates the RMS energy of an S16LE buffer, normalized to
// 0.0..1.0.
func rmsEnergy(data []byte) float64 {
	sampleCount := len(data) / 2
	if sampleCount == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < sampleCount; i++ {
		sample := int16(data[i*2]) | int16(data[i*2+1])<<8
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}

	return math.Sqrt(sum / float64(sampleCount))
}
