package vad

import (
	"fmt"
	"math"

	"utter/internal/audio"
)

// Energy marks a frame as speech when its RMS level, normalised to [0, 1],
// reaches the threshold. It keeps no state between frames.
type Energy struct {
	threshold float64
}

// NewEnergy returns an energy gate. Typical thresholds are 0.01-0.03.
func NewEnergy(threshold float64) (*Energy, error) {
	if threshold <= 0 || threshold >= 1 {
		return nil, fmt.Errorf("energy threshold must be in (0, 1), got %g", threshold)
	}
	return &Energy{threshold: threshold}, nil
}

// IsSpeech implements segment.Classifier.
func (e *Energy) IsSpeech(fr audio.Frame, _ int) (bool, error) {
	if len(fr.Samples) == 0 {
		return false, fmt.Errorf("empty frame")
	}
	return RMS(fr.Samples) >= e.threshold, nil
}

// RMS is the root-mean-square level of pcm scaled to [0, 1].
func RMS(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range pcm {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(pcm)))
}
