// Package vad provides frame classifiers for the segmentation engine: the
// WebRTC detector for normal use and a pure-Go energy gate as a fallback.
package vad

import (
	"fmt"
	"strings"

	"utter/internal/segment"
)

// Options selects and tunes a classifier.
type Options struct {
	Backend         string
	Aggressiveness  int
	EnergyThreshold float64
}

// New builds the classifier named by opts.Backend.
func New(opts Options) (segment.Classifier, error) {
	switch strings.ToLower(opts.Backend) {
	case "", "webrtc":
		return NewWebRTC(opts.Aggressiveness)
	case "energy":
		return NewEnergy(opts.EnergyThreshold)
	default:
		return nil, fmt.Errorf("unknown vad backend %q (want webrtc or energy)", opts.Backend)
	}
}
