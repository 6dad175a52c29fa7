package vad

import (
	"fmt"

	"utter/internal/audio"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

// WebRTC classifies frames with the WebRTC voice activity detector. The
// detector keeps a little internal history; it is owned by one engine and
// must not be shared across goroutines.
type WebRTC struct {
	vad  *webrtcvad.VAD
	mode int
	pcm  []byte
}

// NewWebRTC creates a detector at aggressiveness 0 (least) to 3 (most).
func NewWebRTC(aggressiveness int) (*WebRTC, error) {
	if aggressiveness < 0 || aggressiveness > 3 {
		return nil, fmt.Errorf("vad aggressiveness must be 0-3 (got %d)", aggressiveness)
	}
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("vad init: %w", err)
	}
	if err := v.SetMode(aggressiveness); err != nil {
		return nil, fmt.Errorf("vad mode: %w", err)
	}
	return &WebRTC{vad: v, mode: aggressiveness}, nil
}

// Mode is the configured aggressiveness.
func (w *WebRTC) Mode() int { return w.mode }

// IsSpeech implements segment.Classifier.
func (w *WebRTC) IsSpeech(fr audio.Frame, sampleRate int) (bool, error) {
	if !w.vad.ValidRateAndFrameLength(sampleRate, len(fr.Samples)) {
		return false, fmt.Errorf("webrtc vad cannot take %d samples at %d Hz", len(fr.Samples), sampleRate)
	}
	w.pcm = audio.AppendPCM(w.pcm[:0], fr.Samples)
	return w.vad.Process(sampleRate, w.pcm)
}
