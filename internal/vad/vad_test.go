package vad

import (
	"math"
	"testing"

	"utter/internal/audio"
)

var format = audio.Format{SampleRate: 16000, FrameMS: 20}

func tone(amplitude float64) audio.Frame {
	s := make([]int16, format.FrameSamples())
	for i := range s {
		s[i] = int16(amplitude * 32767 * math.Sin(2*math.Pi*440*float64(i)/float64(format.SampleRate)))
	}
	return audio.NewFrame(format, 0, s)
}

func TestRMS(t *testing.T) {
	if got := RMS(make([]int16, 320)); got != 0 {
		t.Fatalf("silence rms %g", got)
	}
	full := make([]int16, 4)
	for i := range full {
		full[i] = -32768
	}
	if got := RMS(full); got != 1 {
		t.Fatalf("full scale rms %g", got)
	}
}

func TestEnergyClassifier(t *testing.T) {
	e, err := NewEnergy(0.05)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	quiet, err := e.IsSpeech(tone(0.01), format.SampleRate)
	if err != nil || quiet {
		t.Fatalf("quiet tone classified as speech (err=%v)", err)
	}
	loud, err := e.IsSpeech(tone(0.5), format.SampleRate)
	if err != nil || !loud {
		t.Fatalf("loud tone not classified as speech (err=%v)", err)
	}
	again, _ := e.IsSpeech(tone(0.01), format.SampleRate)
	if again {
		t.Fatalf("energy gate must not carry state between frames")
	}
}

func TestEnergyRejectsBadThreshold(t *testing.T) {
	for _, th := range []float64{0, -1, 1, 2} {
		if _, err := NewEnergy(th); err == nil {
			t.Fatalf("threshold %g accepted", th)
		}
	}
}

func TestWebRTCSilence(t *testing.T) {
	w, err := NewWebRTC(3)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	speech, err := w.IsSpeech(audio.NewFrame(format, 0, make([]int16, format.FrameSamples())), format.SampleRate)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if speech {
		t.Fatalf("digital silence classified as speech")
	}
}

func TestWebRTCRejectsOddFrame(t *testing.T) {
	w, err := NewWebRTC(2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := w.IsSpeech(audio.Frame{Samples: make([]int16, 123)}, format.SampleRate); err == nil {
		t.Fatalf("expected error for 123-sample frame")
	}
}

func TestNewBackends(t *testing.T) {
	if _, err := New(Options{Backend: "energy", EnergyThreshold: 0.02}); err != nil {
		t.Fatalf("energy: %v", err)
	}
	if _, err := New(Options{Backend: "webrtc", Aggressiveness: 2}); err != nil {
		t.Fatalf("webrtc: %v", err)
	}
	if _, err := New(Options{Backend: "silero"}); err == nil {
		t.Fatalf("unknown backend accepted")
	}
	if _, err := NewWebRTC(4); err == nil {
		t.Fatalf("aggressiveness 4 accepted")
	}
}
