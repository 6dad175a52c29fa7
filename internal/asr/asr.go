// Package asr turns utterances into text.
package asr

import (
	"context"
	"strings"
	"time"

	"utter/internal/audio"
)

// WhisperRate is the sample rate whisper.cpp expects.
const WhisperRate = 16000

// Segment is one recognised span inside an utterance.
type Segment struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

// Transcript is the recognised text of one utterance.
type Transcript struct {
	Text     string
	Segments []Segment
	Elapsed  time.Duration
}

// Transcriber converts an utterance into text. Implementations serialise
// calls internally.
type Transcriber interface {
	Transcribe(ctx context.Context, u audio.Utterance) (Transcript, error)
	Close() error
}

// Options configures the whisper transcriber.
type Options struct {
	ModelPath string
	Language  string
	Threads   int
}

// PrepareSamples converts PCM16 at rate into float32 samples at WhisperRate.
func PrepareSamples(samples []int16, rate int) []float32 {
	f := audio.ToFloat32(samples)
	if rate != WhisperRate {
		f = audio.ResampleLinear(f, rate, WhisperRate)
	}
	return f
}

// JoinSegments joins segment texts into one line, collapsing whitespace.
func JoinSegments(segs []Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if t := strings.TrimSpace(s.Text); t != "" && !isNonSpeechMarker(t) {
			parts = append(parts, t)
		}
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// whisper emits bracketed markers such as [BLANK_AUDIO] or (music) for
// segments without words.
func isNonSpeechMarker(t string) bool {
	if len(t) < 2 {
		return false
	}
	first, last := t[0], t[len(t)-1]
	return (first == '[' && last == ']') || (first == '(' && last == ')')
}
