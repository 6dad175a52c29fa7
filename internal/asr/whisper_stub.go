//go:build !whisper

package asr

import (
	"context"
	"errors"

	"utter/internal/audio"
)

// ErrNoWhisper is returned when the binary was built without whisper.cpp.
var ErrNoWhisper = errors.New("built without whisper support; rebuild with '-tags whisper'")

// Whisper is unavailable in this build.
type Whisper struct{}

// NewWhisper always fails in builds without whisper.cpp.
func NewWhisper(Options) (*Whisper, error) { return nil, ErrNoWhisper }

func (w *Whisper) Transcribe(context.Context, audio.Utterance) (Transcript, error) {
	return Transcript{}, ErrNoWhisper
}

func (w *Whisper) TranscribeSamples(context.Context, []int16, int) (Transcript, error) {
	return Transcript{}, ErrNoWhisper
}

func (w *Whisper) Close() error { return nil }

// Available reports whether this build can transcribe.
func Available() bool { return false }
