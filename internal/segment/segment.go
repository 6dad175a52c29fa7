// Package segment turns a stream of fixed-size audio frames into discrete
// utterances. An Engine owns the buffering state machine; a Pipeline pulls
// frames from a Source, feeds the Engine and hands finished utterances to a
// Sink in capture order.
package segment

import (
	"context"

	"utter/internal/audio"
)

// Classifier decides whether one frame contains speech. The decision must
// depend on the frame alone as far as the engine can tell; any history a
// detector keeps is its own business. An error means the frame could not be
// classified at all and is treated as fatal by the engine.
type Classifier interface {
	IsSpeech(frame audio.Frame, sampleRate int) (bool, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(frame audio.Frame, sampleRate int) (bool, error)

func (f ClassifierFunc) IsSpeech(frame audio.Frame, sampleRate int) (bool, error) {
	return f(frame, sampleRate)
}

// Source yields frames in capture order. Next blocks until a frame is
// available and returns io.EOF once the session has no more audio.
type Source interface {
	Next(ctx context.Context) (audio.Frame, error)
}

// Sink receives completed utterances. Ownership of the utterance passes to
// the sink; the caller keeps no reference to its frames.
type Sink interface {
	Accept(ctx context.Context, u audio.Utterance) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, u audio.Utterance) error

func (f SinkFunc) Accept(ctx context.Context, u audio.Utterance) error {
	return f(ctx, u)
}
