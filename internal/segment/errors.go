package segment

import "errors"

var (
	// ErrInvalidConfig is returned by NewEngine for an unusable rate, frame
	// duration, threshold or cooldown. The engine refuses to start.
	ErrInvalidConfig = errors.New("invalid segmentation config")

	// ErrMalformedFrame is returned when a frame of the wrong length reaches
	// the engine, or the classifier rejects it. It ends the session.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrSinkFailure wraps an error from Sink.Accept. Segmentation continues;
	// the utterance is not re-buffered.
	ErrSinkFailure = errors.New("utterance sink failed")

	// ErrQueueClosed is returned by Queue.Accept after Close.
	ErrQueueClosed = errors.New("utterance queue closed")
)
