package segment

import (
	"fmt"
	"time"

	"utter/internal/audio"
)

// DefaultSilenceFrames closes an utterance after 200 ms of silence at 20 ms
// framing.
const DefaultSilenceFrames = 10

// Config is the full set of knobs for one engine.
type Config struct {
	Format audio.Format
	// SilenceFrames is the number of consecutive non-speech frames that ends
	// an utterance. Those frames are kept as the utterance's tail.
	SilenceFrames int
	// Cooldown suppresses new buffering for this long after each emission.
	// Frames arriving inside the window are discarded unclassified.
	Cooldown time.Duration
}

// Validate reports configuration errors wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	if err := c.Format.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.SilenceFrames <= 0 {
		return fmt.Errorf("%w: silence_frames must be positive (got %d)", ErrInvalidConfig, c.SilenceFrames)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("%w: cooldown must not be negative (got %s)", ErrInvalidConfig, c.Cooldown)
	}
	return nil
}

// State is the engine's coarse state.
type State int

const (
	Idle State = iota
	Buffering
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Buffering:
		return "buffering"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Disposition records what happened to a frame.
type Disposition int

const (
	// Buffered frames became part of the in-progress utterance.
	Buffered Disposition = iota
	// DiscardedLeading frames were non-speech with nothing buffered.
	DiscardedLeading
	// DiscardedCooldown frames arrived inside the post-emission cooldown.
	DiscardedCooldown
)

func (d Disposition) String() string {
	switch d {
	case Buffered:
		return "buffered"
	case DiscardedLeading:
		return "discarded-leading"
	case DiscardedCooldown:
		return "discarded-cooldown"
	default:
		return fmt.Sprintf("disposition(%d)", int(d))
	}
}

// Step is the outcome of feeding one frame.
type Step struct {
	Disposition Disposition
	// Classified is false for cooldown frames and for overflow frames, which
	// count as silence without consulting the classifier.
	Classified bool
	Speech     bool
	// Utterance is set when this frame closed an utterance.
	Utterance *audio.Utterance
}

// Clock reports the time at which a frame is considered to arrive.
type Clock func(fr audio.Frame) time.Time

// WallClock uses the current time, for live capture.
func WallClock(audio.Frame) time.Time { return time.Now() }

// StreamClock anchors frame offsets at epoch, for replayed audio where the
// cooldown should follow the recording rather than the replay speed.
func StreamClock(epoch time.Time) Clock {
	return func(fr audio.Frame) time.Time { return epoch.Add(fr.Offset) }
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for the cooldown window.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// Engine is the segmentation state machine. It is not safe for concurrent
// use; one pipeline goroutine owns it for the lifetime of a session.
type Engine struct {
	cfg          Config
	classifier   Classifier
	clock        Clock
	frameSamples int

	buf           []audio.Frame
	silence       int
	emitted       uint64
	cooldownUntil time.Time
}

// NewEngine validates cfg and returns an idle engine using classifier c.
func NewEngine(cfg Config, c Classifier, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: classifier is required", ErrInvalidConfig)
	}
	e := &Engine{
		cfg:          cfg,
		classifier:   c,
		clock:        WallClock,
		frameSamples: cfg.Format.FrameSamples(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// State reports Idle when nothing is buffered.
func (e *Engine) State() State {
	if len(e.buf) == 0 {
		return Idle
	}
	return Buffering
}

// Pending is the number of buffered frames.
func (e *Engine) Pending() int { return len(e.buf) }

// SilenceRun is the current trailing-silence count.
func (e *Engine) SilenceRun() int { return e.silence }

// Emitted is the number of utterances produced so far.
func (e *Engine) Emitted() uint64 { return e.emitted }

// Process feeds one frame through the state machine.
func (e *Engine) Process(fr audio.Frame) (Step, error) {
	if len(fr.Samples) != e.frameSamples {
		return Step{}, fmt.Errorf("%w: frame %d has %d samples, want %d", ErrMalformedFrame, fr.Seq, len(fr.Samples), e.frameSamples)
	}
	now := e.clock(fr)
	if e.coolingDown(now) {
		return Step{Disposition: DiscardedCooldown}, nil
	}

	var step Step
	if !fr.Overflow {
		speech, err := e.classifier.IsSpeech(fr, e.cfg.Format.SampleRate)
		if err != nil {
			return Step{}, fmt.Errorf("%w: classify frame %d: %w", ErrMalformedFrame, fr.Seq, err)
		}
		step.Classified = true
		step.Speech = speech
	}

	switch {
	case step.Speech:
		e.buf = append(e.buf, fr)
		e.silence = 0
		step.Disposition = Buffered
	case len(e.buf) == 0:
		step.Disposition = DiscardedLeading
	default:
		e.buf = append(e.buf, fr)
		e.silence++
		step.Disposition = Buffered
	}

	if len(e.buf) > 0 && e.silence >= e.cfg.SilenceFrames {
		u := e.cut(now)
		step.Utterance = &u
	}
	return step, nil
}

// Reset drops any in-progress utterance and returns how many frames it held.
// Cooldown state is kept.
func (e *Engine) Reset() int {
	n := len(e.buf)
	e.buf = nil
	e.silence = 0
	return n
}

func (e *Engine) coolingDown(now time.Time) bool {
	if e.cooldownUntil.IsZero() {
		return false
	}
	if now.Before(e.cooldownUntil) {
		return true
	}
	e.cooldownUntil = time.Time{}
	return false
}

// cut hands the buffer over as an utterance and returns to Idle. The engine
// drops its slice so the utterance owns its frames exclusively.
func (e *Engine) cut(now time.Time) audio.Utterance {
	u := audio.Utterance{
		Seq:             e.emitted,
		Format:          e.cfg.Format,
		Frames:          e.buf,
		TrailingSilence: e.silence,
		CapturedAt:      now,
	}
	e.buf = nil
	e.silence = 0
	e.emitted++
	if e.cfg.Cooldown > 0 {
		e.cooldownUntil = now.Add(e.cfg.Cooldown)
	}
	return u
}
