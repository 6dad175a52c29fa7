package run

import (
	"context"
	"errors"
	"fmt"

	"utter/internal/asr"
	"utter/internal/audio"
	"utter/internal/config"
	"utter/internal/instruct"
	"utter/internal/segment"
	"utter/internal/sink"
	"utter/internal/vad"

	"github.com/sirupsen/logrus"
)

// Options selects the optional stages of a Runtime.
type Options struct {
	// Transcribe loads the whisper model; Plan additionally asks the LLM
	// for a step breakdown of every transcript.
	Transcribe bool
	Plan       bool
	// Clock overrides the engine clock (segment.StreamClock for files).
	Clock segment.Clock
	// OnResult receives every processed utterance.
	OnResult func(ctx context.Context, r sink.Result) error
	// OnStep observes every engine step along with the queue depth.
	OnStep func(fr audio.Frame, st segment.Step, queued int)
}

// Runtime wires a frame source through segmentation into the processing
// chain: record, transcribe, plan, then OnResult.
type Runtime struct {
	cfg       *config.Config
	logger    logrus.FieldLogger
	metrics   *Metrics
	engine    *segment.Engine
	processor *sink.Processor
	onStep    func(audio.Frame, segment.Step, int)
	closers   []func() error
}

// Format is the capture format described by cfg.
func Format(cfg *config.Config) audio.Format {
	return audio.Format{SampleRate: cfg.Audio.SampleRate, FrameMS: cfg.Audio.FrameMS}
}

// EngineConfig maps the [audio] and [segment] sections onto the engine.
func EngineConfig(cfg *config.Config) segment.Config {
	return segment.Config{
		Format:        Format(cfg),
		SilenceFrames: cfg.Segment.SilenceFrames,
		Cooldown:      cfg.Cooldown(),
	}
}

// NewEngine builds the configured classifier and a fresh engine.
func NewEngine(cfg *config.Config, opts ...segment.Option) (*segment.Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", segment.ErrInvalidConfig, err)
	}
	c, err := vad.New(vad.Options{
		Backend:         cfg.VAD.Backend,
		Aggressiveness:  cfg.VAD.Aggressiveness,
		EnergyThreshold: cfg.VAD.EnergyThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", segment.ErrInvalidConfig, err)
	}
	return segment.NewEngine(EngineConfig(cfg), c, opts...)
}

// NewRuntime builds the engine and the downstream chain. metrics may be nil.
func NewRuntime(cfg *config.Config, logger logrus.FieldLogger, m *Metrics, opts Options) (*Runtime, error) {
	var engineOpts []segment.Option
	if opts.Clock != nil {
		engineOpts = append(engineOpts, segment.WithClock(opts.Clock))
	}
	engine, err := NewEngine(cfg, engineOpts...)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{cfg: cfg, logger: logger, metrics: m, engine: engine, onStep: opts.OnStep}
	proc := &sink.Processor{Logger: logger}

	if cfg.Recordings.Enabled {
		rec, err := sink.NewRecorder(cfg.Recordings.Dir, cfg.Recordings.Keep)
		if err != nil {
			return nil, err
		}
		proc.Recorder = rec
	}
	if opts.Transcribe {
		w, err := asr.NewWhisper(asr.Options{
			ModelPath: cfg.ASR.ModelPath,
			Language:  cfg.ASR.Language,
			Threads:   cfg.ASR.Threads,
		})
		if err != nil {
			return nil, fmt.Errorf("asr init: %w", err)
		}
		proc.Transcriber = w
		rt.closers = append(rt.closers, w.Close)
	}
	if opts.Transcribe && opts.Plan {
		p, err := instruct.New(cfg)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		proc.Planner = p
	}
	proc.OnResult = func(ctx context.Context, r sink.Result) error {
		if rt.metrics != nil {
			rt.metrics.observeResult(r)
		}
		if opts.OnResult != nil {
			return opts.OnResult(ctx, r)
		}
		return nil
	}
	rt.processor = proc
	return rt, nil
}

// Engine exposes the segmentation engine.
func (rt *Runtime) Engine() *segment.Engine { return rt.engine }

// Run segments src until it ends or ctx is cancelled. Utterances already
// handed to the queue are processed before Run returns.
func (rt *Runtime) Run(ctx context.Context, src segment.Source) (segment.Stats, error) {
	var failures int
	q := segment.NewQueue(rt.processor, rt.cfg.Segment.QueueSize, func(u audio.Utterance, err error) {
		failures++
		if rt.metrics != nil {
			rt.metrics.SinkFailures.Inc()
		}
		rt.logger.WithField("utterance", u.Seq).Errorf("process utterance: %v", err)
	})
	q.Start(context.WithoutCancel(ctx))

	p := &segment.Pipeline{
		Source: src,
		Engine: rt.engine,
		Sink:   q,
		Logger: rt.logger,
		OnStep: func(fr audio.Frame, st segment.Step) {
			if rt.metrics != nil {
				rt.metrics.observeStep(fr, st)
				rt.metrics.QueueDepth.Set(float64(q.Len()))
			}
			if rt.onStep != nil {
				rt.onStep(fr, st, q.Len())
			}
		},
		OnSinkError: func(u audio.Utterance, err error) {
			if rt.metrics != nil {
				rt.metrics.SinkFailures.Inc()
			}
			rt.logger.WithField("utterance", u.Seq).Warn(err)
		},
	}
	st, err := p.Run(ctx)
	q.Close()
	st.SinkFailures += uint64(failures)
	if rt.metrics != nil {
		rt.metrics.QueueDepth.Set(0)
	}
	return st, err
}

// Close releases the model and other held resources.
func (rt *Runtime) Close() error {
	var errs []error
	for _, c := range rt.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
