package segment

import (
	"context"
	"errors"
	"fmt"
	"io"

	"utter/internal/audio"

	"github.com/sirupsen/logrus"
)

// Stats counts what a pipeline run did with its frames.
type Stats struct {
	Frames            uint64
	Speech            uint64
	Overflows         uint64
	Buffered          uint64
	DiscardedLeading  uint64
	DiscardedCooldown uint64
	// DiscardedTail counts frames of an utterance that was still open when
	// the session ended or was cancelled.
	DiscardedTail uint64
	Utterances    uint64
	SinkFailures  uint64
}

// Pipeline pulls frames from Source one at a time, feeds Engine, and hands
// each utterance to Sink before reading the next frame.
type Pipeline struct {
	Source Source
	Engine *Engine
	Sink   Sink
	Logger logrus.FieldLogger

	// OnStep, if set, observes every processed frame.
	OnStep func(fr audio.Frame, step Step)
	// OnSinkError, if set, receives sink failures wrapped in ErrSinkFailure.
	OnSinkError func(u audio.Utterance, err error)
}

// Run processes frames until the source is exhausted, ctx is cancelled, or
// the engine rejects a frame. An open utterance is dropped, not emitted, on
// cancellation and at end of stream. Sink failures do not stop the run.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	var st Stats
	log := p.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	for {
		if err := ctx.Err(); err != nil {
			p.dropOpen(&st, log, "cancelled")
			return st, err
		}
		fr, err := p.Source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.dropOpen(&st, log, "end of stream")
				return st, nil
			}
			if ctx.Err() != nil {
				p.dropOpen(&st, log, "cancelled")
				return st, ctx.Err()
			}
			return st, fmt.Errorf("read frame: %w", err)
		}
		st.Frames++
		if fr.Overflow {
			st.Overflows++
			log.Warnf("input overflow at frame %d; counted as silence", fr.Seq)
		}

		step, err := p.Engine.Process(fr)
		if err != nil {
			return st, err
		}
		p.count(&st, step)
		if p.OnStep != nil {
			p.OnStep(fr, step)
		}
		if step.Utterance == nil {
			continue
		}

		u := *step.Utterance
		st.Utterances++
		log.WithFields(logrus.Fields{
			"utterance": u.Seq,
			"frames":    u.Len(),
			"duration":  u.Duration(),
		}).Info("silence threshold reached; utterance complete")
		if err := p.Sink.Accept(ctx, u); err != nil {
			if ctx.Err() != nil {
				return st, ctx.Err()
			}
			st.SinkFailures++
			wrapped := fmt.Errorf("%w: utterance %d: %w", ErrSinkFailure, u.Seq, err)
			log.Errorf("%v", wrapped)
			if p.OnSinkError != nil {
				p.OnSinkError(u, wrapped)
			}
		}
	}
}

func (p *Pipeline) count(st *Stats, step Step) {
	if step.Speech {
		st.Speech++
	}
	switch step.Disposition {
	case Buffered:
		st.Buffered++
	case DiscardedLeading:
		st.DiscardedLeading++
	case DiscardedCooldown:
		st.DiscardedCooldown++
	}
}

func (p *Pipeline) dropOpen(st *Stats, log logrus.FieldLogger, why string) {
	if n := p.Engine.Reset(); n > 0 {
		st.DiscardedTail += uint64(n)
		log.Debugf("%s: dropped %d buffered frames without trailing silence", why, n)
	}
}
