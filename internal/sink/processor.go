// Package sink holds the downstream consumers of finished utterances.
package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"utter/internal/asr"
	"utter/internal/audio"
	"utter/internal/instruct"

	"github.com/sirupsen/logrus"
)

// Planner is the step-breakdown stage.
type Planner interface {
	Steps(ctx context.Context, instruction string) (instruct.Plan, error)
}

// Result is what the processor produced for one utterance.
type Result struct {
	Seq        uint64        `json:"seq"`
	Start      time.Duration `json:"start"`
	Duration   time.Duration `json:"duration"`
	Frames     int           `json:"frames"`
	CapturedAt time.Time     `json:"captured_at"`
	WAVPath    string        `json:"wav_path,omitempty"`
	Text       string        `json:"text,omitempty"`
	Steps      []string      `json:"steps,omitempty"`
	ASRTime    time.Duration `json:"asr_time,omitempty"`
	PlanErr    string        `json:"plan_error,omitempty"`
}

// Processor records, transcribes and plans each utterance, then hands the
// result to OnResult. Every stage is optional.
type Processor struct {
	Recorder    *Recorder
	Transcriber asr.Transcriber
	Planner     Planner
	OnResult    func(ctx context.Context, r Result) error
	Logger      logrus.FieldLogger
}

// Accept implements segment.Sink.
func (p *Processor) Accept(ctx context.Context, u audio.Utterance) error {
	res := Result{
		Seq:        u.Seq,
		Start:      u.Start(),
		Duration:   u.Duration(),
		Frames:     u.Len(),
		CapturedAt: u.CapturedAt,
	}
	log := p.logger().WithFields(logrus.Fields{"utterance": u.Seq, "frames": u.Len()})

	if p.Recorder != nil {
		path, err := p.Recorder.Save(u)
		if err != nil {
			return err
		}
		res.WAVPath = path
		log.WithField("path", path).Debug("utterance recorded")
	}

	if p.Transcriber != nil {
		tr, err := p.Transcriber.Transcribe(ctx, u)
		if err != nil {
			return fmt.Errorf("transcribe: %w", err)
		}
		res.Text = strings.TrimSpace(tr.Text)
		res.ASRTime = tr.Elapsed
		if res.Text == "" {
			log.Debug("no speech recognised")
			return nil
		}
		log.WithField("asr_ms", tr.Elapsed.Milliseconds()).Infof("heard: %q", res.Text)

		if p.Planner != nil {
			plan, err := p.Planner.Steps(ctx, res.Text)
			if err != nil {
				res.PlanErr = err.Error()
				log.WithError(err).Warn("step breakdown failed")
			} else {
				res.Steps = plan.Steps
			}
		}
	}

	if p.OnResult != nil {
		return p.OnResult(ctx, res)
	}
	return nil
}

func (p *Processor) logger() logrus.FieldLogger {
	if p.Logger == nil {
		return logrus.StandardLogger()
	}
	return p.Logger
}
