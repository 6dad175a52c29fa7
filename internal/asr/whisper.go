//go:build whisper

package asr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"time"

	"utter/internal/audio"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Whisper transcribes with a whisper.cpp model loaded once.
type Whisper struct {
	mu    sync.Mutex
	opts  Options
	model whisper.Model
}

// NewWhisper loads the model at opts.ModelPath.
func NewWhisper(opts Options) (*Whisper, error) {
	if strings.TrimSpace(opts.ModelPath) == "" {
		return nil, fmt.Errorf("asr.model_path is empty")
	}
	model, err := whisper.New(opts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", opts.ModelPath, err)
	}
	return &Whisper{opts: opts, model: model}, nil
}

// Transcribe implements Transcriber.
func (w *Whisper) Transcribe(ctx context.Context, u audio.Utterance) (Transcript, error) {
	if err := ctx.Err(); err != nil {
		return Transcript{}, err
	}
	return w.TranscribeSamples(ctx, u.Samples(), u.Format.SampleRate)
}

// TranscribeSamples runs the model over raw PCM16 at rate.
func (w *Whisper) TranscribeSamples(ctx context.Context, samples []int16, rate int) (Transcript, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Transcript{}, err
	}
	started := time.Now()
	wctx, err := w.model.NewContext()
	if err != nil {
		return Transcript{}, fmt.Errorf("whisper context: %w", err)
	}
	threads := w.opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))
	if lang := strings.TrimSpace(w.opts.Language); lang != "" {
		if err := wctx.SetLanguage(lang); err != nil {
			return Transcript{}, fmt.Errorf("set language %q: %w", lang, err)
		}
	}
	if err := wctx.Process(PrepareSamples(samples, rate), nil, nil, nil); err != nil {
		return Transcript{}, fmt.Errorf("whisper process: %w", err)
	}
	var segs []Segment
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Transcript{}, err
		}
		segs = append(segs, Segment{Text: seg.Text, Start: seg.Start, End: seg.End})
	}
	return Transcript{Text: JoinSegments(segs), Segments: segs, Elapsed: time.Since(started)}, nil
}

// Close releases the model.
func (w *Whisper) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.model.Close()
}

// Available reports whether this build can transcribe.
func Available() bool { return true }
