package segment

import (
	"context"
	"io"
	"sync"

	"utter/internal/audio"
)

var testFormat = audio.Format{SampleRate: 16000, FrameMS: 20}

// markClassifier treats Samples[0] != 0 as speech. Samples[1] carries the
// frame's sequence number so tests can trace frames through the engine.
var markClassifier = ClassifierFunc(func(fr audio.Frame, _ int) (bool, error) {
	return fr.Samples[0] != 0, nil
})

func makeFrame(seq int, speech bool) audio.Frame {
	s := make([]int16, testFormat.FrameSamples())
	if speech {
		s[0] = 1
	}
	s[1] = int16(seq)
	return audio.NewFrame(testFormat, uint64(seq), s)
}

func makeFrames(labels []bool) []audio.Frame {
	out := make([]audio.Frame, len(labels))
	for i, sp := range labels {
		out[i] = makeFrame(i, sp)
	}
	return out
}

// pattern builds labels from runs: pattern(5, true, 10, false) -> 5 speech, 10 silence.
func pattern(runs ...any) []bool {
	var out []bool
	for i := 0; i+1 < len(runs); i += 2 {
		n := runs[i].(int)
		v := runs[i+1].(bool)
		for j := 0; j < n; j++ {
			out = append(out, v)
		}
	}
	return out
}

type sliceSource struct {
	frames []audio.Frame
	i      int
	// after, if set, runs once the frame at index i has been returned.
	after func(i int)
}

func (s *sliceSource) Next(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}
	if s.i >= len(s.frames) {
		return audio.Frame{}, io.EOF
	}
	fr := s.frames[s.i]
	if s.after != nil {
		s.after(s.i)
	}
	s.i++
	return fr, nil
}

type recordSink struct {
	mu   sync.Mutex
	got  []audio.Utterance
	fail func(u audio.Utterance) error
}

func (r *recordSink) Accept(_ context.Context, u audio.Utterance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		if err := r.fail(u); err != nil {
			return err
		}
	}
	r.got = append(r.got, u)
	return nil
}

func (r *recordSink) utterances() []audio.Utterance {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audio.Utterance, len(r.got))
	copy(out, r.got)
	return out
}

func seqs(u audio.Utterance) []uint64 {
	out := make([]uint64, len(u.Frames))
	for i, fr := range u.Frames {
		out[i] = fr.Seq
	}
	return out
}
