package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"utter/internal/asr"
	"utter/internal/audio"
	"utter/internal/instruct"
	"utter/internal/logging"
)

var format = audio.Format{SampleRate: 16000, FrameMS: 20}

func utterance(seq uint64, frames int) audio.Utterance {
	u := audio.Utterance{Seq: seq, Format: format, CapturedAt: time.Unix(1700000000, 0).Add(time.Duration(seq) * time.Second)}
	for i := 0; i < frames; i++ {
		s := make([]int16, format.FrameSamples())
		s[0] = int16(i + 1)
		u.Frames = append(u.Frames, audio.NewFrame(format, uint64(i), s))
	}
	return u
}

type fakeASR struct {
	text string
	err  error
	got  []uint64
}

func (f *fakeASR) Transcribe(_ context.Context, u audio.Utterance) (asr.Transcript, error) {
	f.got = append(f.got, u.Seq)
	return asr.Transcript{Text: f.text, Elapsed: time.Millisecond}, f.err
}

func (f *fakeASR) Close() error { return nil }

type fakePlanner struct {
	steps []string
	err   error
}

func (f fakePlanner) Steps(_ context.Context, in string) (instruct.Plan, error) {
	return instruct.Plan{Instruction: in, Steps: f.steps}, f.err
}

func TestRecorderOverwritesLast(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir, 0)
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	for seq := uint64(0); seq < 3; seq++ {
		path, err := r.Save(utterance(seq, int(seq)+1))
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		if filepath.Base(path) != "last.wav" {
			t.Fatalf("unexpected path %s", path)
		}
	}
	_, samples, err := audio.ReadWAV(filepath.Join(dir, "last.wav"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(samples) != 3*format.FrameSamples() {
		t.Fatalf("last.wav should hold the newest utterance, got %d samples", len(samples))
	}
}

func TestRecorderKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(filepath.Join(dir, "rec"), 2)
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	var paths []string
	for seq := uint64(0); seq < 4; seq++ {
		p, err := r.Save(utterance(seq, 1))
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		paths = append(paths, p)
	}
	files, err := r.Files()
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(files) != 2 || files[0] != paths[2] || files[1] != paths[3] {
		t.Fatalf("unexpected files %v", files)
	}
	if _, err := os.Stat(paths[0]); !os.IsNotExist(err) {
		t.Fatalf("oldest recording should be pruned")
	}
}

func TestRecorderRejectsBadConfig(t *testing.T) {
	if _, err := NewRecorder("", 1); err == nil {
		t.Fatalf("expected error for empty dir")
	}
	if _, err := NewRecorder(t.TempDir(), -1); err == nil {
		t.Fatalf("expected error for negative keep")
	}
}

func TestProcessorFullChain(t *testing.T) {
	rec, _ := NewRecorder(t.TempDir(), 0)
	tr := &fakeASR{text: "  move forward and turn left "}
	var got []Result
	p := &Processor{
		Recorder:    rec,
		Transcriber: tr,
		Planner:     fakePlanner{steps: []string{"Move forward", "Turn left"}},
		OnResult: func(_ context.Context, r Result) error {
			got = append(got, r)
			return nil
		},
		Logger: logging.NewTestLogger(),
	}
	if err := p.Accept(context.Background(), utterance(7, 3)); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one result, got %d", len(got))
	}
	r := got[0]
	if r.Seq != 7 || r.Frames != 3 || r.Text != "move forward and turn left" || len(r.Steps) != 2 {
		t.Fatalf("unexpected result %+v", r)
	}
	if r.Duration != 60*time.Millisecond || r.WAVPath == "" {
		t.Fatalf("unexpected timing or path %+v", r)
	}
}

func TestProcessorSkipsEmptyTranscript(t *testing.T) {
	called := false
	p := &Processor{
		Transcriber: &fakeASR{text: "  "},
		OnResult:    func(context.Context, Result) error { called = true; return nil },
		Logger:      logging.NewTestLogger(),
	}
	if err := p.Accept(context.Background(), utterance(1, 1)); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if called {
		t.Fatalf("empty transcript should not produce a result")
	}
}

func TestProcessorPlanFailureStillDelivers(t *testing.T) {
	var got Result
	p := &Processor{
		Transcriber: &fakeASR{text: "pick it up"},
		Planner:     fakePlanner{err: errors.New("quota")},
		OnResult:    func(_ context.Context, r Result) error { got = r; return nil },
		Logger:      logging.NewTestLogger(),
	}
	if err := p.Accept(context.Background(), utterance(2, 1)); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.Text != "pick it up" || got.PlanErr != "quota" || got.Steps != nil {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestProcessorTranscribeErrorSurfaces(t *testing.T) {
	boom := errors.New("model gone")
	p := &Processor{Transcriber: &fakeASR{err: boom}, Logger: logging.NewTestLogger()}
	if err := p.Accept(context.Background(), utterance(3, 1)); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestProcessorRecordOnly(t *testing.T) {
	rec, _ := NewRecorder(t.TempDir(), 0)
	var got Result
	p := &Processor{Recorder: rec, OnResult: func(_ context.Context, r Result) error { got = r; return nil }}
	if err := p.Accept(context.Background(), utterance(4, 2)); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.WAVPath == "" || got.Text != "" {
		t.Fatalf("unexpected result %+v", got)
	}
}
