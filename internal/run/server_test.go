package run

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"utter/internal/audio"
	"utter/internal/capture"
	"utter/internal/config"
	"utter/internal/control"
	"utter/internal/logging"
	"utter/internal/segment"
	"utter/internal/sink"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	dir := t.TempDir()
	cfg.VAD.Backend = "energy"
	cfg.Segment.CooldownMS = 0
	cfg.Recordings.Dir = filepath.Join(dir, "rec")
	cfg.Paths.StateDir = dir
	cfg.Paths.TranscriptPath = filepath.Join(dir, "transcripts.log")
	cfg.Paths.LogPath = filepath.Join(dir, "utter.log")
	return cfg
}

// speechPattern renders runs of tone (true) and digital silence (false).
func speechPattern(f audio.Format, runs ...any) []int16 {
	var out []int16
	n := f.FrameSamples()
	for i := 0; i+1 < len(runs); i += 2 {
		count := runs[i].(int)
		tone := runs[i+1].(bool)
		for j := 0; j < count*n; j++ {
			var v int16
			if tone {
				v = int16(8000 * math.Sin(2*math.Pi*440*float64(j)/float64(f.SampleRate)))
			}
			out = append(out, v)
		}
	}
	return out
}

func TestRuntimeSegmentsAndRecords(t *testing.T) {
	cfg := testConfig(t)
	cfg.Recordings.Keep = 10
	f := Format(cfg)
	frames, rest := capture.Chunk(f, speechPattern(f, 5, false, 5, true, 10, false, 3, false, 4, true, 12, false, 2, true))
	if rest != 0 {
		t.Fatalf("unexpected remainder %d", rest)
	}

	var mu sync.Mutex
	var results []sink.Result
	m := NewMetrics()
	rt, err := NewRuntime(cfg, logging.NewTestLogger(), m, Options{
		Clock: segment.StreamClock(time.Unix(0, 0)),
		OnResult: func(_ context.Context, r sink.Result) error {
			mu.Lock()
			defer mu.Unlock()
			results = append(results, r)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	defer func() { _ = rt.Close() }()

	st, err := rt.Run(context.Background(), capture.NewReplay(frames, 0))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if st.Utterances != 2 || len(results) != 2 {
		t.Fatalf("expected 2 utterances, got stats %+v results %d", st, len(results))
	}
	if results[0].Frames != 15 || results[1].Frames != 14 {
		t.Fatalf("unexpected frame counts %d %d", results[0].Frames, results[1].Frames)
	}
	if st.DiscardedTail != 2 {
		t.Fatalf("open utterance should be dropped at end, got %+v", st)
	}
	for _, r := range results {
		if _, err := os.Stat(r.WAVPath); err != nil {
			t.Fatalf("recording missing: %v", err)
		}
	}
	if got := testutil.ToFloat64(m.Utterances); got != 2 {
		t.Fatalf("utterance metric = %v", got)
	}
	if got := testutil.ToFloat64(m.Frames.WithLabelValues("discarded-leading")); got != 10 {
		t.Fatalf("leading discard metric = %v", got)
	}
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Segment.SilenceFrames = 0
	if _, err := NewEngine(cfg); err == nil {
		t.Fatalf("expected config error")
	}
	cfg = testConfig(t)
	cfg.Audio.FrameMS = 25
	if _, err := NewEngine(cfg); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestEngineConfigFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Segment.CooldownMS = 1500
	ec := EngineConfig(cfg)
	if ec.Cooldown != 1500*time.Millisecond || ec.SilenceFrames != cfg.Segment.SilenceFrames {
		t.Fatalf("unexpected engine config %+v", ec)
	}
	if ec.Format.SampleRate != 16000 || ec.Format.FrameMS != 20 {
		t.Fatalf("unexpected format %+v", ec.Format)
	}
}

func TestHandleResultRecordsAndQueuesHook(t *testing.T) {
	cfg := testConfig(t)
	cfg.Hook.Command = "/bin/echo"
	cfg.UI.StatusTail = 2
	s := newServer(cfg, logging.NewTestLogger())

	for i, text := range []string{"one", "  ", "two", "three"} {
		r := sink.Result{Seq: uint64(i), Text: text, Steps: []string{"Step " + text}}
		if err := s.handleResult(context.Background(), r); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	tr := s.copyTranscripts()
	if len(tr) != 2 || tr[0].Text != "two" || tr[1].Text != "three" {
		t.Fatalf("unexpected transcripts %+v", tr)
	}
	if len(s.hookCh) != 3 {
		t.Fatalf("expected 3 queued hook jobs, got %d", len(s.hookCh))
	}
	data, err := os.ReadFile(cfg.Paths.TranscriptPath)
	if err != nil {
		t.Fatalf("read transcript log: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 3 {
		t.Fatalf("expected 3 transcript lines, got %d", lines)
	}
	if !strings.Contains(string(data), "one\tStep one") {
		t.Fatalf("steps missing from transcript log: %s", data)
	}
}

func TestHandleResultWithoutHook(t *testing.T) {
	cfg := testConfig(t)
	s := newServer(cfg, logging.NewTestLogger())
	if err := s.handleResult(context.Background(), sink.Result{Text: "hello"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(s.hookCh) != 0 {
		t.Fatalf("no hook configured, nothing should be queued")
	}
}

func TestObserveStepTracksState(t *testing.T) {
	s := newServer(testConfig(t), logging.NewTestLogger())
	s.observeStep(audio.Frame{}, segment.Step{Disposition: segment.Buffered}, 1)
	if st := s.status(); st.State != "buffering" || st.QueueDepth != 1 {
		t.Fatalf("unexpected status %+v", st)
	}
	s.observeStep(audio.Frame{}, segment.Step{Disposition: segment.Buffered, Utterance: &audio.Utterance{}}, 2)
	if st := s.status(); st.State != "idle" || st.Utterances != 1 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestControlConnStatusAndHealth(t *testing.T) {
	s := newServer(testConfig(t), logging.NewTestLogger())
	s.recordTranscript(sink.Result{Seq: 1, Text: "turn left"})

	ask := func(op string, out any) {
		t.Helper()
		client, server := net.Pipe()
		go s.handleConn(context.Background(), server)
		if err := json.NewEncoder(client).Encode(control.Request{Op: op}); err != nil {
			t.Fatalf("send: %v", err)
		}
		line, err := bufio.NewReader(client).ReadBytes('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		_ = client.Close()
		if err := json.Unmarshal(line, out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}

	var st control.Status
	ask("status", &st)
	if !st.Running || len(st.Transcripts) != 1 || st.Transcripts[0].Text != "turn left" {
		t.Fatalf("unexpected status %+v", st)
	}
	var h control.SimpleResponse
	ask("health", &h)
	if !h.OK {
		t.Fatalf("health not ok: %+v", h)
	}
	var bad control.SimpleResponse
	ask("bogus", &bad)
	if bad.OK {
		t.Fatalf("unknown op should not be ok")
	}
}

func TestServeRefusesUnsupportedFormat(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.PidPath = filepath.Join(cfg.Paths.StateDir, "utter.pid")
	cfg.Paths.SocketPath = filepath.Join(cfg.Paths.StateDir, "utter.sock")
	cfg.Audio.SampleRate = 44100
	err := Serve(cfg, logging.NewTestLogger())
	if err == nil || !strings.Contains(err.Error(), "sample_rate") {
		t.Fatalf("expected sample rate error, got %v", err)
	}
	if _, statErr := os.Stat(cfg.Paths.PidPath); !os.IsNotExist(statErr) {
		t.Fatalf("pid file should not exist, stat err=%v", statErr)
	}
}

func TestServeReturnsCaptureFailure(t *testing.T) {
	if capture.CheckBackend() == nil {
		t.Skip("audio backend present; capture would open a real device")
	}
	cfg := testConfig(t)
	cfg.Paths.PidPath = filepath.Join(cfg.Paths.StateDir, "utter.pid")
	cfg.Paths.SocketPath = filepath.Join(cfg.Paths.StateDir, "utter.sock")
	err := Serve(cfg, logging.NewTestLogger())
	if !errors.Is(err, capture.ErrNoAudioBackend) {
		t.Fatalf("expected capture error from Serve, got %v", err)
	}
	if _, statErr := os.Stat(cfg.Paths.PidPath); !os.IsNotExist(statErr) {
		t.Fatalf("pid file should be removed, stat err=%v", statErr)
	}
}

func TestStatusReportsLastHeard(t *testing.T) {
	s := newServer(testConfig(t), logging.NewTestLogger())
	if st := s.status(); !st.LastHeard.IsZero() {
		t.Fatalf("last heard should be unset, got %v", st.LastHeard)
	}
	before := time.Now()
	if err := s.handleResult(context.Background(), sink.Result{Text: "stop"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if st := s.status(); st.LastHeard.Before(before) {
		t.Fatalf("last heard %v not updated (before %v)", st.LastHeard, before)
	}
	if err := s.handleResult(context.Background(), sink.Result{Text: "  "}); err != nil {
		t.Fatalf("handle: %v", err)
	}
}
