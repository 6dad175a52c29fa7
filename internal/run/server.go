package run

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"utter/internal/audio"
	"utter/internal/capture"
	"utter/internal/config"
	"utter/internal/control"
	"utter/internal/hook"
	"utter/internal/segment"
	"utter/internal/sink"

	"github.com/sirupsen/logrus"
)

// Server manages audio capture, segmentation, hook dispatch, metrics, and
// control endpoints.
type Server struct {
	cfg       *config.Config
	logger    *logrus.Logger
	hook      *hook.Runner
	metrics   *Metrics
	startedAt time.Time
	lastHeard atomic.Int64

	device     atomic.Value // string
	utterances atomic.Uint64
	queueDepth atomic.Int64
	engineIdle atomic.Bool

	transcriptsMu sync.Mutex
	transcripts   []control.Transcript

	hookCh chan hook.Job
	wg     sync.WaitGroup
}

func newServer(cfg *config.Config, logger *logrus.Logger) *Server {
	s := &Server{
		cfg:         cfg,
		logger:      logger,
		hook:        hook.NewRunner(cfg, logger),
		metrics:     NewMetrics(),
		startedAt:   time.Now(),
		transcripts: make([]control.Transcript, 0, cfg.UI.StatusTail),
		hookCh:      make(chan hook.Job, max(1, cfg.Hook.QueueSize)),
	}
	s.device.Store("")
	s.engineIdle.Store(true)
	return s
}

// Serve runs the daemon until interrupted.
func Serve(cfg *config.Config, logger *logrus.Logger) error {
	if err := config.MustStatePaths(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(cfg.Paths.PidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warnf("remove pid file: %v", err)
		}
	}()
	if err := os.Remove(cfg.Paths.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Debugf("remove stale socket: %v", err)
	}

	srv := newServer(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv.wg.Add(1)
	go srv.controlLoop(ctx)

	srv.wg.Add(1)
	go srv.hookWorker(ctx)

	if cfg.Metrics.Enabled {
		go srv.metrics.serve(ctx, cfg.Metrics.Addr, logger)
	}

	var captureErr error
	captureDone := make(chan struct{})
	go func() {
		defer close(captureDone)
		if err := srv.captureLoop(ctx); err != nil {
			logger.Errorf("capture: %v", err)
			captureErr = err
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)
	select {
	case s := <-sigCh:
		logger.Infof("received signal %s, shutting down", s)
		cancel()
	case <-ctx.Done():
	}
	<-captureDone
	srv.wg.Wait()
	if captureErr != nil {
		return fmt.Errorf("capture: %w", captureErr)
	}
	return nil
}

func (s *Server) captureLoop(ctx context.Context) error {
	mic, err := capture.OpenMic(s.cfg.Audio.DeviceName, Format(s.cfg))
	if err != nil {
		return err
	}
	defer func() {
		if err := mic.Close(); err != nil {
			s.logger.Warnf("close mic: %v", err)
		}
	}()
	s.device.Store(mic.DeviceName())

	rt, err := NewRuntime(s.cfg, s.logger, s.metrics, Options{
		Transcribe: s.cfg.ASR.Enabled,
		Plan:       s.cfg.Instruct.Enabled,
		OnResult:   s.handleResult,
		OnStep:     s.observeStep,
	})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	s.logger.Infof("listening on mic: %s (%s, %d silence frames, cooldown %s)",
		mic.DeviceName(), Format(s.cfg), s.cfg.Segment.SilenceFrames, s.cfg.Cooldown())

	st, err := rt.Run(ctx, mic)
	s.logger.WithFields(logrus.Fields{
		"frames":     st.Frames,
		"utterances": st.Utterances,
		"overflows":  st.Overflows,
		"failures":   st.SinkFailures,
	}).Info("capture stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Server) observeStep(_ audio.Frame, st segment.Step, queued int) {
	s.engineIdle.Store(st.Utterance != nil || st.Disposition != segment.Buffered)
	if st.Utterance != nil {
		s.utterances.Add(1)
	}
	s.queueDepth.Store(int64(queued))
}

// handleResult runs on the processing worker for every finished utterance.
func (s *Server) handleResult(ctx context.Context, r sink.Result) error {
	text := strings.TrimSpace(r.Text)
	if text == "" {
		return nil
	}
	s.lastHeard.Store(time.Now().UnixNano())
	s.recordTranscript(r)

	if !s.hook.Configured() || !s.hook.Accepts(text) {
		return nil
	}
	if !s.hook.ShouldRun() {
		s.logger.Debug("hook skipped (cooldown)")
		s.metrics.Hooks.WithLabelValues("skipped").Inc()
		return nil
	}
	s.logger.Infof("dispatching hook payload: %q", text)
	job := hook.Job{
		Seq:       r.Seq,
		Text:      text,
		Steps:     r.Steps,
		WAVPath:   r.WAVPath,
		Timestamp: time.Now(),
	}
	select {
	case s.hookCh <- job:
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.metrics.Hooks.WithLabelValues("dropped").Inc()
		s.logger.Warn("hook queue full, dropping job")
	}
	return nil
}

func (s *Server) recordTranscript(r sink.Result) {
	if !s.cfg.Transcripts.Enabled {
		return
	}
	entry := control.Transcript{
		Seq:       r.Seq,
		Text:      r.Text,
		Steps:     r.Steps,
		Timestamp: time.Now(),
	}
	s.transcriptsMu.Lock()
	defer s.transcriptsMu.Unlock()
	s.transcripts = append(s.transcripts, entry)
	if len(s.transcripts) > s.cfg.UI.StatusTail {
		s.transcripts = s.transcripts[len(s.transcripts)-s.cfg.UI.StatusTail:]
	}
	f, err := os.OpenFile(s.cfg.Paths.TranscriptPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.logger.Warnf("open transcript log: %v", err)
		return
	}
	defer func() { _ = f.Close() }()
	line := entry.Text
	if len(entry.Steps) > 0 {
		line += "\t" + strings.Join(entry.Steps, " | ")
	}
	if _, err := fmt.Fprintf(f, "%s\t%s\n", entry.Timestamp.Format(time.RFC3339), line); err != nil {
		s.logger.Warnf("write transcript: %v", err)
	}
}

func (s *Server) controlLoop(ctx context.Context) {
	defer s.wg.Done()
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", s.cfg.Paths.SocketPath)
	if err != nil {
		s.logger.Errorf("control listen: %v", err)
		return
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Errorf("control accept: %v", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if err := conn.Close(); err != nil && ctx.Err() == nil {
			s.logger.Warnf("control connection close: %v", err)
		}
	}()
	sc := bufio.NewScanner(conn)
	if !sc.Scan() {
		return
	}
	var req control.Request
	if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
		return
	}
	switch req.Op {
	case "status":
		_ = json.NewEncoder(conn).Encode(s.status())
	case "health":
		_ = json.NewEncoder(conn).Encode(control.SimpleResponse{OK: true, Message: "ok"})
	default:
		_ = json.NewEncoder(conn).Encode(control.SimpleResponse{OK: false, Message: "unknown op " + req.Op})
	}
}

func (s *Server) status() control.Status {
	state := "buffering"
	if s.engineIdle.Load() {
		state = "idle"
	}
	var lastHeard time.Time
	if ns := s.lastHeard.Load(); ns != 0 {
		lastHeard = time.Unix(0, ns)
	}
	return control.Status{
		Running:     true,
		UptimeSec:   time.Since(s.startedAt).Seconds(),
		Device:      s.device.Load().(string),
		State:       state,
		Utterances:  s.utterances.Load(),
		QueueDepth:  int(s.queueDepth.Load()),
		LastHeard:   lastHeard,
		Transcripts: s.copyTranscripts(),
	}
}

func (s *Server) copyTranscripts() []control.Transcript {
	s.transcriptsMu.Lock()
	defer s.transcriptsMu.Unlock()
	out := make([]control.Transcript, len(s.transcripts))
	copy(out, s.transcripts)
	return out
}
