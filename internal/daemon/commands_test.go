package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"utter/internal/config"

	"github.com/spf13/cobra"
)

func TestWaitForShutdownSucceedsWhenPidFileRemoved(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := config.Default()
	cfg.Paths.ConfigPath = dir + "/config.toml"
	cfg.Paths.PidPath = dir + "/utter.pid"
	if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
		t.Fatalf("save cfg: %v", err)
	}
	if err := os.WriteFile(cfg.Paths.PidPath, []byte("12345"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = os.Remove(cfg.Paths.PidPath)
	}()
	if err := waitForShutdown(cfg.Paths.ConfigPath, 2*time.Second); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestWaitForShutdownTimesOutOnAlivePid(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := config.Default()
	cfg.Paths.ConfigPath = dir + "/config.toml"
	cfg.Paths.PidPath = dir + "/utter.pid"
	if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
		t.Fatalf("save cfg: %v", err)
	}
	selfPid := os.Getpid()
	if err := os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d", selfPid)), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if err := waitForShutdown(cfg.Paths.ConfigPath, 300*time.Millisecond); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestOverrideEnv(t *testing.T) {
	cmd := &cobra.Command{}
	addOverrideFlags(cmd)
	_ = cmd.Flags().Parse([]string{"--metrics-addr", "127.0.0.1:1", "--cooldown", "0s", "--steps=false"})
	got := strings.Join(overrideEnv(cmd), " ")
	want := "UTTER_METRICS_ADDR=127.0.0.1:1 UTTER_COOLDOWN_MS=0 UTTER_INSTRUCT_ENABLED=false"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestOverrideEnvSegmentFlags(t *testing.T) {
	cmd := &cobra.Command{}
	addOverrideFlags(cmd)
	if err := cmd.Flags().Parse([]string{"--silence-frames", "25", "--cooldown", "1.5s", "--steps"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := overrideEnv(cmd)
	for _, want := range []string{"UTTER_SILENCE_FRAMES=25", "UTTER_COOLDOWN_MS=1500", "UTTER_INSTRUCT_ENABLED=true"} {
		if !slices.Contains(got, want) {
			t.Fatalf("missing %s in %v", want, got)
		}
	}
}

func TestOverrideEnvUnsetFlagsLeaveConfigAlone(t *testing.T) {
	cmd := &cobra.Command{}
	addOverrideFlags(cmd)
	if err := cmd.Flags().Parse(nil); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := overrideEnv(cmd); len(got) != 0 {
		t.Fatalf("expected no overrides, got %v", got)
	}
}

func TestOverrideEnvReachesConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	cmd := &cobra.Command{}
	addOverrideFlags(cmd)
	if err := cmd.Flags().Parse([]string{"--silence-frames", "7", "--cooldown", "250ms", "--steps"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, kv := range overrideEnv(cmd) {
		k, v, _ := strings.Cut(kv, "=")
		t.Setenv(k, v)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Segment.SilenceFrames != 7 || cfg.Segment.CooldownMS != 250 || !cfg.Instruct.Enabled {
		t.Fatalf("overrides not applied: silence=%d cooldown=%d steps=%v",
			cfg.Segment.SilenceFrames, cfg.Segment.CooldownMS, cfg.Instruct.Enabled)
	}
}

func TestWaitForStartSeesPidFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "utter.pid")
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = os.WriteFile(pidPath, []byte("1"), 0o644)
	}()
	if err := waitForStart(pidPath, make(chan error), 2*time.Second); err != nil {
		t.Fatalf("expected start, got %v", err)
	}
}

func TestWaitForStartFailsWhenChildExits(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "utter.pid")
	exited := make(chan error, 1)
	exitErr := errors.New("exit status 1")
	exited <- exitErr
	err := waitForStart(pidPath, exited, 2*time.Second)
	if !errors.Is(err, exitErr) {
		t.Fatalf("expected child exit error, got %v", err)
	}
}

func TestWaitForStartTimesOut(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "utter.pid")
	if err := waitForStart(pidPath, make(chan error), 300*time.Millisecond); err == nil {
		t.Fatalf("expected timeout error")
	}
}
