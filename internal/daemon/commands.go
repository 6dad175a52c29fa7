package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"utter/internal/config"
	"utter/internal/logging"
	"utter/internal/run"

	"github.com/spf13/cobra"
)

// NewStartCmd starts the daemon (background).
func NewStartCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start utter daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := ensureNotRunning(cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Paths.PidPath), 0o755); err != nil {
				return err
			}
			self, err := os.Executable()
			if err != nil {
				return err
			}
			child := exec.Command(self, "serve", "--config", cfg.Paths.ConfigPath)
			child.Env = append(os.Environ(), overrideEnv(cmd)...)
			child.Stdout = os.Stdout
			child.Stderr = os.Stderr
			if err := child.Start(); err != nil {
				return err
			}
			exited := make(chan error, 1)
			go func() { exited <- child.Wait() }()
			if err := waitForStart(cfg.Paths.PidPath, exited, 2*time.Second); err != nil {
				_ = child.Process.Kill()
				return err
			}
			cmd.Printf("utter started (pid %d)\n", child.Process.Pid)
			return nil
		},
	}
	addOverrideFlags(cmd)
	return cmd
}

// NewServeCmd runs the daemon foreground (internal).
func NewServeCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:    "serve",
		Short:  "Run utter daemon (internal)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, kv := range overrideEnv(cmd) {
				k, v, _ := strings.Cut(kv, "=")
				if err := os.Setenv(k, v); err != nil {
					return fmt.Errorf("set %s: %w", k, err)
				}
			}
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.Configure(cfg)
			if err != nil {
				return err
			}
			return run.Serve(cfg, logger)
		},
	}
	addOverrideFlags(cmd)
	return cmd
}

// addOverrideFlags registers per-run settings that travel to the daemon as
// UTTER_* env overrides.
func addOverrideFlags(cmd *cobra.Command) {
	cmd.Flags().String("metrics-addr", "", "enable metrics at address (e.g., 127.0.0.1:9318) for this run")
	cmd.Flags().Int("silence-frames", 0, "override segment.silence_frames for this run")
	cmd.Flags().Duration("cooldown", 0, "override segment.cooldown_ms for this run (e.g., 500ms; 0s disables)")
	cmd.Flags().Bool("steps", false, "break transcripts into steps with the LLM for this run")
}

func overrideEnv(cmd *cobra.Command) []string {
	var env []string
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		env = append(env, "UTTER_METRICS_ADDR="+addr)
	}
	if cmd.Flags().Changed("silence-frames") {
		n, _ := cmd.Flags().GetInt("silence-frames")
		env = append(env, fmt.Sprintf("UTTER_SILENCE_FRAMES=%d", n))
	}
	if cmd.Flags().Changed("cooldown") {
		d, _ := cmd.Flags().GetDuration("cooldown")
		env = append(env, fmt.Sprintf("UTTER_COOLDOWN_MS=%d", d.Milliseconds()))
	}
	if cmd.Flags().Changed("steps") {
		on, _ := cmd.Flags().GetBool("steps")
		env = append(env, fmt.Sprintf("UTTER_INSTRUCT_ENABLED=%t", on))
	}
	return env
}

// NewStopCmd stops the daemon.
func NewStopCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop utter daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			pid, err := readPID(cfg.Paths.PidPath)
			if err != nil {
				return err
			}
			proc, err := os.FindProcess(pid)
			if err != nil {
				return err
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return err
			}
			cmd.Println("stop signal sent")
			return nil
		},
	}
}

// NewRestartCmd stops then starts.
func NewRestartCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart utter daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stopCmd := NewStopCmd(cfgPath)
			_ = stopCmd.RunE(stopCmd, args) // ignore error if not running

			if err := waitForShutdown(*cfgPath, 5*time.Second); err != nil {
				return err
			}

			startCmd := NewStartCmd(cfgPath)
			return startCmd.RunE(startCmd, args)
		},
	}
}

func ensureNotRunning(cfg *config.Config) error {
	pid, err := readPID(cfg.Paths.PidPath)
	if err != nil {
		return nil
	}
	// Check if process alive.
	proc, err := os.FindProcess(pid)
	if err == nil {
		if err := proc.Signal(syscall.Signal(0)); err == nil {
			return fmt.Errorf("already running with pid %d", pid)
		}
	}
	return nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, err
	}
	return pid, nil
}

// waitForStart polls for the pid file the daemon writes once its config is
// accepted. A child that exits first failed to start.
func waitForStart(pidPath string, exited <-chan error, timeout time.Duration) error {
	deadline := time.After(timeout)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		if _, err := os.Stat(pidPath); err == nil {
			return nil
		}
		select {
		case err := <-exited:
			if err == nil {
				return fmt.Errorf("start: daemon exited before writing %s", pidPath)
			}
			return fmt.Errorf("start: daemon exited: %w", err)
		case <-deadline:
			return fmt.Errorf("start: no pid file at %s after %s", pidPath, timeout)
		case <-tick.C:
		}
	}
}

func waitForShutdown(cfgPath string, timeout time.Duration) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pid, err := readPID(cfg.Paths.PidPath)
		if err != nil {
			return nil // pid file gone
		}
		proc, _ := os.FindProcess(pid)
		if proc != nil {
			if err := proc.Signal(syscall.Signal(0)); err != nil {
				_ = os.Remove(cfg.Paths.PidPath)
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("restart: daemon did not stop within %s", timeout)
}
