// Package hook runs the user's command for each recognised instruction.
package hook

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"utter/internal/config"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

// Job is one hook invocation: the transcript of an utterance and its steps.
type Job struct {
	Seq       uint64
	Text      string
	Steps     []string
	WAVPath   string
	Timestamp time.Time
}

// Runner executes the configured hook with cooldown and prefix handling.
type Runner struct {
	cfg      *config.Config
	logger   logrus.FieldLogger
	hostname string

	mu      sync.Mutex
	lastRun time.Time
}

func NewRunner(cfg *config.Config, logger logrus.FieldLogger) *Runner {
	host, _ := os.Hostname()
	return &Runner{cfg: cfg, logger: logger, hostname: host}
}

// Configured reports whether a hook command is set.
func (r *Runner) Configured() bool { return strings.TrimSpace(r.cfg.Hook.Command) != "" }

// Accepts reports whether text is long enough to be dispatched.
func (r *Runner) Accepts(text string) bool {
	return len(strings.TrimSpace(text)) >= r.cfg.Hook.MinChars
}

// ShouldRun returns whether cooldown allows a new hook.
func (r *Runner) ShouldRun() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg.Hook.CooldownSec <= 0 {
		return true
	}
	return time.Since(r.lastRun).Seconds() >= r.cfg.Hook.CooldownSec
}

// Args returns hook.args, or hook.args_line split shell-style when args is empty.
func (r *Runner) Args() ([]string, error) {
	if len(r.cfg.Hook.Args) > 0 {
		return append([]string{}, r.cfg.Hook.Args...), nil
	}
	return ParseArgs(r.cfg.Hook.ArgsLine)
}

// Run executes the configured command. The prefixed text is passed as the
// last argument; text, steps and metadata are also exported in the env.
func (r *Runner) Run(ctx context.Context, job Job) error {
	r.mu.Lock()
	r.lastRun = time.Now()
	r.mu.Unlock()

	cmdStr := r.cfg.Hook.Command
	if cmdStr == "" {
		return fmt.Errorf("no hook.command configured")
	}
	args, err := r.Args()
	if err != nil {
		return fmt.Errorf("hook.args_line: %w", err)
	}

	prefix := strings.ReplaceAll(r.cfg.Hook.Prefix, "${hostname}", r.hostname)
	text := job.Text
	steps := job.Steps
	if r.cfg.Hook.RedactPII {
		text = redactPII(text)
		steps = make([]string, len(job.Steps))
		for i, s := range job.Steps {
			steps[i] = redactPII(s)
		}
	}
	args = append(args, strings.TrimSpace(prefix+text))
	stepsJSON, err := json.Marshal(nonNil(steps))
	if err != nil {
		return err
	}

	runCtx := ctx
	if r.cfg.Hook.TimeoutSec > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(float64(time.Second)*r.cfg.Hook.TimeoutSec))
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, cmdStr, args...)
	cmd.Env = os.Environ()
	for k, v := range r.cfg.Hook.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = append(cmd.Env,
		"UTTER_TEXT="+text,
		"UTTER_PREFIX="+prefix,
		"UTTER_STEPS="+string(stepsJSON),
		"UTTER_SEQ="+strconv.FormatUint(job.Seq, 10),
		"UTTER_WAV="+job.WAVPath,
	)

	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		r.logger.Infof("hook output: %s", strings.TrimSpace(string(out)))
	}
	if err != nil {
		return fmt.Errorf("hook failed: %w", err)
	}
	return nil
}

// ParseArgs splits a single configured string into arguments.
func ParseArgs(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	return shlex.Split(raw)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var (
	emailRE = regexp.MustCompile(`[\w.+-]+@[\w.-]+\.[A-Za-z]{2,}`)
	phoneRE = regexp.MustCompile(`\+?\d[\d\s\-\(\)]{6,}\d`)
)

func redactPII(s string) string {
	s = emailRE.ReplaceAllString(s, "[redacted-email]")
	s = phoneRE.ReplaceAllString(s, "[redacted-phone]")
	return s
}
