package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"utter/internal/audio"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultSilenceFrames = 10
	defaultCooldownMS    = 2000
	defaultStatusTail    = 10
	defaultQueueSize     = 8
	defaultStateDirLinux = ".local/state/utter"
	defaultConfigDir     = ".config/utter"
	defaultModelName     = "ggml-base.bin"
	defaultLLMModel      = "gemini-1.5-flash"
)

// Config holds user configuration loaded from TOML.
type Config struct {
	Audio struct {
		DeviceName string `toml:"device_name"`
		SampleRate int    `toml:"sample_rate"`
		Channels   int    `toml:"channels"`
		FrameMS    int    `toml:"frame_ms"`
	} `toml:"audio"`

	VAD struct {
		Backend         string  `toml:"backend"`        // webrtc, energy
		Aggressiveness  int     `toml:"aggressiveness"` // 0-3, webrtc only
		EnergyThreshold float64 `toml:"energy_threshold"`
	} `toml:"vad"`

	Segment struct {
		SilenceFrames int `toml:"silence_frames"`
		CooldownMS    int `toml:"cooldown_ms"`
		QueueSize     int `toml:"queue_size"`
	} `toml:"segment"`

	ASR struct {
		Enabled   bool   `toml:"enabled"`
		ModelPath string `toml:"model_path"`
		Language  string `toml:"language"`
		Threads   int    `toml:"threads"`
	} `toml:"asr"`

	Instruct struct {
		Enabled      bool    `toml:"enabled"`
		Provider     string  `toml:"provider"`
		Model        string  `toml:"model"`
		APIKeyEnv    string  `toml:"api_key_env"`
		SystemPrompt string  `toml:"system_prompt"`
		Temperature  float64 `toml:"temperature"`
		TimeoutSec   float64 `toml:"timeout_sec"`
	} `toml:"instruct"`

	Hook struct {
		Command     string            `toml:"command"`
		Args        []string          `toml:"args"`
		ArgsLine    string            `toml:"args_line"`
		Prefix      string            `toml:"prefix"`
		CooldownSec float64           `toml:"cooldown_sec"`
		MinChars    int               `toml:"min_chars"`
		QueueSize   int               `toml:"queue_size"`
		TimeoutSec  float64           `toml:"timeout_sec"`
		Env         map[string]string `toml:"env"`
		RedactPII   bool              `toml:"redact_pii"`
	} `toml:"hook"`

	Recordings struct {
		Enabled bool   `toml:"enabled"`
		Dir     string `toml:"dir"`
		Keep    int    `toml:"keep"` // 0 overwrites a single last.wav
	} `toml:"recordings"`

	Logging struct {
		Level  string `toml:"level"`  // debug, info, warn, error
		Format string `toml:"format"` // text, json
		Stdout bool   `toml:"stdout"`
	} `toml:"logging"`

	Paths struct {
		StateDir       string `toml:"state_dir"`
		ModelDir       string `toml:"model_dir"`
		LogPath        string `toml:"log_path"`
		TranscriptPath string `toml:"transcript_path"`
		SocketPath     string `toml:"socket_path"`
		PidPath        string `toml:"pid_path"`
		ConfigPath     string `toml:"-"`
	} `toml:"paths"`

	UI struct {
		StatusTail int `toml:"status_tail"`
	} `toml:"ui"`

	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"metrics"`

	Transcripts struct {
		Enabled bool `toml:"enabled"`
	} `toml:"transcripts"`
}

// DefaultSystemPrompt asks the model to split an instruction into atomic steps.
const DefaultSystemPrompt = `You are a specialized assistant designed to break down complex instructions into simple, atomic actions. Given a sentence containing a detailed instruction, you must identify each simple, actionable step and return them as separate entries in a structured JSON format. Each step should be a single, independent action, such as "move," "turn," or "pick," and the output should be organized in a list.

Example Input: "To make the humanoid robot pick up an object, move forward, turn left, bend the arm, extend the hand, grip the object, lift the arm, move backward, and place the object down."

Expected Output:
{
  "steps": [
    "Move forward",
    "Turn left",
    "Bend the arm",
    "Extend the hand",
    "Grip the object",
    "Lift the arm",
    "Move backward",
    "Place the object down"
  ]
}`

// Default returns Config populated with defaults.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	stateDir := filepath.Join(home, defaultStateDirLinux)
	// macOS prefers ~/Library/Application Support/utter for state/logs
	if isMac() {
		stateDir = filepath.Join(home, "Library", "Application Support", "utter")
	}

	cfg := &Config{}

	cfg.Audio.SampleRate = 16000
	cfg.Audio.Channels = 1
	cfg.Audio.FrameMS = 20

	cfg.VAD.Backend = "webrtc"
	cfg.VAD.Aggressiveness = 2
	cfg.VAD.EnergyThreshold = 0.015

	cfg.Segment.SilenceFrames = defaultSilenceFrames
	cfg.Segment.CooldownMS = defaultCooldownMS
	cfg.Segment.QueueSize = defaultQueueSize

	cfg.Paths.ModelDir = filepath.Join(stateDir, "models")

	cfg.ASR.Enabled = true
	cfg.ASR.ModelPath = filepath.Join(cfg.Paths.ModelDir, defaultModelName)
	cfg.ASR.Language = "auto"
	cfg.ASR.Threads = runtime.NumCPU()

	cfg.Instruct.Enabled = false
	cfg.Instruct.Provider = "gemini"
	cfg.Instruct.Model = defaultLLMModel
	cfg.Instruct.APIKeyEnv = "GEMINI_API_KEY"
	cfg.Instruct.SystemPrompt = DefaultSystemPrompt
	cfg.Instruct.TimeoutSec = 30

	cfg.Hook.Command = ""
	cfg.Hook.Args = []string{}
	cfg.Hook.Prefix = ""
	cfg.Hook.CooldownSec = 0
	cfg.Hook.MinChars = 1
	cfg.Hook.QueueSize = 16
	cfg.Hook.TimeoutSec = 5
	cfg.Hook.Env = map[string]string{}

	cfg.Recordings.Enabled = true
	cfg.Recordings.Dir = filepath.Join(stateDir, "recordings")
	cfg.Recordings.Keep = 0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.Paths.StateDir = stateDir
	cfg.Paths.LogPath = filepath.Join(stateDir, "utter.log")
	cfg.Paths.TranscriptPath = filepath.Join(stateDir, "transcripts.log")
	cfg.Paths.SocketPath = filepath.Join(stateDir, "utter.sock")
	cfg.Paths.PidPath = filepath.Join(stateDir, "utter.pid")

	cfg.UI.StatusTail = defaultStatusTail

	cfg.Metrics.Enabled = false
	cfg.Metrics.Addr = "127.0.0.1:9318"

	cfg.Transcripts.Enabled = true

	return cfg, nil
}

// Load loads config from file, applying defaults.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, defaultConfigDir, "config.toml")
	}

	// Read if exists; otherwise write template.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := Save(cfg, path); err != nil {
				return nil, err
			}
			cfg.Paths.ConfigPath = path
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Paths.ConfigPath = path
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

// Cooldown is the post-utterance cooldown as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Segment.CooldownMS) * time.Millisecond
}

// Validate rejects settings the capture pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Audio.Channels != 1 {
		return fmt.Errorf("only mono input supported; set audio.channels = 1")
	}
	if err := (audio.Format{SampleRate: c.Audio.SampleRate, FrameMS: c.Audio.FrameMS}).Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if c.VAD.Aggressiveness < 0 || c.VAD.Aggressiveness > 3 {
		return fmt.Errorf("vad.aggressiveness must be 0-3 (got %d)", c.VAD.Aggressiveness)
	}
	switch strings.ToLower(c.VAD.Backend) {
	case "webrtc", "energy":
	default:
		return fmt.Errorf("vad.backend must be webrtc or energy (got %q)", c.VAD.Backend)
	}
	if c.Segment.SilenceFrames <= 0 {
		return fmt.Errorf("segment.silence_frames must be positive (got %d)", c.Segment.SilenceFrames)
	}
	if c.Segment.CooldownMS < 0 {
		return fmt.Errorf("segment.cooldown_ms must not be negative (got %d)", c.Segment.CooldownMS)
	}
	return nil
}

func isMac() bool {
	return runtime.GOOS == "darwin"
}

// MustStatePaths ensures state dirs exist.
func MustStatePaths(cfg *Config) error {
	for _, p := range []string{cfg.Paths.StateDir, filepath.Dir(cfg.Paths.LogPath), filepath.Dir(cfg.Paths.TranscriptPath)} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("UTTER_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv("UTTER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("UTTER_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("UTTER_TRANSCRIPTS_ENABLED"); v != "" {
		cfg.Transcripts.Enabled = envBool(v)
	}
	if v := os.Getenv("UTTER_REDACT_PII"); v != "" {
		cfg.Hook.RedactPII = envBool(v)
	}
	if v := os.Getenv("UTTER_INSTRUCT_ENABLED"); v != "" {
		cfg.Instruct.Enabled = envBool(v)
	}
	if v := os.Getenv("UTTER_SILENCE_FRAMES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Segment.SilenceFrames = n
		}
	}
	if v := os.Getenv("UTTER_COOLDOWN_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Segment.CooldownMS = n
		}
	}
}

func envBool(v string) bool {
	return v != "0" && strings.ToLower(v) != "false"
}
