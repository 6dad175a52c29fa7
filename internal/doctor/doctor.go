package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"utter/internal/asr"
	"utter/internal/audio"
	"utter/internal/capture"
	"utter/internal/config"
	"utter/internal/segment"
	"utter/internal/vad"
)

// Result represents a diagnostic check.
type Result struct {
	Name   string
	Pass   bool
	Detail string
}

// Run executes doctor checks.
func Run(cfg *config.Config) []Result {
	results := []Result{
		checkFile("config path", cfg.Paths.ConfigPath),
		checkSegmentation(cfg),
		checkClassifier(cfg),
	}
	if cfg.ASR.Enabled {
		results = append(results, checkWhisper(), checkFile("model file", cfg.ASR.ModelPath))
	}
	if cfg.Instruct.Enabled {
		results = append(results, checkAPIKey(cfg.Instruct.APIKeyEnv))
	}
	results = append(results,
		checkHookExecutable(cfg.Hook.Command),
		checkPortAudioPkgConfig(),
		checkPortAudio(),
	)
	return results
}

func checkFile(label, path string) Result {
	if path == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	if _, err := os.Stat(os.ExpandEnv(path)); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: path}
}

func checkSegmentation(cfg *config.Config) Result {
	label := "segment"
	if err := cfg.Validate(); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	sc := segment.Config{
		Format:        audio.Format{SampleRate: cfg.Audio.SampleRate, FrameMS: cfg.Audio.FrameMS},
		SilenceFrames: cfg.Segment.SilenceFrames,
		Cooldown:      cfg.Cooldown(),
	}
	if err := sc.Validate(); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: fmt.Sprintf("%s, cut after %d silent frames (%s), cooldown %s",
		sc.Format, sc.SilenceFrames, sc.Format.FrameDuration()*time.Duration(sc.SilenceFrames), sc.Cooldown)}
}

func checkClassifier(cfg *config.Config) Result {
	label := "vad"
	c, err := vad.New(vad.Options{
		Backend:         cfg.VAD.Backend,
		Aggressiveness:  cfg.VAD.Aggressiveness,
		EnergyThreshold: cfg.VAD.EnergyThreshold,
	})
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	f := audio.Format{SampleRate: cfg.Audio.SampleRate, FrameMS: cfg.Audio.FrameMS}
	if err := f.Validate(); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	fr := audio.NewFrame(f, 0, make([]int16, f.FrameSamples()))
	speech, err := c.IsSpeech(fr, f.SampleRate)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	if speech {
		return Result{Name: label, Pass: false, Detail: "digital silence classified as speech; lower the sensitivity"}
	}
	return Result{Name: label, Pass: true, Detail: cfg.VAD.Backend}
}

func checkWhisper() Result {
	if !asr.Available() {
		return Result{Name: "whisper", Pass: false, Detail: "built without whisper; rebuild with -tags whisper"}
	}
	return Result{Name: "whisper", Pass: true, Detail: "linked"}
}

func checkAPIKey(env string) Result {
	label := "llm key"
	if env == "" {
		return Result{Name: label, Pass: true, Detail: "provider default"}
	}
	if os.Getenv(env) == "" {
		return Result{Name: label, Pass: false, Detail: env + " is not set (a .env file in the working directory is read at startup)"}
	}
	return Result{Name: label, Pass: true, Detail: env}
}

func checkHookExecutable(cmd string) Result {
	label := "hook.command"
	if cmd == "" {
		return Result{Name: label, Pass: true, Detail: "not set (hook disabled)"}
	}
	path := os.ExpandEnv(cmd)
	if strings.Contains(path, "/") || strings.Contains(path, "\\") {
		info, err := os.Stat(path)
		if err != nil {
			return Result{Name: label, Pass: false, Detail: err.Error()}
		}
		if info.IsDir() {
			return Result{Name: label, Pass: false, Detail: "is a directory; set hook.command to an executable file"}
		}
		if info.Mode().Perm()&0o111 == 0 {
			return Result{Name: label, Pass: false, Detail: "not executable; chmod +x or choose another command"}
		}
		return Result{Name: label, Pass: true, Detail: path}
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: resolved}
}

func checkPortAudioPkgConfig() Result {
	pkg, err := exec.LookPath("pkg-config")
	if err != nil {
		return Result{Name: "pkg-config", Pass: false, Detail: "pkg-config not found (brew install pkg-config / apt install pkg-config)"}
	}
	cmd := exec.Command(pkg, "--exists", "portaudio-2.0")
	if err := cmd.Run(); err != nil {
		return Result{Name: "portaudio", Pass: false, Detail: "portaudio-2.0 not found (brew install portaudio / apt install portaudio19-dev)"}
	}
	versionCmd := exec.Command(pkg, "--modversion", "portaudio-2.0")
	if out, err := versionCmd.Output(); err == nil {
		return Result{Name: "portaudio", Pass: true, Detail: strings.TrimSpace(string(out))}
	}
	return Result{Name: "portaudio", Pass: true, Detail: "found via pkg-config"}
}

func checkPortAudio() Result {
	if err := capture.CheckBackend(); err != nil {
		return Result{Name: "microphone", Pass: false, Detail: err.Error()}
	}
	return Result{Name: "microphone", Pass: true, Detail: "portaudio initialised"}
}
