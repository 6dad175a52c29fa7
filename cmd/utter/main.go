package main

import (
	"fmt"
	"os"

	"utter/internal/control"
	"utter/internal/daemon"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// GEMINI_API_KEY and friends may live in ./.env.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "utter",
		Short: "utter: cut speech into utterances and turn them into steps",
		Long: `utter listens on your mic, detects speech frame by frame with WebRTC VAD, and cuts an utterance
once enough silent frames follow it. Each utterance is saved as WAV, transcribed locally with
whisper.cpp, optionally broken into atomic steps by an LLM, and handed to your hook.

Key commands:
  start|stop|restart        Daemon lifecycle
  listen                    Foreground capture, prints utterances
  segment <wav>             Split a recording into utterance files
  transcribe <wav>          Transcribe a file (build with -tags whisper)
  steps "<text>"            Break an instruction into steps
  status [--json]           Uptime, engine state, last transcripts
  mic list|set              Select microphone (alias: microphone, mics)
  doctor|setup              Check deps / download default model
  models list|download|set  Manage whisper.cpp models
  service install|uninstall|status   launchd (macOS) or systemd (Linux)
  health|tail-log|test-hook Liveness, log tail, manual hook

Notable flags/env:
  --silence-frames <n>      Frames of silence that end an utterance
  --cooldown <dur>          Pause after each utterance
  --metrics-addr <addr>     Enable /metrics (Prometheus)
  Env overrides: UTTER_SILENCE_FRAMES, UTTER_COOLDOWN_MS, UTTER_METRICS_ADDR,
                 UTTER_LOG_LEVEL/FORMAT, UTTER_TRANSCRIPTS_ENABLED,
                 UTTER_REDACT_PII, UTTER_INSTRUCT_ENABLED`,
		Example: `  utter listen --no-asr
  utter segment session.wav -o ./utterances --vad energy
  utter start --metrics-addr 127.0.0.1:9318 --steps
  utter steps "move forward two meters, then turn right"
  utter mic set --index 1
  utter service install --env UTTER_METRICS_ADDR=127.0.0.1:9318`,
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
		SilenceErrors:         true,
	}

	root.Version = version
	root.SetVersionTemplate("utter v{{.Version}}\n")

	cfgPath := root.PersistentFlags().StringP("config", "c", "", "Path to config file (TOML). Defaults to ~/.config/utter/config.toml")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(daemon.NewStartCmd(cfgPath))
	root.AddCommand(daemon.NewStopCmd(cfgPath))
	root.AddCommand(daemon.NewRestartCmd(cfgPath))
	root.AddCommand(daemon.NewListenCmd(cfgPath))
	root.AddCommand(daemon.NewSegmentCmd(cfgPath))
	root.AddCommand(control.NewStatusCmd(cfgPath))
	root.AddCommand(control.NewHealthCmd(cfgPath))
	root.AddCommand(control.NewTailLogCmd(cfgPath))
	root.AddCommand(control.NewMicCmd(cfgPath))
	root.AddCommand(control.NewTestHookCmd(cfgPath))
	root.AddCommand(control.NewDoctorCmd(cfgPath))
	root.AddCommand(control.NewServiceRootCmd(cfgPath))
	root.AddCommand(control.NewSetupCmd(cfgPath))
	root.AddCommand(control.NewTranscribeCmd(cfgPath))
	root.AddCommand(control.NewStepsCmd(cfgPath))
	root.AddCommand(control.NewModelsCmd(cfgPath))

	// Hidden internal serve command used by start and the service units.
	root.AddCommand(daemon.NewServeCmd(cfgPath))

	applyColorHelp(root)

	return root.Execute()
}

func applyColorHelp(root *cobra.Command) {
	const (
		boldBlue = "\033[1;34m"
		green    = "\033[32m"
		bold     = "\033[1m"
		dim      = "\033[2m"
		reset    = "\033[0m"
	)
	defaultHelp := root.HelpFunc()
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != root {
			defaultHelp(cmd, args)
			return
		}
		out := cmd.OutOrStdout()
		write := func(format string, args ...any) { _, _ = fmt.Fprintf(out, format, args...) }
		writeln := func(line string) { _, _ = fmt.Fprintln(out, line) }

		write("%sutter%s: spoken instructions to utterances, text and steps %s(v%s)%s\n", boldBlue, reset, dim, version, reset)
		write("%sListens on the mic, cuts utterances on trailing silence, transcribes locally, runs your hook.%s\n\n", dim, reset)

		write("%sUsage%s\n", bold, reset)
		write("  utter [command] [flags]\n\n")

		write("%sKey commands%s\n", bold, reset)
		writeln("  start|stop|restart          daemon lifecycle")
		writeln("  listen                      foreground capture, one line per utterance")
		writeln("  segment <wav>               split a recording into utterance WAVs")
		writeln("  steps \"text\"                break an instruction into atomic steps")
		writeln("  status [--json]             uptime, engine state, last transcripts")
		writeln("  mic list|set                select input device (alias: microphone, mics)")
		writeln("  doctor                      check deps/model/vad/hook/portaudio")
		writeln("  models list|download|set    manage whisper.cpp models")
		writeln("  service install|uninstall|status   launchd or systemd user service")
		writeln("  health                      control-socket liveness ping")
		writeln("  tail-log                    show last log lines")
		writeln("  test-hook \"text\"            invoke hook manually")
		writeln("")

		write("%sNotable flags & env%s\n", bold, reset)
		writeln("  --silence-frames <n>    silent frames that end an utterance (default 10)")
		writeln("  --cooldown <dur>        ignore audio for this long after each utterance (default 2s)")
		writeln("  --metrics-addr <addr>   enable /metrics (Prometheus)")
		writeln("  -c, --config <path>     config file (default ~/.config/utter/config.toml)")
		writeln("  Env: UTTER_SILENCE_FRAMES=15, UTTER_COOLDOWN_MS=500, UTTER_METRICS_ADDR=host:port,")
		writeln("       UTTER_LOG_LEVEL=debug, UTTER_LOG_FORMAT=json, UTTER_INSTRUCT_ENABLED=1")
		writeln("  .env in the working directory is loaded first (GEMINI_API_KEY)")
		writeln("")

		write("%sExamples%s\n", bold, reset)
		writeln("  utter listen --no-asr --cooldown 0s")
		writeln("  utter segment session.wav -o ./utterances")
		writeln("  utter start --steps --metrics-addr 127.0.0.1:9318")
		writeln("  utter models download ggml-base.en.bin && utter models set ggml-base.en.bin")
		writeln("  utter steps \"move forward two meters, then turn right\"")
		writeln("")

		write("%sCommands%s\n", bold, reset)
		for _, c := range cmd.Commands() {
			if c.Hidden {
				continue
			}
			write("  %s%-15s%s %s\n", green, c.Name(), reset, c.Short)
		}
	})
}
