package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"utter/internal/capture"
	"utter/internal/config"
	"utter/internal/logging"
	"utter/internal/run"
	"utter/internal/segment"
	"utter/internal/sink"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewListenCmd runs capture and segmentation in the foreground and prints
// each utterance as it is processed.
func NewListenCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Listen on the mic in the foreground and print utterances",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadForeground(cmd, *cfgPath)
			if err != nil {
				return err
			}
			if dev, _ := cmd.Flags().GetString("device"); dev != "" {
				cfg.Audio.DeviceName = dev
			}
			noASR, _ := cmd.Flags().GetBool("no-asr")
			jsonOut, _ := cmd.Flags().GetBool("json")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mic, err := capture.OpenMic(cfg.Audio.DeviceName, run.Format(cfg))
			if err != nil {
				return err
			}
			defer func() { _ = mic.Close() }()

			rt, err := run.NewRuntime(cfg, logger, nil, run.Options{
				Transcribe: cfg.ASR.Enabled && !noASR,
				Plan:       cfg.Instruct.Enabled,
				OnResult:   resultPrinter(cmd.OutOrStdout(), jsonOut),
			})
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "listening on %s (%s); ctrl-c to stop\n", mic.DeviceName(), run.Format(cfg))
			st, err := rt.Run(ctx, mic)
			writeStats(cmd.ErrOrStderr(), st)
			if err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
	addSegmentFlags(cmd)
	cmd.Flags().String("device", "", "input device name (substring match) for this run")
	cmd.Flags().Bool("no-asr", false, "segment only; do not transcribe")
	cmd.Flags().Bool("json", false, "print one JSON object per utterance")
	return cmd
}

// NewSegmentCmd cuts a WAV recording into utterance files.
func NewSegmentCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "segment <wavfile>",
		Short: "Split a WAV recording into utterances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadForeground(cmd, *cfgPath)
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				cfg.Recordings.Enabled = false
			} else {
				cfg.Recordings.Enabled = true
				cfg.Recordings.Dir = out
				cfg.Recordings.Keep = math.MaxInt32
			}
			transcribe, _ := cmd.Flags().GetBool("transcribe")
			jsonOut, _ := cmd.Flags().GetBool("json")

			src, rest, err := capture.OpenWAV(args[0], run.Format(cfg), 0)
			if err != nil {
				return err
			}
			if rest > 0 {
				logger.Debugf("ignoring %d trailing samples that do not fill a frame", rest)
			}
			rt, err := run.NewRuntime(cfg, logger, nil, run.Options{
				Transcribe: transcribe,
				Plan:       transcribe && cfg.Instruct.Enabled,
				Clock:      segment.StreamClock(time.Now()),
				OnResult:   resultPrinter(cmd.OutOrStdout(), jsonOut),
			})
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			st, err := rt.Run(cmd.Context(), src)
			writeStats(cmd.ErrOrStderr(), st)
			return err
		},
	}
	addSegmentFlags(cmd)
	cmd.Flags().StringP("out", "o", "", "write each utterance as a WAV file into this directory")
	cmd.Flags().Bool("transcribe", false, "transcribe each utterance (build with -tags whisper)")
	cmd.Flags().Bool("json", false, "print one JSON object per utterance")
	return cmd
}

func addSegmentFlags(cmd *cobra.Command) {
	cmd.Flags().Int("silence-frames", 0, "override segment.silence_frames")
	cmd.Flags().Duration("cooldown", 0, "override segment.cooldown_ms (e.g., 500ms; 0s disables)")
	cmd.Flags().String("vad", "", "override vad.backend (webrtc or energy)")
	cmd.Flags().Bool("steps", false, "break transcripts into steps with the LLM")
}

// loadForeground loads config, applies segmentation flags, and sets up
// logging mirrored to stderr.
func loadForeground(cmd *cobra.Command, cfgPath string) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	if err := applySegmentFlags(cmd, cfg); err != nil {
		return nil, nil, err
	}
	logger, err := logging.Configure(cfg)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Logging.Stdout {
		logger.SetOutput(io.MultiWriter(cmd.ErrOrStderr(), logger.Out))
	}
	return cfg, logger, nil
}

func applySegmentFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("silence-frames") {
		cfg.Segment.SilenceFrames, _ = cmd.Flags().GetInt("silence-frames")
	}
	if cmd.Flags().Changed("cooldown") {
		d, _ := cmd.Flags().GetDuration("cooldown")
		cfg.Segment.CooldownMS = int(d.Milliseconds())
	}
	if v, _ := cmd.Flags().GetString("vad"); v != "" {
		cfg.VAD.Backend = v
	}
	if cmd.Flags().Changed("steps") {
		cfg.Instruct.Enabled, _ = cmd.Flags().GetBool("steps")
	}
	return cfg.Validate()
}

func resultPrinter(w io.Writer, jsonOut bool) func(context.Context, sink.Result) error {
	enc := json.NewEncoder(w)
	return func(_ context.Context, r sink.Result) error {
		if jsonOut {
			return enc.Encode(r)
		}
		line := fmt.Sprintf("#%d %s-%s (%d frames)", r.Seq, fmtOffset(r.Start), fmtOffset(r.Start+r.Duration), r.Frames)
		if r.WAVPath != "" {
			line += " " + r.WAVPath
		}
		if r.Text != "" {
			line += fmt.Sprintf(" %q", r.Text)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		for i, s := range r.Steps {
			if _, err := fmt.Fprintf(w, "    %d. %s\n", i+1, s); err != nil {
				return err
			}
		}
		if r.PlanErr != "" {
			_, _ = fmt.Fprintf(w, "    (no steps: %s)\n", r.PlanErr)
		}
		return nil
	}
}

func fmtOffset(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}

func writeStats(w io.Writer, st segment.Stats) {
	parts := []string{
		fmt.Sprintf("%d frames", st.Frames),
		fmt.Sprintf("%d speech", st.Speech),
		fmt.Sprintf("%d utterances", st.Utterances),
	}
	if st.Overflows > 0 {
		parts = append(parts, fmt.Sprintf("%d overflows", st.Overflows))
	}
	if st.DiscardedTail > 0 {
		parts = append(parts, fmt.Sprintf("%d unfinished frames dropped", st.DiscardedTail))
	}
	if st.SinkFailures > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", st.SinkFailures))
	}
	_, _ = fmt.Fprintln(w, strings.Join(parts, ", "))
}
