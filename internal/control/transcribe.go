package control

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"utter/internal/asr"
	"utter/internal/audio"
	"utter/internal/config"
	"utter/internal/hook"
	"utter/internal/instruct"
	"utter/internal/logging"

	"github.com/spf13/cobra"
)

// NewTranscribeCmd transcribes a whole WAV file, optionally breaking it into
// steps and firing the hook.
func NewTranscribeCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <wavfile>",
		Short: "Transcribe a WAV file (build with -tags whisper)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.Configure(cfg)
			if err != nil {
				return err
			}
			rate, samples, err := audio.ReadWAV(args[0])
			if err != nil {
				return err
			}
			w, err := asr.NewWhisper(asr.Options{
				ModelPath: cfg.ASR.ModelPath,
				Language:  cfg.ASR.Language,
				Threads:   cfg.ASR.Threads,
			})
			if err != nil {
				return err
			}
			defer func() { _ = w.Close() }()

			tr, err := w.TranscribeSamples(cmd.Context(), samples, rate)
			if err != nil {
				return err
			}
			txt := strings.TrimSpace(tr.Text)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), txt)
			if txt == "" {
				return nil
			}

			var steps []string
			if want, _ := cmd.Flags().GetBool("steps"); want {
				p, err := instruct.New(cfg)
				if err != nil {
					return err
				}
				plan, err := p.Steps(cmd.Context(), txt)
				if err != nil {
					return err
				}
				steps = plan.Steps
				writeSteps(cmd.OutOrStdout(), steps)
			}

			if want, _ := cmd.Flags().GetBool("hook"); !want {
				return nil
			}
			r := hook.NewRunner(cfg, logger)
			if !r.Accepts(txt) {
				return fmt.Errorf("skipped: len(text)=%d < min_chars=%d", len(txt), cfg.Hook.MinChars)
			}
			return r.Run(cmd.Context(), hook.Job{Text: txt, Steps: steps, Timestamp: time.Now()})
		},
	}
	cmd.Flags().Bool("steps", false, "also break the transcript into steps")
	cmd.Flags().Bool("hook", false, "also send through configured hook")
	return cmd
}

// NewStepsCmd breaks a typed instruction into atomic steps.
func NewStepsCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steps \"instruction\"",
		Short: "Break an instruction into atomic steps with the LLM",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			p, err := instruct.New(cfg)
			if err != nil {
				return err
			}
			plan, err := p.Steps(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(plan)
			}
			writeSteps(cmd.OutOrStdout(), plan.Steps)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func writeSteps(w io.Writer, steps []string) {
	for i, s := range steps {
		_, _ = fmt.Fprintf(w, "%d. %s\n", i+1, s)
	}
}
