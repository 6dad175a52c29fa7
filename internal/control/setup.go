package control

import (
	"fmt"
	"os"
	"path/filepath"

	"utter/internal/config"

	"github.com/spf13/cobra"
)

// NewSetupCmd downloads the configured model if missing.
func NewSetupCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Download the configured whisper model if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			modelPath := os.ExpandEnv(cfg.ASR.ModelPath)
			if _, err := os.Stat(modelPath); err == nil {
				cmd.Println("model already present at", modelPath)
				return nil
			}
			url, ok := modelRegistry[filepath.Base(modelPath)]
			if !ok {
				return fmt.Errorf("%s is missing and not a known model; place it there or run 'utter models set'", modelPath)
			}
			cmd.Printf("downloading model to %s\n", modelPath)
			if err := downloadFile(cmd.Context(), url, modelPath); err != nil {
				return err
			}
			cmd.Println("model download complete")
			return nil
		},
	}
}
