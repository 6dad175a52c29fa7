// Command showcfg prints the effective configuration after env overrides.
package main

import (
	"fmt"
	"os"
	"time"

	"utter/internal/config"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

func main() {
	_ = godotenv.Load()
	path := ""
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	frame := time.Duration(cfg.Audio.FrameMS) * time.Millisecond
	fmt.Printf("# %s\n", cfg.Paths.ConfigPath)
	fmt.Printf("# cut after %d silent frames (%s), cooldown %s, vad=%s\n",
		cfg.Segment.SilenceFrames, frame*time.Duration(cfg.Segment.SilenceFrames), cfg.Cooldown(), cfg.VAD.Backend)
	if err := cfg.Validate(); err != nil {
		fmt.Printf("# invalid: %v\n", err)
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	_, _ = os.Stdout.Write(out)
}
