package control

import (
	"fmt"
	"os"
	"strings"

	"utter/internal/config"
	"utter/internal/service"

	"github.com/spf13/cobra"
)

// NewServiceRootCmd manages the launchd (macOS) or systemd (Linux) user service.
func NewServiceRootCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the user service (launchd on macOS, systemd on Linux)",
	}
	cmd.AddCommand(newServiceInstallCmd(cfgPath))
	cmd.AddCommand(newServiceUninstallCmd())
	cmd.AddCommand(newServiceStatusCmd())
	return cmd
}

func newServiceInstallCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			kind, err := service.Detect()
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return err
			}
			envPairs, _ := cmd.Flags().GetStringArray("env")
			env, err := parseEnvPairs(envPairs)
			if err != nil {
				return err
			}
			params := service.Params{
				Label:  service.DefaultLabel,
				Binary: exe,
				Config: cfg.Paths.ConfigPath,
				Log:    cfg.Paths.LogPath,
				Env:    env,
			}
			path, err := service.Install(kind, params)
			if err != nil {
				return err
			}
			cmd.Printf("%s definition written: %s\n", kind, path)
			switch kind {
			case service.Launchd:
				cmd.Println("Load:   launchctl load -w", path)
				cmd.Printf("Start:  launchctl kickstart gui/$(id -u)/%s\n", params.Label)
				cmd.Printf("Stop:   launchctl bootout gui/$(id -u)/%s\n", params.Label)
			case service.Systemd:
				cmd.Println("Load:   systemctl --user daemon-reload")
				cmd.Printf("Start:  systemctl --user enable --now %s\n", params.Label)
				cmd.Printf("Stop:   systemctl --user stop %s\n", params.Label)
			}
			return nil
		},
	}
	cmd.Flags().StringArray("env", nil, "Env to set in the service (KEY=VAL)")
	return cmd
}

func newServiceUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the user service definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := service.Detect()
			if err != nil {
				return err
			}
			path, err := service.Uninstall(kind, service.DefaultLabel)
			if err != nil {
				return err
			}
			cmd.Printf("removed %s (if present); stop the running service with your service manager\n", path)
			return nil
		},
	}
}

func newServiceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the service definition path and whether it exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := service.Detect()
			if err != nil {
				return err
			}
			path, ok, err := service.Status(kind, service.DefaultLabel)
			if err != nil {
				return err
			}
			cmd.Printf("%s: %s\n", kind, path)
			if ok {
				cmd.Println("status: present")
			} else {
				cmd.Println("status: missing (install via: utter service install)")
			}
			return nil
		},
	}
}

func parseEnvPairs(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("bad env %q, want KEY=VAL", p)
		}
		env[k] = v
	}
	return env, nil
}
