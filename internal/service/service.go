// Package service writes user-level service definitions: a launchd plist on
// macOS and a systemd user unit on Linux.
package service

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"text/template"
)

// Kind is a service manager.
type Kind string

const (
	Launchd Kind = "launchd"
	Systemd Kind = "systemd"

	DefaultLabel = "dev.utter.agent"
)

const launchdTemplate = `<?xml version='1.0' encoding='UTF-8'?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Label</key><string>{{.Label}}</string>
  <key>ProgramArguments</key>
  <array>
    <string>{{.Binary}}</string>
    <string>serve</string>
    <string>--config</string>
    <string>{{.Config}}</string>
  </array>
  <key>RunAtLoad</key><true/>
  <key>KeepAlive</key><dict><key>SuccessfulExit</key><false/></dict>
  <key>StandardOutPath</key><string>{{.Log}}</string>
  <key>StandardErrorPath</key><string>{{.Log}}</string>
  {{- if .Env }}
  <key>EnvironmentVariables</key>
  <dict>
    {{- range .Env }}
    <key>{{.Key}}</key><string>{{.Value}}</string>
    {{- end }}
  </dict>
  {{- end }}
</dict>
</plist>
`

const systemdTemplate = `[Unit]
Description=utter voice instruction daemon
After=sound.target

[Service]
ExecStart={{.Binary}} serve --config {{.Config}}
Restart=on-failure
RestartSec=2
{{- range .Env }}
Environment="{{.Key}}={{.Value}}"
{{- end }}

[Install]
WantedBy=default.target
`

// Params describe the service to install.
type Params struct {
	Label  string
	Binary string
	Config string
	Log    string
	Env    map[string]string
}

type envPair struct{ Key, Value string }

// Detect picks the service manager for this OS.
func Detect() (Kind, error) {
	switch runtime.GOOS {
	case "darwin":
		return Launchd, nil
	case "linux":
		return Systemd, nil
	default:
		return "", fmt.Errorf("no service manager support on %s", runtime.GOOS)
	}
}

// Path returns where the definition for label lives.
func Path(kind Kind, label string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	switch kind {
	case Launchd:
		return filepath.Join(home, "Library", "LaunchAgents", label+".plist"), nil
	case Systemd:
		return filepath.Join(home, ".config", "systemd", "user", label+".service"), nil
	default:
		return "", fmt.Errorf("unknown service kind %q", kind)
	}
}

// Render produces the service definition text. Env entries are sorted so the
// output is stable.
func Render(kind Kind, p Params) ([]byte, error) {
	var text string
	switch kind {
	case Launchd:
		text = launchdTemplate
	case Systemd:
		text = systemdTemplate
	default:
		return nil, fmt.Errorf("unknown service kind %q", kind)
	}
	env := make([]envPair, 0, len(p.Env))
	for k, v := range p.Env {
		env = append(env, envPair{k, v})
	}
	sort.Slice(env, func(i, j int) bool { return env[i].Key < env[j].Key })

	tpl, err := template.New(string(kind)).Parse(text)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err = tpl.Execute(&buf, struct {
		Params
		Env []envPair
	}{p, env})
	return buf.Bytes(), err
}

// Install writes the definition and returns its path.
func Install(kind Kind, p Params) (string, error) {
	path, err := Path(kind, p.Label)
	if err != nil {
		return "", err
	}
	data, err := Render(kind, p)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Uninstall removes the definition if present.
func Uninstall(kind Kind, label string) (string, error) {
	path, err := Path(kind, label)
	if err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return path, err
	}
	return path, nil
}

// Status returns the definition path and whether it exists.
func Status(kind Kind, label string) (string, bool, error) {
	path, err := Path(kind, label)
	if err != nil {
		return "", false, err
	}
	_, err = os.Stat(path)
	return path, err == nil, nil
}
