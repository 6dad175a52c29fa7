package service

import (
	"os"
	"strings"
	"testing"
)

func params() Params {
	return Params{
		Label:  DefaultLabel,
		Binary: "/usr/local/bin/utter",
		Config: "/home/u/.config/utter/config.toml",
		Log:    "/home/u/.local/state/utter/utter.log",
		Env:    map[string]string{"UTTER_METRICS_ADDR": "127.0.0.1:9318", "GEMINI_API_KEY": "k"},
	}
}

func TestRenderSystemd(t *testing.T) {
	out, err := Render(Systemd, params())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, "ExecStart=/usr/local/bin/utter serve --config /home/u/.config/utter/config.toml") {
		t.Fatalf("missing ExecStart:\n%s", s)
	}
	gem := strings.Index(s, `Environment="GEMINI_API_KEY=k"`)
	met := strings.Index(s, `Environment="UTTER_METRICS_ADDR=127.0.0.1:9318"`)
	if gem < 0 || met < 0 || gem > met {
		t.Fatalf("env entries missing or unsorted:\n%s", s)
	}
}

func TestRenderLaunchd(t *testing.T) {
	out, err := Render(Launchd, params())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	s := string(out)
	for _, want := range []string{"<string>dev.utter.agent</string>", "<string>serve</string>", "<key>UTTER_METRICS_ADDR</key>"} {
		if !strings.Contains(s, want) {
			t.Fatalf("missing %q in:\n%s", want, s)
		}
	}
}

func TestRenderUnknownKind(t *testing.T) {
	if _, err := Render(Kind("upstart"), params()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestInstallStatusUninstall(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path, ok, err := Status(Systemd, DefaultLabel)
	if err != nil || ok {
		t.Fatalf("fresh home should have no unit: %v %v", ok, err)
	}
	got, err := Install(Systemd, params())
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if got != path {
		t.Fatalf("install path %s != status path %s", got, path)
	}
	if _, ok, _ := Status(Systemd, DefaultLabel); !ok {
		t.Fatalf("unit should exist after install")
	}
	if _, err := Uninstall(Systemd, DefaultLabel); err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("unit should be removed")
	}
	if _, err := Uninstall(Systemd, DefaultLabel); err != nil {
		t.Fatalf("second uninstall should be a no-op: %v", err)
	}
}
