//go:build !whisper

package capture

import (
	"context"

	"utter/internal/audio"
)

// Mic is unavailable in this build.
type Mic struct{}

// OpenMic always fails in builds without PortAudio.
func OpenMic(string, audio.Format) (*Mic, error) { return nil, ErrNoAudioBackend }

func (m *Mic) DeviceName() string { return "" }

func (m *Mic) Next(context.Context) (audio.Frame, error) { return audio.Frame{}, ErrNoAudioBackend }

func (m *Mic) Close() error { return nil }

// ListDevices always fails in builds without PortAudio.
func ListDevices() ([]Device, error) { return nil, ErrNoAudioBackend }

// CheckBackend always fails in builds without PortAudio.
func CheckBackend() error { return ErrNoAudioBackend }
