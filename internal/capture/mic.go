//go:build whisper

package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"utter/internal/audio"

	"github.com/gordonklaus/portaudio"
)

// Mic reads fixed-size frames from a PortAudio input stream.
type Mic struct {
	format audio.Format
	dev    *portaudio.DeviceInfo
	stream *portaudio.Stream
	buf    []int16
	seq    uint64
}

// OpenMic initialises PortAudio and starts a mono PCM16 input stream whose
// buffer is exactly one frame. preferred is a case-insensitive substring of
// the device name; empty selects the default input.
func OpenMic(preferred string, f audio.Format) (*Mic, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	dev, err := selectDevice(preferred)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}
	m := &Mic{
		format: f,
		dev:    dev,
		buf:    make([]int16, f.FrameSamples()),
	}
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(f.SampleRate),
		FramesPerBuffer: f.FrameSamples(),
	}, &m.buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("start stream: %w", err)
	}
	m.stream = stream
	return m, nil
}

// DeviceName is the name of the selected input device.
func (m *Mic) DeviceName() string { return m.dev.Name }

// Next implements segment.Source. An overflow on read still yields the
// frame PortAudio delivered, flagged with Overflow.
func (m *Mic) Next(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}
	overflow := false
	if err := m.stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return audio.Frame{}, fmt.Errorf("stream read: %w", err)
		}
		overflow = true
	}
	samples := make([]int16, len(m.buf))
	copy(samples, m.buf)
	fr := audio.NewFrame(m.format, m.seq, samples)
	fr.Overflow = overflow
	m.seq++
	return fr, nil
}

// Close stops the stream and releases PortAudio.
func (m *Mic) Close() error {
	var errs []error
	if err := m.stream.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := m.stream.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ListDevices returns the input-capable devices.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	defer func() { _ = portaudio.Terminate() }()

	devs, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	def, _ := portaudio.DefaultInputDevice()
	out := []Device{}
	for i, d := range devs {
		if d.MaxInputChannels < 1 {
			continue
		}
		out = append(out, Device{
			Index:     i,
			Name:      d.Name,
			Channels:  d.MaxInputChannels,
			LatencyMs: d.DefaultLowInputLatency.Seconds() * 1000,
			Default:   def != nil && d.Name == def.Name,
		})
	}
	return out, nil
}

// CheckBackend initialises and releases PortAudio, for diagnostics.
func CheckBackend() error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	return portaudio.Terminate()
}

func selectDevice(preferred string) (*portaudio.DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	if preferred != "" {
		for _, d := range devs {
			if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), strings.ToLower(preferred)) {
				return d, nil
			}
		}
	}
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		return def, nil
	}
	for _, d := range devs {
		if d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no input devices found")
}
