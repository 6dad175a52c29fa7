// Package capture provides frame sources: the live microphone (PortAudio,
// built with -tags whisper) and WAV file replay.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"utter/internal/audio"
)

// ErrNoAudioBackend is returned when the binary was built without PortAudio.
var ErrNoAudioBackend = errors.New("built without microphone support; rebuild with '-tags whisper' (PortAudio required)")

// Device describes an input device.
type Device struct {
	Index     int     `json:"index"`
	Name      string  `json:"name"`
	Channels  int     `json:"channels"`
	LatencyMs float64 `json:"latency_ms"`
	Default   bool    `json:"default"`
}

// Chunk cuts samples into whole frames. A trailing partial frame is not
// returned; its length in samples is reported as the second value.
func Chunk(f audio.Format, samples []int16) ([]audio.Frame, int) {
	n := f.FrameSamples()
	if n <= 0 {
		return nil, len(samples)
	}
	frames := make([]audio.Frame, 0, len(samples)/n)
	for off := 0; off+n <= len(samples); off += n {
		s := make([]int16, n)
		copy(s, samples[off:off+n])
		frames = append(frames, audio.NewFrame(f, uint64(len(frames)), s))
	}
	return frames, len(samples) % n
}

// Replay serves a fixed list of frames, optionally paced at real time.
type Replay struct {
	frames []audio.Frame
	pace   time.Duration
	next   int
	timer  *time.Timer
}

// NewReplay returns a source over frames. A positive pace waits that long
// before every frame after the first.
func NewReplay(frames []audio.Frame, pace time.Duration) *Replay {
	return &Replay{frames: frames, pace: pace}
}

// Next implements segment.Source.
func (r *Replay) Next(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}
	if r.next >= len(r.frames) {
		return audio.Frame{}, io.EOF
	}
	if r.pace > 0 && r.next > 0 {
		if r.timer == nil {
			r.timer = time.NewTimer(r.pace)
		} else {
			r.timer.Reset(r.pace)
		}
		select {
		case <-ctx.Done():
			return audio.Frame{}, ctx.Err()
		case <-r.timer.C:
		}
	}
	fr := r.frames[r.next]
	r.next++
	return fr, nil
}

// Len is the number of frames in the replay.
func (r *Replay) Len() int { return len(r.frames) }

// OpenWAV loads a mono 16-bit WAV file recorded in format f and returns a
// replay source over its frames. Trailing samples that do not fill a frame
// are dropped and reported.
func OpenWAV(path string, f audio.Format, pace time.Duration) (*Replay, int, error) {
	rate, samples, err := audio.ReadWAV(path)
	if err != nil {
		return nil, 0, err
	}
	if rate != f.SampleRate {
		return nil, 0, fmt.Errorf("%s is %d Hz; audio.sample_rate is %d", path, rate, f.SampleRate)
	}
	frames, rest := Chunk(f, samples)
	return NewReplay(frames, pace), rest, nil
}
