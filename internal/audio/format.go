// Package audio holds the PCM types shared by capture, segmentation and the
// downstream sinks: fixed-size frames, completed utterances and the WAV
// container they are persisted in.
package audio

import (
	"fmt"
	"time"
)

// BitDepth is the only sample width handled end to end.
const BitDepth = 16

// Format describes a mono PCM16 stream cut into fixed-duration frames.
type Format struct {
	SampleRate int
	FrameMS    int
}

// Validate checks the rate and frame duration against what the webrtc VAD
// accepts (8/16/32/48 kHz, 10/20/30 ms).
func (f Format) Validate() error {
	switch f.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return fmt.Errorf("sample_rate must be 8k/16k/32k/48k (got %d)", f.SampleRate)
	}
	switch f.FrameMS {
	case 10, 20, 30:
	default:
		return fmt.Errorf("frame_ms must be 10, 20, or 30 (got %d)", f.FrameMS)
	}
	return nil
}

// FrameSamples is the exact number of samples in one frame.
func (f Format) FrameSamples() int {
	return f.SampleRate * f.FrameMS / 1000
}

// FrameBytes is the size of one frame as little-endian PCM16.
func (f Format) FrameBytes() int {
	return f.FrameSamples() * 2
}

// FrameDuration is the wall-clock length of one frame.
func (f Format) FrameDuration() time.Duration {
	return time.Duration(f.FrameMS) * time.Millisecond
}

// FramesFor converts a duration into a whole number of frames, rounding up.
func (f Format) FramesFor(d time.Duration) int {
	fd := f.FrameDuration()
	if fd <= 0 || d <= 0 {
		return 0
	}
	return int((d + fd - 1) / fd)
}

func (f Format) String() string {
	return fmt.Sprintf("%d Hz / %d ms", f.SampleRate, f.FrameMS)
}
