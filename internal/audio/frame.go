package audio

import (
	"encoding/binary"
	"time"
)

// Frame is one fixed-length block of mono PCM16 samples. Frames are treated
// as immutable once produced; sources hand out a fresh slice per frame.
type Frame struct {
	Samples []int16
	// Seq is the capture index of the frame within its session.
	Seq uint64
	// Offset is the capture position, Seq * frame duration.
	Offset time.Duration
	// Overflow is set when the device reported an input overflow on the read
	// that produced this frame.
	Overflow bool
}

// NewFrame builds the frame at position seq of a stream in format f.
func NewFrame(f Format, seq uint64, samples []int16) Frame {
	return Frame{
		Samples: samples,
		Seq:     seq,
		Offset:  time.Duration(seq) * f.FrameDuration(),
	}
}

// PCM returns the frame as little-endian bytes.
func (fr Frame) PCM() []byte {
	return AppendPCM(make([]byte, 0, len(fr.Samples)*2), fr.Samples)
}

// Utterance is a completed, time-ordered run of frames. The final
// TrailingSilence frames are the non-speech frames that closed it.
type Utterance struct {
	Seq             uint64
	Format          Format
	Frames          []Frame
	TrailingSilence int
	CapturedAt      time.Time
}

// Len is the number of frames.
func (u Utterance) Len() int { return len(u.Frames) }

// Start is the capture offset of the first frame.
func (u Utterance) Start() time.Duration {
	if len(u.Frames) == 0 {
		return 0
	}
	return u.Frames[0].Offset
}

// End is the capture offset just past the last frame.
func (u Utterance) End() time.Duration {
	if len(u.Frames) == 0 {
		return 0
	}
	return u.Frames[len(u.Frames)-1].Offset + u.Format.FrameDuration()
}

// Duration is the audio length of the utterance.
func (u Utterance) Duration() time.Duration {
	return time.Duration(len(u.Frames)) * u.Format.FrameDuration()
}

// Samples concatenates all frames.
func (u Utterance) Samples() []int16 {
	out := make([]int16, 0, len(u.Frames)*u.Format.FrameSamples())
	for _, fr := range u.Frames {
		out = append(out, fr.Samples...)
	}
	return out
}

// PCM concatenates all frames as little-endian PCM16 bytes, ready to be
// wrapped in a WAV container.
func (u Utterance) PCM() []byte {
	out := make([]byte, 0, len(u.Frames)*u.Format.FrameBytes())
	for _, fr := range u.Frames {
		out = AppendPCM(out, fr.Samples)
	}
	return out
}

// Float32 converts the utterance to normalised samples in [-1, 1) for whisper.
func (u Utterance) Float32() []float32 {
	return ToFloat32(u.Samples())
}

// AppendPCM appends samples to dst as little-endian PCM16.
func AppendPCM(dst []byte, samples []int16) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}

// SamplesFromPCM decodes little-endian PCM16. A trailing odd byte is ignored.
func SamplesFromPCM(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return out
}

// ToFloat32 scales PCM16 samples into [-1, 1).
func ToFloat32(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768.0
	}
	return out
}
