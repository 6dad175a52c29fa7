package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// EncodeWAV writes mono PCM16 samples as a RIFF/WAVE stream.
func EncodeWAV(w io.WriteSeeker, sampleRate int, samples []int16) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	enc := wav.NewEncoder(w, sampleRate, BitDepth, 1, wavFormatPCM)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// WriteWAV persists an utterance at path, replacing any existing file. The
// file is written next to its destination and renamed into place.
func WriteWAV(path string, u Utterance) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := EncodeWAV(f, u.Format.SampleRate, u.Samples()); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// ReadWAV loads a mono 16-bit WAV file and returns its sample rate and samples.
func ReadWAV(path string) (int, []int16, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = f.Close() }()
	return DecodeWAV(f)
}

// DecodeWAV reads a mono 16-bit WAV stream.
func DecodeWAV(r io.ReadSeeker) (int, []int16, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return 0, nil, errors.New("not a valid wav file")
	}
	if d.NumChans != 1 {
		return 0, nil, fmt.Errorf("only mono wav supported (got %d channels)", d.NumChans)
	}
	if d.BitDepth != BitDepth {
		return 0, nil, fmt.Errorf("only 16-bit wav supported (got %d)", d.BitDepth)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return 0, nil, fmt.Errorf("decode wav: %w", err)
	}
	out := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = int16(v)
	}
	return int(d.SampleRate), out, nil
}
