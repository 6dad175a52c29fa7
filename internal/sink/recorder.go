package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"utter/internal/audio"
)

const lastName = "last.wav"

// Recorder persists utterances as WAV files under Dir. With Keep == 0 every
// utterance overwrites last.wav; otherwise files are numbered and only the
// newest Keep are retained.
type Recorder struct {
	Dir  string
	Keep int
}

// NewRecorder ensures dir exists.
func NewRecorder(dir string, keep int) (*Recorder, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("recordings.dir is empty")
	}
	if keep < 0 {
		return nil, fmt.Errorf("recordings.keep must be >= 0 (got %d)", keep)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Recorder{Dir: dir, Keep: keep}, nil
}

// Save writes u and returns the file path.
func (r *Recorder) Save(u audio.Utterance) (string, error) {
	name := lastName
	if r.Keep > 0 {
		name = fmt.Sprintf("utt-%s-%06d.wav", u.CapturedAt.UTC().Format("20060102T150405.000"), u.Seq)
	}
	path := filepath.Join(r.Dir, name)
	if err := audio.WriteWAV(path, u); err != nil {
		return "", fmt.Errorf("record utterance %d: %w", u.Seq, err)
	}
	if r.Keep > 0 {
		if err := r.prune(); err != nil {
			return path, err
		}
	}
	return path, nil
}

// Files lists numbered recordings, oldest first.
func (r *Recorder) Files() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(r.Dir, "utt-*.wav"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func (r *Recorder) prune() error {
	files, err := r.Files()
	if err != nil {
		return err
	}
	for len(files) > r.Keep {
		if err := os.Remove(files[0]); err != nil && !os.IsNotExist(err) {
			return err
		}
		files = files[1:]
	}
	return nil
}
