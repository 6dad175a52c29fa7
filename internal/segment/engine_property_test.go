package segment

import (
	"context"
	"reflect"
	"testing"
	"time"

	"utter/internal/audio"
	"utter/internal/logging"

	"pgregory.net/rapid"
)

type runResult struct {
	utterances []audio.Utterance
	steps      map[uint64]Step
	stats      Stats
}

func runLabels(t *rapid.T, labels []bool, threshold int, cooldown time.Duration) runResult {
	e, err := NewEngine(Config{Format: testFormat, SilenceFrames: threshold, Cooldown: cooldown}, markClassifier,
		WithClock(StreamClock(time.Unix(1700000000, 0))))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	sink := &recordSink{}
	res := runResult{steps: make(map[uint64]Step, len(labels))}
	p := &Pipeline{
		Source: &sliceSource{frames: makeFrames(labels)},
		Engine: e,
		Sink:   sink,
		Logger: logging.NewTestLogger(),
		OnStep: func(fr audio.Frame, st Step) { res.steps[fr.Seq] = st },
	}
	res.stats, err = p.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	res.utterances = sink.utterances()
	return res
}

func drawCase(t *rapid.T) ([]bool, int, time.Duration) {
	labels := rapid.SliceOfN(rapid.Bool(), 0, 400).Draw(t, "labels")
	threshold := rapid.IntRange(1, 8).Draw(t, "threshold")
	cooldownFrames := rapid.IntRange(0, 6).Draw(t, "cooldownFrames")
	return labels, threshold, time.Duration(cooldownFrames) * testFormat.FrameDuration()
}

func TestPropertyNoSampleLostOrDuplicated(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		labels, threshold, cooldown := drawCase(t)
		res := runLabels(t, labels, threshold, cooldown)
		input := makeFrames(labels)

		seen := make(map[uint64]bool, len(labels))
		var last int64 = -1
		for _, u := range res.utterances {
			for _, fr := range u.Frames {
				if int64(fr.Seq) <= last {
					t.Fatalf("frame %d emitted out of order or twice", fr.Seq)
				}
				last = int64(fr.Seq)
				seen[fr.Seq] = true
				if !reflect.DeepEqual(fr.Samples, input[fr.Seq].Samples) {
					t.Fatalf("frame %d samples changed", fr.Seq)
				}
			}
		}
		var discarded, buffered uint64
		for seq, st := range res.steps {
			switch st.Disposition {
			case DiscardedLeading, DiscardedCooldown:
				discarded++
				if seen[seq] {
					t.Fatalf("frame %d both discarded and emitted", seq)
				}
			case Buffered:
				buffered++
			}
		}
		emitted := uint64(len(seen))
		if buffered != emitted+res.stats.DiscardedTail {
			t.Fatalf("buffered %d != emitted %d + open tail %d", buffered, emitted, res.stats.DiscardedTail)
		}
		if emitted+discarded+res.stats.DiscardedTail != uint64(len(labels)) {
			t.Fatalf("accounted %d+%d+%d frames of %d", emitted, discarded, res.stats.DiscardedTail, len(labels))
		}
	})
}

func TestPropertyTrailingSilenceInclusion(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		labels, threshold, cooldown := drawCase(t)
		res := runLabels(t, labels, threshold, cooldown)
		for _, u := range res.utterances {
			if u.Len() == 0 {
				t.Fatalf("empty utterance emitted")
			}
			if u.Len() <= threshold {
				t.Fatalf("utterance %d has %d frames, needs speech plus %d silent", u.Seq, u.Len(), threshold)
			}
			if u.TrailingSilence != threshold {
				t.Fatalf("trailing silence %d, want %d", u.TrailingSilence, threshold)
			}
			if !labels[u.Frames[0].Seq] {
				t.Fatalf("utterance %d starts with silence", u.Seq)
			}
			tail := u.Frames[u.Len()-threshold:]
			for _, fr := range tail {
				if labels[fr.Seq] {
					t.Fatalf("utterance %d tail frame %d is speech", u.Seq, fr.Seq)
				}
			}
			if before := u.Frames[u.Len()-threshold-1]; !labels[before.Seq] {
				t.Fatalf("utterance %d: frame before the tail should be speech", u.Seq)
			}
			for i := 1; i < u.Len(); i++ {
				if u.Frames[i].Seq != u.Frames[i-1].Seq+1 {
					t.Fatalf("utterance %d is not contiguous", u.Seq)
				}
			}
		}
	})
}

func TestPropertyDeterministicAcrossEngines(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		labels, threshold, cooldown := drawCase(t)
		a := runLabels(t, labels, threshold, cooldown)
		b := runLabels(t, labels, threshold, cooldown)
		if !reflect.DeepEqual(a.utterances, b.utterances) {
			t.Fatalf("two fresh engines disagreed")
		}
	})
}

func TestPropertyCooldownBlocksNewBuffering(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		labels, threshold, _ := drawCase(t)
		cooldown := time.Duration(rapid.IntRange(1, 10).Draw(t, "cooldown")) * testFormat.FrameDuration()
		res := runLabels(t, labels, threshold, cooldown)
		for _, u := range res.utterances {
			closing := u.Frames[u.Len()-1]
			for seq := closing.Seq + 1; seq < uint64(len(labels)); seq++ {
				offset := time.Duration(seq) * testFormat.FrameDuration()
				if offset >= closing.Offset+cooldown {
					break
				}
				if st := res.steps[seq]; st.Disposition != DiscardedCooldown {
					t.Fatalf("frame %d inside cooldown got %v", seq, st.Disposition)
				}
			}
		}
	})
}

func TestPropertySilenceNeverEmits(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 2000).Draw(t, "n")
		threshold := rapid.IntRange(1, 20).Draw(t, "threshold")
		res := runLabels(t, make([]bool, n), threshold, 0)
		if len(res.utterances) != 0 {
			t.Fatalf("silence produced %d utterances", len(res.utterances))
		}
	})
}
