package emotion

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/gesturelab/speech2gesture/cache"
	"github.com/gesturelab/speech2gesture/config"
	"github.com/gesturelab/speech2gesture/synth"
	"github.com/gesturelab/speech2gesture/windower"
)

// Recording is one utterance waveform awaiting feature extraction.
type Recording struct {
	Name       string // utterance name without extension, e.g. Ses01F_impro01_F000
	Audio      []float64
	SampleRate int
}

// Set is the consolidated block archive for one split. Each block is
// block_size frames of filter_num*3 features (log filterbank, delta,
// delta-delta laid out channel by channel per row).
type Set struct {
	BlockSize  int
	FeatureDim int

	Blocks      [][][]float64 // n x block_size x feature_dim
	Labels      []int         // collapsed category per block
	OneHot      [][]float64   // n x NumCategories
	Dimensional [][]float64   // n x 3, normalized valence/arousal/dominance
}

// Len reports the number of blocks in the set.
func (s *Set) Len() int { return len(s.Labels) }

// NormalizationStats hold per-channel feature extrema. They are owned
// by the training split; validation and test reuse them unchanged so
// the held-out data never leaks into the scaling.
type NormalizationStats struct {
	Min [3]float64 `json:"min"`
	Max [3]float64 `json:"max"`
}

// Builder turns annotated recordings into normalized, blocked feature
// archives split into train, validation and test.
type Builder struct {
	Cfg   *config.Root
	Feats synth.FeatureExtractor
}

// Build joins recordings with their annotations, extracts blocked
// features per split and persists the archives plus the train-split
// normalization stats under dir. A count mismatch between recordings
// and annotations means the corpus listing is corrupt, so it is fatal.
func (b *Builder) Build(ctx context.Context, recs []Recording, anns []Annotation, dir string) (map[windower.Split]*Set, *NormalizationStats, error) {
	if len(recs) != len(anns) {
		return nil, nil, fmt.Errorf("emotion: %d recordings but %d annotations", len(recs), len(anns))
	}
	byName := make(map[string]Annotation, len(anns))
	for _, a := range anns {
		byName[a.Name] = a
	}

	featureDim := b.Cfg.Emotion.FilterNum * 3
	sets := map[windower.Split]*Set{
		windower.SplitTrain: newSet(b.Cfg.Emotion.BlockSize, featureDim),
		windower.SplitVal:   newSet(b.Cfg.Emotion.BlockSize, featureDim),
		windower.SplitTest:  newSet(b.Cfg.Emotion.BlockSize, featureDim),
	}

	for i, rec := range recs {
		ann, ok := byName[rec.Name]
		if !ok {
			return nil, nil, fmt.Errorf("emotion: recording %s has no annotation", rec.Name)
		}
		if err := b.addRecording(ctx, sets, rec, ann); err != nil {
			return nil, nil, fmt.Errorf("emotion: %s: %w", rec.Name, err)
		}
		if (i+1)%100 == 0 {
			logrus.WithField("done", i+1).Info("emotion feature extraction progress")
		}
	}

	stats := computeStats(sets[windower.SplitTrain], b.Cfg.Emotion.FilterNum)
	for _, set := range sets {
		stats.apply(set, b.Cfg.Emotion.FilterNum)
	}

	for split, set := range sets {
		logrus.WithFields(logrus.Fields{
			"split":  split.String(),
			"blocks": set.Len(),
		}).Info("writing emotion archive")
		if err := cache.WriteGobGz(filepath.Join(dir, split.String()+".gob.gz"), set); err != nil {
			return nil, nil, err
		}
	}
	if err := stats.Save(filepath.Join(dir, "normalization.json")); err != nil {
		return nil, nil, err
	}
	return sets, stats, nil
}

func (b *Builder) addRecording(ctx context.Context, sets map[windower.Split]*Set, rec Recording, ann Annotation) error {
	cat, err := CollapseLabel(ann.Code)
	if err != nil {
		return err
	}
	session, err := SessionOf(rec.Name)
	if err != nil {
		return err
	}
	split, err := windower.Assign(session, rec.Name+".wav",
		b.Cfg.Emotion.TrainSessions, b.Cfg.Emotion.HeldOutSessions)
	if err != nil {
		return err
	}

	frames, err := b.extract(ctx, rec)
	if err != nil {
		return err
	}

	set := sets[split]
	dimensional := b.normalizeDimensional(ann)
	for _, blk := range windower.Blocks(frames, b.Cfg.Emotion.BlockSize, int(cat)) {
		// overlapping blocks alias source rows; copy so the later
		// normalization pass touches each block exactly once
		set.Blocks = append(set.Blocks, copyFrames(blk.Frames))
		set.Labels = append(set.Labels, blk.Label)
		set.OneHot = append(set.OneHot, Category(blk.Label).OneHot())
		set.Dimensional = append(set.Dimensional, dimensional)
	}
	return nil
}

// extract computes the three feature channels and lays them out side
// by side per frame: [fbank | delta | delta-delta].
func (b *Builder) extract(ctx context.Context, rec Recording) ([][]float64, error) {
	nfilt := b.Cfg.Emotion.FilterNum
	fbank, err := b.Feats.LogFBank(ctx, rec.Audio, rec.SampleRate, nfilt)
	if err != nil {
		return nil, fmt.Errorf("log filterbank: %w", err)
	}
	delta, err := b.Feats.Delta(ctx, fbank, 2)
	if err != nil {
		return nil, fmt.Errorf("delta: %w", err)
	}
	deltaDelta, err := b.Feats.Delta(ctx, delta, 2)
	if err != nil {
		return nil, fmt.Errorf("delta-delta: %w", err)
	}
	if len(delta) != len(fbank) || len(deltaDelta) != len(fbank) {
		return nil, fmt.Errorf("channel length mismatch: %d/%d/%d frames",
			len(fbank), len(delta), len(deltaDelta))
	}

	frames := make([][]float64, len(fbank))
	for t := range fbank {
		if len(fbank[t]) != nfilt {
			return nil, fmt.Errorf("filterbank frame has %d filters, want %d", len(fbank[t]), nfilt)
		}
		row := make([]float64, nfilt*3)
		copy(row, fbank[t])
		copy(row[nfilt:], delta[t])
		copy(row[nfilt*2:], deltaDelta[t])
		frames[t] = row
	}
	return frames, nil
}

func (b *Builder) normalizeDimensional(ann Annotation) []float64 {
	lo := b.Cfg.Emotion.DimensionalMin
	span := b.Cfg.Emotion.DimensionalMax - lo
	return []float64{
		(ann.Valence - lo) / span,
		(ann.Arousal - lo) / span,
		(ann.Dominance - lo) / span,
	}
}

func copyFrames(frames [][]float64) [][]float64 {
	out := make([][]float64, len(frames))
	for i, row := range frames {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func newSet(blockSize, featureDim int) *Set {
	return &Set{BlockSize: blockSize, FeatureDim: featureDim}
}

// computeStats scans the training blocks for per-channel extrema.
func computeStats(train *Set, nfilt int) *NormalizationStats {
	stats := &NormalizationStats{}
	for ch := 0; ch < 3; ch++ {
		stats.Min[ch] = math.Inf(1)
		stats.Max[ch] = math.Inf(-1)
	}
	for _, blk := range train.Blocks {
		for _, row := range blk {
			for ch := 0; ch < 3; ch++ {
				for _, v := range row[ch*nfilt : (ch+1)*nfilt] {
					if v < stats.Min[ch] {
						stats.Min[ch] = v
					}
					if v > stats.Max[ch] {
						stats.Max[ch] = v
					}
				}
			}
		}
	}
	return stats
}

// apply rescales every channel of every block to [0, 1] against the
// training extrema.
func (st *NormalizationStats) apply(set *Set, nfilt int) {
	for ch := 0; ch < 3; ch++ {
		span := st.Max[ch] - st.Min[ch]
		if span == 0 || math.IsInf(span, 0) {
			continue
		}
		for _, blk := range set.Blocks {
			for _, row := range blk {
				for i := ch * nfilt; i < (ch+1)*nfilt; i++ {
					row[i] = (row[i] - st.Min[ch]) / span
				}
			}
		}
	}
}

// Save writes the stats next to the archives so inference can reuse
// the exact training-time scaling.
func (st *NormalizationStats) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create stats dir: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write stats %s: %w", path, err)
	}
	return nil
}

// LoadStats reads a persisted normalization stats file.
func LoadStats(path string) (*NormalizationStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stats %s: %w", path, err)
	}
	var st NormalizationStats
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode stats %s: %w", path, err)
	}
	return &st, nil
}

// LoadSet reads one split archive back.
func LoadSet(dir string, split windower.Split) (*Set, error) {
	var set Set
	if err := cache.ReadGobGz(filepath.Join(dir, split.String()+".gob.gz"), &set); err != nil {
		return nil, err
	}
	return &set, nil
}
