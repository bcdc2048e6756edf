// Package cache builds and loads the fixed-shape per-sample tensor
// bundles the trainer consumes: individual archives for random access
// plus one consolidated archive per split for fast bulk loading.
package cache

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/gesturelab/speech2gesture/config"
	"github.com/gesturelab/speech2gesture/grid"
	"github.com/gesturelab/speech2gesture/langmodel"
	"github.com/gesturelab/speech2gesture/store"
)

// Params are the fixed tensor dimensions of one split's cache.
type Params struct {
	NPoses           int
	PoseDim          int
	AudioLength      int
	NumMFCC          int
	MFCCLength       int
	RemoveWordTiming bool
}

func ParamsFromConfig(cfg *config.Root) Params {
	return Params{
		NPoses:           cfg.Pose.NPoses,
		PoseDim:          cfg.Pose.PoseDim,
		AudioLength:      cfg.AudioLength(),
		NumMFCC:          cfg.NumMFCCCombined(),
		MFCCLength:       cfg.MFCCLength(),
		RemoveWordTiming: cfg.Pose.RemoveWordTiming,
	}
}

// Builder turns raw session records into cached samples.
type Builder struct {
	Params   Params
	Lang     langmodel.Model
	Speakers *VocabSpeakerModel
}

// Build constructs every sample of a split from the store, persists the
// per-sample archives under dir/part and the consolidated archive under
// dir/full, and returns the consolidated archive. Construction is
// deterministic: sample k in the archive always comes from store key k.
func (b *Builder) Build(ctx context.Context, st *store.Store, dir, part string) (*Archive, error) {
	numSamples, err := st.Count(ctx)
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{"part": part, "samples": numSamples})
	log.Info("caching split")

	arch := &Archive{
		NPoses:      b.Params.NPoses,
		PoseDim:     b.Params.PoseDim,
		AudioLength: b.Params.AudioLength,
		NumMFCC:     b.Params.NumMFCC,
		MFCCLength:  b.Params.MFCCLength,

		ExtendedWordSeq: make([][]int64, numSamples),
		VecSeq:          make([][][]float64, numSamples),
		Audio:           make([][]int16, numSamples),
		AudioMax:        make([]float64, numSamples),
		MFCC:            make([][][]float64, numSamples),
		SpeakerIdx:      make([]int64, numSamples),
	}

	for k := 0; k < numSamples; k++ {
		rec, err := st.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		sample, err := b.buildSample(rec)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", store.Key(k), err)
		}
		if err := WriteGobGz(samplePath(dir, part, k), sample); err != nil {
			return nil, err
		}

		arch.ExtendedWordSeq[k] = sample.ExtendedWordSeq
		arch.VecSeq[k] = sample.VecSeq
		arch.Audio[k] = sample.Audio
		arch.AudioMax[k] = sample.AudioMax
		arch.MFCC[k] = sample.MFCC
		arch.SpeakerIdx[k] = sample.SpeakerIdx

		if (k+1)%1000 == 0 || k+1 == numSamples {
			log.WithField("done", k+1).Info("caching progress")
		}
	}

	if err := WriteGobGz(fullPath(dir, part), arch); err != nil {
		return nil, err
	}
	log.Info("split cached")
	return arch, nil
}

func (b *Builder) buildSample(rec *store.Record) (*Sample, error) {
	if len(rec.VecSeq) < b.Params.NPoses {
		return nil, fmt.Errorf("vec_seq has %d rows, need %d", len(rec.VecSeq), b.Params.NPoses)
	}
	if len(rec.MFCC) < b.Params.NumMFCC {
		return nil, fmt.Errorf("mfcc has %d channels, need %d", len(rec.MFCC), b.Params.NumMFCC)
	}

	duration := rec.Aux.EndTime - rec.Aux.StartTime
	// the grid covers only the first n_poses of the raw vec sequence
	sampleEndTime := rec.Aux.StartTime + duration*float64(b.Params.NPoses)/float64(len(rec.VecSeq))

	audioMax := peakAmplitude(rec.Audio)
	audio := fixedLength(rec.Audio, b.Params.AudioLength)

	mfcc := make([][]float64, b.Params.NumMFCC)
	for c := 0; c < b.Params.NumMFCC; c++ {
		if len(rec.MFCC[c]) < b.Params.MFCCLength {
			return nil, fmt.Errorf("mfcc channel %d has %d cols, need %d",
				c, len(rec.MFCC[c]), b.Params.MFCCLength)
		}
		mfcc[c] = rec.MFCC[c][:b.Params.MFCCLength]
	}

	vecSeq := rec.VecSeq[:b.Params.NPoses]
	for i, row := range vecSeq {
		if len(row) != b.Params.PoseDim {
			return nil, fmt.Errorf("vec_seq row %d has dim %d, want %d", i, len(row), b.Params.PoseDim)
		}
	}

	words := make([]grid.WordEvent, len(rec.Words))
	for i, w := range rec.Words {
		words[i] = grid.WordEvent{Word: w.Word, Start: w.Start, End: w.End}
	}
	extended := grid.ExtendWordSeq(b.Params.NPoses, b.Lang, b.Params.RemoveWordTiming,
		words, rec.Aux.StartTime, sampleEndTime)

	spkIdx, err := b.Speakers.Index(rec.Aux.Vid)
	if err != nil {
		return nil, err
	}

	return &Sample{
		ExtendedWordSeq: extended,
		VecSeq:          vecSeq,
		Audio:           quantizeAudio(audio, audioMax),
		AudioMax:        audioMax,
		MFCC:            mfcc,
		SpeakerIdx:      int64(spkIdx),
	}, nil
}

// Load reads a split's consolidated archive and validates its schema.
// A missing archive is reported as-is so callers can trigger a rebuild.
func Load(dir, part string, p Params) (*Archive, error) {
	var arch Archive
	if err := ReadGobGz(fullPath(dir, part), &arch); err != nil {
		return nil, err
	}
	if err := arch.checkSchema(p); err != nil {
		return nil, err
	}
	return &arch, nil
}

// LoadSample reads one individual per-sample archive.
func LoadSample(dir, part string, k int) (*Sample, error) {
	var s Sample
	if err := ReadGobGz(samplePath(dir, part, k), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Exists reports whether the consolidated archive for a split is on
// disk. Cache invalidation is by absence only; no content hashing.
func Exists(dir, part string) bool {
	_, err := os.Stat(fullPath(dir, part))
	return err == nil
}

// ReconstructAudio reverses the int16 peak normalization. The result
// matches the clipped/padded original within int16 quantization error.
func ReconstructAudio(s *Sample) []float64 {
	out := make([]float64, len(s.Audio))
	for i, v := range s.Audio {
		out[i] = float64(v) / 32767 * s.AudioMax
	}
	return out
}

func peakAmplitude(audio []float64) float64 {
	peak := 0.0
	for _, v := range audio {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}

func fixedLength(audio []float64, want int) []float64 {
	if len(audio) >= want {
		return audio[:want]
	}
	out := make([]float64, want)
	copy(out, audio)
	return out
}

func quantizeAudio(audio []float64, peak float64) []int16 {
	out := make([]int16, len(audio))
	if peak == 0 {
		return out
	}
	for i, v := range audio {
		out[i] = int16(math.Round(v / peak * 32767))
	}
	return out
}
