// Package sampler assembles training batches from a cached split:
// random-with-replacement draws per pseudo-epoch pass, plus the
// adversarial foreign-speaker conditioning indices.
package sampler

import (
	"fmt"
	"math/rand"

	"github.com/gesturelab/speech2gesture/cache"
)

// Batch is one assembled training batch. Audio is reconstructed back to
// float amplitudes from the cached int16 representation. Foreign holds
// the adversarial speaker index per element; nil when the sampler has
// no speaker model.
type Batch struct {
	ExtendedWordSeq [][]int64
	VecSeq          [][][]float64
	Audio           [][]float64
	MFCC            [][][]float64
	SpeakerIdx      []int64
	Foreign         []int64
}

// Sampler draws batches from one split.
type Sampler struct {
	set       *cache.Archive
	speakers  cache.SpeakerModel
	batchSize int
	rng       *rand.Rand
}

func New(set *cache.Archive, speakers cache.SpeakerModel, batchSize int, seed int64) (*Sampler, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("sampler: batch size must be positive")
	}
	if set.Len() == 0 {
		return nil, fmt.Errorf("sampler: empty split")
	}
	return &Sampler{
		set:       set,
		speakers:  speakers,
		batchSize: batchSize,
		rng:       rand.New(rand.NewSource(seed)),
	}, nil
}

// Passes is the number of batches per pseudo-epoch: ceil(n / batch).
// Draws are with replacement, so a pass is not a true partition.
func (s *Sampler) Passes() int {
	return (s.set.Len() + s.batchSize - 1) / s.batchSize
}

// Next assembles one batch.
func (s *Sampler) Next() (*Batch, error) {
	n := s.set.Len()
	b := &Batch{
		ExtendedWordSeq: make([][]int64, s.batchSize),
		VecSeq:          make([][][]float64, s.batchSize),
		Audio:           make([][]float64, s.batchSize),
		MFCC:            make([][][]float64, s.batchSize),
		SpeakerIdx:      make([]int64, s.batchSize),
	}
	for i := 0; i < s.batchSize; i++ {
		k := s.rng.Intn(n)
		b.ExtendedWordSeq[i] = s.set.ExtendedWordSeq[k]
		b.VecSeq[i] = s.set.VecSeq[k]
		b.Audio[i] = reconstruct(s.set.Audio[k], s.set.AudioMax[k])
		b.MFCC[i] = s.set.MFCC[k]
		b.SpeakerIdx[i] = s.set.SpeakerIdx[k]
	}

	switch m := s.speakers.(type) {
	case *cache.VocabSpeakerModel:
		foreign, err := s.foreignSpeakers(m, b.SpeakerIdx)
		if err != nil {
			return nil, err
		}
		b.Foreign = foreign
	case cache.NoSpeakerModel, nil:
		// no speaker conditioning
	default:
		return nil, fmt.Errorf("sampler: unsupported speaker model %T", s.speakers)
	}
	return b, nil
}

// foreignSpeakers draws, per batch element, a speaker index excluded
// from every true speaker in the batch, so the adversarial conditioning
// signal never matches any element's ground truth.
func (s *Sampler) foreignSpeakers(m *cache.VocabSpeakerModel, present []int64) ([]int64, error) {
	exclude := make(map[int64]struct{}, len(present))
	for _, idx := range present {
		exclude[idx] = struct{}{}
	}
	candidates := make([]int64, 0, m.Size())
	for idx := 0; idx < m.Size(); idx++ {
		if _, ok := exclude[int64(idx)]; !ok {
			candidates = append(candidates, int64(idx))
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf(
			"sampler: all %d speakers present in batch; foreign-speaker sampling needs a multi-speaker split",
			m.Size())
	}
	out := make([]int64, len(present))
	for i := range out {
		out[i] = candidates[s.rng.Intn(len(candidates))]
	}
	return out, nil
}

func reconstruct(audio []int16, peak float64) []float64 {
	out := make([]float64, len(audio))
	for i, v := range audio {
		out[i] = float64(v) / 32767 * peak
	}
	return out
}
