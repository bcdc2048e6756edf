package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gesturelab/speech2gesture/cache"
)

// archive with n samples whose speaker indices cycle over nSpeakers
func testArchive(n, nSpeakers int) *cache.Archive {
	arch := &cache.Archive{
		NPoses: 4, PoseDim: 2, AudioLength: 6, NumMFCC: 2, MFCCLength: 3,
	}
	for k := 0; k < n; k++ {
		arch.ExtendedWordSeq = append(arch.ExtendedWordSeq, []int64{0, 1, 0, 0})
		arch.VecSeq = append(arch.VecSeq, [][]float64{{1, 2}, {3, 4}, {5, 6}, {7, 8}})
		arch.Audio = append(arch.Audio, []int16{32767, -32767, 0, 16384, 0, 0})
		arch.AudioMax = append(arch.AudioMax, 0.5)
		arch.MFCC = append(arch.MFCC, [][]float64{{1, 2, 3}, {4, 5, 6}})
		arch.SpeakerIdx = append(arch.SpeakerIdx, int64(k%nSpeakers))
	}
	return arch
}

func speakers(n int) *cache.VocabSpeakerModel {
	m := cache.NewVocabSpeakerModel()
	for i := 0; i < n; i++ {
		m.Word2Index[string(rune('a'+i))] = i
		m.Index2Word = append(m.Index2Word, string(rune('a'+i)))
	}
	return m
}

func TestPasses(t *testing.T) {
	s, err := New(testArchive(10, 2), cache.NoSpeakerModel{}, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Passes())
}

func TestNextShapes(t *testing.T) {
	s, err := New(testArchive(10, 2), cache.NoSpeakerModel{}, 4, 1)
	require.NoError(t, err)

	b, err := s.Next()
	require.NoError(t, err)
	assert.Len(t, b.ExtendedWordSeq, 4)
	assert.Len(t, b.VecSeq, 4)
	assert.Len(t, b.Audio, 4)
	assert.Len(t, b.MFCC, 4)
	assert.Nil(t, b.Foreign)

	// int16 decode by stored peak
	assert.InDelta(t, 0.5, b.Audio[0][0], 1e-9)
	assert.InDelta(t, -0.5, b.Audio[0][1], 1e-9)
}

func TestForeignSpeakerNeverMatches(t *testing.T) {
	const batch, vocab = 8, 12
	arch := testArchive(40, 3) // speakers 0..2 in data, vocab is larger

	for seed := int64(0); seed < 20; seed++ {
		s, err := New(arch, speakers(vocab), batch, seed)
		require.NoError(t, err)
		for pass := 0; pass < s.Passes(); pass++ {
			b, err := s.Next()
			require.NoError(t, err)
			require.Len(t, b.Foreign, batch)

			present := map[int64]bool{}
			for _, idx := range b.SpeakerIdx {
				present[idx] = true
			}
			for i, f := range b.Foreign {
				assert.NotEqual(t, b.SpeakerIdx[i], f)
				assert.False(t, present[f], "foreign speaker %d present in batch", f)
				assert.Less(t, f, int64(vocab))
			}
		}
	}
}

func TestDegenerateSingleSpeakerFails(t *testing.T) {
	s, err := New(testArchive(6, 1), speakers(1), 4, 7)
	require.NoError(t, err)

	_, err = s.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multi-speaker")
}
