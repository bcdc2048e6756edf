package langmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReservedTokens(t *testing.T) {
	v := NewVocab()
	assert.Equal(t, 4, v.Size())
	assert.Equal(t, PAD, v.WordIndex("<pad>"))
	assert.Equal(t, SOS, v.WordIndex("<sos>"))
	assert.Equal(t, EOS, v.WordIndex("<eos>"))
	assert.Equal(t, UNK, v.WordIndex("<unk>"))
}

func TestBuildVocab(t *testing.T) {
	sentences := [][]string{
		{"the", "quick", "fox"},
		{"the", "lazy", "fox"},
		{"the", "fox"},
	}

	t.Run("min count excludes rare words", func(t *testing.T) {
		v := BuildVocab(sentences, 1)
		assert.Equal(t, UNK, v.WordIndex("quick"))
		assert.Equal(t, UNK, v.WordIndex("lazy"))
		assert.NotEqual(t, UNK, v.WordIndex("the"))
		assert.NotEqual(t, UNK, v.WordIndex("fox"))
	})

	t.Run("indices assigned in encounter order after reserved", func(t *testing.T) {
		v := BuildVocab(sentences, 0)
		assert.Equal(t, 4, v.WordIndex("the"))
		assert.Equal(t, 5, v.WordIndex("quick"))
		assert.Equal(t, 6, v.WordIndex("fox"))
	})

	t.Run("unknown words resolve to unk", func(t *testing.T) {
		v := BuildVocab(sentences, 0)
		assert.Equal(t, UNK, v.WordIndex("wolf"))
	})
}
