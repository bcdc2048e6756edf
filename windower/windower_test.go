package windower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frames(t, d int) [][]float64 {
	out := make([][]float64, t)
	for i := range out {
		out[i] = make([]float64, d)
		for j := range out[i] {
			out[i][j] = float64(i + 1)
		}
	}
	return out
}

func TestBlocksShortSequence(t *testing.T) {
	blocks := Blocks(frames(120, 4), 300, 2)
	require.Len(t, blocks, 1)
	b := blocks[0]
	assert.Equal(t, 2, b.Label)
	require.Len(t, b.Frames, 300)

	// data rows intact, tail zero-padded
	assert.Equal(t, 120.0, b.Frames[119][0])
	for i := 120; i < 300; i++ {
		for _, v := range b.Frames[i] {
			assert.Zero(t, v)
		}
	}
}

func TestBlocksLongSequence(t *testing.T) {
	const T, blockSize = 750, 300
	blocks := Blocks(frames(T, 4), blockSize, 0)

	want := (T-blockSize)/BlockStride + 1
	require.Len(t, blocks, want)
	assert.Equal(t, want, NumBlocks(T, blockSize))

	for i, b := range blocks {
		require.Len(t, b.Frames, blockSize)
		// first frame value identifies the window start
		assert.Equal(t, float64(i*BlockStride+1), b.Frames[0][0])
		// no window may read past T
		assert.LessOrEqual(t, i*BlockStride+blockSize, T)
	}
}

func TestBlocksExactFit(t *testing.T) {
	blocks := Blocks(frames(300, 2), 300, 0)
	require.Len(t, blocks, 1)
	assert.Equal(t, 300.0, blocks[0].Frames[299][0])
}

func TestAssign(t *testing.T) {
	train := []int{1, 2, 3, 4}
	heldOut := []int{5}

	t.Run("train sessions", func(t *testing.T) {
		s, err := Assign(3, "Ses03F_impro02_F001.wav", train, heldOut)
		require.NoError(t, err)
		assert.Equal(t, SplitTrain, s)
	})

	t.Run("held-out role marker routes to test", func(t *testing.T) {
		s, err := Assign(5, "Ses05M_impro03_M012.wav", train, heldOut)
		require.NoError(t, err)
		assert.Equal(t, SplitTest, s)
	})

	t.Run("held-out other role routes to val", func(t *testing.T) {
		s, err := Assign(5, "Ses05M_impro03_F012.wav", train, heldOut)
		require.NoError(t, err)
		assert.Equal(t, SplitVal, s)
	})

	t.Run("unknown session fails", func(t *testing.T) {
		_, err := Assign(7, "Ses07F_impro01_F000.wav", train, heldOut)
		assert.Error(t, err)
	})
}
