package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(vid string, t int) *Record {
	vec := make([][]float64, t)
	for i := range vec {
		vec[i] = []float64{float64(i), float64(i) * 2}
	}
	return &Record{
		Words:  []TimedWord{{Word: "hello", Start: 0.1, End: 0.4}},
		VecSeq: vec,
		Audio:  []float64{0.1, -0.2, 0.3},
		MFCC:   [][]float64{{1, 2, 3}, {4, 5, 6}},
		Aux:    AuxInfo{StartTime: 10, EndTime: 14, Vid: vid},
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "0000000042", Key(42))
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Put(ctx, 0, testRecord("spk_a", 5)))
	require.NoError(t, w.Put(ctx, 1, testRecord("spk_b", 7)))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec, err := r.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "spk_b", rec.Aux.Vid)
	assert.Len(t, rec.VecSeq, 7)
	assert.Equal(t, "hello", rec.Words[0].Word)

	_, err = r.Get(ctx, 9)
	assert.Error(t, err)
}

func TestForEachOrder(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	w, err := Create(path)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, w.Put(ctx, i, testRecord("spk", 3)))
	}

	var seen []int
	require.NoError(t, w.ForEach(ctx, func(idx int, rec *Record) error {
		seen = append(seen, idx)
		return nil
	}))
	assert.Equal(t, []int{0, 1, 2, 3}, seen)
	require.NoError(t, w.Close())
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Put(ctx, 0, testRecord("spk", 3)))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Error(t, r.Put(ctx, 1, testRecord("spk", 3)))
}
