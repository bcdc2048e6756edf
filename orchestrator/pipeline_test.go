package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gesturelab/speech2gesture/cache"
	"github.com/gesturelab/speech2gesture/config"
	"github.com/gesturelab/speech2gesture/store"
)

func TestMotionStats(t *testing.T) {
	st := motionStats([][]float64{{0, 0}, {1, 1}, {3, 3}})

	assert.Equal(t, 3, st.Frames)
	assert.InDelta(t, 1.5, st.MeanVelocity, 1e-9)
	assert.InDelta(t, 2.0, st.MaxVelocity, 1e-9)
	assert.InDelta(t, 8.0/6.0, st.MeanAbs, 1e-9)

	assert.Zero(t, motionStats(nil).Frames)
}

func TestPersistClip(t *testing.T) {
	dir := t.TempDir()
	out := &ClipOutput{
		Key:     store.Key(7),
		Vid:     "spk_a",
		Start:   1.5,
		End:     14.5,
		Windows: 5,
		Poses:   [][]float64{{0.1, 0.2}},
	}

	summary, err := persistClip(dir, out)
	require.NoError(t, err)
	assert.Equal(t, store.Key(7), summary.Key)
	assert.Equal(t, 1, summary.Frames)

	data, err := os.ReadFile(filepath.Join(dir, summary.Path))
	require.NoError(t, err)
	var got ClipOutput
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, out.Poses, got.Poses)
	assert.Nil(t, got.BaselineMotion)
}

func pipelineConfig(t *testing.T) *config.Root {
	t.Helper()
	cfg := &config.Root{}
	cfg.Pose.NPoses = 8
	cfg.Pose.PoseDim = 3
	cfg.Pose.ResamplingFPS = 4
	cfg.Pose.NPrePoses = 2
	cfg.Audio.SampleRate = 20
	cfg.Audio.HopSize = 8
	cfg.Audio.NumMFCC = 3
	cfg.Paths.Data = t.TempDir()
	cfg.Paths.Cache = t.TempDir()
	cfg.Paths.Outputs = t.TempDir()
	cfg.Training.BatchSize = 2
	return cfg
}

func seedStore(t *testing.T, path string, n int) {
	t.Helper()
	st, err := store.Create(path)
	require.NoError(t, err)
	defer st.Close()

	for i := 0; i < n; i++ {
		vecSeq := make([][]float64, 10)
		for f := range vecSeq {
			vecSeq[f] = []float64{0.1, 0.2, 0.3}
		}
		mfcc := make([][]float64, 6)
		for r := range mfcc {
			mfcc[r] = make([]float64, 7)
		}
		vid := []string{"spk_a", "spk_b", "spk_c"}[i%3]
		rec := &store.Record{
			Words: []store.TimedWord{
				{Word: "hello", Start: 0.2, End: 0.6},
				{Word: "there", Start: 0.8, End: 1.4},
			},
			VecSeq: vecSeq,
			Audio:  make([]float64, 55),
			MFCC:   mfcc,
			Aux:    store.AuxInfo{StartTime: 0, EndTime: 2.5, Vid: vid},
		}
		require.NoError(t, st.Put(context.Background(), i, rec))
	}
}

func TestBuildCache(t *testing.T) {
	cfg := pipelineConfig(t)
	seedStore(t, filepath.Join(cfg.Paths.Data, "train.db"), 4)

	p := NewPipeline(cfg)
	require.NoError(t, p.BuildCache(context.Background(), "train"))

	assert.True(t, cache.Exists(cfg.Paths.Cache, "train"))
	assert.FileExists(t, filepath.Join(cfg.Paths.Cache, "vocab.json"))
	assert.FileExists(t, filepath.Join(cfg.Paths.Cache, "speaker_model.json"))

	set, err := cache.Load(cfg.Paths.Cache, "train", cache.ParamsFromConfig(cfg))
	require.NoError(t, err)
	assert.Equal(t, 4, set.Len())

	// second build is a no-op against the existing cache
	require.NoError(t, p.BuildCache(context.Background(), "train"))
}

func TestTrainBatchesDryRun(t *testing.T) {
	cfg := pipelineConfig(t)
	seedStore(t, filepath.Join(cfg.Paths.Data, "train.db"), 4)

	p := NewPipeline(cfg)
	require.NoError(t, p.BuildCache(context.Background(), "train"))
	require.NoError(t, p.TrainBatches(context.Background(), "train"))
}
