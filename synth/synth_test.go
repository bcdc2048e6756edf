package synth

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gesturelab/speech2gesture/config"
	"github.com/gesturelab/speech2gesture/grid"
	"github.com/gesturelab/speech2gesture/langmodel"
)

// --- Stub collaborators ---

type stubGenerator struct {
	nPoses  int
	poseDim int
	value   float64

	calls   int
	preSeqs [][][]float64
	grids   [][]int64
}

func (g *stubGenerator) Generate(_ context.Context, preSeq [][]float64, wordGrid []int64,
	_ [][]float64, _ int) (*Result, error) {
	g.calls++
	g.preSeqs = append(g.preSeqs, preSeq)
	g.grids = append(g.grids, wordGrid)
	poses := make([][]float64, g.nPoses)
	for i := range poses {
		row := make([]float64, g.poseDim)
		for d := range row {
			row[d] = g.value * float64(g.calls)
		}
		poses[i] = row
	}
	return &Result{Poses: poses}, nil
}

type stubExtractor struct {
	mfccCalls int
}

func (e *stubExtractor) MFCC(_ context.Context, audio []float64, _ int) ([][]float64, error) {
	e.mfccCalls++
	return [][]float64{{float64(len(audio))}}, nil
}

func (e *stubExtractor) LogFBank(_ context.Context, _ []float64, _, nfilt int) ([][]float64, error) {
	return [][]float64{make([]float64, nfilt)}, nil
}

func (e *stubExtractor) Delta(_ context.Context, feat [][]float64, _ int) ([][]float64, error) {
	return feat, nil
}

// --- Tests ---

func testConfig() *config.Root {
	cfg := &config.Root{}
	cfg.Pose.NPoses = 40
	cfg.Pose.PoseDim = 2
	cfg.Pose.ResamplingFPS = 10
	cfg.Pose.NPrePoses = 20
	cfg.Audio.SampleRate = 1000
	cfg.Synthesis.ClipDurationMin = 1
	cfg.Synthesis.ClipDurationMax = 60
	return cfg
}

func TestPlanWindows(t *testing.T) {
	t.Run("short clip yields a single window", func(t *testing.T) {
		assert.Equal(t, 1, planWindows(3.0, 4.0, 2.0).count)
	})

	t.Run("thirteen second clip yields five windows", func(t *testing.T) {
		assert.Equal(t, 5, planWindows(13.0, 4.0, 2.0).count)
	})

	t.Run("clip exactly one unit long yields one window", func(t *testing.T) {
		assert.Equal(t, 1, planWindows(4.0, 4.0, 2.0).count)
	})
}

func TestBlendOverlap(t *testing.T) {
	prev := [][]float64{{1}, {1}, {1}, {1}}
	next := [][]float64{{5}, {5}, {5}, {5}}
	blendOverlap(prev, next)

	want := []float64{1.8, 2.6, 3.4, 4.2}
	for j, row := range next {
		assert.InDelta(t, want[j], row[0], 1e-9, "overlap frame %d", j)
	}
}

func TestSliceAudio(t *testing.T) {
	plan := planWindows(10.0, 4.0, 2.0)
	audio := make([]float64, 10000)
	for i := range audio {
		audio[i] = 1
	}

	t.Run("interior window has no padding", func(t *testing.T) {
		got, pad := sliceAudio(audio, 2.0, plan)
		assert.Len(t, got, 4000)
		assert.Zero(t, pad)
	})

	t.Run("overrunning window is zero padded and pad reported", func(t *testing.T) {
		got, pad := sliceAudio(audio, 8.0, plan)
		require.Len(t, got, 4000)
		assert.Equal(t, 2000.0, pad)
		assert.Equal(t, 1.0, got[1999])
		assert.Zero(t, got[2000])
		assert.Zero(t, got[3999])
	})
}

func TestRenderClip(t *testing.T) {
	cfg := testConfig()
	gen := &stubGenerator{nPoses: cfg.Pose.NPoses, poseDim: cfg.Pose.PoseDim, value: 1}
	feats := &stubExtractor{}
	lang := langmodel.BuildVocab([][]string{{"hello", "world"}}, 0)

	seed := make([][]float64, cfg.Pose.NPrePoses)
	for i := range seed {
		seed[i] = make([]float64, cfg.Pose.PoseDim)
	}

	clip := &Clip{
		Seed:       seed,
		Audio:      make([]float64, 13000),
		SampleRate: 1000,
		Words: []grid.WordEvent{
			{Word: "hello", Start: 10.5, End: 11.0},
			{Word: "world", Start: 11.2, End: 11.8},
		},
		Start:      10.0,
		End:        23.0,
		SpeakerIdx: 3,
	}

	syn := &Synthesizer{Cfg: cfg, Gen: gen, Feats: feats, Lang: lang}
	res, err := syn.RenderClip(context.Background(), clip)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, 5, res.Windows)
	assert.Equal(t, 5, gen.calls)
	assert.Equal(t, 5, feats.mfccCalls)
	assert.Nil(t, res.Baseline)

	// 5 windows of 40 frames, trailing 20 dropped at each of the 4 boundaries
	assert.Len(t, res.Primary, 5*40-4*20)
	for _, row := range res.Primary {
		assert.Len(t, row, cfg.Pose.PoseDim)
	}

	// conditioning input: n_poses rows of pose_dim+1, context rows flagged
	first := gen.preSeqs[0]
	require.Len(t, first, cfg.Pose.NPoses)
	for i, row := range first {
		require.Len(t, row, cfg.Pose.PoseDim+1)
		if i < cfg.Pose.NPrePoses {
			assert.Equal(t, 1.0, row[cfg.Pose.PoseDim])
		} else {
			assert.Zero(t, row[cfg.Pose.PoseDim])
		}
	}

	// words were rebased to clip-local time before gridding; "hello"
	// starts 0.5s into window 0
	require.Len(t, gen.grids[0], cfg.Pose.NPoses)
	hello := lang.WordIndex("hello")
	frameDur := cfg.UnitTime() / float64(cfg.Pose.NPoses)
	idx := int(math.Floor(0.5 / frameDur))
	assert.Equal(t, int64(hello), gen.grids[0][idx])
}

func TestRenderClipWithBaseline(t *testing.T) {
	cfg := testConfig()
	gen := &stubGenerator{nPoses: cfg.Pose.NPoses, poseDim: cfg.Pose.PoseDim, value: 1}
	base := &stubGenerator{nPoses: cfg.Pose.NPoses, poseDim: cfg.Pose.PoseDim, value: 2}
	lang := langmodel.BuildVocab([][]string{{"a"}}, 1)

	seed := make([][]float64, cfg.Pose.NPrePoses)
	for i := range seed {
		seed[i] = make([]float64, cfg.Pose.PoseDim)
	}
	clip := &Clip{
		Seed:       seed,
		Audio:      make([]float64, 9000),
		SampleRate: 1000,
		Start:      0,
		End:        9,
	}

	syn := &Synthesizer{Cfg: cfg, Gen: gen, Baseline: base, Feats: &stubExtractor{}, Lang: lang}
	res, err := syn.RenderClip(context.Background(), clip)
	require.NoError(t, err)
	require.NotNil(t, res)

	require.NotNil(t, res.Baseline)
	assert.Len(t, res.Baseline, len(res.Primary))
	assert.Equal(t, gen.calls, base.calls)
	// baseline output is an independent stream, not a copy
	assert.NotEqual(t, res.Primary[0][0], res.Baseline[0][0])
}

func TestRenderClipSkipsOutOfRange(t *testing.T) {
	cfg := testConfig()
	cfg.Synthesis.ClipDurationMin = 5

	syn := &Synthesizer{Cfg: cfg, Gen: &stubGenerator{}, Feats: &stubExtractor{},
		Lang: langmodel.NewVocab()}
	res, err := syn.RenderClip(context.Background(), &Clip{Start: 0, End: 2})
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestFadeOut(t *testing.T) {
	nSmooth := 4
	out := make([][]float64, 30)
	for i := range out {
		out[i] = []float64{1, -1}
	}

	// 0.8s of pad at 1000Hz and 10fps puts the fade start 8 frames
	// before the end
	got := fadeOut(out, 800, 1000, 10, nSmooth)
	require.Len(t, got, 30)

	startFrame := 30 - 8
	for d := 0; d < 2; d++ {
		first := got[startFrame][d]
		last := got[len(got)-1][d]
		assert.Less(t, abs(last), abs(first), "channel %d should decay", d)
		assert.Less(t, abs(last), 0.5, "channel %d tail should approach zero", d)
	}
	// frames before the fade region stay untouched
	assert.Equal(t, []float64{1, -1}, got[startFrame-1])
}

func TestPolyfit2(t *testing.T) {
	// a weighted fit reproduces an exact quadratic regardless of weights
	x := []float64{0, 1, 2, 3, 4, 5, 6, 7}
	w := []float64{5, 1, 1, 1, 1, 1, 1, 5}
	y := make([]float64, len(x))
	for i, xi := range x {
		y[i] = 2 + 3*xi - 0.5*xi*xi
	}
	c0, c1, c2 := polyfit2(x, y, w)
	assert.InDelta(t, 2, c0, 1e-9)
	assert.InDelta(t, 3, c1, 1e-9)
	assert.InDelta(t, -0.5, c2, 1e-9)
}
