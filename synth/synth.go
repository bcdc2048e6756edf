// Package synth stitches independently generated fixed-length pose
// windows into one continuous long-form sequence: overlapping windows,
// linear cross-fade over the overlap, optional polynomial fade-out at
// the padded tail.
package synth

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/gesturelab/speech2gesture/config"
	"github.com/gesturelab/speech2gesture/grid"
	"github.com/gesturelab/speech2gesture/langmodel"
)

// Result is what the external generator returns per window.
type Result struct {
	Poses        [][]float64 // n_poses x pose_dim
	Latent       []float64
	LatentMean   []float64
	LatentLogVar []float64
}

// Generator is the external pose generator collaborator, treated as
// opaque. The pre sequence rows carry pose_dim+1 values; the final
// column is the fixed-context indicator bit.
type Generator interface {
	Generate(ctx context.Context, preSeq [][]float64, wordGrid []int64,
		feature [][]float64, speakerIdx int) (*Result, error)
}

// FeatureExtractor is the raw-DSP collaborator. Shapes follow the
// extraction service: MFCC returns (num_mfcc*3-5) x ceil(len/hop).
type FeatureExtractor interface {
	MFCC(ctx context.Context, audio []float64, sampleRate int) ([][]float64, error)
	LogFBank(ctx context.Context, audio []float64, sampleRate, nfilt int) ([][]float64, error)
	Delta(ctx context.Context, feat [][]float64, width int) ([][]float64, error)
}

// Clip is one long-form input to synthesize over.
type Clip struct {
	Seed       [][]float64 // >= n_pre_poses rows of reference pose, window 0 context
	Audio      []float64
	SampleRate int
	Words      []grid.WordEvent
	Start, End float64 // source clip time span, sec
	SpeakerIdx int
}

// RenderResult is the stitched output. Baseline is present only when a
// secondary generator was attached for side-by-side diagnostics.
type RenderResult struct {
	Primary  [][]float64
	Baseline [][]float64
	Windows  int
	EndPad   float64 // samples of zero padding appended to the final window's audio
}

// Synthesizer drives sliding-window generation over whole clips.
type Synthesizer struct {
	Cfg      *config.Root
	Gen      Generator
	Baseline Generator // optional
	Feats    FeatureExtractor
	Lang     langmodel.Model
}

// RenderClip synthesizes the full pose sequence for one clip. Clips
// whose duration falls outside the configured acceptable range are
// skipped: both return values are nil so bulk loops continue.
func (s *Synthesizer) RenderClip(ctx context.Context, clip *Clip) (*RenderResult, error) {
	duration := clip.End - clip.Start
	if duration < s.Cfg.Synthesis.ClipDurationMin || duration > s.Cfg.Synthesis.ClipDurationMax {
		logrus.WithFields(logrus.Fields{
			"duration": duration,
			"min":      s.Cfg.Synthesis.ClipDurationMin,
			"max":      s.Cfg.Synthesis.ClipDurationMax,
		}).Debug("clip outside duration range, skipping")
		return nil, nil
	}

	nPre := s.Cfg.Pose.NPrePoses
	if len(clip.Seed) < nPre {
		return nil, fmt.Errorf("synth: seed has %d rows, need %d", len(clip.Seed), nPre)
	}

	words := make([]grid.WordEvent, len(clip.Words))
	copy(words, clip.Words)
	grid.Rebase(words, clip.Start)

	plan := planWindows(float64(len(clip.Audio))/float64(clip.SampleRate),
		s.Cfg.UnitTime(), s.Cfg.StrideTime())

	logrus.WithFields(logrus.Fields{
		"windows":     plan.count,
		"unit_time":   plan.unitTime,
		"stride_time": plan.strideTime,
		"clip_length": plan.clipLength,
	}).Info("synthesizing clip")

	primary := &stream{nPre: nPre}
	var baseline *stream
	if s.Baseline != nil {
		baseline = &stream{nPre: nPre}
	}

	endPad := 0.0
	for w := 0; w < plan.count; w++ {
		t0 := float64(w) * plan.strideTime
		t1 := t0 + plan.unitTime

		audio, pad := sliceAudio(clip.Audio, t0, plan)
		if w == plan.count-1 {
			endPad = pad
		}
		feature, err := s.Feats.MFCC(ctx, audio, clip.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("window %d features: %w", w, err)
		}
		wordGrid := grid.ExtendWordSeq(s.Cfg.Pose.NPoses, s.Lang, s.Cfg.Pose.RemoveWordTiming,
			grid.InTimeRange(words, t0, t1), t0, t1)

		if err := primary.step(ctx, s.Gen, s.Cfg.Pose.NPoses, clip.Seed, wordGrid, feature, clip.SpeakerIdx); err != nil {
			return nil, fmt.Errorf("window %d: %w", w, err)
		}
		if baseline != nil {
			if err := baseline.step(ctx, s.Baseline, s.Cfg.Pose.NPoses, clip.Seed, wordGrid, feature, clip.SpeakerIdx); err != nil {
				return nil, fmt.Errorf("window %d baseline: %w", w, err)
			}
		}
	}

	out := &RenderResult{Primary: primary.concat(), Windows: plan.count, EndPad: endPad}
	if baseline != nil {
		out.Baseline = baseline.concat()
	}

	if s.Cfg.Synthesis.FadeOut && endPad > 0 {
		out.Primary = fadeOut(out.Primary, endPad, float64(clip.SampleRate), s.Cfg.Pose.ResamplingFPS, nPre)
		if out.Baseline != nil {
			out.Baseline = fadeOut(out.Baseline, endPad, float64(clip.SampleRate), s.Cfg.Pose.ResamplingFPS, nPre)
		}
	}
	return out, nil
}

type windowPlan struct {
	clipLength  float64
	unitTime    float64
	strideTime  float64
	count       int
	audioLength int // samples per window
}

func planWindows(clipLength, unitTime, strideTime float64) windowPlan {
	count := 1
	if clipLength >= unitTime {
		count = int(math.Ceil((clipLength - unitTime) / strideTime))
	}
	if count < 1 {
		count = 1
	}
	return windowPlan{
		clipLength: clipLength,
		unitTime:   unitTime,
		strideTime: strideTime,
		count:      count,
	}
}

// sliceAudio extracts the window's audio by proportional time mapping
// and zero-pads a short tail, reporting the pad length in samples.
func sliceAudio(audio []float64, t0 float64, plan windowPlan) ([]float64, float64) {
	want := int(plan.unitTime * float64(len(audio)) / plan.clipLength)
	start := int(math.Floor(t0 / plan.clipLength * float64(len(audio))))
	if start > len(audio) {
		start = len(audio)
	}
	end := start + want
	if end <= len(audio) {
		return audio[start:end], 0
	}
	out := make([]float64, want)
	n := copy(out, audio[start:])
	return out, float64(want - n)
}

// stream accumulates one generator's per-window outputs with the
// overlap cross-fade applied at each boundary.
type stream struct {
	nPre    int
	windows [][][]float64
	last    [][]float64 // previous window's raw output
}

func (st *stream) step(ctx context.Context, gen Generator, nPoses int, seed [][]float64,
	wordGrid []int64, feature [][]float64, speakerIdx int) error {

	var pre [][]float64
	if st.last == nil {
		pre = makePreSeq(nPoses, st.nPre, seed)
	} else {
		pre = makePreSeq(nPoses, st.nPre, st.last[len(st.last)-st.nPre:])
	}

	res, err := gen.Generate(ctx, pre, wordGrid, feature, speakerIdx)
	if err != nil {
		return err
	}
	if len(res.Poses) != nPoses {
		return fmt.Errorf("generator returned %d frames, want %d", len(res.Poses), nPoses)
	}

	out := cloneFrames(res.Poses)
	if len(st.windows) > 0 {
		prev := st.windows[len(st.windows)-1]
		overlap := prev[len(prev)-st.nPre:]
		// drop the previous window's trailing overlap, blend it into
		// the head of the new window
		st.windows[len(st.windows)-1] = prev[:len(prev)-st.nPre]
		blendOverlap(overlap, out)
	}
	st.windows = append(st.windows, out)
	st.last = res.Poses
	return nil
}

func (st *stream) concat() [][]float64 {
	var out [][]float64
	for _, w := range st.windows {
		out = append(out, w...)
	}
	return out
}

// makePreSeq builds the generator conditioning input: nPoses rows of
// pose_dim+1, the first nPre rows holding the fixed context with the
// indicator bit set.
func makePreSeq(nPoses, nPre int, context [][]float64) [][]float64 {
	dim := len(context[0])
	pre := make([][]float64, nPoses)
	for i := range pre {
		pre[i] = make([]float64, dim+1)
		if i < nPre {
			copy(pre[i], context[i])
			pre[i][dim] = 1
		}
	}
	return pre
}

// blendOverlap cross-fades prev's trailing overlap frames into next's
// leading frames in place: next[j] = prev[j]*(n-j)/(n+1) + next[j]*(j+1)/(n+1).
func blendOverlap(prev, next [][]float64) {
	n := len(prev)
	for j := 0; j < n; j++ {
		wPrev := float64(n-j) / float64(n+1)
		wNext := float64(j+1) / float64(n+1)
		for d := range next[j] {
			next[j][d] = prev[j][d]*wPrev + next[j][d]*wNext
		}
	}
}

func cloneFrames(frames [][]float64) [][]float64 {
	out := make([][]float64, len(frames))
	for i, row := range frames {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
