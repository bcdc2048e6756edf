package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gesturelab/speech2gesture/cache"
	"github.com/gesturelab/speech2gesture/clients"
	"github.com/gesturelab/speech2gesture/config"
	"github.com/gesturelab/speech2gesture/emotion"
	"github.com/gesturelab/speech2gesture/grid"
	"github.com/gesturelab/speech2gesture/langmodel"
	"github.com/gesturelab/speech2gesture/sampler"
	"github.com/gesturelab/speech2gesture/store"
	"github.com/gesturelab/speech2gesture/synth"
)

// Pipeline wires the session store, sample cache and external model
// services together behind the CLI commands.
type Pipeline struct {
	cfg  *config.Root
	http *clients.HTTP
}

func NewPipeline(c *config.Root) *Pipeline {
	return &Pipeline{cfg: c, http: clients.NewHTTP()}
}

func (p *Pipeline) storePath(part string) string {
	return filepath.Join(p.cfg.Paths.Data, part+".db")
}

// BuildCache constructs the fixed-shape sample cache for one split.
// An existing cache is left untouched; delete it to force a rebuild.
func (p *Pipeline) BuildCache(ctx context.Context, part string) error {
	if cache.Exists(p.cfg.Paths.Cache, part) {
		logrus.WithField("part", part).Info("cache already built, skipping")
		return nil
	}

	st, err := store.Open(p.storePath(part))
	if err != nil {
		return err
	}
	defer st.Close()

	lang, err := p.loadOrBuildLang(ctx, st)
	if err != nil {
		return err
	}
	speakers, err := cache.LoadOrBuildSpeakerModel(ctx, st,
		filepath.Join(p.cfg.Paths.Cache, "speaker_model.json"))
	if err != nil {
		return err
	}

	b := &cache.Builder{
		Params:   cache.ParamsFromConfig(p.cfg),
		Lang:     lang,
		Speakers: speakers,
	}
	_, err = b.Build(ctx, st, p.cfg.Paths.Cache, part)
	return err
}

// TrainBatches is a dry run of the training sampler: it draws every
// batch of one pseudo-epoch and logs shape and speaker diagnostics, so
// a broken cache fails here and not minutes into a training job.
func (p *Pipeline) TrainBatches(ctx context.Context, part string) error {
	set, err := cache.Load(p.cfg.Paths.Cache, part, cache.ParamsFromConfig(p.cfg))
	if err != nil {
		return err
	}
	speakers, err := p.loadSpeakers()
	if err != nil {
		return err
	}

	s, err := sampler.New(set, speakers, p.cfg.Training.BatchSize, p.cfg.Training.Seed)
	if err != nil {
		return err
	}
	for pass := 0; pass < s.Passes(); pass++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := s.Next()
		if err != nil {
			return fmt.Errorf("pass %d: %w", pass, err)
		}
		logrus.WithFields(logrus.Fields{
			"pass":    pass,
			"samples": len(b.SpeakerIdx),
			"foreign": len(b.Foreign),
		}).Info("drew batch")
	}
	logrus.WithFields(logrus.Fields{
		"part":   part,
		"passes": s.Passes(),
		"batch":  p.cfg.Training.BatchSize,
	}).Info("sampler dry run complete")
	return nil
}

// GenerateAll renders every clip of a split through the generator
// service and persists one run directory of pose streams.
func (p *Pipeline) GenerateAll(ctx context.Context, part string) error {
	st, err := store.Open(p.storePath(part))
	if err != nil {
		return err
	}
	defer st.Close()

	lang, err := p.loadOrBuildLang(ctx, st)
	if err != nil {
		return err
	}
	speakers, err := cache.LoadOrBuildSpeakerModel(ctx, st,
		filepath.Join(p.cfg.Paths.Cache, "speaker_model.json"))
	if err != nil {
		return err
	}

	syn := &synth.Synthesizer{
		Cfg:   p.cfg,
		Gen:   clients.NewGenerator(p.http, p.cfg.Services.Generator.URL),
		Feats: clients.NewFeatures(p.http, p.cfg.Services.Features.URL),
		Lang:  lang,
	}
	if p.cfg.Services.Baseline.URL != "" {
		syn.Baseline = clients.NewGenerator(p.http, p.cfg.Services.Baseline.URL)
	}

	rid, runDir, err := mkRunDir(p.cfg.Paths.Outputs)
	if err != nil {
		return err
	}
	if err := p.cfg.Save(filepath.Join(runDir, "config.yaml")); err != nil {
		return err
	}
	log := logrus.WithField("run", rid)
	log.Info("synthesis run started")

	manifest := RunManifest{RunID: rid, Store: p.storePath(part)}
	nPre := p.cfg.Pose.NPrePoses
	err = st.ForEach(ctx, func(idx int, rec *store.Record) error {
		key := store.Key(idx)
		if len(rec.VecSeq) < nPre {
			log.WithField("key", key).Warn("clip too short for a seed, skipping")
			manifest.Skipped++
			return nil
		}

		spkIdx, err := speakers.Index(rec.Aux.Vid)
		if err != nil {
			return err
		}
		clip := &synth.Clip{
			Seed:       rec.VecSeq[:nPre],
			Audio:      rec.Audio,
			SampleRate: p.cfg.Audio.SampleRate,
			Words:      wordEvents(rec.Words),
			Start:      rec.Aux.StartTime,
			End:        rec.Aux.EndTime,
			SpeakerIdx: spkIdx,
		}
		res, err := syn.RenderClip(ctx, clip)
		if err != nil {
			return fmt.Errorf("clip %s: %w", key, err)
		}
		if res == nil {
			manifest.Skipped++
			return nil
		}

		out := &ClipOutput{
			Key:        key,
			Vid:        rec.Aux.Vid,
			Start:      rec.Aux.StartTime,
			End:        rec.Aux.EndTime,
			Sentence:   sentence(rec.Words),
			SpeakerIdx: spkIdx,
			Windows:    res.Windows,
			Poses:      res.Primary,
			Baseline:   res.Baseline,
			Motion:     motionStats(res.Primary),
		}
		if res.Baseline != nil {
			bs := motionStats(res.Baseline)
			out.BaselineMotion = &bs
		}
		summary, err := persistClip(runDir, out)
		if err != nil {
			return err
		}
		manifest.Clips = append(manifest.Clips, summary)
		return nil
	})
	if err != nil {
		return err
	}

	manifest.GeneratedAt = time.Now()
	if err := writeJSON(filepath.Join(runDir, "run.json"), &manifest); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"clips":   len(manifest.Clips),
		"skipped": manifest.Skipped,
	}).Info("synthesis run complete")
	return nil
}

// SplitStore re-partitions one session store into train and val stores
// with dense re-keyed indices.
func (p *Pipeline) SplitStore(ctx context.Context, part string, valRatio float64) error {
	src, err := store.Open(p.storePath(part))
	if err != nil {
		return err
	}
	defer src.Close()

	nTrain, nVal, err := store.Split(ctx, src,
		p.storePath("train"), p.storePath("val"), valRatio, p.cfg.Training.Seed)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"source": part,
		"train":  nTrain,
		"val":    nVal,
	}).Info("store split")
	return nil
}

// BuildEmotion ingests an annotated emotion corpus: wav files under
// wavDir, evaluation files under evalDir. Audio decoding and feature
// extraction go through the feature service.
func (p *Pipeline) BuildEmotion(ctx context.Context, wavDir, evalDir string) error {
	anns, err := readAnnotations(evalDir)
	if err != nil {
		return err
	}
	wavs, err := filepath.Glob(filepath.Join(wavDir, "*.wav"))
	if err != nil {
		return err
	}
	sort.Strings(wavs)

	feats := clients.NewFeatures(p.http, p.cfg.Services.Features.URL)
	recs := make([]emotion.Recording, 0, len(wavs))
	for _, wav := range wavs {
		if err := ctx.Err(); err != nil {
			return err
		}
		dec, err := feats.DecodeWav(ctx, wav)
		if err != nil {
			return fmt.Errorf("decode %s: %w", wav, err)
		}
		name := filepath.Base(wav)
		recs = append(recs, emotion.Recording{
			Name:       name[:len(name)-len(".wav")],
			Audio:      dec.Audio,
			SampleRate: dec.SampleRate,
		})
	}

	b := &emotion.Builder{Cfg: p.cfg, Feats: feats}
	sets, _, err := b.Build(ctx, recs, anns, filepath.Join(p.cfg.Paths.Cache, "emotion"))
	if err != nil {
		return err
	}
	for split, set := range sets {
		logrus.WithFields(logrus.Fields{
			"split":  split.String(),
			"blocks": set.Len(),
		}).Info("emotion split built")
	}
	return nil
}

func readAnnotations(evalDir string) ([]emotion.Annotation, error) {
	files, err := filepath.Glob(filepath.Join(evalDir, "*.txt"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var anns []emotion.Annotation
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		parsed, err := emotion.ParseEvaluation(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		anns = append(anns, parsed...)
	}
	return anns, nil
}

// loadOrBuildLang mirrors the speaker model cache: the vocabulary is
// derived once from the store and persisted as JSON.
func (p *Pipeline) loadOrBuildLang(ctx context.Context, st *store.Store) (langmodel.Model, error) {
	path := filepath.Join(p.cfg.Paths.Cache, "vocab.json")
	if data, err := os.ReadFile(path); err == nil {
		v := langmodel.NewVocab()
		if err := json.Unmarshal(data, v); err != nil {
			return nil, fmt.Errorf("decode vocab cache %s: %w", path, err)
		}
		return v, nil
	}

	logrus.WithField("cache", path).Info("building vocabulary")
	var sentences [][]string
	err := st.ForEach(ctx, func(idx int, rec *store.Record) error {
		sentences = append(sentences, sentence(rec.Words))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("build vocabulary: %w", err)
	}
	v := langmodel.BuildVocab(sentences, 0)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write vocab cache %s: %w", path, err)
	}
	return v, nil
}

func (p *Pipeline) loadSpeakers() (*cache.VocabSpeakerModel, error) {
	path := filepath.Join(p.cfg.Paths.Cache, "speaker_model.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("speaker model cache missing, build the cache first: %w", err)
	}
	m := cache.NewVocabSpeakerModel()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decode speaker model cache %s: %w", path, err)
	}
	return m, nil
}

func wordEvents(words []store.TimedWord) []grid.WordEvent {
	out := make([]grid.WordEvent, len(words))
	for i, w := range words {
		out[i] = grid.WordEvent{Word: w.Word, Start: w.Start, End: w.End}
	}
	return out
}

func sentence(words []store.TimedWord) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = w.Word
	}
	return out
}
