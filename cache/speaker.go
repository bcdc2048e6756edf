package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/gesturelab/speech2gesture/store"
)

// SpeakerModel is the optional speaker-conditioning capability. It is a
// tagged variant checked structurally (type switch), never by runtime
// type-name comparison.
type SpeakerModel interface {
	speakerModel()
}

// NoSpeakerModel marks a pipeline without speaker conditioning.
type NoSpeakerModel struct{}

func (NoSpeakerModel) speakerModel() {}

// VocabSpeakerModel is a bijective speaker-id <-> dense-index mapping,
// built once per split and frozen after.
type VocabSpeakerModel struct {
	Word2Index map[string]int `json:"word2index"`
	Index2Word []string       `json:"index2word"`
}

func (*VocabSpeakerModel) speakerModel() {}

func NewVocabSpeakerModel() *VocabSpeakerModel {
	return &VocabSpeakerModel{Word2Index: map[string]int{}}
}

func (m *VocabSpeakerModel) indexSpeaker(vid string) {
	if _, ok := m.Word2Index[vid]; ok {
		return
	}
	m.Word2Index[vid] = len(m.Index2Word)
	m.Index2Word = append(m.Index2Word, vid)
}

// Index resolves a speaker id; unknown ids are a data error.
func (m *VocabSpeakerModel) Index(vid string) (int, error) {
	idx, ok := m.Word2Index[vid]
	if !ok {
		return 0, fmt.Errorf("speaker %q not in vocabulary", vid)
	}
	return idx, nil
}

func (m *VocabSpeakerModel) Size() int { return len(m.Index2Word) }

// BuildSpeakerModel scans every record in the store and indexes its
// speaker id.
func BuildSpeakerModel(ctx context.Context, st *store.Store) (*VocabSpeakerModel, error) {
	m := NewVocabSpeakerModel()
	err := st.ForEach(ctx, func(idx int, rec *store.Record) error {
		m.indexSpeaker(rec.Aux.Vid)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("build speaker model: %w", err)
	}
	return m, nil
}

// LoadOrBuildSpeakerModel returns the persisted vocabulary at cachePath
// when present, otherwise builds it from the store and persists it.
// The cache is invalidated only by deleting the file.
func LoadOrBuildSpeakerModel(ctx context.Context, st *store.Store, cachePath string) (*VocabSpeakerModel, error) {
	if data, err := os.ReadFile(cachePath); err == nil {
		m := NewVocabSpeakerModel()
		if err := json.Unmarshal(data, m); err != nil {
			return nil, fmt.Errorf("decode speaker model cache %s: %w", cachePath, err)
		}
		return m, nil
	}

	logrus.WithField("cache", cachePath).Info("building speaker model")
	m, err := BuildSpeakerModel(ctx, st)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode speaker model: %w", err)
	}
	if err := os.WriteFile(cachePath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write speaker model cache: %w", err)
	}
	logrus.WithField("speakers", m.Size()).Info("speaker model built")
	return m, nil
}
