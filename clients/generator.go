package clients

import (
	"context"
	"fmt"

	"github.com/gesturelab/speech2gesture/synth"
)

// --- Pose generator (/generate) ---

type GenReq struct {
	PreSeq     [][]float64 `json:"pre_seq"`
	WordGrid   []int64     `json:"word_grid"`
	MFCC       [][]float64 `json:"mfcc"`
	SpeakerIdx int         `json:"speaker_idx"`
}

type GenResp struct {
	Poses        [][]float64 `json:"poses"`
	Latent       []float64   `json:"latent"`
	LatentMean   []float64   `json:"latent_mean"`
	LatentLogVar []float64   `json:"latent_logvar"`
}

// Generator calls a pose generation service for one window at a time.
// It satisfies the synthesizer's generator contract, so a primary and
// a baseline model are just two instances with different base URLs.
type Generator struct {
	h   *HTTP
	url string
}

func NewGenerator(h *HTTP, url string) *Generator { return &Generator{h: h, url: url} }

func (g *Generator) Generate(ctx context.Context, preSeq [][]float64, wordGrid []int64,
	mfcc [][]float64, speakerIdx int) (*synth.Result, error) {

	var out GenResp
	err := g.h.postJSON(ctx, g.url+"/generate",
		GenReq{PreSeq: preSeq, WordGrid: wordGrid, MFCC: mfcc, SpeakerIdx: speakerIdx}, &out)
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	return &synth.Result{
		Poses:        out.Poses,
		Latent:       out.Latent,
		LatentMean:   out.LatentMean,
		LatentLogVar: out.LatentLogVar,
	}, nil
}
