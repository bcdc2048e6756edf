package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// --- Audio feature service (/mfcc, /fbank, /delta, /decode) ---

type Features struct {
	h   *HTTP
	url string
}

func NewFeatures(h *HTTP, url string) *Features { return &Features{h: h, url: url} }

type mfccReq struct {
	Audio      []float64 `json:"audio"`
	SampleRate int       `json:"sample_rate"`
}
type fbankReq struct {
	Audio      []float64 `json:"audio"`
	SampleRate int       `json:"sample_rate"`
	NFilt      int       `json:"nfilt"`
}
type deltaReq struct {
	Feature [][]float64 `json:"feature"`
	Width   int         `json:"width"`
}
type featResp struct {
	Feature [][]float64 `json:"feature"`
}

func (f *Features) MFCC(ctx context.Context, audio []float64, sampleRate int) ([][]float64, error) {
	var out featResp
	err := f.h.postJSON(ctx, f.url+"/mfcc", mfccReq{Audio: audio, SampleRate: sampleRate}, &out)
	if err != nil {
		return nil, fmt.Errorf("mfcc: %w", err)
	}
	return out.Feature, nil
}

func (f *Features) LogFBank(ctx context.Context, audio []float64, sampleRate, nfilt int) ([][]float64, error) {
	var out featResp
	err := f.h.postJSON(ctx, f.url+"/fbank",
		fbankReq{Audio: audio, SampleRate: sampleRate, NFilt: nfilt}, &out)
	if err != nil {
		return nil, fmt.Errorf("fbank: %w", err)
	}
	return out.Feature, nil
}

func (f *Features) Delta(ctx context.Context, feat [][]float64, width int) ([][]float64, error) {
	var out featResp
	err := f.h.postJSON(ctx, f.url+"/delta", deltaReq{Feature: feat, Width: width}, &out)
	if err != nil {
		return nil, fmt.Errorf("delta: %w", err)
	}
	return out.Feature, nil
}

type DecodeResp struct {
	Audio      []float64 `json:"audio"`
	SampleRate int       `json:"sample_rate"`
}

// DecodeWav uploads a wav file and returns its samples. Corpus audio
// decoding lives in the feature service with the rest of the signal
// processing.
func (f *Features) DecodeWav(ctx context.Context, wavPath string) (*DecodeResp, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", filepath.Base(wavPath))
	if err != nil {
		return nil, err
	}
	fd, err := os.Open(wavPath)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	if _, err = io.Copy(fw, fd); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url+"/decode", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := f.h.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("decode %s: %s", resp.Status, string(body))
	}

	var out DecodeResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode wav response: %w", err)
	}
	return &out, nil
}
