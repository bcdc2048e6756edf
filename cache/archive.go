package cache

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// Sample is one fixed-shape tensor bundle. Audio is stored as int16
// normalized by its own peak so the original waveform reconstructs as
// int16 * AudioMax / 32767.
type Sample struct {
	ExtendedWordSeq []int64     // n_poses
	VecSeq          [][]float64 // n_poses x pose_dim
	Audio           []int16     // audio_length
	AudioMax        float64
	MFCC            [][]float64 // num_mfcc x mfcc_length
	SpeakerIdx      int64
}

// Archive is the consolidated bundle for one whole split, loadable in
// O(1) disk operations.
type Archive struct {
	NPoses      int
	PoseDim     int
	AudioLength int
	NumMFCC     int
	MFCCLength  int

	ExtendedWordSeq [][]int64
	VecSeq          [][][]float64
	Audio           [][]int16
	AudioMax        []float64
	MFCC            [][][]float64
	SpeakerIdx      []int64
}

// Len reports the number of samples in the archive.
func (a *Archive) Len() int { return len(a.SpeakerIdx) }

// checkSchema fails on any shape the rest of the pipeline cannot
// consume; partial cache writes surface here, never as silent coercion.
func (a *Archive) checkSchema(p Params) error {
	if a.NPoses != p.NPoses || a.PoseDim != p.PoseDim ||
		a.AudioLength != p.AudioLength || a.NumMFCC != p.NumMFCC ||
		a.MFCCLength != p.MFCCLength {
		return fmt.Errorf(
			"archive schema mismatch: have (n_poses=%d pose_dim=%d audio=%d mfcc=%dx%d), want (%d %d %d %dx%d)",
			a.NPoses, a.PoseDim, a.AudioLength, a.NumMFCC, a.MFCCLength,
			p.NPoses, p.PoseDim, p.AudioLength, p.NumMFCC, p.MFCCLength)
	}
	n := a.Len()
	if len(a.ExtendedWordSeq) != n || len(a.VecSeq) != n ||
		len(a.Audio) != n || len(a.AudioMax) != n || len(a.MFCC) != n {
		return fmt.Errorf("archive schema mismatch: ragged sample counts")
	}
	return nil
}

func samplePath(dir, part string, k int) string {
	return filepath.Join(dir, part, fmt.Sprintf("%06d.gob.gz", k))
}

func fullPath(dir, part string) string {
	return filepath.Join(dir, "full", part+".gob.gz")
}

// WriteGobGz writes any value as a gzip-compressed gob blob, creating
// parent directories as needed.
func WriteGobGz(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", path, err)
	}
	defer f.Close()
	zw := gzip.NewWriter(f)
	if err := gob.NewEncoder(zw).Encode(v); err != nil {
		return fmt.Errorf("encode archive %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush archive %s: %w", path, err)
	}
	return nil
}

// ReadGobGz decodes a gzip-compressed gob blob into v.
func ReadGobGz(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", path, err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("read archive %s: %w", path, err)
	}
	defer zr.Close()
	if err := gob.NewDecoder(zr).Decode(v); err != nil {
		return fmt.Errorf("decode archive %s: %w", path, err)
	}
	return nil
}
