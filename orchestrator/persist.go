package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// RunManifest indexes everything one synthesis run produced. The
// config snapshot next to it makes the run reproducible.
type RunManifest struct {
	RunID       string        `json:"run_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Store       string        `json:"store"`
	Clips       []ClipSummary `json:"clips"`
	Skipped     int           `json:"skipped"`
}

func mkRunDir(outputsRoot string) (string, string, error) {
	rid := "run_" + time.Now().Format("20060102-150405") + "_" + uuid.NewString()[:8]
	dir := filepath.Join(outputsRoot, rid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	return rid, dir, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// persistClip writes one clip's output and returns its summary.
func persistClip(dir string, out *ClipOutput) (ClipSummary, error) {
	name := fmt.Sprintf("clip_%s.json", out.Key)
	path := filepath.Join(dir, name)
	if err := writeJSON(path, out); err != nil {
		return ClipSummary{}, fmt.Errorf("persist clip %s: %w", out.Key, err)
	}
	return ClipSummary{
		Key:     out.Key,
		Vid:     out.Vid,
		Start:   out.Start,
		End:     out.End,
		Windows: out.Windows,
		Frames:  len(out.Poses),
		Path:    name,
	}, nil
}
