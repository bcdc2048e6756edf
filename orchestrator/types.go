package orchestrator

// ClipOutput is everything persisted for one synthesized clip.
type ClipOutput struct {
	Key        string      `json:"key"`
	Vid        string      `json:"vid"`
	Start      float64     `json:"start"`
	End        float64     `json:"end"`
	Sentence   []string    `json:"sentence"`
	SpeakerIdx int         `json:"speaker_idx"`
	Windows    int         `json:"windows"`
	Poses      [][]float64 `json:"poses"`
	Baseline   [][]float64 `json:"baseline,omitempty"`

	Motion         MotionStats  `json:"motion"`
	BaselineMotion *MotionStats `json:"baseline_motion,omitempty"`
}

// ClipSummary is the manifest entry for one clip, without the pose
// payload.
type ClipSummary struct {
	Key     string  `json:"key"`
	Vid     string  `json:"vid"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Windows int     `json:"windows"`
	Frames  int     `json:"frames"`
	Path    string  `json:"path"`
}
