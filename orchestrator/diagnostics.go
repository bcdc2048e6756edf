package orchestrator

import "math"

// MotionStats summarize a generated pose stream. They exist to compare
// the primary model against the baseline without eyeballing renders:
// a collapsed generator shows near-zero velocity, a diverging one a
// runaway amplitude.
type MotionStats struct {
	Frames       int     `json:"frames"`
	MeanVelocity float64 `json:"mean_velocity"` // mean abs frame-to-frame delta
	MaxVelocity  float64 `json:"max_velocity"`
	MeanAbs      float64 `json:"mean_abs"` // mean abs channel value
}

func motionStats(poses [][]float64) MotionStats {
	st := MotionStats{Frames: len(poses)}
	if len(poses) == 0 {
		return st
	}

	total, count := 0.0, 0
	for _, row := range poses {
		for _, v := range row {
			total += math.Abs(v)
			count++
		}
	}
	if count > 0 {
		st.MeanAbs = total / float64(count)
	}

	velTotal, velCount := 0.0, 0
	for t := 1; t < len(poses); t++ {
		frame := 0.0
		for d := range poses[t] {
			frame += math.Abs(poses[t][d] - poses[t-1][d])
		}
		frame /= float64(len(poses[t]))
		velTotal += frame
		velCount++
		if frame > st.MaxVelocity {
			st.MaxVelocity = frame
		}
	}
	if velCount > 0 {
		st.MeanVelocity = velTotal / float64(velCount)
	}
	return st
}
