// Package grid maps timed word events onto the fixed-rate pose frame
// grid used as generator conditioning input.
package grid

import (
	"math"

	"github.com/gesturelab/speech2gesture/langmodel"
)

// WordEvent is one transcribed word with its utterance time span.
type WordEvent struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"` // sec
	End   float64 `json:"end"`   // sec
}

// Rebase shifts every word's time span by -offset, in place. Used to
// make clip words relative to the clip start before synthesis.
func Rebase(words []WordEvent, offset float64) {
	for i := range words {
		words[i].Start -= offset
		words[i].End -= offset
	}
}

// InTimeRange returns the words overlapping [start, end).
func InTimeRange(words []WordEvent, start, end float64) []WordEvent {
	var out []WordEvent
	for _, w := range words {
		if w.End <= start || w.Start >= end {
			continue
		}
		out = append(out, w)
	}
	return out
}

// ExtendWordSeq places word vocabulary indices on a grid of nFrames
// slots spanning [startTime, endTime). Unoccupied slots hold the pad
// token. When two words land on the same slot the later one wins; the
// grid is not deduplicated.
//
// With removeTiming set, actual timestamps are ignored: the words that
// would fall inside the grid are re-spread at uniform integer spacing,
// preserving original word order.
func ExtendWordSeq(nFrames int, lm langmodel.Model, removeTiming bool,
	words []WordEvent, startTime, endTime float64) []int64 {

	frameDuration := (endTime - startTime) / float64(nFrames)
	indices := make([]int64, nFrames)

	if removeTiming {
		nWords := 0
		for _, w := range words {
			idx := frameIndex(w.Start, startTime, frameDuration)
			if idx < nFrames {
				nWords++
			}
		}
		if nWords == 0 {
			return indices
		}
		space := nFrames / (nWords + 1)
		for k := 0; k < nWords; k++ {
			indices[(k+1)*space] = int64(lm.WordIndex(words[k].Word))
		}
		return indices
	}

	for _, w := range words {
		idx := frameIndex(w.Start, startTime, frameDuration)
		if idx < nFrames {
			indices[idx] = int64(lm.WordIndex(w.Word))
		}
	}
	return indices
}

// WordsToIndices builds the variable-length SOS/EOS-bounded index
// sequence consumed by sequence models. Words starting after the
// cutoff (when >= 0) are dropped along with everything after them.
func WordsToIndices(lm langmodel.Model, words []WordEvent, cutoff float64) []int64 {
	indices := []int64{langmodel.SOS}
	for _, w := range words {
		if cutoff >= 0 && w.Start > cutoff {
			break
		}
		indices = append(indices, int64(lm.WordIndex(w.Word)))
	}
	return append(indices, langmodel.EOS)
}

func frameIndex(wordStart, gridStart, frameDuration float64) int {
	idx := int(math.Floor((wordStart - gridStart) / frameDuration))
	if idx < 0 {
		idx = 0
	}
	return idx
}
