// Package windower slices variable-length frame sequences into the
// fixed-length blocks used as training samples.
package windower

// BlockStride is the frame step between consecutive training blocks cut
// from one long sequence.
const BlockStride = 100

// Block is one fixed-length excerpt. Frames is blockSize x featureDim;
// short sources are zero-padded on the trailing rows.
type Block struct {
	Frames [][]float64
	Label  int
}

// Blocks cuts frames (T x D) into blocks of exactly blockSize frames,
// each carrying the source label.
//
// T <= blockSize yields a single trailing-zero-padded block. Otherwise
// windows slide from frame 0 with stride BlockStride and stop before
// the first window whose end would pass T; the remainder is dropped,
// never padded. Dropping up to blockSize+BlockStride-1 trailing frames
// of every long sequence matches the upstream data preparation and is
// kept for reproducibility.
func Blocks(frames [][]float64, blockSize, label int) []Block {
	t := len(frames)
	if t == 0 {
		return nil
	}
	d := len(frames[0])

	if t <= blockSize {
		padded := make([][]float64, blockSize)
		for i := 0; i < blockSize; i++ {
			if i < t {
				padded[i] = frames[i]
			} else {
				padded[i] = make([]float64, d)
			}
		}
		return []Block{{Frames: padded, Label: label}}
	}

	var out []Block
	for begin := 0; begin < t; begin += BlockStride {
		end := begin + blockSize
		if end > t {
			break
		}
		out = append(out, Block{Frames: frames[begin:end], Label: label})
	}
	return out
}

// NumBlocks reports how many blocks Blocks will emit for a sequence of
// t frames without materializing them.
func NumBlocks(t, blockSize int) int {
	if t == 0 {
		return 0
	}
	if t <= blockSize {
		return 1
	}
	return (t-blockSize)/BlockStride + 1
}
