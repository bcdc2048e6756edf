package synth

// fadeOut pulls the stream tail toward the neutral pose. The fade
// region starts where the detected audio end-padding begins; the final
// nSmooth frames are zeroed and the whole 2*nSmooth region is replaced
// by a degree-2 weighted least-squares fit per channel, endpoints
// weighted 5x to anchor continuity with the untouched frames.
func fadeOut(out [][]float64, endPadSamples, sampleRate, fps float64, nSmooth int) [][]float64 {
	if len(out) == 0 {
		return out
	}
	dim := len(out[0])

	startFrame := len(out) - int(endPadSamples/sampleRate*fps)
	if startFrame < 0 {
		startFrame = 0
	}
	endFrame := startFrame + nSmooth*2
	for len(out) < endFrame {
		out = append(out, make([]float64, dim))
	}
	for i := endFrame - nSmooth; i < len(out); i++ {
		out[i] = make([]float64, dim)
	}

	region := out[startFrame:endFrame]
	x := make([]float64, len(region))
	w := make([]float64, len(region))
	for i := range region {
		x[i] = float64(i)
		w[i] = 1
	}
	w[0] = 5
	w[len(w)-1] = 5

	y := make([]float64, len(region))
	for d := 0; d < dim; d++ {
		for i := range region {
			y[i] = region[i][d]
		}
		c0, c1, c2 := polyfit2(x, y, w)
		for i := range region {
			region[i][d] = c0 + c1*x[i] + c2*x[i]*x[i]
		}
	}
	return out
}

// polyfit2 solves a weighted least-squares fit y ≈ c0 + c1*x + c2*x^2
// via the 3x3 normal equations.
func polyfit2(x, y, w []float64) (c0, c1, c2 float64) {
	var s [5]float64 // weighted power sums of x
	var b [3]float64 // weighted moments of y
	for i := range x {
		xi, wi := x[i], w[i]
		p := wi
		for k := 0; k < 5; k++ {
			s[k] += p
			if k < 3 {
				b[k] += p * y[i]
			}
			p *= xi
		}
	}
	m := [3][4]float64{
		{s[0], s[1], s[2], b[0]},
		{s[1], s[2], s[3], b[1]},
		{s[2], s[3], s[4], b[2]},
	}
	// gaussian elimination with partial pivoting
	for col := 0; col < 3; col++ {
		pivot := col
		for r := col + 1; r < 3; r++ {
			if abs(m[r][col]) > abs(m[pivot][col]) {
				pivot = r
			}
		}
		m[col], m[pivot] = m[pivot], m[col]
		if m[col][col] == 0 {
			continue
		}
		for r := col + 1; r < 3; r++ {
			f := m[r][col] / m[col][col]
			for c := col; c < 4; c++ {
				m[r][c] -= f * m[col][c]
			}
		}
	}
	var sol [3]float64
	for r := 2; r >= 0; r-- {
		v := m[r][3]
		for c := r + 1; c < 3; c++ {
			v -= m[r][c] * sol[c]
		}
		if m[r][r] != 0 {
			sol[r] = v / m[r][r]
		}
	}
	return sol[0], sol[1], sol[2]
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
