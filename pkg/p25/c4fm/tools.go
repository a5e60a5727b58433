package c4fm

func fftshift(freqs []float64) []float64 {
	midpoint := len(freqs) / 2
	if len(freqs)%2 == 0 {
		midpoint--
	}

	ret := make([]float64, 0, len(freqs))
	ret = append(ret, freqs[midpoint+1:]...)
	ret = append(ret, freqs[0:midpoint+1]...)
	return ret
}

func argMax(f []float64) int {
	idx := 0
	for i := 1; i < len(f); i++ {
		if f[i] > f[idx] {
			idx = i
		}
	}
	return idx
}
