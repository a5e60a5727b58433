package util

import "math"

func FrequencyRange(freqs ...int) (low, high int) {
	low = math.MaxInt
	high = math.MinInt

	for _, freq := range freqs {
		if freq < low {
			low = freq
		}
		if freq > high {
			high = freq
		}
	}

	return
}

// NormalizedFrequency folds a shift in Hz into cycles per sample in [-0.5, 0.5].
func NormalizedFrequency(shift int, sampleRate float64) float64 {
	f := float64(shift) / sampleRate
	f -= math.Floor(f)
	if f > 0.5 {
		f -= 1.0
	}
	return f
}

func GCD(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}
