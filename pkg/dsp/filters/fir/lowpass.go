package fir

import (
	"math"
)

// MakeLowPass designs a windowed-sinc low pass with unity (times gain) response at DC.
func MakeLowPass(gain, sampleRate, cutFrequency, transitionWidth float64, winType WindowType) []float32 {
	nTaps := computeNTaps(sampleRate, transitionWidth, winType)
	taps := make([]float32, nTaps)
	w := windowFuncs[winType](nTaps)

	M := (nTaps - 1) / 2
	fwT0 := 2 * math.Pi * cutFrequency / sampleRate

	for i := -M; i <= M; i++ {
		if i == 0 {
			taps[i+M] = float32(fwT0 / math.Pi * float64(w[i+M]))
		} else {
			fi := float64(i)
			taps[i+M] = float32(math.Sin(fi*fwT0) / (fi * math.Pi) * float64(w[i+M]))
		}
	}

	fmax := float64(taps[M])
	for i := 1; i <= M; i++ {
		fmax += 2 * float64(taps[i+M])
	}

	return scale(taps, gain/fmax)
}

func scale(taps []float32, gain float64) []float32 {
	for i := range taps {
		taps[i] = float32(float64(taps[i]) * gain)
	}
	return taps
}
