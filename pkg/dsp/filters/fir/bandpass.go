package fir

import "math"

// MakeBandPass designs a real band pass normalised to gain at the centre of the pass band.
// The audio path uses it to keep IMBE output within the voice band.
func MakeBandPass(gain, sampleRate, lowCut, highCut, transitionWidth float64, winType WindowType) []float32 {
	nTaps := computeNTaps(sampleRate, transitionWidth, winType)
	taps := make([]float32, nTaps)
	w := windowFuncs[winType](nTaps)

	M := (nTaps - 1) / 2

	fwT0 := 2 * math.Pi * lowCut / sampleRate
	fwT1 := 2 * math.Pi * highCut / sampleRate

	for i := -M; i <= M; i++ {
		fi := float64(i)
		if i == 0 {
			taps[i+M] = float32((fwT1 - fwT0) / math.Pi * float64(w[i+M]))
		} else {
			taps[i+M] = float32(
				(math.Sin(fi*fwT1) - math.Sin(fi*fwT0)) /
					(float64(i) * math.Pi) *
					float64(w[i+M]),
			)
		}
	}

	fmax := float64(taps[M])
	for i := 1; i <= M; i++ {
		fmax += 2 * float64(taps[i+M]) * math.Cos(float64(i)*(fwT0+fwT1)*0.5)
	}

	return scale(taps, gain/fmax)
}

// MakeComplexBandPass shifts a low pass prototype to the centre of [lowCut, highCut],
// which may be negative, for selecting a channel out of a wideband capture.
func MakeComplexBandPass(gain,
	sampleRate,
	lowCut,
	highCut,
	transitionWidth float64,
	winType WindowType) []complex64 {

	lptaps := MakeLowPass(
		gain,
		sampleRate,
		(highCut-lowCut)/2.0,
		transitionWidth,
		winType)

	ret := make([]complex64, len(lptaps))

	freq := math.Pi * (highCut + lowCut) / sampleRate
	// taps are always odd, so the centre tap sits at zero phase
	phase := -freq * float64(len(lptaps)>>1)
	for i, tap := range lptaps {
		sin, cos := math.Sincos(phase)
		ret[i] = complex(float32(float64(tap)*cos), float32(float64(tap)*sin))
		phase += freq
	}

	return ret
}
