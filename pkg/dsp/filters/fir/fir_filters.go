package fir

// computeNTaps estimates the (odd) filter length needed for the window's attenuation.
func computeNTaps(sampleRate float64, transitionWidth float64, winType WindowType) int {
	maxAttenuation := windowMaxAttenuation[winType]
	ntaps := int(float64(maxAttenuation) * sampleRate / (22.0 * transitionWidth))
	return ntaps | 1
}
