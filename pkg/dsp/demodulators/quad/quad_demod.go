package quad

import (
	"math"

	"github.com/racerxdl/segdsp/dsp"
)

// QuadDemod is a quadrature FM discriminator: the phase step between consecutive
// samples, scaled by gain.
type QuadDemod struct {
	gain float32
	last []complex64
}

func MakeQuadDemod(gain float32) *QuadDemod {
	return &QuadDemod{
		gain: gain,
		last: make([]complex64, 1),
	}
}

// GainForDeviation returns the gain that maps a deviation in Hz to an output of 1.0.
func GainForDeviation(sampleRate int, deviation float64) float32 {
	return float32(float64(sampleRate) / (2 * math.Pi * deviation))
}

func (f *QuadDemod) Work(data []complex64) []float32 {
	out := make([]float32, f.PredictOutputSize(len(data)))
	n := f.WorkBuffer(data, out)
	return out[:n]
}

func (f *QuadDemod) WorkBuffer(input []complex64, output []float32) int {
	if len(input) == 0 {
		return 0
	}
	samples := append(f.last[:1:1], input...)
	tmp := dsp.MultiplyConjugate(samples[1:], samples, len(input))

	for i := range input {
		output[i] = f.gain * float32(math.Atan2(float64(imag(tmp[i])), float64(real(tmp[i]))))
	}

	f.last = samples[len(input):]
	return len(input)
}

func (f *QuadDemod) PredictOutputSize(inputLength int) int {
	return inputLength
}

func (f *QuadDemod) Reset() {
	f.last = make([]complex64, 1)
}
