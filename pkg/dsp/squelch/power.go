package squelch

import "math"

const floorDBFS = -150.0

// PowerSquelch passes complex samples through unchanged while tracking their average
// power with a single pole filter.
type PowerSquelch struct {
	alpha     float64
	threshold float64
	power     float64
}

// NewPowerSquelch opens above thresholdDBFS.
func NewPowerSquelch(alpha float64, thresholdDBFS float64) *PowerSquelch {
	return &PowerSquelch{alpha: alpha, threshold: thresholdDBFS}
}

func (p *PowerSquelch) WorkBuffer(input, output []complex64) int {
	for i, v := range input {
		mag := float64(real(v))*float64(real(v)) + float64(imag(v))*float64(imag(v))
		p.power += p.alpha * (mag - p.power)
		output[i] = v
	}
	return len(input)
}

func (p *PowerSquelch) Work(input []complex64) []complex64 {
	out := make([]complex64, len(input))
	p.WorkBuffer(input, out)
	return out
}

func (p *PowerSquelch) PredictOutputSize(inputSize int) int {
	return inputSize
}

func (p *PowerSquelch) DBFS() float64 {
	if p.power <= 0 {
		return floorDBFS
	}
	return math.Max(10*math.Log10(p.power), floorDBFS)
}

func (p *PowerSquelch) Open() bool {
	return p.DBFS() >= p.threshold
}

func (p *PowerSquelch) SetThreshold(dbfs float64) {
	p.threshold = dbfs
}

func (p *PowerSquelch) Reset() {
	p.power = 0
}
