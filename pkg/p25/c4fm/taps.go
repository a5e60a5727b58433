package c4fm

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
)

const (
	DefaultSymbolRate int     = 4800
	DefaultSpan       int     = 13
	DefaultGain       float64 = 1.0

	// the receive response is undefined above 2880 Hz; the sinc rolls off to the symbol rate
	rxTransferBins = 4800
)

// TapGenerator builds the C4FM receive (de-emphasis) filter for a given sample rate.
type TapGenerator struct {
	sampleRate int
	symbolRate int
	filterGain float64
	sps        int
	ntaps      int
}

func NewTapGenerator(
	sampleRate int,
	symbolRate int,
	span int,
	filterGain float64,
) *TapGenerator {
	ret := &TapGenerator{
		sampleRate: sampleRate,
		symbolRate: symbolRate,
		filterGain: filterGain,
		sps:        sampleRate / symbolRate,
	}

	// ensure that it's an odd number
	ret.ntaps = (ret.sps * span) | 1

	return ret
}

func (g *TapGenerator) NumTaps() int {
	return g.ntaps
}

// GenerateRX returns ntaps real coefficients summing to the filter gain.
func (g *TapGenerator) GenerateRX() []float32 {
	return g.generate(transferRX(rxTransferBins))
}

func (g *TapGenerator) generate(transfer []float64) []float32 {
	impulse := fftshift(impulseResponse(transfer, g.sampleRate))

	start := argMax(impulse) - (g.ntaps-1)/2
	if start < 0 {
		start = 0
	}
	end := start + g.ntaps
	if end > len(impulse) {
		end = len(impulse)
	}
	coeffs := impulse[start:end]

	var sum float64
	for _, c := range coeffs {
		sum += c
	}
	gain := g.filterGain / sum

	ret := make([]float32, len(coeffs))
	for i, c := range coeffs {
		ret[i] = float32(c * gain)
	}
	return ret
}

// impulseResponse is the inverse transform of a one-sided real spectrum sampled at 1 Hz
// per bin over n bins.
func impulseResponse(transfer []float64, n int) []float64 {
	spectrum := make([]complex128, n)
	for k := 0; k <= n/2 && k < len(transfer); k++ {
		spectrum[k] = complex(transfer[k], 0)
		if k > 0 {
			spectrum[n-k] = complex(transfer[k], 0)
		}
	}

	td := fft.IFFT(spectrum)
	ret := make([]float64, n)
	for i, v := range td {
		ret[i] = real(v)
	}
	return ret
}

func transferRX(bins int) []float64 {
	ret := make([]float64, bins)
	for i := 0; i < bins; i++ {
		t := math.Pi * float64(i) / float64(bins)
		if t >= 1e-6 {
			ret[i] = math.Sin(t) / t
		} else {
			ret[i] = 1.0
		}
	}
	return ret
}
