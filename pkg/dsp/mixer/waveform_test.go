package mixer

import (
	"math"
	"math/cmplx"
	"testing"
)

func TestWaveformMixer(t *testing.T) {
	const rate = 48000
	tests := []struct {
		name  string
		input int
		shift int
	}{
		{"down to dc", 3000, -3000},
		{"up to dc", -12000, 12000},
		{"no shift", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := make([]complex64, 2000)
			for i := range in {
				in[i] = complex64(cmplx.Exp(complex(0, tau*float64(tt.input)*float64(i)/rate)))
			}
			m := NewWaveformMixer(rate, tt.shift)
			out := m.Work(in)
			for i, v := range out {
				if math.Abs(float64(real(v))-1) > 1e-3 || math.Abs(float64(imag(v))) > 1e-3 {
					t.Fatalf("out[%d] = %v, want 1+0i", i, v)
				}
			}
		})
	}
}
