package fir

import (
	"math"
	"math/cmplx"
	"testing"
)

// response evaluates a real filter at freq.
func response(taps []float32, sampleRate, freq float64) float64 {
	var acc complex128
	for i, tap := range taps {
		acc += complex(float64(tap), 0) * cmplx.Exp(complex(0, -2*math.Pi*freq*float64(i)/sampleRate))
	}
	return cmplx.Abs(acc)
}

func TestMakeLowPass(t *testing.T) {
	tests := []struct {
		name    string
		rate    float64
		cutoff  float64
		width   float64
		window  WindowType
		stopAt  float64
		maxStop float64
	}{
		{"channel cutoff", 24000, 6562.5, 625, Hann, 8000, 0.02},
		{"decimator", 100000, 9375, 6250, Hamming, 25000, 0.01},
		{"blackman", 48000, 4000, 1000, Blackman, 8000, 0.001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			taps := MakeLowPass(1.0, tt.rate, tt.cutoff, tt.width, tt.window)
			if len(taps)%2 != 1 {
				t.Fatalf("len(taps) = %d, want odd", len(taps))
			}
			for i := 0; i < len(taps)/2; i++ {
				if math.Abs(float64(taps[i]-taps[len(taps)-1-i])) > 1e-6 {
					t.Fatalf("taps not symmetric at %d", i)
				}
			}
			if dc := response(taps, tt.rate, 0); math.Abs(dc-1) > 1e-4 {
				t.Errorf("DC gain = %v, want 1", dc)
			}
			if stop := response(taps, tt.rate, tt.stopAt); stop > tt.maxStop {
				t.Errorf("gain at %v Hz = %v, want < %v", tt.stopAt, stop, tt.maxStop)
			}
		})
	}
}

func TestMakeBandPass(t *testing.T) {
	taps := MakeBandPass(1.0, 8000, 300, 3400, 200, Hamming)
	if centre := response(taps, 8000, 1850); math.Abs(centre-1) > 0.01 {
		t.Errorf("centre gain = %v, want 1", centre)
	}
	if dc := response(taps, 8000, 0); dc > 0.01 {
		t.Errorf("DC gain = %v", dc)
	}
}

func TestMakeComplexBandPass(t *testing.T) {
	taps := MakeComplexBandPass(1.0, 1e6, -120000, -80000, 10000, Hamming)
	eval := func(freq float64) float64 {
		var acc complex128
		for i, tap := range taps {
			acc += complex128(tap) * cmplx.Exp(complex(0, -2*math.Pi*freq*float64(i)/1e6))
		}
		return cmplx.Abs(acc)
	}
	if pass := eval(-100000); math.Abs(pass-1) > 0.01 {
		t.Errorf("pass band gain = %v, want 1", pass)
	}
	if image := eval(100000); image > 0.01 {
		t.Errorf("image gain = %v, want ~0", image)
	}
}

func TestWindows(t *testing.T) {
	tests := []struct {
		name string
		win  []float32
		edge float64
	}{
		{"hamming", HammingWindow(65), 0.08},
		{"hann", HannWindow(65), 0},
		{"blackman", BlackmanWindow(65), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if math.Abs(float64(tt.win[0])-tt.edge) > 1e-6 {
				t.Errorf("edge = %v, want %v", tt.win[0], tt.edge)
			}
			if math.Abs(float64(tt.win[32])-1) > 1e-6 {
				t.Errorf("centre = %v, want 1", tt.win[32])
			}
		})
	}
}
