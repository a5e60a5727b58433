package rmsagc

import (
	"math"
	"testing"
)

func TestRMSAGC(t *testing.T) {
	tests := []struct {
		name      string
		amplitude float32
		reference float64
	}{
		{"quiet input", 0.01, 1.0},
		{"loud input", 50, 1.0},
		{"c4fm reference", 0.3, math.Sqrt(5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agc := NewRMSAGC(0.01, tt.reference)
			in := make([]float32, 5000)
			for i := range in {
				if i%2 == 0 {
					in[i] = tt.amplitude
				} else {
					in[i] = -tt.amplitude
				}
			}
			out := agc.Work(in)
			last := math.Abs(float64(out[len(out)-1]))
			if math.Abs(last-tt.reference) > 0.01*tt.reference {
				t.Errorf("settled output = %v, want %v", last, tt.reference)
			}
			if math.Abs(agc.RMS()-float64(tt.amplitude)) > 0.01*float64(tt.amplitude) {
				t.Errorf("RMS() = %v, want %v", agc.RMS(), tt.amplitude)
			}
			agc.Reset()
			if agc.RMS() != 1.0 {
				t.Errorf("RMS() after Reset = %v", agc.RMS())
			}
		})
	}
}
