package dcblock

import (
	"math"
	"testing"
)

func TestDCBlocker(t *testing.T) {
	tests := []struct {
		name   string
		offset float32
		alpha  float64
	}{
		{"no offset", 0, 1.0 / 2400},
		{"positive offset", 4.17, 1.0 / 2400},
		{"negative offset", -1.67, 1.0 / 240},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDCBlocker(tt.alpha)
			in := make([]float32, 24000)
			for i := range in {
				// symbol-like square wave of +/-3 around the offset
				level := float32(3)
				if (i/5)%2 == 1 {
					level = -3
				}
				in[i] = tt.offset + level
			}
			out := d.Work(in)

			if got := d.Average(); math.Abs(got-float64(tt.offset)) > 0.05 {
				t.Errorf("Average() = %v, want %v", got, tt.offset)
			}
			var mean float64
			for _, v := range out[len(out)-1000:] {
				mean += float64(v)
			}
			mean /= 1000
			if math.Abs(mean) > 0.05 {
				t.Errorf("output mean = %v, want 0", mean)
			}
		})
	}
}

func TestDCBlockerAcquisition(t *testing.T) {
	d := NewDCBlocker(1.0 / 24000)
	in := make([]float32, 100)
	for i := range in {
		in[i] = 2.5
	}
	out := d.Work(in)
	if out[len(out)-1] != 0 {
		t.Errorf("constant input not removed during acquisition: %v", out[len(out)-1])
	}

	d.Reset()
	if d.Average() != 0 {
		t.Errorf("Average() after Reset = %v", d.Average())
	}
	out = d.Work([]float32{-1})
	if out[0] != 0 {
		t.Errorf("first sample after Reset = %v, want 0", out[0])
	}
}
