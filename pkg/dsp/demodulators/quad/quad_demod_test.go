package quad

import (
	"math"
	"testing"
)

func tone(sampleRate int, freq float64, n int) []complex64 {
	ret := make([]complex64, n)
	for i := range ret {
		s, c := math.Sincos(2 * math.Pi * freq * float64(i) / float64(sampleRate))
		ret[i] = complex(float32(c), float32(s))
	}
	return ret
}

func TestQuadDemod(t *testing.T) {
	const rate = 24000
	tests := []struct {
		name string
		freq float64
		want float32
	}{
		{"inner deviation", 600, 1},
		{"outer deviation", 1800, 3},
		{"negative outer", -1800, -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := MakeQuadDemod(GainForDeviation(rate, 600))
			out := d.Work(tone(rate, tt.freq, 256))
			if len(out) != 256 {
				t.Fatalf("Work() len = %d", len(out))
			}
			for i := 2; i < len(out); i++ {
				if math.Abs(float64(out[i]-tt.want)) > 1e-3 {
					t.Fatalf("out[%d] = %v, want %v", i, out[i], tt.want)
				}
			}
		})
	}
}
