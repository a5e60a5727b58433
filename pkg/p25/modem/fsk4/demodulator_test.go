package fsk4

import (
	"math/rand"
	"testing"
)

var levels = []float32{-3, -1, 1, 3}

func slice(v float32) float32 {
	best := levels[0]
	for _, l := range levels[1:] {
		if abs32(v-l) < abs32(v-best) {
			best = l
		}
	}
	return best
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func rectangularSignal(symbols []float32, sps int) []float32 {
	out := make([]float32, 0, len(symbols)*sps)
	for _, s := range symbols {
		for i := 0; i < sps; i++ {
			out = append(out, s)
		}
	}
	return out
}

func TestFSK4Demodulator(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	symbols := make([]float32, 2000)
	for i := range symbols {
		symbols[i] = levels[rnd.Intn(len(levels))]
	}

	d := NewFSK4Demodulator(24000, 4800)
	out := d.Work(rectangularSignal(symbols, 5))
	if len(out) < len(symbols)-2 || len(out) > len(symbols)+2 {
		t.Fatalf("Work() produced %d symbols, want about %d", len(out), len(symbols))
	}

	const settle = 100
	best := 0
	for lag := 0; lag < 5; lag++ {
		matched := 0
		for i := settle; i < len(out) && i-lag < len(symbols); i++ {
			if slice(out[i]) == symbols[i-lag] {
				matched++
			}
		}
		if matched > best {
			best = matched
		}
	}
	if want := (len(out) - settle) * 95 / 100; best < want {
		t.Errorf("matched %d symbols, want at least %d", best, want)
	}

	if d.ErrorAverage() > 0.1 {
		t.Errorf("ErrorAverage() = %v on a clean signal", d.ErrorAverage())
	}

	d.Reset()
	if d.ErrorAverage() != unlockedErrorAverage {
		t.Errorf("ErrorAverage() after Reset = %v", d.ErrorAverage())
	}
}

func TestPredictOutputSize(t *testing.T) {
	d := NewFSK4Demodulator(24000, 4800)
	for _, n := range []int{0, 1, 5, 1000, 4801} {
		in := make([]float32, n)
		if got := len(d.Work(in)); got > d.PredictOutputSize(n) {
			t.Errorf("Work(%d) produced %d, predicted %d", n, got, d.PredictOutputSize(n))
		}
	}
}
