package fsk4

import "math"

const (
	kNumTaps  = 8
	kNumSteps = 128

	// expected error average for noise; also the starting point after a reset
	unlockedErrorAverage = 0.25

	kSymbolSpread       = 0.0100
	kSymbolTiming       = 0.025
	kFineFrequency      = 0.125
	kCoarseFrequency    = 0.00125
	kSymbolSpreadMin    = 1.6
	kSymbolSpreadMax    = 2.4
	kErrorAverage       = 0.02
	defaultSymbolSpread = 2.0
)

// taps[s] interpolates the 8 sample history at 4 - s/kNumSteps samples from the oldest entry.
var taps = func() [kNumSteps + 1][kNumTaps]float32 {
	var ret [kNumSteps + 1][kNumTaps]float32
	for s := 0; s <= kNumSteps; s++ {
		pos := 4 - float64(s)/kNumSteps
		var sum float64
		var row [kNumTaps]float64
		for i := 0; i < kNumTaps; i++ {
			x := float64(i) - pos
			sinc := 1.0
			if math.Abs(x) > 1e-9 {
				sinc = math.Sin(math.Pi*x) / (math.Pi * x)
			}
			row[i] = sinc * (0.5 + 0.5*math.Cos(math.Pi*x/4.5))
			sum += row[i]
		}
		for i := range row {
			ret[s][i] = float32(row[i] / sum)
		}
	}
	return ret
}()
