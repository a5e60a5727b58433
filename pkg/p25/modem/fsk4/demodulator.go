package fsk4

import (
	"math"
)

// FSK4Demodulator recovers 4-level symbols from a frequency discriminator output using
// MMSE interpolation for timing recovery. Output levels are nominally -3, -1, +1, +3.
type FSK4Demodulator struct {
	sampleRate int
	symbolRate int

	history     [kNumTaps]float32
	historyLast int

	symbolClock  float32
	symbolSpread float32
	symbolTime   float32

	fineFreqCorrection   float32
	coarseFreqCorrection float32

	errorAverage float64
}

func NewFSK4Demodulator(sampleRate, symbolRate int) *FSK4Demodulator {
	return &FSK4Demodulator{
		sampleRate:   sampleRate,
		symbolRate:   symbolRate,
		symbolSpread: defaultSymbolSpread,
		symbolTime:   float32(symbolRate) / float32(sampleRate),
		errorAverage: unlockedErrorAverage,
	}
}

func (f *FSK4Demodulator) trackingLoopMMSE(input float32, output *float32) bool {
	f.symbolClock += f.symbolTime
	f.history[f.historyLast] = input
	f.historyLast = (f.historyLast + 1) % kNumTaps

	if f.symbolClock <= 1.0 {
		return false
	}

	f.symbolClock -= 1.0

	imu := int(math.Floor(float64(0.5 + (float32(kNumSteps) * (f.symbolClock / f.symbolTime)))))
	imuP1 := imu + 1
	if imu >= kNumSteps {
		imu = kNumSteps - 1
		imuP1 = kNumSteps
	}

	j := f.historyLast
	var interp, interpP1 float32
	for i := 0; i < kNumTaps; i++ {
		interp += taps[imu][i] * f.history[j]
		interpP1 += taps[imuP1][i] * f.history[j]
		j = (j + 1) % kNumTaps
	}

	interp -= f.fineFreqCorrection
	interpP1 -= f.fineFreqCorrection

	*output = 2.0 * interp / f.symbolSpread

	// hard decision against the nominal levels +/-0.5 and +/-1.5 symbol spreads
	var symbolError float32
	switch {
	case interp < -f.symbolSpread:
		symbolError = interp + (1.5 * f.symbolSpread)
		f.symbolSpread -= symbolError * 0.5 * kSymbolSpread
	case interp < 0.0:
		symbolError = interp + (0.5 * f.symbolSpread)
		f.symbolSpread -= symbolError * kSymbolSpread
	case interp < f.symbolSpread:
		symbolError = interp - (0.5 * f.symbolSpread)
		f.symbolSpread += symbolError * kSymbolSpread
	default:
		symbolError = interp - (1.5 * f.symbolSpread)
		f.symbolSpread += symbolError * 0.5 * kSymbolSpread
	}

	if interpP1 < interp {
		f.symbolClock += symbolError * kSymbolTiming
	} else {
		f.symbolClock -= symbolError * kSymbolTiming
	}

	f.symbolSpread = float32(math.Max(float64(f.symbolSpread), kSymbolSpreadMin))
	f.symbolSpread = float32(math.Min(float64(f.symbolSpread), kSymbolSpreadMax))

	f.coarseFreqCorrection += (f.fineFreqCorrection - f.coarseFreqCorrection) * kCoarseFrequency
	f.fineFreqCorrection += symbolError * kFineFrequency

	// normalised to the spacing between adjacent levels
	e := math.Abs(float64(symbolError / f.symbolSpread))
	f.errorAverage += (e - f.errorAverage) * kErrorAverage

	return true
}

func (f *FSK4Demodulator) WorkBuffer(inputItems, outputItems []float32) int {
	n := 0
	for i := 0; i < len(inputItems); i++ {
		if f.trackingLoopMMSE(inputItems[i], &outputItems[n]) {
			n++
		}
	}
	return n
}

func (f *FSK4Demodulator) Work(inputItems []float32) []float32 {
	outputItems := make([]float32, f.PredictOutputSize(len(inputItems)))
	length := f.WorkBuffer(inputItems, outputItems)
	return outputItems[:length]
}

// ErrorAverage is the smoothed symbol decision error as a fraction of the level spacing.
// A locked C4FM signal stays well below 0.25; noise sits near 0.25 or above.
func (f *FSK4Demodulator) ErrorAverage() float64 {
	return f.errorAverage
}

// FrequencyOffset is the coarse frequency correction in symbol-deviation units.
func (f *FSK4Demodulator) FrequencyOffset() float32 {
	return f.coarseFreqCorrection
}

func (f *FSK4Demodulator) Reset() {
	f.coarseFreqCorrection = 0.0
	f.fineFreqCorrection = 0.0
	f.symbolClock = 0.0
	f.symbolSpread = defaultSymbolSpread
	f.errorAverage = unlockedErrorAverage
	f.history = [kNumTaps]float32{}
	f.historyLast = 0
}

func (f *FSK4Demodulator) PredictOutputSize(inputSize int) int {
	return inputSize*f.symbolRate/f.sampleRate + 2
}
