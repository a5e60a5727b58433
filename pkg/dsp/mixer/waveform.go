package mixer

import (
	"math"
)

const (
	tau float64 = math.Pi * 2
)

// WaveformMixer multiplies the input by a complex oscillator, shifting it by frequency Hz.
type WaveformMixer struct {
	sampleRate     int
	frequency      int
	phase          float64
	phaseIncrement float64
}

func NewWaveformMixer(sampleRate int, frequency int) *WaveformMixer {
	ret := &WaveformMixer{sampleRate: sampleRate}
	ret.SetFrequency(frequency)
	return ret
}

func (w *WaveformMixer) SetFrequency(frequency int) {
	w.frequency = frequency
	w.phaseIncrement = float64(frequency) * tau / float64(w.sampleRate)
}

func (w *WaveformMixer) Frequency() int {
	return w.frequency
}

func (w *WaveformMixer) incrementPhase() {
	w.phase = math.Mod(w.phase+w.phaseIncrement, tau)
}

func (w *WaveformMixer) WorkBuffer(input []complex64, output []complex64) int {
	for i, v := range input {
		sin, cos := math.Sincos(w.phase)
		output[i] = complex(float32(cos), float32(sin)) * v
		w.incrementPhase()
	}
	return len(input)
}

func (w *WaveformMixer) Work(vals []complex64) []complex64 {
	ret := make([]complex64, len(vals))
	w.WorkBuffer(vals, ret)
	return ret
}

func (w *WaveformMixer) PredictOutputSize(inputSize int) int {
	return inputSize
}

func (w *WaveformMixer) Reset() {
	w.phase = 0
}
