package rmsagc

import (
	"math"
)

// RMSAGC is a root-mean-squared automatic gain controller. Output is scaled so its
// running RMS tracks the reference level.
type RMSAGC struct {
	alpha     float64
	beta      float64
	reference float64
	average   float64
}

func NewRMSAGC(alpha float64, reference float64) *RMSAGC {
	return &RMSAGC{
		alpha:     alpha,
		beta:      1 - alpha,
		average:   1.0,
		reference: reference,
	}
}

func (r *RMSAGC) PredictOutputSize(inputSize int) int {
	return inputSize
}

func (r *RMSAGC) WorkBuffer(input, output []float32) int {
	for i, v := range input {
		cur := float64(v)
		r.average = r.beta*r.average + r.alpha*cur*cur
		if r.average > 0 {
			output[i] = float32(r.reference * cur / math.Sqrt(r.average))
		} else {
			output[i] = float32(r.reference * cur)
		}
	}

	return len(input)
}

func (r *RMSAGC) Work(data []float32) []float32 {
	ret := make([]float32, len(data))
	r.WorkBuffer(data, ret)
	return ret
}

// RMS is the current running RMS of the input.
func (r *RMSAGC) RMS() float64 {
	return math.Sqrt(r.average)
}

func (r *RMSAGC) Reset() {
	r.average = 1.0
}
