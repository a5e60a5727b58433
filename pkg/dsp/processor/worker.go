package processor

import "github.com/norasector/p25scanner/pkg/dsp/viz"

type DataType int

const (
	DataTypeComplex DataType = iota
	DataTypeFloat
)

func (d DataType) String() string {
	switch d {
	case DataTypeComplex:
		return "complex"
	case DataTypeFloat:
		return "float"
	}
	return "unknown"
}

// DSPWorker is one stage of a Processor chain along with its plotting state.
type DSPWorker struct {
	Name        string
	DisplayName string
	InputRate   int
	OutputRate  int

	inputDataType  DataType
	outputDataType DataType

	ccWorker CCWorker
	cfWorker CFWorker
	ffWorker FFWorker

	fOutputBuffer []float32
	cOutputBuffer []complex64

	fft        *viz.FFTPlotter
	timeDomain *viz.TimeDomainPlotter
	vizSize    int
	plotType   viz.PlotType

	plotOptions []viz.PlotOptions
}

type DSPWorkerOption func(r *DSPWorker)

func WithPlotOptions(opts ...viz.PlotOptions) DSPWorkerOption {
	return func(r *DSPWorker) {
		r.plotOptions = append(r.plotOptions, opts...)
	}
}

func WithVizLength(length int) DSPWorkerOption {
	return func(r *DSPWorker) {
		r.vizSize = length
	}
}

func WithPlotType(plotType viz.PlotType) DSPWorkerOption {
	return func(r *DSPWorker) {
		r.plotType = plotType
	}
}

func newWorker(name, displayName string, inputRate, outputRate int, in, out DataType, opts []DSPWorkerOption) *DSPWorker {
	ret := &DSPWorker{
		Name:           name,
		DisplayName:    displayName,
		InputRate:      inputRate,
		OutputRate:     outputRate,
		inputDataType:  in,
		outputDataType: out,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func NewDSPWorkerCC(name, displayName string, inputRate, outputRate int, worker CCWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := newWorker(name, displayName, inputRate, outputRate, DataTypeComplex, DataTypeComplex, opts)
	ret.ccWorker = worker
	return ret
}

func NewDSPWorkerCF(name, displayName string, inputRate, outputRate int, worker CFWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := newWorker(name, displayName, inputRate, outputRate, DataTypeComplex, DataTypeFloat, opts)
	ret.cfWorker = worker
	return ret
}

func NewDSPWorkerFF(name, displayName string, inputRate, outputRate int, worker FFWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := newWorker(name, displayName, inputRate, outputRate, DataTypeFloat, DataTypeFloat, opts)
	ret.ffWorker = worker
	return ret
}

func (w *DSPWorker) worker() interface{} {
	switch {
	case w.ccWorker != nil:
		return w.ccWorker
	case w.cfWorker != nil:
		return w.cfWorker
	}
	return w.ffWorker
}

// Complex in, complex out
type CCWorker interface {
	WorkBuffer([]complex64, []complex64) int
	PredictOutputSize(int) int
}

// Complex in, float out
type CFWorker interface {
	WorkBuffer([]complex64, []float32) int
	PredictOutputSize(int) int
}

type FFWorker interface {
	WorkBuffer([]float32, []float32) int
	PredictOutputSize(int) int
}

// Resetter is implemented by workers that carry state across blocks.
type Resetter interface {
	Reset()
}
