package processor

import (
	"errors"
	"fmt"
	"time"

	"github.com/norasector/p25scanner/pkg/dsp/viz"
	"github.com/norasector/turbine-common/types"
)

const (
	defaultFFTLength  = 1024
	defaultTimeLength = 128
)

// Processor runs a chain of DSP workers over sample segments. Plots are registered
// with the viz server when one is supplied.
type Processor struct {
	Name        string
	InputName   string
	blocks      []*DSPWorker
	vizServer   *viz.Server
	initialized bool
	inputFFT    *viz.FFTPlotter
	vizIndex    int
}

func NewProcessor(name, inputName string, vizServer *viz.Server) *Processor {
	return &Processor{
		Name:      name,
		InputName: inputName,
		vizServer: vizServer,
	}
}

func (p *Processor) AddBlock(worker *DSPWorker) {
	p.blocks = append(p.blocks, worker)
}

func (p *Processor) nextPlotName(s string) string {
	p.vizIndex++
	return fmt.Sprintf("%02d. %s", p.vizIndex, s)
}

func (p *Processor) attachPlot(w *DSPWorker) {
	if p.vizServer == nil {
		return
	}
	switch w.outputDataType {
	case DataTypeComplex:
		length := defaultFFTLength
		if w.vizSize > 0 {
			length = w.vizSize
		}
		w.fft = viz.NewFFTPlotterComplex(p.nextPlotName(w.DisplayName), length, w.OutputRate)
		for _, opt := range w.plotOptions {
			w.fft.AddPlotOption(opt)
		}
		p.vizServer.Register(p.Name, w.fft)
	case DataTypeFloat:
		if w.plotType == viz.PlotTypeSpectrum {
			length := defaultFFTLength
			if w.vizSize > 0 {
				length = w.vizSize
			}
			w.fft = viz.NewFFTPlotterFloat(p.nextPlotName(w.DisplayName), length, w.OutputRate)
			for _, opt := range w.plotOptions {
				w.fft.AddPlotOption(opt)
			}
			p.vizServer.Register(p.Name, w.fft)
			return
		}
		length := defaultTimeLength
		if w.vizSize > 0 {
			length = w.vizSize
		}
		w.timeDomain = viz.NewTimeDomainPlotter(p.nextPlotName(w.DisplayName), length)
		if w.plotType != viz.PlotTypeDefault {
			w.timeDomain.SetPlotType(w.plotType)
		}
		for _, opt := range w.plotOptions {
			w.timeDomain.AddPlotOption(opt)
		}
		p.vizServer.Register(p.Name, w.timeDomain)
	}
}

// Initialize validates that adjacent blocks agree on data type and rate.
func (p *Processor) Initialize() error {
	if p.initialized {
		return nil
	}
	if len(p.blocks) == 0 {
		return errors.New("must specify at least 1 block")
	}

	if p.vizServer != nil && p.blocks[0].inputDataType == DataTypeComplex {
		p.inputFFT = viz.NewFFTPlotterComplex(p.nextPlotName(p.InputName), defaultFFTLength, p.blocks[0].InputRate)
		p.vizServer.Register(p.Name, p.inputFFT)
	}

	for i, cur := range p.blocks {
		if i > 0 {
			prev := p.blocks[i-1]
			if prev.outputDataType != cur.inputDataType {
				return fmt.Errorf("%s -> %s: data type mismatch (%s %s)", prev.Name, cur.Name, prev.outputDataType, cur.inputDataType)
			}
			if prev.OutputRate != cur.InputRate {
				return fmt.Errorf("%s -> %s: rate mismatch (%d %d)", prev.Name, cur.Name, prev.OutputRate, cur.InputRate)
			}
		}
		p.attachPlot(cur)
	}

	p.initialized = true
	return nil
}

// OutputRate is the sample rate leaving the last block.
func (p *Processor) OutputRate() int {
	if len(p.blocks) == 0 {
		return 0
	}
	return p.blocks[len(p.blocks)-1].OutputRate
}

// Reset clears the state of every block that keeps history, e.g. after a retune.
func (p *Processor) Reset() {
	for _, b := range p.blocks {
		if r, ok := b.worker().(Resetter); ok {
			r.Reset()
		}
	}
}

func growComplex(buf []complex64, size int) []complex64 {
	if cap(buf) < size {
		return make([]complex64, size*2)
	}
	return buf[:cap(buf)]
}

func growFloat(buf []float32, size int) []float32 {
	if cap(buf) < size {
		return make([]float32, size*2)
	}
	return buf[:cap(buf)]
}

func (p *Processor) process(cmplx []complex64, flt []float32, metrics map[string]interface{}) ([]complex64, []float32, error) {
	if p.inputFFT != nil {
		p.inputFFT.AppendComplex(cmplx)
	}

	for _, block := range p.blocks {
		start := time.Now()

		switch {
		case block.ccWorker != nil:
			block.cOutputBuffer = growComplex(block.cOutputBuffer, block.ccWorker.PredictOutputSize(len(cmplx)))
			cmplx = block.cOutputBuffer[:block.ccWorker.WorkBuffer(cmplx, block.cOutputBuffer)]
			if block.fft != nil {
				block.fft.AppendComplex(cmplx)
			}
		case block.cfWorker != nil:
			block.fOutputBuffer = growFloat(block.fOutputBuffer, block.cfWorker.PredictOutputSize(len(cmplx)))
			flt = block.fOutputBuffer[:block.cfWorker.WorkBuffer(cmplx, block.fOutputBuffer)]
			cmplx = nil
		case block.ffWorker != nil:
			block.fOutputBuffer = growFloat(block.fOutputBuffer, block.ffWorker.PredictOutputSize(len(flt)))
			flt = block.fOutputBuffer[:block.ffWorker.WorkBuffer(flt, block.fOutputBuffer)]
			if block.fft != nil {
				block.fft.AppendFloat(flt)
			}
		default:
			return nil, nil, fmt.Errorf("%s: no worker", block.Name)
		}

		if block.timeDomain != nil {
			block.timeDomain.AppendFloat(flt)
		}
		if metrics != nil {
			metrics[block.Name+"_duration"] = time.Since(start).Microseconds()
		}
	}
	return cmplx, flt, nil
}

func (p *Processor) ProcessComplexToFloat(input *types.SegmentComplex64, metrics map[string]interface{}) (*types.SegmentFloat32, error) {
	if err := p.Initialize(); err != nil {
		return nil, err
	}
	if p.blocks[0].inputDataType != DataTypeComplex || p.blocks[len(p.blocks)-1].outputDataType != DataTypeFloat {
		return nil, errors.New("processor is not complex to float")
	}

	_, out, err := p.process(input.Data, nil, metrics)
	if err != nil {
		return nil, err
	}

	return &types.SegmentFloat32{
		SegmentNumber: input.SegmentNumber,
		Data:          out,
	}, nil
}

func (p *Processor) ProcessFloat(input []float32, metrics map[string]interface{}) ([]float32, error) {
	if err := p.Initialize(); err != nil {
		return nil, err
	}
	if p.blocks[0].inputDataType != DataTypeFloat || p.blocks[len(p.blocks)-1].outputDataType != DataTypeFloat {
		return nil, errors.New("processor is not float to float")
	}

	_, out, err := p.process(nil, input, metrics)
	return out, err
}
