package processor

import (
	"math"
	"math/cmplx"
	"testing"
	"time"

	"github.com/norasector/p25scanner/pkg/dsp/agc/rmsagc"
	"github.com/norasector/p25scanner/pkg/dsp/demodulators/quad"
	"github.com/norasector/p25scanner/pkg/dsp/mixer"
	"github.com/norasector/p25scanner/pkg/dsp/viz"
	"github.com/norasector/turbine-common/types"
)

func TestProcessorInitialize(t *testing.T) {
	tests := []struct {
		name    string
		blocks  []*DSPWorker
		wantErr bool
	}{
		{
			"valid",
			[]*DSPWorker{
				NewDSPWorkerCC("mixer", "Mixer", 24000, 24000, mixer.NewWaveformMixer(24000, 0)),
				NewDSPWorkerCF("quad", "Quad", 24000, 24000, quad.MakeQuadDemod(1)),
			},
			false,
		},
		{
			"single block",
			[]*DSPWorker{
				NewDSPWorkerCC("mixer", "Mixer", 24000, 24000, mixer.NewWaveformMixer(24000, 0)),
			},
			false,
		},
		{
			"no blocks",
			nil,
			true,
		},
		{
			"rate mismatch",
			[]*DSPWorker{
				NewDSPWorkerCC("mixer", "Mixer", 48000, 48000, mixer.NewWaveformMixer(48000, 0)),
				NewDSPWorkerCF("quad", "Quad", 24000, 24000, quad.MakeQuadDemod(1)),
			},
			true,
		},
		{
			"type mismatch",
			[]*DSPWorker{
				NewDSPWorkerCF("quad", "Quad", 24000, 24000, quad.MakeQuadDemod(1)),
				NewDSPWorkerCC("mixer", "Mixer", 24000, 24000, mixer.NewWaveformMixer(24000, 0)),
			},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProcessor("test", "Input", nil)
			for _, b := range tt.blocks {
				p.AddBlock(b)
			}
			if err := p.Initialize(); (err != nil) != tt.wantErr {
				t.Errorf("Initialize() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProcessComplexToFloat(t *testing.T) {
	const rate = 24000
	p := NewProcessor("test", "Input", nil)
	// shift a 2400 Hz tone down by 1800 Hz, leaving 600 Hz of deviation
	p.AddBlock(NewDSPWorkerCC("bfo", "BFO", rate, rate, mixer.NewWaveformMixer(rate, -1800)))
	p.AddBlock(NewDSPWorkerCF("quad", "Quad", rate, rate, quad.MakeQuadDemod(quad.GainForDeviation(rate, 600))))
	p.AddBlock(NewDSPWorkerFF("agc", "AGC", rate, rate, rmsagc.NewRMSAGC(0.01, 2)))

	in := make([]complex64, 4800)
	for i := range in {
		in[i] = complex64(cmplx.Exp(complex(0, 2*math.Pi*2400*float64(i)/rate)))
	}

	metrics := map[string]interface{}{}
	out, err := p.ProcessComplexToFloat(&types.SegmentComplex64{Data: in}, metrics)
	if err != nil {
		t.Fatalf("ProcessComplexToFloat() error = %v", err)
	}
	if len(out.Data) != len(in) {
		t.Fatalf("output len = %d, want %d", len(out.Data), len(in))
	}
	if last := out.Data[len(out.Data)-1]; math.Abs(float64(last)-2) > 0.01 {
		t.Errorf("settled output = %v, want 2", last)
	}
	for _, name := range []string{"bfo_duration", "quad_duration", "agc_duration"} {
		if _, ok := metrics[name]; !ok {
			t.Errorf("metrics missing %s", name)
		}
	}
	if p.OutputRate() != rate {
		t.Errorf("OutputRate() = %d", p.OutputRate())
	}

	if _, err := p.ProcessFloat([]float32{1}, nil); err == nil {
		t.Error("ProcessFloat() on a complex chain should fail")
	}
}

func TestAttachPlots(t *testing.T) {
	srv := viz.NewServer(0, time.Second)
	p := NewProcessor("test", "Input", srv)
	p.AddBlock(NewDSPWorkerCF("quad", "Quad", 8000, 8000, quad.MakeQuadDemod(1)))
	p.AddBlock(NewDSPWorkerFF("agc", "AGC", 8000, 8000, rmsagc.NewRMSAGC(0.01, 1), WithPlotType(viz.PlotTypeSpectrum), WithVizLength(256)))
	p.AddBlock(NewDSPWorkerFF("agc2", "AGC", 8000, 8000, rmsagc.NewRMSAGC(0.01, 1), WithPlotType(viz.PlotTypeLines)))
	if err := p.Initialize(); err != nil {
		t.Fatal(err)
	}

	if p.inputFFT == nil {
		t.Error("complex input should get an input spectrum")
	}
	if p.blocks[1].fft == nil || p.blocks[1].timeDomain != nil {
		t.Error("spectrum block should plot an FFT")
	}
	if p.blocks[2].timeDomain == nil || p.blocks[2].fft != nil {
		t.Error("lines block should plot the time domain")
	}

	if _, err := p.ProcessComplexToFloat(&types.SegmentComplex64{Data: make([]complex64, 512)}, nil); err != nil {
		t.Fatal(err)
	}
}
