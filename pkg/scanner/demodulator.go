package scanner

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/norasector/p25scanner/pkg/dsp/agc/rmsagc"
	"github.com/norasector/p25scanner/pkg/dsp/demodulators/quad"
	"github.com/norasector/p25scanner/pkg/dsp/filters/dcblock"
	"github.com/norasector/p25scanner/pkg/dsp/filters/fir"
	"github.com/norasector/p25scanner/pkg/dsp/mixer"
	"github.com/norasector/p25scanner/pkg/dsp/processor"
	"github.com/norasector/p25scanner/pkg/dsp/squelch"
	"github.com/norasector/p25scanner/pkg/dsp/viz"
	"github.com/norasector/p25scanner/pkg/p25"
	"github.com/norasector/p25scanner/pkg/p25/c4fm"
	"github.com/norasector/p25scanner/pkg/p25/modem/fsk4"
	"github.com/norasector/p25scanner/pkg/p25/slicer"
	"github.com/norasector/p25scanner/pkg/scanner/device"
	"github.com/norasector/p25scanner/pkg/util"
	"github.com/racerxdl/segdsp/dsp"
	"github.com/rs/zerolog"
)

const (
	ifRate     = 24000 // 5 samples per symbol
	symbolRate = c4fm.DefaultSymbolRate
	// symbol deviation of the +1 level
	symbolDeviation = 600.0

	firstIFTarget = 100000
	channelWidth  = 6250 + 2500

	// carrier offset shows up as DC after the discriminator; about 100 ms of averaging
	dcAlpha = 1.0 / 2400

	// mean decision error above which the FSK4 loop is considered diverged
	defaultMaxErrorAverage = 0.2

	// lock detector: a window of per-block decisions with hysteresis
	lockWindow    = 0xf
	lockOnBlocks  = 2
	lockOffBlocks = 0
)

// Demodulator turns I/Q blocks for one channel into sliced C4FM symbols.
type Demodulator struct {
	proc   *processor.Processor
	squel  *squelch.PowerSquelch
	dc     *dcblock.DCBlocker
	fsk    *fsk4.FSK4Demodulator
	slicer *slicer.DibitSlicer
	logger zerolog.Logger

	maxErrorAverage float64
	history         uint32
	locked          bool
	symbols         []p25.Symbol
}

// largest divisor of n not above target, at least 1
func divisorNear(n, target int) int {
	if target < 1 {
		return 1
	}
	for d := target; d > 1; d-- {
		if n%d == 0 {
			return d
		}
	}
	return 1
}

func NewDemodulator(sampleRate, offset int, squelchDBFS float64, vizServer *viz.Server, logger zerolog.Logger) (*Demodulator, error) {
	if sampleRate < ifRate {
		return nil, fmt.Errorf("sample rate %d below %d", sampleRate, ifRate)
	}

	dec1 := divisorNear(sampleRate, sampleRate/firstIFTarget)
	if1 := sampleRate / dec1
	dec2 := divisorNear(if1, if1/(ifRate+1000))
	if2 := if1 / dec2
	g := util.GCD(ifRate, if2)

	bfo := -util.NormalizedFrequency(offset, float64(if1)) * float64(if1)

	logger.Info().
		Int("sample_rate", sampleRate).
		Int("decimation_1", dec1).
		Int("decimation_2", dec2).
		Int("intermediate_freq_1", if1).
		Int("intermediate_freq_2", if2).
		Int("intermediate_rate", ifRate).
		Str("shift_freq", p25.MHzToString(offset)).
		Int("bfo_freq", int(bfo)).
		Msg("initializing demodulator")

	d := &Demodulator{
		proc:            processor.NewProcessor("channel", "Radio Input", vizServer),
		squel:           squelch.NewPowerSquelch(0.001, squelchDBFS),
		dc:              dcblock.NewDCBlocker(dcAlpha),
		fsk:             fsk4.NewFSK4Demodulator(ifRate, symbolRate),
		slicer:          slicer.NewDibitSlicer(false),
		logger:          logger,
		maxErrorAverage: defaultMaxErrorAverage,
	}

	bpfCoeffs := fir.MakeComplexBandPass(1.0,
		float64(sampleRate),
		float64(offset)-float64(if1)/2.0,
		float64(offset)+float64(if1)/2.0,
		float64(if1)/2,
		fir.Hamming,
	)
	d.proc.AddBlock(processor.NewDSPWorkerCC(
		"bandpass_decimator",
		"Bandpass Decimator",
		sampleRate,
		if1,
		dsp.MakeDecimationCTFirFilter(dec1, bpfCoeffs),
	))

	d.proc.AddBlock(processor.NewDSPWorkerCC(
		"bfo_mixer",
		"BFO Mixer",
		if1,
		if1,
		mixer.NewWaveformMixer(if1, int(bfo)),
	))

	fa := float64(channelWidth)
	fb := float64(if2) / 2
	d.proc.AddBlock(processor.NewDSPWorkerCC(
		"lowpass_decimator",
		"Lowpass Decimator",
		if1,
		if2,
		dsp.MakeDecimationFirFilter(dec2, fir.MakeLowPass(1.0, float64(if1), (fb+fa)/2, fb-fa, fir.Hamming)),
	))

	if if2 != ifRate {
		d.proc.AddBlock(processor.NewDSPWorkerCC(
			"resampler",
			"Rational Resampler",
			if2,
			ifRate,
			dsp.MakeRationalResampler(ifRate/g, if2/g),
		))
	}

	fa = channelWidth
	fb = fa + 625
	d.proc.AddBlock(processor.NewDSPWorkerCC(
		"cutoff",
		"Cutoff Filter",
		ifRate,
		ifRate,
		dsp.MakeFirFilter(fir.MakeLowPass(1.0, ifRate, (fb+fa)/2, fb-fa, fir.Hann)),
	))

	d.proc.AddBlock(processor.NewDSPWorkerCC(
		"squelch",
		"Channel Power",
		ifRate,
		ifRate,
		d.squel,
	))

	d.proc.AddBlock(processor.NewDSPWorkerCF(
		"quad_demod",
		"FM Demodulation",
		ifRate,
		ifRate,
		quad.MakeQuadDemod(quad.GainForDeviation(ifRate, symbolDeviation)),
		processor.WithPlotOptions(viz.WithYRange(-8, 8)),
	))

	d.proc.AddBlock(processor.NewDSPWorkerFF(
		"dc_block",
		"Carrier Offset Removal",
		ifRate,
		ifRate,
		d.dc,
	))

	d.proc.AddBlock(processor.NewDSPWorkerFF(
		"baseband_amp",
		"Baseband Amp (RMS AGC)",
		ifRate,
		ifRate,
		rmsagc.NewRMSAGC(0.01, math.Sqrt(5)),
	))

	rx := c4fm.NewTapGenerator(ifRate, symbolRate, c4fm.DefaultSpan, c4fm.DefaultGain)
	d.proc.AddBlock(processor.NewDSPWorkerFF(
		"symbol_filter",
		"Symbol Filter (C4FM RX)",
		ifRate,
		ifRate,
		dsp.MakeFloatFirFilter(rx.GenerateRX()),
	))

	d.proc.AddBlock(processor.NewDSPWorkerFF(
		"fsk_demodulator",
		"FSK Demodulator (FSK4)",
		ifRate,
		symbolRate,
		d.fsk,
		processor.WithVizLength(240),
		processor.WithPlotType(viz.PlotTypeScatter),
		processor.WithPlotOptions(viz.WithYLabel("Symbol")),
	))

	if err := d.proc.Initialize(); err != nil {
		return nil, err
	}
	return d, nil
}

// Demodulate returns the symbols of one block, or a LossOfSignal block when the channel
// is below squelch or the symbol loop has diverged.
func (d *Demodulator) Demodulate(b *device.SampleBlock, metrics map[string]interface{}) (p25.SymbolBlock, error) {
	out := p25.SymbolBlock{
		Frequency: b.Frequency,
		Timestamp: b.Timestamp,
		Retuned:   b.Retuned,
	}

	soft, err := d.proc.ProcessComplexToFloat(b.Samples, metrics)
	if err != nil {
		return out, err
	}

	good := d.squel.Open() && d.fsk.ErrorAverage() < d.maxErrorAverage
	d.locked = d.updateLock(good)
	if metrics != nil {
		metrics["power_dbfs"] = d.squel.DBFS()
		metrics["error_average"] = d.fsk.ErrorAverage()
		metrics["frequency_error_hz"] = d.FrequencyError()
		metrics["residual_offset"] = d.fsk.FrequencyOffset()
		metrics["locked"] = d.locked
	}
	if !d.locked {
		out.LossOfSignal = true
		return out, nil
	}

	if cap(d.symbols) < len(soft.Data) {
		d.symbols = make([]p25.Symbol, len(soft.Data)*2)
	}
	n := d.slicer.WorkBuffer(soft.Data, d.symbols[:len(soft.Data)])
	out.Symbols = make([]p25.Symbol, n)
	copy(out.Symbols, d.symbols[:n])
	return out, nil
}

func (d *Demodulator) updateLock(good bool) bool {
	d.history <<= 1
	if good {
		d.history |= 1
	}
	score := bits.OnesCount32(d.history & lockWindow)
	if d.locked {
		return score > lockOffBlocks
	}
	return score >= lockOnBlocks
}

func (d *Demodulator) Locked() bool {
	return d.locked
}

func (d *Demodulator) PowerDBFS() float64 {
	return d.squel.DBFS()
}

func (d *Demodulator) ErrorAverage() float64 {
	return d.fsk.ErrorAverage()
}

// FrequencyError is the carrier offset in Hz measured from the discriminator output.
func (d *Demodulator) FrequencyError() float64 {
	return d.dc.Average() * symbolDeviation
}

// Reset clears filter and loop state after a retune.
func (d *Demodulator) Reset() {
	d.proc.Reset()
	d.history = 0
	d.locked = false
}
