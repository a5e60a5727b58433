package viz

import (
	"bytes"
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"github.com/norasector/p25scanner/pkg/dsp/filters/fir"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	powerAverage   = 0.10
	balanceAverage = 0.05
)

// FFTPlotter keeps the most recent samples of a stage and renders their averaged spectrum.
type FFTPlotter struct {
	mu           sync.Mutex
	bufFloat     []float32
	bufComplex   []complex64
	sampleRate   int
	len          int
	isComplex    bool
	averagePower []float64
	avgSumPower  float64
	name         string
	showBalance  bool
	plotOptions  []PlotOptions
}

func NewFFTPlotterFloat(name string, len, sampleRate int) *FFTPlotter {
	return &FFTPlotter{
		bufFloat:     make([]float32, len),
		averagePower: make([]float64, len),
		len:          len,
		sampleRate:   sampleRate,
		name:         name,
	}
}

func NewFFTPlotterComplex(name string, len, sampleRate int) *FFTPlotter {
	return &FFTPlotter{
		bufComplex:   make([]complex64, len),
		averagePower: make([]float64, len),
		len:          len,
		sampleRate:   sampleRate,
		isComplex:    true,
		name:         name,
	}
}

func (p *FFTPlotter) Name() string {
	return p.name
}

// ShowBalance adds the positive/negative frequency power balance to the title,
// handy for checking the tuning offset.
func (p *FFTPlotter) ShowBalance(show bool) {
	p.showBalance = show
}

func (p *FFTPlotter) AppendFloat(s []float32) {
	if p.isComplex || len(s) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(s) >= p.len {
		copy(p.bufFloat, s[len(s)-p.len:])
		return
	}
	copy(p.bufFloat, p.bufFloat[len(s):])
	copy(p.bufFloat[p.len-len(s):], s)
}

func (p *FFTPlotter) AppendComplex(s []complex64) {
	if !p.isComplex || len(s) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(s) >= p.len {
		copy(p.bufComplex, s[len(s)-p.len:])
		return
	}
	copy(p.bufComplex, p.bufComplex[len(s):])
	copy(p.bufComplex[p.len-len(s):], s)
}

func (p *FFTPlotter) AddPlotOption(opt PlotOptions) {
	p.plotOptions = append(p.plotOptions, opt)
}

// spectrum returns the windowed coefficients along with index shift and bin frequency functions.
func (p *FFTPlotter) spectrum() ([]complex128, func(int) int, func(int) float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	win := fir.BlackmanWindow(p.len)
	if p.isComplex {
		f := fourier.NewCmplxFFT(p.len)
		data := make([]complex128, p.len)
		norm := 0.42 * float64(p.len)
		for i, v := range p.bufComplex {
			data[i] = complex(float64(real(v))*float64(win[i])/norm, float64(imag(v))*float64(win[i])/norm)
		}
		return f.Coefficients(nil, data), f.ShiftIdx, f.Freq
	}

	f := fourier.NewFFT(p.len)
	data := make([]float64, p.len)
	for i, v := range p.bufFloat {
		data[i] = float64(v) * float64(win[i])
	}
	return f.Coefficients(nil, data), func(i int) int { return i }, f.Freq
}

func (p *FFTPlotter) GetImage() *ImageContainer {
	plt := plotWithDefaults()
	plt.Title.Text = p.name
	plt.Y.Label.Text = "Power (dB)"
	plt.X.Label.Text = "Frequency"
	plt.Y.Max = 0
	plt.Y.Min = -100

	for _, opt := range p.plotOptions {
		opt(plt)
	}
	plt.Add(plotter.NewGrid())

	coeffs, shift, freqOf := p.spectrum()

	points := make(plotter.XYs, 0, len(coeffs))
	var sumPower float64
	for i := range coeffs {
		idx := shift(i)
		freq := freqOf(idx) * float64(p.sampleRate)

		p.averagePower[i] = (1.0-powerAverage)*p.averagePower[i] + powerAverage*cmplx.Abs(coeffs[idx])
		if p.averagePower[i] == 0 {
			break
		}
		if p.averagePower[i] > 1e-5 {
			if freq < 0 {
				sumPower -= p.averagePower[i]
			} else if freq > 0 {
				sumPower += p.averagePower[i]
			}
			p.avgSumPower = (1.0-balanceAverage)*p.avgSumPower + balanceAverage*sumPower
		}
		points = append(points, plotter.XY{X: freq, Y: 20 * math.Log10(p.averagePower[i])})
	}
	if err := plotutil.AddLines(plt, "frequency", points); err != nil {
		return nil
	}

	if p.showBalance {
		plt.Title.Text += fmt.Sprintf(" Balance: %3.0f", math.Abs(p.avgSumPower*1000))
	}

	var imageData bytes.Buffer
	w, err := plt.WriterTo(8*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return nil
	}
	if _, err := w.WriteTo(&imageData); err != nil {
		return nil
	}
	return &ImageContainer{name: p.name, data: imageData.Bytes()}
}
