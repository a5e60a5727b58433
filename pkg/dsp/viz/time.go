package viz

import (
	"bytes"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

type PlotType int

const (
	PlotTypeDefault PlotType = iota
	PlotTypeScatter
	PlotTypeLines
	// PlotTypeSpectrum shows a real valued stage as an averaged FFT.
	PlotTypeSpectrum
)

// TimeDomainPlotter renders the last size samples of a real valued stage, e.g. the
// symbol decisions leaving the FSK4 demodulator.
type TimeDomainPlotter struct {
	mu          sync.Mutex
	bufFloat    []float32
	size        int
	name        string
	plotFunc    func(*plot.Plot, ...interface{}) error
	plotOptions []PlotOptions
}

func NewTimeDomainPlotter(name string, size int) *TimeDomainPlotter {
	return &TimeDomainPlotter{
		bufFloat: make([]float32, 0, 2*size),
		size:     size,
		name:     name,
		plotFunc: plotutil.AddScatters,
	}
}

func (t *TimeDomainPlotter) Name() string {
	return t.name
}

func (t *TimeDomainPlotter) SetPlotType(tp PlotType) {
	switch tp {
	case PlotTypeLines:
		t.plotFunc = plotutil.AddLines
	default:
		t.plotFunc = plotutil.AddScatters
	}
}

func (t *TimeDomainPlotter) AppendFloat(f []float32) {
	t.mu.Lock()
	t.bufFloat = append(t.bufFloat, f...)
	if len(t.bufFloat) > t.size {
		t.bufFloat = append(t.bufFloat[:0], t.bufFloat[len(t.bufFloat)-t.size:]...)
	}
	t.mu.Unlock()
}

func (t *TimeDomainPlotter) AddPlotOption(opt PlotOptions) {
	t.plotOptions = append(t.plotOptions, opt)
}

func (t *TimeDomainPlotter) GetImage() *ImageContainer {
	t.mu.Lock()
	if len(t.bufFloat) < t.size {
		t.mu.Unlock()
		return nil
	}
	points := make(plotter.XYs, t.size)
	for i := range points {
		points[i] = plotter.XY{X: float64(i), Y: float64(t.bufFloat[i])}
	}
	t.mu.Unlock()

	p := plotWithDefaults()
	p.Title.Text = t.name
	p.Y.Label.Text = "Amplitude"
	p.Y.Min = -4
	p.Y.Max = 4
	p.X.Label.Text = "t"

	for _, opt := range t.plotOptions {
		opt(p)
	}
	p.Add(plotter.NewGrid())

	if err := t.plotFunc(p, "f(t)", points); err != nil {
		return nil
	}

	var imageData bytes.Buffer
	w, err := p.WriterTo(8*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return nil
	}
	if _, err := w.WriteTo(&imageData); err != nil {
		return nil
	}
	return &ImageContainer{name: t.name, data: imageData.Bytes()}
}
