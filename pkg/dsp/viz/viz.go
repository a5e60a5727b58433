package viz

import (
	"image/color"

	"gonum.org/v1/plot"
)

type PlotOptions func(p *plot.Plot)

// WithYRange pins the Y axis, e.g. to the symbol levels of a scatter plot.
func WithYRange(min, max float64) PlotOptions {
	return func(p *plot.Plot) {
		p.Y.Min = min
		p.Y.Max = max
	}
}

func WithYLabel(label string) PlotOptions {
	return func(p *plot.Plot) {
		p.Y.Label.Text = label
	}
}

// plotWithDefaults returns a plot drawn white on black.
func plotWithDefaults() *plot.Plot {
	p := plot.New()
	p.BackgroundColor = color.Black
	for _, c := range []*color.Color{
		&p.Title.TextStyle.Color,
		&p.Legend.TextStyle.Color,
		&p.X.Color,
		&p.X.Label.TextStyle.Color,
		&p.X.Tick.Color,
		&p.X.Tick.Label.Color,
		&p.Y.Color,
		&p.Y.Label.TextStyle.Color,
		&p.Y.Tick.Color,
		&p.Y.Tick.Label.Color,
	} {
		*c = color.White
	}
	return p
}
