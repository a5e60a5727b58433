package viz

import (
	"image/color"
	"testing"
)

func TestPlotOptions(t *testing.T) {
	p := plotWithDefaults()
	if p.Title.TextStyle.Color != color.White || p.Y.Tick.Label.Color != color.White {
		t.Fatalf("plot text is not white on black")
	}

	WithYRange(-8, 8)(p)
	WithYLabel("Symbol")(p)
	if p.Y.Min != -8 || p.Y.Max != 8 {
		t.Errorf("y range = [%v, %v], want [-8, 8]", p.Y.Min, p.Y.Max)
	}
	if p.Y.Label.Text != "Symbol" {
		t.Errorf("y label = %q, want Symbol", p.Y.Label.Text)
	}
}
