package imbe

import (
	"math"
)

const (
	SampleRate   = 8000
	FrameSamples = 160

	maxHarmonics = 56
	minHarmonics = 9
	// frames with more corrected bits than this are muted
	maxFrameErrors = 12
)

// Params are the model parameters recovered from one frame.
type Params struct {
	Silence   bool
	W0        float64
	Harmonics int
	Amplitude float64
	Voiced    []bool
	Magnitude []float64
}

// ExtractParams maps the parameter vectors onto a harmonic model. This is a reduced
// rendition of the vocoder quantiser: pitch and gain are exact, the spectral envelope is coarse.
func ExtractParams(u Vectors) Params {
	b0 := int(u[0] >> 4)
	if b0 >= 208 {
		return Params{Silence: true}
	}
	w0 := 4 * math.Pi / (float64(b0) + 39.5)
	l := int(0.9254 * math.Floor(math.Pi/w0+0.25))
	if l < minHarmonics {
		l = minHarmonics
	}
	if l > maxHarmonics {
		l = maxHarmonics
	}

	gainIndex := int(u[0]&0xf)<<2 | int(u[1]>>10)
	p := Params{
		W0:        w0,
		Harmonics: l,
		Amplitude: 0.004 * math.Pow(10, float64(gainIndex)/28),
		Voiced:    make([]bool, l),
		Magnitude: make([]float64, l),
	}

	bands := (l + 2) / 3
	if bands > 10 {
		bands = 10
	}
	for i := 0; i < l; i++ {
		band := i / 3
		if band >= bands {
			band = bands - 1
		}
		p.Voiced[i] = (u[1]>>uint(9-band))&1 == 1
	}

	// 3 bit envelope steps drawn from u2..u6
	stream := uint64(u[2])<<43 | uint64(u[3])<<31 | uint64(u[4])<<20 | uint64(u[5])<<9 | uint64(u[6]>>2)
	for i := 0; i < l; i++ {
		step := (stream >> uint(3*(i%18))) & 0x7
		p.Magnitude[i] = 1 + (float64(step)-3.5)/8
	}
	return p
}

// Decoder synthesizes audio frame by frame, carrying harmonic phase across frames.
type Decoder struct {
	phase [maxHarmonics + 1]float64
	noise uint32
}

func NewDecoder() *Decoder {
	return &Decoder{noise: 0x1234567}
}

func (d *Decoder) rand() float64 {
	d.noise = d.noise*1664525 + 1013904223
	return float64(d.noise>>8)/float64(1<<24)*2 - 1
}

// Decode returns FrameSamples samples for a 144 bit codeword along with the corrected bit count.
func (d *Decoder) Decode(cw []byte) ([]float32, int) {
	u, errs := Unpack(cw)
	p := ExtractParams(u)
	if errs > maxFrameErrors {
		p = Params{Silence: true}
	}
	return d.Synthesize(p), errs
}

func (d *Decoder) Synthesize(p Params) []float32 {
	out := make([]float32, FrameSamples)
	if p.Silence {
		return out
	}

	scale := p.Amplitude / math.Sqrt(float64(p.Harmonics))
	for l := 1; l <= p.Harmonics; l++ {
		mag := scale * p.Magnitude[l-1]
		step := float64(l) * p.W0
		if !p.Voiced[l-1] {
			for n := range out {
				out[n] += float32(mag * 0.5 * d.rand())
			}
			continue
		}
		ph := d.phase[l]
		for n := range out {
			out[n] += float32(mag * math.Cos(ph))
			ph += step
		}
		d.phase[l] = math.Mod(ph, 2*math.Pi)
	}

	for n, v := range out {
		if v > 1 {
			out[n] = 1
		} else if v < -1 {
			out[n] = -1
		}
	}
	return out
}
