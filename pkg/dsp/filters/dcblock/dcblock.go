package dcblock

// DCBlocker subtracts a running mean from a real signal. Until it has seen 1/alpha
// samples the mean is the plain average of everything so far, after that it decays
// with alpha.
type DCBlocker struct {
	alpha   float64
	average float64
	seen    int
}

func NewDCBlocker(alpha float64) *DCBlocker {
	if alpha <= 0 || alpha > 1 {
		panic("alpha should be in (0, 1]")
	}
	return &DCBlocker{alpha: alpha}
}

func (d *DCBlocker) WorkBuffer(input, output []float32) int {
	for i, v := range input {
		a := d.alpha
		if d.seen < int(1/d.alpha) {
			d.seen++
			a = 1 / float64(d.seen)
		}
		d.average += a * (float64(v) - d.average)
		output[i] = v - float32(d.average)
	}
	return len(input)
}

func (d *DCBlocker) Work(input []float32) []float32 {
	out := make([]float32, len(input))
	d.WorkBuffer(input, out)
	return out
}

func (d *DCBlocker) PredictOutputSize(inputSize int) int {
	return inputSize
}

// Average is the DC currently being removed.
func (d *DCBlocker) Average() float64 {
	return d.average
}

func (d *DCBlocker) Reset() {
	d.average = 0
	d.seen = 0
}
