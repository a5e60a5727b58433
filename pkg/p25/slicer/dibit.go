package slicer

import "github.com/norasector/p25scanner/pkg/p25"

// DibitSlicer maps 4-level symbol decisions to dibits.
//
//	+3 -> 01, +1 -> 00, -1 -> 10, -3 -> 11
//
// Each symbol carries a confidence in [0, 1]: 1 on a nominal level, 0 halfway
// between two levels.
type DibitSlicer struct {
	invert bool
}

func NewDibitSlicer(invert bool) *DibitSlicer {
	return &DibitSlicer{
		invert: invert,
	}
}

func slice(f float32, invert bool) p25.Symbol {
	if invert {
		f = -f
	}

	var level float32
	var d p25.Dibit
	switch {
	case f >= 2:
		level, d = 3, 1
	case f >= 0:
		level, d = 1, 0
	case f >= -2:
		level, d = -1, 2
	default:
		level, d = -3, 3
	}

	dist := f - level
	if dist < 0 {
		dist = -dist
	}
	// outer levels have no neighbour past them
	if (level == 3 && f > level) || (level == -3 && f < level) {
		dist = 0
	}
	conf := 1 - dist
	if conf < 0 {
		conf = 0
	}
	return p25.Symbol{Dibit: d, Confidence: conf}
}

func (s *DibitSlicer) WorkBuffer(input []float32, output []p25.Symbol) int {
	for i := 0; i < len(input); i++ {
		output[i] = slice(input[i], s.invert)
	}
	return len(input)
}

func (s *DibitSlicer) Work(items []float32) []p25.Symbol {
	ret := make([]p25.Symbol, len(items))
	s.WorkBuffer(items, ret)
	return ret
}

func (s *DibitSlicer) PredictOutputSize(inputSize int) int {
	return inputSize
}
