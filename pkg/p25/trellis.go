package p25

// Rate 1/2 trellis coding used for TSBK and PDU header blocks.
// 96 data bits (48 dibits plus a flush dibit) become 49 constellation points,
// each carried as two dibits and interleaved across the 98 dibit block.

const (
	TrellisBlockDibits = 98
	trellisPoints      = 49
	trellisInputs      = 48
)

var trellisNextWords = [4][4]uint8{
	{0x2, 0xC, 0x1, 0xF},
	{0xE, 0x0, 0xD, 0x3},
	{0x9, 0x7, 0xA, 0x4},
	{0x5, 0xB, 0x6, 0x8},
}

// trellisOrder[p] is the constellation point transmitted at block position p.
var trellisOrder = func() [trellisPoints]int {
	var ret [trellisPoints]int
	p := 0
	for r := 0; r < 4; r++ {
		for s := r; s < trellisPoints; s += 4 {
			ret[p] = s
			p++
		}
	}
	return ret
}()

// TrellisEncode encodes 96 bits into an interleaved 98 dibit block.
func TrellisEncode(data []byte) []Dibit {
	in := BitsToDibits(data[:2*trellisInputs])
	var points [trellisPoints]uint8
	var state uint8
	for i := 0; i < trellisPoints; i++ {
		var d uint8
		if i < trellisInputs {
			d = uint8(in[i])
		}
		points[i] = trellisNextWords[state][d]
		state = d
	}

	ret := make([]Dibit, TrellisBlockDibits)
	for p, s := range trellisOrder {
		ret[2*p] = Dibit(points[s] >> 2)
		ret[2*p+1] = Dibit(points[s] & 3)
	}
	return ret
}

// TrellisDecode deinterleaves and Viterbi decodes a 98 dibit block into 96 bits.
// It returns the path metric, i.e. the number of channel bit errors on the chosen path.
func TrellisDecode(block []Dibit) ([]byte, int) {
	var points [trellisPoints]uint8
	for p, s := range trellisOrder {
		points[s] = uint8(block[2*p]&3)<<2 | uint8(block[2*p+1]&3)
	}

	const inf = 1 << 20
	metric := [4]int{0, inf, inf, inf}
	var history [trellisPoints][4]uint8

	for i := 0; i < trellisPoints; i++ {
		next := [4]int{inf, inf, inf, inf}
		for prev := 0; prev < 4; prev++ {
			if metric[prev] >= inf {
				continue
			}
			for in := 0; in < 4; in++ {
				m := metric[prev] + hammingWeight4(trellisNextWords[prev][in]^points[i])
				if m < next[in] {
					next[in] = m
					history[i][in] = uint8(prev)
				}
			}
		}
		metric = next
	}

	// the flush dibit drives the encoder back to state 0
	state := uint8(0)
	errs := metric[0]
	dibits := make([]Dibit, trellisPoints)
	for i := trellisPoints - 1; i >= 0; i-- {
		dibits[i] = Dibit(state)
		state = history[i][state]
	}
	return DibitsToBits(dibits[:trellisInputs]), errs
}

func hammingWeight4(v uint8) int {
	return int(v&1 + (v>>1)&1 + (v>>2)&1 + (v>>3)&1)
}
