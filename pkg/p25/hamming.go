package p25

// hammingCode is a single error correcting systematic code with 4 check bits.
// rows[i] holds the check bits contributed by data bit i (MSB first).
type hammingCode struct {
	rows []uint16
}

var (
	// Hamming(10,6,3) protecting link control hexbits.
	hamming10 = hammingCode{rows: []uint16{0xE, 0xD, 0xB, 0x7, 0x3, 0x5}}
	// Hamming(15,11,3) protecting the lower priority voice vectors.
	hamming15 = hammingCode{rows: []uint16{0xF, 0xE, 0xD, 0xC, 0xB, 0xA, 0x9, 0x7, 0x6, 0x5, 0x3}}
)

func (h hammingCode) k() int { return len(h.rows) }

func (h hammingCode) checkBits(data uint16) uint16 {
	var p uint16
	k := h.k()
	for i, row := range h.rows {
		if data&(1<<uint(k-1-i)) != 0 {
			p ^= row
		}
	}
	return p
}

func (h hammingCode) encode(data uint16) uint16 {
	data &= 1<<uint(h.k()) - 1
	return data<<4 | h.checkBits(data)
}

func (h hammingCode) decode(cw uint16) (uint16, int, error) {
	k := h.k()
	data := (cw >> 4) & (1<<uint(k) - 1)
	syn := h.checkBits(data) ^ (cw & 0xf)
	if syn == 0 {
		return data, 0, nil
	}
	for i, row := range h.rows {
		if row == syn {
			return data ^ 1<<uint(k-1-i), 1, nil
		}
	}
	switch syn {
	case 1, 2, 4, 8:
		return data, 1, nil
	}
	return data, 2, ErrUncorrectable
}

func HammingEncode10(data uint8) uint16 { return hamming10.encode(uint16(data)) }

func HammingDecode10(cw uint16) (uint8, int, error) {
	d, n, err := hamming10.decode(cw)
	return uint8(d), n, err
}

func HammingEncode15(data uint16) uint16 { return hamming15.encode(data) }

func HammingDecode15(cw uint16) (uint16, int, error) {
	return hamming15.decode(cw)
}
