package imbe

import "github.com/norasector/p25scanner/pkg/p25"

// Codeword layout: c0..c3 are Golay(23,12), c4..c6 Hamming(15,11), c7 is 7 unprotected bits.
var (
	vectorOffsets = [8]int{0, 23, 46, 69, 92, 107, 122, 137}
	vectorLengths = [8]int{23, 23, 23, 23, 15, 15, 15, 7}
)

const pnBits = 114

// Vectors holds the prioritized parameter vectors u0..u7.
type Vectors [8]uint16

// pnSequence returns the modulation mask for c1..c6 seeded from u0.
func pnSequence(u0 uint16) [pnBits]byte {
	var ret [pnBits]byte
	p := uint32(u0) * 16
	for n := 0; n < pnBits; n++ {
		p = (173*p + 13849) & 0xffff
		ret[n] = byte(p >> 15)
	}
	return ret
}

func getVector(cw []byte, i int) uint32 {
	off, n := vectorOffsets[i], vectorLengths[i]
	return uint32(p25.BitsToUint64(cw[off : off+n]))
}

// Unpack applies error correction and de-scrambling to a 144 bit codeword.
// The returned count is the number of bit errors corrected.
func Unpack(cw []byte) (Vectors, int) {
	var u Vectors
	bits := make([]byte, len(cw))
	copy(bits, cw)

	u0, errs := p25.GolayDecode23(getVector(bits, 0))
	u[0] = u0

	pn := pnSequence(u0)
	for i, b := range pn {
		bits[vectorOffsets[1]+i] ^= b
	}

	for i := 1; i <= 3; i++ {
		d, n := p25.GolayDecode23(getVector(bits, i))
		u[i] = d
		errs += n
	}
	for i := 4; i <= 6; i++ {
		d, n, _ := p25.HammingDecode15(uint16(getVector(bits, i)))
		u[i] = d
		errs += n
	}
	u[7] = uint16(getVector(bits, 7))
	return u, errs
}

// Pack is the inverse of Unpack.
func Pack(u Vectors) [p25.IMBECodewordBits]byte {
	var cw [p25.IMBECodewordBits]byte
	put := func(i int, v uint64) {
		bits := p25.Uint64ToBits(v, vectorLengths[i])
		copy(cw[vectorOffsets[i]:], bits)
	}
	for i := 0; i <= 3; i++ {
		put(i, uint64(p25.GolayEncode23(u[i])))
	}
	for i := 4; i <= 6; i++ {
		put(i, uint64(p25.HammingEncode15(u[i])))
	}
	put(7, uint64(u[7]&0x7f))

	pn := pnSequence(u[0] & 0xfff)
	for i, b := range pn {
		cw[vectorOffsets[1]+i] ^= b
	}
	return cw
}
