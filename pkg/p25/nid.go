package p25

import (
	"math/bits"
	"sync"
)

const (
	// BCH(63,16,23) generator polynomial, octal 6331141367235453.
	nidGenerator uint64 = 0xcd930bdd3b2b
	nidCheckBits        = 47

	NIDBits      = 64
	NIDDibits    = NIDBits / 2
	NIDMaxErrors = 11
)

var (
	nidTableOnce sync.Once
	nidCodewords []uint64
)

func nidRemainder(v uint64) uint64 {
	for i := 62; i >= nidCheckBits; i-- {
		if v&(1<<uint(i)) != 0 {
			v ^= nidGenerator << uint(i-nidCheckBits)
		}
	}
	return v
}

func nidEncodeWord(data uint16) uint64 {
	v := uint64(data) << nidCheckBits
	return v | nidRemainder(v)
}

// The code is linear so every codeword is the XOR of the basis codewords for its set data bits.
func buildNIDTable() {
	var basis [16]uint64
	for i := range basis {
		basis[i] = nidEncodeWord(1 << uint(i))
	}
	nidCodewords = make([]uint64, 1<<16)
	for d := 1; d < len(nidCodewords); d++ {
		nidCodewords[d] = nidCodewords[d&(d-1)] ^ basis[bits.TrailingZeros(uint(d))]
	}
}

func nidFromData(d uint16) NID {
	return NID{NAC: d >> 4, DUID: DUID(d & 0xf)}
}

// EncodeNID returns the 64 bit on-air NID: the 63 bit BCH codeword followed by an even parity bit.
func EncodeNID(n NID) uint64 {
	cw := nidEncodeWord((n.NAC&0xfff)<<4 | uint16(n.DUID&0xf))
	return cw<<1 | uint64(bits.OnesCount64(cw)&1)
}

// DecodeNID performs maximum likelihood decoding of a received NID and returns
// the number of bit errors corrected. More than NIDMaxErrors errors yields ErrUncorrectable.
// The trailing parity bit is not used for correction.
func DecodeNID(word uint64) (NID, int, error) {
	cw := word >> 1
	if nidRemainder(cw) == 0 {
		return nidFromData(uint16(cw >> nidCheckBits)), 0, nil
	}

	nidTableOnce.Do(buildNIDTable)

	best, bestDist := 0, 64
	for d, c := range nidCodewords {
		if dist := bits.OnesCount64(cw ^ c); dist < bestDist {
			best, bestDist = d, dist
			if dist == 1 {
				break
			}
		}
	}

	if bestDist > NIDMaxErrors {
		return NID{}, bestDist, ErrUncorrectable
	}
	return nidFromData(uint16(best)), bestDist, nil
}

func NIDToDibits(word uint64) []Dibit {
	return BitsToDibits(Uint64ToBits(word, NIDBits))
}

func NIDFromDibits(d []Dibit) uint64 {
	return BitsToUint64(DibitsToBits(d))
}
