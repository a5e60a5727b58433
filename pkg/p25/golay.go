package p25

import (
	"math/bits"
	"sync"
)

const golayGenerator uint32 = 0xC75

var (
	golayOnce      sync.Once
	golaySyndromes [1 << 11]uint32
)

func golayRemainder(v uint32) uint32 {
	for i := 22; i >= 11; i-- {
		if v&(1<<uint(i)) != 0 {
			v ^= golayGenerator << uint(i-11)
		}
	}
	return v
}

// The (23,12) code is perfect: every syndrome maps to exactly one error pattern of weight 3 or less.
func buildGolayTable() {
	for a := 0; a < 23; a++ {
		for b := a; b < 23; b++ {
			for c := b; c < 23; c++ {
				var e uint32 = 1<<uint(a) | 1<<uint(b) | 1<<uint(c)
				golaySyndromes[golayRemainder(e)] = e
			}
		}
	}
	golaySyndromes[0] = 0
}

// GolayEncode23 returns the (23,12) codeword for 12 data bits.
func GolayEncode23(data uint16) uint32 {
	v := uint32(data&0xfff) << 11
	return v | golayRemainder(v)
}

// GolayDecode23 corrects up to three errors and returns the data bits and the error count.
func GolayDecode23(cw uint32) (uint16, int) {
	golayOnce.Do(buildGolayTable)
	cw &= 0x7fffff
	e := golaySyndromes[golayRemainder(cw)]
	return uint16((cw ^ e) >> 11), bits.OnesCount32(e)
}

// GolayEncode24 appends an even parity bit to the (23,12) codeword.
func GolayEncode24(data uint16) uint32 {
	cw := GolayEncode23(data)
	return cw<<1 | uint32(bits.OnesCount32(cw)&1)
}

// GolayDecode24 decodes the extended code, detecting (but not correcting) four bit errors.
func GolayDecode24(cw uint32) (uint16, int, error) {
	data, errs := GolayDecode23(cw >> 1)
	if errs == 3 {
		corrected := GolayEncode24(data)
		if bits.OnesCount32((corrected^cw)&0xffffff) > 3 {
			return data, 4, ErrUncorrectable
		}
	}
	return data, errs, nil
}

// GolayEncode18 is the shortened (18,6,8) code carried in the header data unit.
func GolayEncode18(data uint8) uint32 {
	return GolayEncode24(uint16(data&0x3f)) & 0x3ffff
}

func GolayDecode18(cw uint32) (uint8, int, error) {
	data, errs, err := GolayDecode24(cw & 0x3ffff)
	if data>>6 != 0 {
		return uint8(data & 0x3f), errs, ErrUncorrectable
	}
	return uint8(data), errs, err
}
