package p25

// Bit buffers in this package hold one bit per byte, most significant bit first,
// the same convention the binary slicer uses.

func DibitsToBits(dibits []Dibit) []byte {
	ret := make([]byte, len(dibits)*2)
	for i, d := range dibits {
		ret[2*i] = byte(d>>1) & 1
		ret[2*i+1] = byte(d) & 1
	}
	return ret
}

func BitsToDibits(bits []byte) []Dibit {
	ret := make([]Dibit, len(bits)/2)
	for i := range ret {
		ret[i] = Dibit((bits[2*i]&1)<<1 | bits[2*i+1]&1)
	}
	return ret
}

// BitsToUint64 packs up to 64 bits, MSB first.
func BitsToUint64(bits []byte) uint64 {
	var v uint64
	for _, b := range bits {
		v = v<<1 | uint64(b&1)
	}
	return v
}

// Uint64ToBits unpacks the low n bits of v, MSB first.
func Uint64ToBits(v uint64, n int) []byte {
	ret := make([]byte, n)
	for i := 0; i < n; i++ {
		ret[i] = byte(v>>uint(n-1-i)) & 1
	}
	return ret
}

func putBits(dst []byte, v uint64, n int) {
	for i := 0; i < n; i++ {
		dst[i] = byte(v>>uint(n-1-i)) & 1
	}
}

// BitsToBytes packs a bit buffer into bytes, MSB first. A trailing partial byte is left aligned.
func BitsToBytes(bits []byte) []byte {
	ret := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		ret[i/8] |= (b & 1) << uint(7-i%8)
	}
	return ret
}

func BytesToBits(data []byte) []byte {
	ret := make([]byte, len(data)*8)
	for i := range ret {
		ret[i] = (data[i/8] >> uint(7-i%8)) & 1
	}
	return ret
}
