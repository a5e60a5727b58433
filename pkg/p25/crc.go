package p25

const crc16Poly uint16 = 0x1021

// CRC16 computes the CCITT CRC used by trunking signalling blocks over a bit buffer
// (poly 0x1021, init 0, inverted output).
func CRC16(bits []byte) uint16 {
	var crc uint16
	for _, b := range bits {
		msb := (crc >> 15) ^ uint16(b&1)
		crc <<= 1
		if msb != 0 {
			crc ^= crc16Poly
		}
	}
	return crc ^ 0xffff
}

// CheckCRC16 verifies a buffer whose last 16 bits carry the CRC of the preceding bits.
func CheckCRC16(bits []byte) error {
	if len(bits) < 16 {
		return ErrCRC
	}
	n := len(bits) - 16
	if CRC16(bits[:n]) != uint16(BitsToUint64(bits[n:])) {
		return ErrCRC
	}
	return nil
}

// AppendCRC16 returns data followed by its 16 CRC bits.
func AppendCRC16(data []byte) []byte {
	ret := make([]byte, len(data)+16)
	copy(ret, data)
	putBits(ret[len(data):], uint64(CRC16(data)), 16)
	return ret
}
