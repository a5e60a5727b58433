package p25

import "fmt"

const (
	IMBECodewordBits = 144
	LDUPayloadBits   = 1568
	lduLSDOffset     = 1392
	lduLCBlockBits   = 40
)

var (
	lduVoiceOffsets = [9]int{0, 144, 328, 512, 696, 880, 1064, 1248, 1424}
	lduLCOffsets    = [6]int{288, 472, 656, 840, 1024, 1208}
)

// LDU is a decoded logical link data unit. LC is set for LDU1 and ES for LDU2
// when their signalling decoded cleanly.
type LDU struct {
	DUID         DUID
	Voice        [9][IMBECodewordBits]byte
	LC           *LinkControl
	ES           *EncryptionSync
	LowSpeedData [2]byte
}

// DecodeLDU splits an LDU payload (status symbols, sync and NID already removed).
// Voice is always returned for a well sized payload; a signalling failure is reported
// through the error with the LDU still populated.
func DecodeLDU(duid DUID, payload []Dibit) (*LDU, int, error) {
	if duid != DUIDLDU1 && duid != DUIDLDU2 {
		return nil, 0, fmt.Errorf("ldu: unexpected duid %s", duid)
	}
	if len(payload)*2 != LDUPayloadBits {
		return nil, 0, fmt.Errorf("ldu: expected %d bits, got %d", LDUPayloadBits, len(payload)*2)
	}
	bits := DibitsToBits(payload)

	ldu := &LDU{DUID: duid}
	for i, off := range lduVoiceOffsets {
		copy(ldu.Voice[i][:], bits[off:off+IMBECodewordBits])
	}
	lsd := bits[lduLSDOffset : lduLSDOffset+32]
	ldu.LowSpeedData[0] = uint8(BitsToUint64(lsd[0:8]))
	ldu.LowSpeedData[1] = uint8(BitsToUint64(lsd[16:24]))

	signalling := make([]byte, 0, len(lduLCOffsets)*lduLCBlockBits)
	for _, off := range lduLCOffsets {
		signalling = append(signalling, bits[off:off+lduLCBlockBits]...)
	}

	if duid == DUIDLDU1 {
		lc, errs, err := DecodeLinkControlHamming(signalling)
		if err != nil {
			return ldu, errs, err
		}
		ldu.LC = &lc
		return ldu, errs, nil
	}

	es, errs, err := DecodeEncryptionSync(signalling)
	if err != nil {
		return ldu, errs, err
	}
	ldu.ES = &es
	return ldu, errs, nil
}

// EncodeLDU builds an LDU payload. lc is used for LDU1 and es for LDU2.
func EncodeLDU(duid DUID, voice [9][IMBECodewordBits]byte, lc LinkControl, es EncryptionSync) []Dibit {
	bits := make([]byte, LDUPayloadBits)
	for i, off := range lduVoiceOffsets {
		copy(bits[off:], voice[i][:])
	}
	var signalling []byte
	if duid == DUIDLDU1 {
		signalling = EncodeLinkControlHamming(lc)
	} else {
		signalling = EncodeEncryptionSync(es)
	}
	for i, off := range lduLCOffsets {
		copy(bits[off:], signalling[i*lduLCBlockBits:(i+1)*lduLCBlockBits])
	}
	return BitsToDibits(bits)
}
