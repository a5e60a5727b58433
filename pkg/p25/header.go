package p25

import "fmt"

const (
	SyncDibits = 24
	// StatusInterval is the spacing of status symbols, counted from the first sync dibit.
	StatusInterval = 36
	MaxTSBKBlocks  = 3

	// FrameSync is the 48 bit Phase 1 frame synchronisation pattern.
	FrameSync uint64 = 0x5575F5FF77FF
)

const (
	hduPayloadDibits   = 329
	tduPayloadDibits   = 14
	lduPayloadDibits   = LDUPayloadBits / 2
	tdulcPayloadDibits = 154
	hduCodedBits       = 648
	tdulcCodedBits     = 288
)

// PayloadDibits is the number of non-status dibits following the NID for a data unit.
// TSBK and PDU report a single block.
func PayloadDibits(duid DUID) int {
	switch duid {
	case DUIDHeader:
		return hduPayloadDibits
	case DUIDTerminator:
		return tduPayloadDibits
	case DUIDLDU1, DUIDLDU2:
		return lduPayloadDibits
	case DUIDTSBK, DUIDPDU:
		return TrellisBlockDibits
	case DUIDTerminatorLC:
		return tdulcPayloadDibits
	}
	return 0
}

// SyncDibitPattern returns the frame sync as dibits.
func SyncDibitPattern() []Dibit {
	return BitsToDibits(Uint64ToBits(FrameSync, 2*SyncDibits))
}

// Header is the decoded header data unit.
type Header struct {
	MI          [9]byte
	MFID        uint8
	AlgorithmID uint8
	KeyID       uint16
	Talkgroup   uint16
}

func (h Header) Encrypted() bool {
	return h.AlgorithmID != AlgorithmClear && h.AlgorithmID != 0
}

func DecodeHeader(payload []Dibit) (Header, int, error) {
	if len(payload) < hduCodedBits/2 {
		return Header{}, 0, fmt.Errorf("header: short payload %d", len(payload))
	}
	bits := DibitsToBits(payload[:hduCodedBits/2])
	hexbits := make([]uint8, 36)
	errs := 0
	for i := range hexbits {
		d, n, err := GolayDecode18(uint32(BitsToUint64(bits[18*i : 18*i+18])))
		if err != nil {
			return Header{}, errs, fmt.Errorf("header: %w", err)
		}
		hexbits[i] = d
		errs += n
	}
	data, rerrs, err := RS36_20.Decode(hexbits)
	if err != nil {
		return Header{}, errs, fmt.Errorf("header: %w", err)
	}
	b := HexbitsToBits(data)
	var h Header
	copy(h.MI[:], BitsToBytes(b[:72]))
	h.MFID = uint8(BitsToUint64(b[72:80]))
	h.AlgorithmID = uint8(BitsToUint64(b[80:88]))
	h.KeyID = uint16(BitsToUint64(b[88:104]))
	h.Talkgroup = uint16(BitsToUint64(b[104:120]))
	return h, errs + rerrs, nil
}

func EncodeHeader(h Header) []Dibit {
	b := make([]byte, 120)
	copy(b, BytesToBits(h.MI[:]))
	putBits(b[72:], uint64(h.MFID), 8)
	putBits(b[80:], uint64(h.AlgorithmID), 8)
	putBits(b[88:], uint64(h.KeyID), 16)
	putBits(b[104:], uint64(h.Talkgroup), 16)

	hexbits := RS36_20.Encode(BitsToHexbits(b))
	bits := make([]byte, 2*hduPayloadDibits)
	for i, hb := range hexbits {
		putBits(bits[18*i:], uint64(GolayEncode18(hb)), 18)
	}
	return BitsToDibits(bits)
}

// DecodeTerminatorLC decodes the link control carried by a TDULC payload.
func DecodeTerminatorLC(payload []Dibit) (LinkControl, int, error) {
	if len(payload) < tdulcCodedBits/2 {
		return LinkControl{}, 0, fmt.Errorf("terminator: short payload %d", len(payload))
	}
	return DecodeLinkControlGolay(DibitsToBits(payload[:tdulcCodedBits/2]))
}

func EncodeTerminatorLC(lc LinkControl) []Dibit {
	bits := make([]byte, 2*tdulcPayloadDibits)
	copy(bits, EncodeLinkControlGolay(lc))
	return BitsToDibits(bits)
}
