package p25

import "fmt"

const (
	LCOGroupVoice      uint8 = 0x00
	LCOUnitVoice       uint8 = 0x03
	LCOCallTermination uint8 = 0x0F

	// AlgorithmClear is the ALGID of unencrypted traffic.
	AlgorithmClear uint8 = 0x80
)

const (
	linkControlBits    = 72
	encryptionSyncBits = 96
)

// LinkControl is the 72 bit link control word carried in LDU1 and TDULC.
type LinkControl struct {
	Protected bool
	LCO       uint8
	MFID      uint8
	Options   ServiceOptions
	Talkgroup uint16
	Target    uint32
	Source    uint32
}

func (lc LinkControl) String() string {
	return fmt.Sprintf("LC{lco=0x%02X tg=%d src=%d}", lc.LCO, lc.Talkgroup, lc.Source)
}

func ParseLinkControl(bits []byte) LinkControl {
	lc := LinkControl{
		Protected: bits[0] == 1,
		LCO:       uint8(BitsToUint64(bits[2:8])),
		MFID:      uint8(BitsToUint64(bits[8:16])),
		Options:   ServiceOptions(BitsToUint64(bits[16:24])),
		Source:    uint32(BitsToUint64(bits[48:72])),
	}
	switch lc.LCO {
	case LCOGroupVoice:
		lc.Talkgroup = uint16(BitsToUint64(bits[32:48]))
	case LCOUnitVoice:
		lc.Target = uint32(BitsToUint64(bits[24:48]))
	}
	return lc
}

func (lc LinkControl) Bits() []byte {
	bits := make([]byte, linkControlBits)
	if lc.Protected {
		bits[0] = 1
	}
	putBits(bits[2:], uint64(lc.LCO&0x3f), 6)
	putBits(bits[8:], uint64(lc.MFID), 8)
	putBits(bits[16:], uint64(lc.Options), 8)
	if lc.LCO == LCOUnitVoice {
		putBits(bits[24:], uint64(lc.Target), 24)
	} else {
		putBits(bits[32:], uint64(lc.Talkgroup), 16)
	}
	putBits(bits[48:], uint64(lc.Source), 24)
	return bits
}

// EncryptionSync is the LDU2 encryption parameters.
type EncryptionSync struct {
	MI          [9]byte
	AlgorithmID uint8
	KeyID       uint16
}

func (es EncryptionSync) Encrypted() bool {
	return es.AlgorithmID != AlgorithmClear && es.AlgorithmID != 0
}

func parseEncryptionSync(bits []byte) EncryptionSync {
	var es EncryptionSync
	copy(es.MI[:], BitsToBytes(bits[:72]))
	es.AlgorithmID = uint8(BitsToUint64(bits[72:80]))
	es.KeyID = uint16(BitsToUint64(bits[80:96]))
	return es
}

func (es EncryptionSync) bits() []byte {
	ret := make([]byte, encryptionSyncBits)
	copy(ret, BytesToBits(es.MI[:]))
	putBits(ret[72:], uint64(es.AlgorithmID), 8)
	putBits(ret[80:], uint64(es.KeyID), 16)
	return ret
}

// decodeHamming10Words turns 24 Hamming(10,6) protected hexbits into RS symbols.
func decodeHamming10Words(bits []byte) ([]uint8, int) {
	ret := make([]uint8, len(bits)/10)
	errs := 0
	for i := range ret {
		d, n, _ := HammingDecode10(uint16(BitsToUint64(bits[10*i : 10*i+10])))
		ret[i] = d
		errs += n
	}
	return ret, errs
}

func encodeHamming10Words(hexbits []uint8) []byte {
	ret := make([]byte, 10*len(hexbits))
	for i, h := range hexbits {
		putBits(ret[10*i:], uint64(HammingEncode10(h)), 10)
	}
	return ret
}

// DecodeLinkControlHamming decodes the 240 LC bits gathered from an LDU1.
func DecodeLinkControlHamming(bits []byte) (LinkControl, int, error) {
	hexbits, herrs := decodeHamming10Words(bits)
	data, rerrs, err := RS24_12.Decode(hexbits)
	if err != nil {
		return LinkControl{}, herrs, fmt.Errorf("link control: %w", err)
	}
	return ParseLinkControl(HexbitsToBits(data)), herrs + rerrs, nil
}

func EncodeLinkControlHamming(lc LinkControl) []byte {
	return encodeHamming10Words(RS24_12.Encode(BitsToHexbits(lc.Bits())))
}

// DecodeEncryptionSync decodes the 240 ES bits gathered from an LDU2.
func DecodeEncryptionSync(bits []byte) (EncryptionSync, int, error) {
	hexbits, herrs := decodeHamming10Words(bits)
	data, rerrs, err := RS24_16.Decode(hexbits)
	if err != nil {
		return EncryptionSync{}, herrs, fmt.Errorf("encryption sync: %w", err)
	}
	return parseEncryptionSync(HexbitsToBits(data)), herrs + rerrs, nil
}

func EncodeEncryptionSync(es EncryptionSync) []byte {
	return encodeHamming10Words(RS24_16.Encode(BitsToHexbits(es.bits())))
}

// DecodeLinkControlGolay decodes the 288 bit terminator link control.
func DecodeLinkControlGolay(bits []byte) (LinkControl, int, error) {
	hexbits := make([]uint8, 24)
	errs := 0
	for i := 0; i < 12; i++ {
		d, n, err := GolayDecode24(uint32(BitsToUint64(bits[24*i : 24*i+24])))
		if err != nil {
			return LinkControl{}, errs, fmt.Errorf("terminator link control: %w", err)
		}
		hexbits[2*i] = uint8(d >> 6)
		hexbits[2*i+1] = uint8(d & 0x3f)
		errs += n
	}
	data, rerrs, err := RS24_12.Decode(hexbits)
	if err != nil {
		return LinkControl{}, errs, fmt.Errorf("terminator link control: %w", err)
	}
	return ParseLinkControl(HexbitsToBits(data)), errs + rerrs, nil
}

func EncodeLinkControlGolay(lc LinkControl) []byte {
	hexbits := RS24_12.Encode(BitsToHexbits(lc.Bits()))
	ret := make([]byte, 288)
	for i := 0; i < 12; i++ {
		putBits(ret[24*i:], uint64(GolayEncode24(uint16(hexbits[2*i])<<6|uint16(hexbits[2*i+1]))), 24)
	}
	return ret
}
