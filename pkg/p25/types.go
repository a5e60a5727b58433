package p25

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCRC           = errors.New("crc mismatch")
	ErrUncorrectable = errors.New("uncorrectable codeword")
)

// Dibit is a single 2-bit C4FM symbol value in the range 0-3.
type Dibit uint8

// Symbol is a sliced dibit along with the slicer's confidence in it (0..1).
type Symbol struct {
	Dibit      Dibit
	Confidence float32
}

// SymbolBlock carries the symbols recovered from a single sample block.
// When LossOfSignal is set the demodulator could not lock and Symbols is empty.
type SymbolBlock struct {
	Symbols      []Symbol
	Frequency    int
	Timestamp    time.Time
	LossOfSignal bool
	Retuned      bool
}

type DUID uint8

const (
	DUIDHeader       DUID = 0x0
	DUIDTerminator   DUID = 0x3
	DUIDLDU1         DUID = 0x5
	DUIDTSBK         DUID = 0x7
	DUIDLDU2         DUID = 0xA
	DUIDPDU          DUID = 0xC
	DUIDTerminatorLC DUID = 0xF
)

var duidNames = map[DUID]string{
	DUIDHeader:       "HDU",
	DUIDTerminator:   "TDU",
	DUIDLDU1:         "LDU1",
	DUIDTSBK:         "TSBK",
	DUIDLDU2:         "LDU2",
	DUIDPDU:          "PDU",
	DUIDTerminatorLC: "TDULC",
}

func (d DUID) String() string {
	if n, ok := duidNames[d]; ok {
		return n
	}
	return fmt.Sprintf("DUID(0x%X)", uint8(d))
}

// Known reports whether the DUID is one of the Phase 1 data units.
func (d DUID) Known() bool {
	_, ok := duidNames[d]
	return ok
}

// NID is the network identifier that follows frame sync.
type NID struct {
	NAC  uint16
	DUID DUID
}

// VoiceFrame is the nine IMBE codewords carried by one LDU.
type VoiceFrame struct {
	Codewords [9][IMBECodewordBits]byte
	Talkgroup uint16
	Source    uint32
	HasLC     bool
	Encrypted bool
	Frequency int
	Timestamp time.Time
}

func MHzToString(hz int) string {
	return fmt.Sprintf("%0.4f MHz", float64(hz)/1e6)
}
