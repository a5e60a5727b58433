package p25

import (
	"fmt"
)

type Opcode uint8

const (
	OpGroupVoiceGrant               Opcode = 0x00
	OpGroupVoiceGrantUpdate         Opcode = 0x02
	OpGroupVoiceGrantUpdateExplicit Opcode = 0x03
	OpUnitVoiceGrant                Opcode = 0x04
	OpIdentifierUpdateVU            Opcode = 0x34
	OpRFSSStatus                    Opcode = 0x3A
	OpNetworkStatus                 Opcode = 0x3B
	OpAdjacentStatus                Opcode = 0x3C
	OpIdentifierUpdate              Opcode = 0x3D
)

var opcodeNames = map[Opcode]string{
	OpGroupVoiceGrant:               "GRP_V_CH_GRANT",
	OpGroupVoiceGrantUpdate:         "GRP_V_CH_GRANT_UPDT",
	OpGroupVoiceGrantUpdateExplicit: "GRP_V_CH_GRANT_UPDT_EXP",
	OpUnitVoiceGrant:                "UU_V_CH_GRANT",
	OpIdentifierUpdateVU:            "IDEN_UP_VU",
	OpRFSSStatus:                    "RFSS_STS_BCST",
	OpNetworkStatus:                 "NET_STS_BCST",
	OpAdjacentStatus:                "ADJ_STS_BCST",
	OpIdentifierUpdate:              "IDEN_UP",
}

func (o Opcode) String() string {
	if n, ok := opcodeNames[o]; ok {
		return n
	}
	return fmt.Sprintf("OPCODE(0x%02X)", uint8(o))
}

const (
	TSBKBits = 96

	mfidStandard    uint8 = 0x00
	mfidStandardAlt uint8 = 0x01
)

// Message is a parsed trunking signalling block payload.
type Message interface {
	Opcode() Opcode
	args() uint64
}

// TSBK is a single decoded trunking signalling block.
type TSBK struct {
	LastBlock bool
	Protected bool
	Opcode    Opcode
	MFID      uint8
	Message   Message
}

// ServiceOptions flags carried in voice grants.
type ServiceOptions uint8

func (s ServiceOptions) Emergency() bool { return s&0x80 != 0 }
func (s ServiceOptions) Encrypted() bool { return s&0x40 != 0 }
func (s ServiceOptions) Priority() int   { return int(s & 0x7) }

type GroupVoiceGrant struct {
	Options ServiceOptions
	Channel uint16
	Group   uint16
	Source  uint32
}

func (GroupVoiceGrant) Opcode() Opcode { return OpGroupVoiceGrant }
func (m GroupVoiceGrant) args() uint64 {
	return uint64(m.Options)<<56 | uint64(m.Channel)<<40 | uint64(m.Group)<<24 | uint64(m.Source&0xffffff)
}

type GroupVoiceGrantUpdate struct {
	ChannelA uint16
	GroupA   uint16
	ChannelB uint16
	GroupB   uint16
}

func (GroupVoiceGrantUpdate) Opcode() Opcode { return OpGroupVoiceGrantUpdate }
func (m GroupVoiceGrantUpdate) args() uint64 {
	return uint64(m.ChannelA)<<48 | uint64(m.GroupA)<<32 | uint64(m.ChannelB)<<16 | uint64(m.GroupB)
}

type GroupVoiceGrantUpdateExplicit struct {
	Options   ServiceOptions
	TxChannel uint16
	RxChannel uint16
	Group     uint16
}

func (GroupVoiceGrantUpdateExplicit) Opcode() Opcode { return OpGroupVoiceGrantUpdateExplicit }
func (m GroupVoiceGrantUpdateExplicit) args() uint64 {
	return uint64(m.Options)<<56 | uint64(m.TxChannel)<<32 | uint64(m.RxChannel)<<16 | uint64(m.Group)
}

type UnitVoiceGrant struct {
	Channel uint16
	Target  uint32
	Source  uint32
}

func (UnitVoiceGrant) Opcode() Opcode { return OpUnitVoiceGrant }
func (m UnitVoiceGrant) args() uint64 {
	return uint64(m.Channel)<<48 | uint64(m.Target&0xffffff)<<24 | uint64(m.Source&0xffffff)
}

// IdentifierUpdate describes one entry of the site's band plan.
type IdentifierUpdate struct {
	Identifier  uint8
	BandwidthHz int
	TxOffsetHz  int
	SpacingHz   int
	BaseHz      int
	VU          bool
}

func (m IdentifierUpdate) Opcode() Opcode {
	if m.VU {
		return OpIdentifierUpdateVU
	}
	return OpIdentifierUpdate
}

func (m IdentifierUpdate) args() uint64 {
	var sign uint64
	off := m.TxOffsetHz
	if off >= 0 {
		sign = 1
	} else {
		off = -off
	}
	ret := uint64(m.Identifier&0xf) << 60
	if m.VU {
		bw := uint64(0x4)
		if m.BandwidthHz > 6250 {
			bw = 0x5
		}
		ret |= bw<<56 | sign<<55 | uint64(off/250000&0x1fff)<<42
	} else {
		ret |= uint64(m.BandwidthHz/125&0x1ff)<<51 | sign<<50 | uint64(off/250000&0xff)<<42
	}
	return ret | uint64(m.SpacingHz/125&0x3ff)<<32 | uint64(m.BaseHz/5)&0xffffffff
}

// Frequency of a channel number under this identifier.
func (m IdentifierUpdate) Frequency(number uint16) int {
	return m.BaseHz + int(number)*m.SpacingHz
}

type RFSSStatus struct {
	LRA          uint8
	SystemID     uint16
	RFSS         uint8
	Site         uint8
	Channel      uint16
	ServiceClass uint8
}

func (RFSSStatus) Opcode() Opcode { return OpRFSSStatus }
func (m RFSSStatus) args() uint64 {
	return uint64(m.LRA)<<56 | uint64(m.SystemID&0xfff)<<40 | uint64(m.RFSS)<<32 |
		uint64(m.Site)<<24 | uint64(m.Channel)<<8 | uint64(m.ServiceClass)
}

type NetworkStatus struct {
	LRA          uint8
	WACN         uint32
	SystemID     uint16
	Channel      uint16
	ServiceClass uint8
}

func (NetworkStatus) Opcode() Opcode { return OpNetworkStatus }
func (m NetworkStatus) args() uint64 {
	return uint64(m.LRA)<<56 | uint64(m.WACN&0xfffff)<<36 | uint64(m.SystemID&0xfff)<<24 |
		uint64(m.Channel)<<8 | uint64(m.ServiceClass)
}

type AdjacentStatus struct {
	LRA          uint8
	SystemID     uint16
	RFSS         uint8
	Site         uint8
	Channel      uint16
	ServiceClass uint8
}

func (AdjacentStatus) Opcode() Opcode { return OpAdjacentStatus }
func (m AdjacentStatus) args() uint64 {
	return RFSSStatus(m).args()
}

// Unknown is any block this package does not interpret.
type Unknown struct {
	Op   Opcode
	Args uint64
}

func (m Unknown) Opcode() Opcode { return m.Op }
func (m Unknown) args() uint64   { return m.Args }

// ChannelNumber splits a 16 bit channel field into its band identifier and channel number.
func ChannelNumber(ch uint16) (iden uint8, number uint16) {
	return uint8(ch >> 12), ch & 0xfff
}

func MakeChannel(iden uint8, number uint16) uint16 {
	return uint16(iden&0xf)<<12 | number&0xfff
}

func parseMessage(op Opcode, mfid uint8, a uint64) Message {
	if mfid != mfidStandard && mfid != mfidStandardAlt {
		return Unknown{Op: op, Args: a}
	}

	switch op {
	case OpGroupVoiceGrant:
		return GroupVoiceGrant{
			Options: ServiceOptions(a >> 56),
			Channel: uint16(a >> 40),
			Group:   uint16(a >> 24),
			Source:  uint32(a & 0xffffff),
		}
	case OpGroupVoiceGrantUpdate:
		return GroupVoiceGrantUpdate{
			ChannelA: uint16(a >> 48),
			GroupA:   uint16(a >> 32),
			ChannelB: uint16(a >> 16),
			GroupB:   uint16(a),
		}
	case OpGroupVoiceGrantUpdateExplicit:
		return GroupVoiceGrantUpdateExplicit{
			Options:   ServiceOptions(a >> 56),
			TxChannel: uint16(a >> 32),
			RxChannel: uint16(a >> 16),
			Group:     uint16(a),
		}
	case OpUnitVoiceGrant:
		return UnitVoiceGrant{
			Channel: uint16(a >> 48),
			Target:  uint32(a>>24) & 0xffffff,
			Source:  uint32(a) & 0xffffff,
		}
	case OpIdentifierUpdate, OpIdentifierUpdateVU:
		m := IdentifierUpdate{
			Identifier: uint8(a >> 60),
			SpacingHz:  int((a>>32)&0x3ff) * 125,
			BaseHz:     int(a&0xffffffff) * 5,
			VU:         op == OpIdentifierUpdateVU,
		}
		var positive bool
		if m.VU {
			m.BandwidthHz = 6250
			if (a>>56)&0xf == 0x5 {
				m.BandwidthHz = 12500
			}
			positive = (a>>55)&1 == 1
			m.TxOffsetHz = int((a>>42)&0x1fff) * 250000
		} else {
			m.BandwidthHz = int((a>>51)&0x1ff) * 125
			positive = (a>>50)&1 == 1
			m.TxOffsetHz = int((a>>42)&0xff) * 250000
		}
		if !positive {
			m.TxOffsetHz = -m.TxOffsetHz
		}
		return m
	case OpRFSSStatus, OpAdjacentStatus:
		m := RFSSStatus{
			LRA:          uint8(a >> 56),
			SystemID:     uint16(a>>40) & 0xfff,
			RFSS:         uint8(a >> 32),
			Site:         uint8(a >> 24),
			Channel:      uint16(a >> 8),
			ServiceClass: uint8(a),
		}
		if op == OpAdjacentStatus {
			return AdjacentStatus(m)
		}
		return m
	case OpNetworkStatus:
		return NetworkStatus{
			LRA:          uint8(a >> 56),
			WACN:         uint32(a>>36) & 0xfffff,
			SystemID:     uint16(a>>24) & 0xfff,
			Channel:      uint16(a >> 8),
			ServiceClass: uint8(a),
		}
	}
	return Unknown{Op: op, Args: a}
}

// ParseTSBK interprets 96 decoded bits, verifying the trailing CRC.
func ParseTSBK(bits []byte) (TSBK, error) {
	if len(bits) != TSBKBits {
		return TSBK{}, fmt.Errorf("tsbk: expected %d bits, got %d", TSBKBits, len(bits))
	}
	if err := CheckCRC16(bits); err != nil {
		return TSBK{}, err
	}
	op := Opcode(BitsToUint64(bits[2:8]))
	mfid := uint8(BitsToUint64(bits[8:16]))
	return TSBK{
		LastBlock: bits[0] == 1,
		Protected: bits[1] == 1,
		Opcode:    op,
		MFID:      mfid,
		Message:   parseMessage(op, mfid, BitsToUint64(bits[16:80])),
	}, nil
}

// DecodeTSBK deinterleaves, trellis decodes and parses one 98 dibit block.
// The returned count is the number of channel bit errors corrected.
func DecodeTSBK(block []Dibit) (TSBK, int, error) {
	if len(block) != TrellisBlockDibits {
		return TSBK{}, 0, fmt.Errorf("tsbk: expected %d dibits, got %d", TrellisBlockDibits, len(block))
	}
	bits, errs := TrellisDecode(block)
	t, err := ParseTSBK(bits)
	return t, errs, err
}

// EncodeTSBK builds the on-air 98 dibit block for a message with the standard MFID.
func EncodeTSBK(m Message, lastBlock bool) []Dibit {
	bits := make([]byte, 80)
	if lastBlock {
		bits[0] = 1
	}
	putBits(bits[2:], uint64(m.Opcode()&0x3f), 6)
	putBits(bits[8:], uint64(mfidStandard), 8)
	putBits(bits[16:], m.args(), 64)
	return TrellisEncode(AppendCRC16(bits))
}
