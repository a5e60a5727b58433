package phase1

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/norasector/p25scanner/pkg/p25"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxSyncErrors = 4

	syncMask uint64 = 1<<(2*p25.SyncDibits) - 1

	// status symbol value inserted by EncodeFrame; 0b11 is the idle status
	idleStatus p25.Dibit = 3
)

type assemblerState int

const (
	stateSearch assemblerState = iota
	stateNID
	statePayload
)

// Frame is a candidate located by frame sync. When Err is set the NID could not be
// decoded and Payload is empty.
type Frame struct {
	NID        p25.NID
	Payload    []p25.Dibit
	SyncErrors int
	NIDErrors  int
	Err        error
	Frequency  int
	Timestamp  time.Time
}

// Assembler slides a 48 bit correlator over the symbol stream and cuts frames,
// removing the status symbol that follows every 35 dibits. It never blocks;
// frames are handed to the callback from inside Receive.
type Assembler struct {
	maxSyncErrors int
	emit          func(*Frame)
	logger        zerolog.Logger

	syncReg   uint64
	shifted   int
	sinceSync int

	state   assemblerState
	pos     int
	nid     []p25.Dibit
	payload []p25.Dibit
	want    int
	blocks  int
	frame   *Frame

	frequency int
	timestamp time.Time
}

func NewAssembler(maxSyncErrors int, emit func(*Frame), logger zerolog.Logger) *Assembler {
	return &Assembler{
		maxSyncErrors: maxSyncErrors,
		emit:          emit,
		logger:        logger,
		nid:           make([]p25.Dibit, 0, p25.NIDDibits),
	}
}

// Receive consumes one symbol block. A loss of signal block restarts the search.
func (a *Assembler) Receive(block p25.SymbolBlock) {
	if block.LossOfSignal || block.Retuned {
		a.Reset()
	}
	a.frequency = block.Frequency
	a.timestamp = block.Timestamp
	for _, s := range block.Symbols {
		a.receiveDibit(s.Dibit)
	}
}

// SymbolsSinceSync is the number of symbols searched since the last sync match.
func (a *Assembler) SymbolsSinceSync() int {
	return a.sinceSync
}

func (a *Assembler) Reset() {
	a.syncReg = 0
	a.shifted = 0
	a.sinceSync = 0
	a.state = stateSearch
	a.frame = nil
}

func (a *Assembler) receiveDibit(d p25.Dibit) {
	a.syncReg = (a.syncReg<<2 | uint64(d&3)) & syncMask
	a.shifted++
	a.sinceSync++

	if a.shifted >= p25.SyncDibits {
		if dist := bits.OnesCount64(a.syncReg ^ p25.FrameSync); dist <= a.maxSyncErrors {
			if a.state != stateSearch {
				a.logger.Debug().Int("collected", len(a.payload)).Msg("sync found while collecting, restarting frame")
			}
			a.startFrame(dist)
			return
		}
	}

	if a.state == stateSearch {
		return
	}

	idx := a.pos
	a.pos++
	if (idx+1)%p25.StatusInterval == 0 {
		return
	}

	switch a.state {
	case stateNID:
		a.nid = append(a.nid, d)
		if len(a.nid) == p25.NIDDibits {
			a.peekNID()
		}
	case statePayload:
		a.payload = append(a.payload, d)
		if len(a.payload) == a.want {
			a.payloadComplete()
		}
	}
}

func (a *Assembler) startFrame(syncErrors int) {
	a.sinceSync = 0
	a.state = stateNID
	a.pos = p25.SyncDibits
	a.nid = a.nid[:0]
	a.payload = nil
	a.blocks = 0
	a.frame = &Frame{
		SyncErrors: syncErrors,
		Frequency:  a.frequency,
		Timestamp:  a.timestamp,
	}
}

func (a *Assembler) peekNID() {
	nid, errs, err := p25.DecodeNID(p25.NIDFromDibits(a.nid))
	a.frame.NIDErrors = errs
	if err == nil && !nid.DUID.Known() {
		err = fmt.Errorf("unknown duid %s", nid.DUID)
	}
	if err != nil {
		a.frame.Err = fmt.Errorf("%w: %w", ErrNID, err)
		a.finish()
		return
	}

	a.frame.NID = nid
	a.want = p25.PayloadDibits(nid.DUID)
	a.payload = make([]p25.Dibit, 0, a.want)
	a.state = statePayload
}

func (a *Assembler) payloadComplete() {
	if a.frame.NID.DUID == p25.DUIDTSBK {
		a.blocks++
		block := a.payload[len(a.payload)-p25.TrellisBlockDibits:]
		decoded, _ := p25.TrellisDecode(block)
		if decoded[0] == 0 && a.blocks < p25.MaxTSBKBlocks {
			a.want += p25.TrellisBlockDibits
			return
		}
	}
	a.frame.Payload = a.payload
	a.finish()
}

func (a *Assembler) finish() {
	f := a.frame
	a.frame = nil
	a.state = stateSearch
	a.emit(f)
}

// EncodeFrame lays out sync, NID and payload as transmitted, inserting idle status symbols.
func EncodeFrame(nid p25.NID, payload []p25.Dibit) []p25.Dibit {
	return encodeFrameWord(p25.EncodeNID(nid), payload)
}

func encodeFrameWord(nidWord uint64, payload []p25.Dibit) []p25.Dibit {
	body := make([]p25.Dibit, 0, p25.SyncDibits+p25.NIDDibits+len(payload))
	body = append(body, p25.SyncDibitPattern()...)
	body = append(body, p25.NIDToDibits(nidWord)...)
	body = append(body, payload...)

	ret := make([]p25.Dibit, 0, len(body)+len(body)/(p25.StatusInterval-1)+1)
	for _, d := range body {
		if (len(ret)+1)%p25.StatusInterval == 0 {
			ret = append(ret, idleStatus)
		}
		ret = append(ret, d)
	}
	return ret
}

// EncodeTSBKFrame builds a complete control channel frame carrying up to three messages.
func EncodeTSBKFrame(nac uint16, msgs ...p25.Message) []p25.Dibit {
	var payload []p25.Dibit
	for i, m := range msgs {
		payload = append(payload, p25.EncodeTSBK(m, i == len(msgs)-1)...)
	}
	return EncodeFrame(p25.NID{NAC: nac, DUID: p25.DUIDTSBK}, payload)
}
