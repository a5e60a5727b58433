package phase1

import (
	"errors"
	"fmt"
	"sync"

	"github.com/norasector/p25scanner/pkg/p25"
	"github.com/rs/zerolog"
)

var (
	ErrNID = errors.New("nid decode failed")
	ErrNAC = errors.New("unexpected nac")
)

// Decoded is the protocol content of one frame. Which fields are set depends on the DUID.
type Decoded struct {
	Frame  *Frame
	TSBKs  []p25.TSBK
	LDU    *p25.LDU
	Header *p25.Header
	// LC is set for a terminator with link control.
	LC *p25.LinkControl
}

// Terminator reports whether the frame ends a voice transmission.
func (d *Decoded) Terminator() bool {
	duid := d.Frame.NID.DUID
	return duid == p25.DUIDTerminator || duid == p25.DUIDTerminatorLC
}

type Counters struct {
	Frames           map[p25.DUID]uint64
	NIDErrors        uint64
	NACMismatches    uint64
	CRCErrors        uint64
	SignallingErrors uint64
	CorrectedBits    uint64
}

type DecoderOption func(d *Decoder)

func WithExpectedNAC(nac uint16) DecoderOption {
	return func(d *Decoder) {
		d.expectNAC = true
		d.nac = nac
	}
}

func WithLogger(logger zerolog.Logger) DecoderOption {
	return func(d *Decoder) {
		d.logger = logger
	}
}

// Decoder validates candidates from the Assembler and decodes their payloads.
type Decoder struct {
	expectNAC bool
	nac       uint16
	logger    zerolog.Logger

	mu       sync.Mutex
	counters Counters
}

func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		logger:   zerolog.Nop(),
		counters: Counters{Frames: make(map[p25.DUID]uint64)},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode returns an error for frames that must be dropped. Each dropped candidate is
// counted exactly once.
func (d *Decoder) Decode(f *Frame) (*Decoded, error) {
	if f.Err != nil {
		d.count(func(c *Counters) { c.NIDErrors++ })
		return nil, f.Err
	}
	if d.expectNAC && f.NID.NAC != d.nac {
		d.count(func(c *Counters) { c.NACMismatches++ })
		return nil, fmt.Errorf("%w: %03X", ErrNAC, f.NID.NAC)
	}

	ret := &Decoded{Frame: f}
	corrected := f.NIDErrors
	var err error

	switch f.NID.DUID {
	case p25.DUIDTSBK:
		corrected += d.decodeTSBKs(ret)
		if len(ret.TSBKs) == 0 {
			err = fmt.Errorf("tsbk: %w", p25.ErrCRC)
		}
	case p25.DUIDLDU1, p25.DUIDLDU2:
		ldu, errs, lerr := p25.DecodeLDU(f.NID.DUID, f.Payload)
		corrected += errs
		if ldu == nil {
			err = lerr
			break
		}
		if lerr != nil {
			d.count(func(c *Counters) { c.SignallingErrors++ })
			d.logger.Debug().Err(lerr).Str("duid", f.NID.DUID.String()).Msg("ldu signalling not recovered")
		}
		ret.LDU = ldu
	case p25.DUIDHeader:
		h, errs, herr := p25.DecodeHeader(f.Payload)
		corrected += errs
		if herr != nil {
			d.count(func(c *Counters) { c.SignallingErrors++ })
			d.logger.Debug().Err(herr).Msg("header not recovered")
			break
		}
		ret.Header = &h
	case p25.DUIDTerminatorLC:
		lc, errs, lerr := p25.DecodeTerminatorLC(f.Payload)
		corrected += errs
		if lerr != nil {
			d.count(func(c *Counters) { c.SignallingErrors++ })
			d.logger.Debug().Err(lerr).Msg("terminator link control not recovered")
			break
		}
		ret.LC = &lc
	case p25.DUIDPDU:
		// data packets are not followed, only the header block is decoded
		if len(f.Payload) >= p25.TrellisBlockDibits {
			_, errs := p25.TrellisDecode(f.Payload[:p25.TrellisBlockDibits])
			corrected += errs
		}
	}

	d.count(func(c *Counters) {
		c.Frames[f.NID.DUID]++
		c.CorrectedBits += uint64(corrected)
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (d *Decoder) decodeTSBKs(ret *Decoded) int {
	corrected := 0
	payload := ret.Frame.Payload
	for off := 0; off+p25.TrellisBlockDibits <= len(payload); off += p25.TrellisBlockDibits {
		t, errs, err := p25.DecodeTSBK(payload[off : off+p25.TrellisBlockDibits])
		corrected += errs
		if err != nil {
			d.count(func(c *Counters) { c.CRCErrors++ })
			d.logger.Debug().Err(err).Int("block", off/p25.TrellisBlockDibits).Msg("tsbk block dropped")
			continue
		}
		ret.TSBKs = append(ret.TSBKs, t)
	}
	return corrected
}

func (d *Decoder) count(fn func(c *Counters)) {
	d.mu.Lock()
	fn(&d.counters)
	d.mu.Unlock()
}

// Counters returns a copy of the running totals.
func (d *Decoder) Counters() Counters {
	d.mu.Lock()
	defer d.mu.Unlock()
	ret := d.counters
	ret.Frames = make(map[p25.DUID]uint64, len(d.counters.Frames))
	for k, v := range d.counters.Frames {
		ret.Frames[k] = v
	}
	return ret
}
