package scanner

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/norasector/p25scanner/pkg/events"
	"github.com/norasector/p25scanner/pkg/p25"
	"github.com/norasector/p25scanner/pkg/p25/frame/phase1"
	"github.com/norasector/p25scanner/pkg/trunking"
	"github.com/rs/zerolog"
)

// minimum spacing between two published DecodeError events
const decodeErrorInterval = time.Second

// VoiceSink receives voice for the call being followed. Submit must not block.
type VoiceSink interface {
	Submit(vf p25.VoiceFrame) bool
}

// Flusher is implemented by voice sinks that buffer audio. Flush is called when voice
// for a different call starts.
type Flusher interface {
	Flush()
}

// decoder is the frame half of the decode context: symbols in, state machine and
// voice sink driven.
type decoder struct {
	asm    *phase1.Assembler
	dec    *phase1.Decoder
	sm     *StateMachine
	voice  VoiceSink
	pub    Publisher
	logger zerolog.Logger

	frames      []*phase1.Frame
	lastCall    *trunking.Grant
	decodeErrs  atomic.Uint64
	voiceFrames atomic.Uint64
	lastErrPub  time.Time
}

func newDecoder(maxSyncErrors int, dec *phase1.Decoder, sm *StateMachine, voice VoiceSink, pub Publisher, logger zerolog.Logger) *decoder {
	d := &decoder{
		dec:    dec,
		sm:     sm,
		voice:  voice,
		pub:    pub,
		logger: logger,
	}
	d.asm = phase1.NewAssembler(maxSyncErrors, func(f *phase1.Frame) {
		d.frames = append(d.frames, f)
	}, logger)
	return d
}

// HandleSymbols runs one symbol block through frame sync and decoding.
func (d *decoder) HandleSymbols(b p25.SymbolBlock, now time.Time) {
	d.asm.Receive(b)
	frames := d.frames
	d.frames = d.frames[:0]
	for _, f := range frames {
		d.handleFrame(f, now)
	}
}

func (d *decoder) handleFrame(f *phase1.Frame, now time.Time) {
	decoded, err := d.dec.Decode(f)
	if err != nil {
		n := d.decodeErrs.Add(1)
		ev := d.logger.Debug().Err(err).Str("frequency", p25.MHzToString(f.Frequency))
		if !errors.Is(err, phase1.ErrNID) {
			ev = ev.Str("duid", f.NID.DUID.String())
		}
		ev.Msg("frame dropped")
		if now.Sub(d.lastErrPub) >= decodeErrorInterval {
			d.lastErrPub = now
			d.pub.Publish(events.NewErrorEvent(events.DecodeError, err, n, now))
		}
		return
	}

	d.sm.HandleDecoded(decoded, now)

	if decoded.LDU == nil {
		return
	}
	grant, ok := d.sm.VoiceChannel(f.Frequency)
	if !ok {
		return
	}
	vf := p25.VoiceFrame{
		Codewords: decoded.LDU.Voice,
		Talkgroup: grant.Talkgroup,
		Source:    grant.Source,
		Encrypted: grant.Encrypted,
		Frequency: f.Frequency,
		Timestamp: f.Timestamp,
	}
	if lc := decoded.LDU.LC; lc != nil {
		vf.HasLC = true
		if lc.LCO == p25.LCOGroupVoice {
			vf.Talkgroup = lc.Talkgroup
		}
		vf.Source = lc.Source
		vf.Encrypted = vf.Encrypted || lc.Options.Encrypted()
	}
	if es := decoded.LDU.ES; es != nil && es.Encrypted() {
		vf.Encrypted = true
	}
	if d.lastCall != nil && !sameCall(*d.lastCall, grant) {
		if fl, ok := d.voice.(Flusher); ok {
			fl.Flush()
		}
	}
	d.lastCall = &grant
	if d.voice != nil && d.voice.Submit(vf) {
		d.voiceFrames.Add(1)
	}
}

// Reset drops any partially assembled frame, e.g. after a retune.
func (d *decoder) Reset() {
	d.asm.Reset()
	d.frames = d.frames[:0]
}
