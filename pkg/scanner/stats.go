package scanner

import (
	"context"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/norasector/p25scanner/pkg/audio"
)

type Stats struct {
	Uptime           time.Duration     `json:"uptime"`
	Blocks           uint64            `json:"blocks"`
	UnreliableBlocks uint64            `json:"unreliable_blocks"`
	LossOfSignal     uint64            `json:"loss_of_signal"`
	Symbols          uint64            `json:"symbols"`
	Frames           map[string]uint64 `json:"frames"`
	DecodeErrors     uint64            `json:"decode_errors"`
	NIDErrors        uint64            `json:"nid_errors"`
	NACMismatches    uint64            `json:"nac_mismatches"`
	CRCErrors        uint64            `json:"crc_errors"`
	CorrectedBits    uint64            `json:"corrected_bits"`
	VoiceFrames      uint64            `json:"voice_frames"`
	TunerOverruns    uint64            `json:"tuner_overruns"`
	Retunes          uint64            `json:"retunes"`
	HardwareFaults   uint64            `json:"hardware_faults"`
	EventsDropped    map[string]uint64 `json:"events_dropped"`
	PowerDBFS        float64           `json:"power_dbfs"`
	Audio            *audio.Counters   `json:"audio,omitempty"`
}

type audioCounters interface {
	Counters() audio.Counters
}

func (s *Scanner) Stats() Stats {
	dc := s.frameDec.Counters()
	st := Stats{
		Blocks:           s.blocks.Load(),
		UnreliableBlocks: s.unreliable.Load(),
		LossOfSignal:     s.lossOfSignal.Load(),
		Symbols:          s.symbols.Load(),
		Frames:           make(map[string]uint64, len(dc.Frames)),
		DecodeErrors:     s.dec.decodeErrs.Load(),
		NIDErrors:        dc.NIDErrors,
		NACMismatches:    dc.NACMismatches,
		CRCErrors:        dc.CRCErrors,
		CorrectedBits:    dc.CorrectedBits,
		VoiceFrames:      s.dec.voiceFrames.Load(),
		TunerOverruns:    s.tuner.Overruns(),
		Retunes:          s.tuner.Retunes(),
		HardwareFaults:   s.hardwareFaults.Load(),
		EventsDropped:    s.bus.Dropped(),
		PowerDBFS:        math.Float64frombits(s.powerDBFS.Load()),
	}
	if !s.started.IsZero() {
		st.Uptime = time.Since(s.started)
	}
	for duid, n := range dc.Frames {
		st.Frames[duid.String()] = n
	}
	if ac, ok := s.voice.(audioCounters); ok {
		c := ac.Counters()
		st.Audio = &c
	}
	return st
}

func (s *Scanner) logStats(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.StatsPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			st := s.Stats()
			frames := uint64(0)
			for _, n := range st.Frames {
				frames += n
			}
			state := s.status.Snapshot()

			ev := s.logger.Info().
				Str("mode", state.Mode).
				Str("symbols", humanize.SIWithDigits(float64(st.Symbols), 1, "sym")).
				Str("frames", humanize.Comma(int64(frames))).
				Str("decode_errors", humanize.Comma(int64(st.DecodeErrors))).
				Str("voice_frames", humanize.Comma(int64(st.VoiceFrames))).
				Uint64("retunes", st.Retunes).
				Uint64("tuner_overruns", st.TunerOverruns).
				Float64("power_dbfs", st.PowerDBFS)
			if st.Audio != nil {
				ev = ev.
					Str("audio_played", humanize.SIWithDigits(float64(st.Audio.Played), 1, "samples")).
					Uint64("audio_underruns", st.Audio.Underruns).
					Uint64("audio_overruns", st.Audio.Overruns)
			}
			ev.Dur("uptime", st.Uptime).Msg("stats")

			fields := map[string]interface{}{
				"symbols":        int64(st.Symbols),
				"frames":         int64(frames),
				"decode_errors":  int64(st.DecodeErrors),
				"nac_mismatches": int64(st.NACMismatches),
				"crc_errors":     int64(st.CRCErrors),
				"voice_frames":   int64(st.VoiceFrames),
				"retunes":        int64(st.Retunes),
				"tuner_overruns": int64(st.TunerOverruns),
				"loss_of_signal": int64(st.LossOfSignal),
			}
			s.writeAPI.WritePoint(influxdb2.NewPoint("scanner.stats",
				map[string]string{"mode": state.Mode},
				fields, now))
		}
	}
}
