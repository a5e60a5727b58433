package events

import (
	"github.com/norasector/p25scanner/pkg/p25"
	"github.com/rs/zerolog"
)

// LogSink writes events to a zerolog logger.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (l *LogSink) Handle(ev Event) error {
	var e *zerolog.Event
	switch ev.Kind {
	case HardwareFault, TrackingLost:
		e = l.logger.Warn()
	case DecodeError, AudioUnderrun, AudioOverrun, Retune:
		e = l.logger.Debug()
	default:
		e = l.logger.Info()
	}
	if ev.Frequency != 0 {
		e = e.Str("frequency", p25.MHzToString(ev.Frequency))
	}
	if g := ev.Grant; g != nil {
		if g.Unit {
			e = e.Uint32("target", g.Target)
		} else {
			e = e.Uint16("talkgroup", g.Talkgroup)
		}
		e = e.Uint32("source", g.Source).Bool("encrypted", g.Encrypted).Bool("emergency", g.Emergency)
	}
	if s := ev.Snapshot; s != nil {
		e = e.Str("mode", s.Mode)
	}
	if ev.Count != 0 {
		e = e.Uint64("count", ev.Count)
	}
	if ev.Err != nil {
		e = e.Err(ev.Err)
	}
	e.Msg(ev.Kind.String())
	return nil
}
