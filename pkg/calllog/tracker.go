package calllog

import (
	"github.com/norasector/p25scanner/pkg/events"
)

// Tracker turns scanner state changes into call records.
type Tracker struct {
	w       *Writer
	current *Call
}

func NewTracker(w *Writer) *Tracker {
	return &Tracker{w: w}
}

func (t *Tracker) Handle(ev events.Event) error {
	if ev.Kind != events.StateChanged || ev.Snapshot == nil {
		return nil
	}
	g := ev.Snapshot.ActiveGrant
	if t.current != nil && (g == nil || g.Frequency != t.current.Frequency || g.Talkgroup != t.current.Talkgroup) {
		t.current.End = ev.Time
		t.w.Enqueue(*t.current)
		t.current = nil
	}
	if g != nil && t.current == nil {
		c := NewCall(*g, ev.Time)
		t.current = &c
	}
	return nil
}
