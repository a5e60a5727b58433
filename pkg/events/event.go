package events

import (
	"time"

	"github.com/norasector/p25scanner/pkg/trunking"
)

type Kind int

const (
	GrantReceived Kind = iota
	GrantReleased
	GrantExpired
	TrackingLost
	DecodeError
	AudioUnderrun
	AudioOverrun
	HardwareFault
	StateChanged
	Retune
)

var kindNames = map[Kind]string{
	GrantReceived: "grant_received",
	GrantReleased: "grant_released",
	GrantExpired:  "grant_expired",
	TrackingLost:  "tracking_lost",
	DecodeError:   "decode_error",
	AudioUnderrun: "audio_underrun",
	AudioOverrun:  "audio_overrun",
	HardwareFault: "hardware_fault",
	StateChanged:  "state_changed",
	Retune:        "retune",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// FromUpdate maps a trunking update to its event kind.
func FromUpdate(k trunking.UpdateKind) Kind {
	switch k {
	case trunking.GrantReleased:
		return GrantReleased
	case trunking.GrantExpired:
		return GrantExpired
	}
	return GrantReceived
}

// Snapshot is an immutable copy of the scanner state at a transition.
type Snapshot struct {
	Mode              string          `json:"mode"`
	Frequency         int             `json:"frequency"`
	ControlFrequency  int             `json:"control_frequency"`
	ActiveGrant       *trunking.Grant `json:"active_grant,omitempty"`
	LastVoiceActivity time.Time       `json:"last_voice_activity"`
	Timestamp         time.Time       `json:"timestamp"`
}

// Event is published on the Bus. Which fields are set depends on Kind.
type Event struct {
	Kind      Kind            `json:"-"`
	Time      time.Time       `json:"time"`
	Frequency int             `json:"frequency,omitempty"`
	Grant     *trunking.Grant `json:"grant,omitempty"`
	Snapshot  *Snapshot       `json:"snapshot,omitempty"`
	// Count is the running total of a counted condition.
	Count uint64 `json:"count,omitempty"`
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

func NewGrantEvent(k trunking.UpdateKind, g trunking.Grant, now time.Time) Event {
	return Event{Kind: FromUpdate(k), Time: now, Frequency: g.Frequency, Grant: &g}
}

func NewErrorEvent(k Kind, err error, count uint64, now time.Time) Event {
	ev := Event{Kind: k, Time: now, Err: err, Count: count}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}
