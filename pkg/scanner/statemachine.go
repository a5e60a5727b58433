package scanner

import (
	"errors"
	"sync"
	"time"

	"github.com/norasector/p25scanner/pkg/events"
	"github.com/norasector/p25scanner/pkg/p25"
	"github.com/norasector/p25scanner/pkg/p25/frame/phase1"
	"github.com/norasector/p25scanner/pkg/trunking"
	"github.com/rs/zerolog"
)

var ErrTrackingLost = errors.New("control channel tracking lost")

type Mode int

const (
	Idle Mode = iota
	AcquiringControl
	LockedControl
	FollowingVoice
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case AcquiringControl:
		return "acquiring_control"
	case LockedControl:
		return "locked_control"
	case FollowingVoice:
		return "following_voice"
	}
	return "unknown"
}

// State is owned by the StateMachine; everything else sees copies.
type State struct {
	Mode              Mode
	Frequency         int
	ControlFrequency  int
	ActiveGrant       *trunking.Grant
	LastVoiceActivity time.Time
}

// Retuner is the part of the tuner the state machine drives. SetFrequency must not block.
type Retuner interface {
	SetFrequency(hz int)
}

type Publisher interface {
	Publish(ev events.Event)
}

type Timing struct {
	HangTime             time.Duration
	SignalLossTimeout    time.Duration
	AcquireTimeout       time.Duration
	MaxReacquireAttempts int
}

func DefaultTiming() Timing {
	return Timing{
		HangTime:             2 * time.Second,
		SignalLossTimeout:    1500 * time.Millisecond,
		AcquireTimeout:       2 * time.Second,
		MaxReacquireAttempts: 3,
	}
}

// StateMachine decides which frequency the receiver listens to. It is driven from the
// decode context only.
type StateMachine struct {
	ctrl   *trunking.Controller
	tuner  Retuner
	pub    Publisher
	timing Timing
	logger zerolog.Logger

	mu    sync.RWMutex
	state State

	controlIndex int
	modeSince    time.Time
	lastControl  time.Time
	failures     int
	// grant left on hang timeout; not picked up again until re-granted
	skip *trunking.Grant
}

func NewStateMachine(ctrl *trunking.Controller, tuner Retuner, pub Publisher, timing Timing, logger zerolog.Logger) *StateMachine {
	return &StateMachine{
		ctrl:   ctrl,
		tuner:  tuner,
		pub:    pub,
		timing: timing,
		logger: logger,
	}
}

func (s *StateMachine) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	if st.ActiveGrant != nil {
		g := *st.ActiveGrant
		st.ActiveGrant = &g
	}
	return st
}

func (s *StateMachine) Snapshot(now time.Time) events.Snapshot {
	st := s.State()
	return events.Snapshot{
		Mode:              st.Mode.String(),
		Frequency:         st.Frequency,
		ControlFrequency:  st.ControlFrequency,
		ActiveGrant:       st.ActiveGrant,
		LastVoiceActivity: st.LastVoiceActivity,
		Timestamp:         now,
	}
}

// Start leaves Idle and begins hunting on the first control frequency.
func (s *StateMachine) Start(now time.Time) {
	s.controlIndex = 0
	s.failures = 0
	s.acquire(now, "start")
}

func (s *StateMachine) controlFrequencies() []int {
	return s.ctrl.Plan().ControlFrequencies
}

func (s *StateMachine) transition(now time.Time, reason string, update func(st *State)) {
	s.mu.Lock()
	prev := s.state
	update(&s.state)
	next := s.state
	s.mu.Unlock()

	if next.Frequency != prev.Frequency {
		s.tuner.SetFrequency(next.Frequency)
		s.pub.Publish(events.Event{Kind: events.Retune, Time: now, Frequency: next.Frequency})
	}
	if next.Mode != prev.Mode || next.Frequency != prev.Frequency {
		s.modeSince = now
		snap := s.Snapshot(now)
		s.logger.Info().
			Str("from", prev.Mode.String()).
			Str("to", next.Mode.String()).
			Str("frequency", p25.MHzToString(next.Frequency)).
			Str("reason", reason).
			Msg("state change")
		s.pub.Publish(events.Event{Kind: events.StateChanged, Time: now, Frequency: next.Frequency, Snapshot: &snap})
	}
}

func (s *StateMachine) acquire(now time.Time, reason string) {
	freqs := s.controlFrequencies()
	if len(freqs) == 0 {
		return
	}
	freq := freqs[s.controlIndex%len(freqs)]
	s.lastControl = now
	s.transition(now, reason, func(st *State) {
		st.Mode = AcquiringControl
		st.Frequency = freq
		st.ControlFrequency = freq
		st.ActiveGrant = nil
	})
}

func (s *StateMachine) follow(g trunking.Grant, now time.Time, reason string) {
	s.skip = nil
	s.transition(now, reason, func(st *State) {
		st.Mode = FollowingVoice
		st.Frequency = g.Frequency
		st.ActiveGrant = &g
		st.LastVoiceActivity = now
	})
}

func (s *StateMachine) returnToControl(now time.Time, reason string) {
	s.lastControl = now
	s.transition(now, reason, func(st *State) {
		st.Mode = LockedControl
		st.Frequency = st.ControlFrequency
		st.ActiveGrant = nil
	})
}

// HandleDecoded applies one decoded frame. Frames captured on a frequency other than
// the current one are stale and ignored.
func (s *StateMachine) HandleDecoded(d *phase1.Decoded, now time.Time) {
	st := s.State()
	if d.Frame.Frequency != st.Frequency {
		return
	}

	switch {
	case len(d.TSBKs) > 0:
		if st.Mode != AcquiringControl && st.Mode != LockedControl {
			return
		}
		s.lastControl = now
		s.failures = 0
		if st.Mode == AcquiringControl {
			s.transition(now, "control channel decoded", func(st *State) {
				st.Mode = LockedControl
			})
		}
		for _, t := range d.TSBKs {
			s.applyUpdates(s.ctrl.HandleTSBK(t, st.Frequency, now), now)
		}
		if s.State().Mode == LockedControl {
			s.pickUpActiveGrant(now)
		}
	case d.Terminator():
		if st.Mode != FollowingVoice {
			return
		}
		s.applyUpdates(s.ctrl.HandleTerminator(st.Frequency, now), now)
		if s.State().Mode == FollowingVoice {
			s.returnToControl(now, "terminator")
		}
	case d.LDU != nil || d.Header != nil:
		if st.Mode != FollowingVoice {
			return
		}
		s.mu.Lock()
		s.state.LastVoiceActivity = now
		s.mu.Unlock()
		s.ctrl.RenewFrequency(st.Frequency, now)
	}
}

func sameCall(a, b trunking.Grant) bool {
	return a.Unit == b.Unit && a.Talkgroup == b.Talkgroup && a.Target == b.Target
}

func (s *StateMachine) applyUpdates(ups []trunking.Update, now time.Time) {
	for _, u := range ups {
		s.pub.Publish(events.NewGrantEvent(u.Kind, u.Grant, now))

		st := s.State()
		switch u.Kind {
		case trunking.GrantReceived:
			if s.skip != nil && sameCall(*s.skip, u.Grant) {
				s.skip = nil
			}
			switch {
			case st.Mode == LockedControl && s.ctrl.Follow(u.Grant):
				s.follow(u.Grant, now, "grant")
			case st.Mode == FollowingVoice && sameCall(*st.ActiveGrant, u.Grant) && u.Grant.Frequency != st.Frequency:
				s.follow(u.Grant, now, "grant moved")
			case st.Mode == LockedControl:
				s.logger.Debug().Str("grant", u.Grant.String()).Msg("not following grant")
			}
		case trunking.GrantReleased, trunking.GrantExpired:
			if st.Mode == FollowingVoice && sameCall(*st.ActiveGrant, u.Grant) && u.Grant.Frequency == st.Frequency {
				s.returnToControl(now, u.Kind.String())
			}
		}
	}
}

// pickUpActiveGrant follows a call that was already in progress, announced by the block
// just decoded.
func (s *StateMachine) pickUpActiveGrant(now time.Time) {
	for _, g := range s.ctrl.ActiveGrants() {
		if !g.LastSeen.Equal(now) || !s.ctrl.Follow(g) {
			continue
		}
		if s.skip != nil && sameCall(*s.skip, g) {
			continue
		}
		s.follow(g, now, "active grant")
		return
	}
}

// Tick runs the timers: grant expiry, hang time, signal loss and acquisition.
func (s *StateMachine) Tick(now time.Time) {
	s.applyUpdates(s.ctrl.Tick(now), now)

	st := s.State()
	switch st.Mode {
	case FollowingVoice:
		if now.Sub(st.LastVoiceActivity) > s.timing.HangTime {
			s.skip = st.ActiveGrant
			s.returnToControl(now, "hang time")
		}
	case LockedControl:
		if now.Sub(s.lastControl) > s.timing.SignalLossTimeout {
			s.controlIndex++
			s.acquire(now, "signal loss")
		}
	case AcquiringControl:
		if now.Sub(s.modeSince) > s.timing.AcquireTimeout {
			s.failures++
			if s.timing.MaxReacquireAttempts > 0 && s.failures%s.timing.MaxReacquireAttempts == 0 {
				s.logger.Warn().Int("attempts", s.failures).Msg("tracking lost")
				s.pub.Publish(events.NewErrorEvent(events.TrackingLost, ErrTrackingLost, uint64(s.failures), now))
			}
			s.controlIndex++
			s.modeSince = now
			s.acquire(now, "acquire timeout")
		}
	}
}

// VoiceChannel reports whether frames captured on freq belong to the call being followed.
func (s *StateMachine) VoiceChannel(freq int) (trunking.Grant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Mode != FollowingVoice || s.state.Frequency != freq || s.state.ActiveGrant == nil {
		return trunking.Grant{}, false
	}
	return *s.state.ActiveGrant, true
}
