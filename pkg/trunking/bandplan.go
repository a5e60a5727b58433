package trunking

import (
	"sync"

	"github.com/norasector/p25scanner/pkg/p25"
)

// ChannelPlan is the static, read-only description of the system being followed.
type ChannelPlan struct {
	ControlFrequencies []int
	// Channels maps a 16 bit channel id (identifier and number) to a frequency in Hz.
	Channels map[uint16]int
	BandPlan []p25.IdentifierUpdate
	Allow    []uint16
	Deny     []uint16
	// FollowUnitCalls enables following unit to unit voice grants.
	FollowUnitCalls bool
}

// Allowed applies the deny list first, then the allow list when one is configured.
func (p *ChannelPlan) Allowed(talkgroup uint16) bool {
	for _, tg := range p.Deny {
		if tg == talkgroup {
			return false
		}
	}
	if len(p.Allow) == 0 {
		return true
	}
	for _, tg := range p.Allow {
		if tg == talkgroup {
			return true
		}
	}
	return false
}

// IdenTable resolves channel ids using identifier updates heard over the air,
// falling back to the static band plan.
type IdenTable struct {
	mu      sync.RWMutex
	static  map[uint8]p25.IdentifierUpdate
	learned map[uint8]p25.IdentifierUpdate
}

func NewIdenTable(static []p25.IdentifierUpdate) *IdenTable {
	t := &IdenTable{
		static:  make(map[uint8]p25.IdentifierUpdate, len(static)),
		learned: make(map[uint8]p25.IdentifierUpdate),
	}
	for _, iden := range static {
		t.static[iden.Identifier&0xf] = iden
	}
	return t
}

// Update records an identifier; it reports whether the entry changed.
func (t *IdenTable) Update(iden p25.IdentifierUpdate) bool {
	id := iden.Identifier & 0xf
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.learned[id]; ok && prev == iden {
		return false
	}
	t.learned[id] = iden
	return true
}

func (t *IdenTable) Lookup(id uint8) (p25.IdentifierUpdate, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if iden, ok := t.learned[id]; ok {
		return iden, true
	}
	iden, ok := t.static[id]
	return iden, ok
}

// Resolve returns the downlink frequency for a channel id.
func (t *IdenTable) Resolve(channel uint16) (int, bool) {
	id, number := p25.ChannelNumber(channel)
	iden, ok := t.Lookup(id)
	if !ok || iden.SpacingHz == 0 || iden.BaseHz == 0 {
		return 0, false
	}
	return iden.Frequency(number), true
}

func (t *IdenTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := len(t.learned)
	for id := range t.static {
		if _, ok := t.learned[id]; !ok {
			n++
		}
	}
	return n
}
