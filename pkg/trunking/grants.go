package trunking

import (
	"fmt"
	"sort"
	"time"

	"github.com/norasector/p25scanner/pkg/p25"
)

// Grant is an active voice channel assignment.
type Grant struct {
	Talkgroup uint16
	// Unit grants carry the called radio in Target and leave Talkgroup zero.
	Unit      bool
	Target    uint32
	Source    uint32
	ChannelID uint16
	Frequency int
	Granted   time.Time
	LastSeen  time.Time
	Encrypted bool
	Emergency bool
}

func (g Grant) String() string {
	if g.Unit {
		return fmt.Sprintf("unit %d -> %d on %s", g.Source, g.Target, p25.MHzToString(g.Frequency))
	}
	return fmt.Sprintf("tg %d on %s", g.Talkgroup, p25.MHzToString(g.Frequency))
}

type grantKey struct {
	unit bool
	id   uint32
}

func keyOf(g Grant) grantKey {
	if g.Unit {
		return grantKey{unit: true, id: g.Target}
	}
	return grantKey{id: uint32(g.Talkgroup)}
}

// grantTable indexes active grants by call and by frequency. A frequency carries at
// most one call; a call is on at most one frequency.
type grantTable struct {
	byKey       map[grantKey]Grant
	byFrequency map[int]grantKey
}

func newGrantTable() *grantTable {
	return &grantTable{
		byKey:       make(map[grantKey]Grant),
		byFrequency: make(map[int]grantKey),
	}
}

func (t *grantTable) get(k grantKey) (Grant, bool) {
	g, ok := t.byKey[k]
	return g, ok
}

func (t *grantTable) onFrequency(freq int) (Grant, bool) {
	k, ok := t.byFrequency[freq]
	if !ok {
		return Grant{}, false
	}
	return t.byKey[k], true
}

func (t *grantTable) remove(k grantKey) (Grant, bool) {
	g, ok := t.byKey[k]
	if !ok {
		return Grant{}, false
	}
	delete(t.byKey, k)
	if t.byFrequency[g.Frequency] == k {
		delete(t.byFrequency, g.Frequency)
	}
	return g, true
}

func (t *grantTable) put(g Grant) {
	k := keyOf(g)
	if prev, ok := t.byKey[k]; ok && prev.Frequency != g.Frequency && t.byFrequency[prev.Frequency] == k {
		delete(t.byFrequency, prev.Frequency)
	}
	t.byKey[k] = g
	t.byFrequency[g.Frequency] = k
}

// expired removes and returns grants not seen since the cutoff, oldest first.
func (t *grantTable) expired(cutoff time.Time) []Grant {
	var ret []Grant
	for k, g := range t.byKey {
		if g.LastSeen.Before(cutoff) {
			ret = append(ret, g)
			t.remove(k)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].LastSeen.Before(ret[j].LastSeen) })
	return ret
}

func (t *grantTable) all() []Grant {
	ret := make([]Grant, 0, len(t.byKey))
	for _, g := range t.byKey {
		ret = append(ret, g)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].LastSeen.After(ret[j].LastSeen) })
	return ret
}
