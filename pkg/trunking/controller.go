package trunking

import (
	"sort"
	"sync"
	"time"

	"github.com/norasector/p25scanner/pkg/p25"
	"github.com/rs/zerolog"
)

const DefaultGrantTimeout = 3 * time.Second

type UpdateKind int

const (
	GrantReceived UpdateKind = iota
	GrantReleased
	GrantExpired
)

func (k UpdateKind) String() string {
	switch k {
	case GrantReceived:
		return "grant_received"
	case GrantReleased:
		return "grant_released"
	case GrantExpired:
		return "grant_expired"
	}
	return "unknown"
}

// Update is a change to the grant table that the scanner may act on.
type Update struct {
	Kind  UpdateKind
	Grant Grant
}

// Site is the identity of the control channel being followed.
type Site struct {
	WACN             uint32
	SystemID         uint16
	RFSS             uint8
	Site             uint8
	ControlChannel   uint16
	ControlFrequency int
	LastSeen         time.Time
}

type Neighbor struct {
	SystemID  uint16
	RFSS      uint8
	Site      uint8
	Channel   uint16
	Frequency int
	LastSeen  time.Time
}

// endedCall is a call closed by a terminator. Grant updates keep announcing it for a
// while; they are ignored until a new grant arrives or they stop.
type endedCall struct {
	frequency int
	lastSeen  time.Time
}

type ControllerOption func(c *Controller)

func WithLogger(logger zerolog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

func WithGrantTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		c.grantTimeout = d
	}
}

// Controller follows control channel signalling and keeps the table of active grants.
type Controller struct {
	plan         *ChannelPlan
	idens        *IdenTable
	grantTimeout time.Duration
	logger       zerolog.Logger

	mu        sync.RWMutex
	grants    *grantTable
	ended     map[grantKey]endedCall
	site      Site
	neighbors map[uint16]Neighbor
}

func NewController(plan *ChannelPlan, opts ...ControllerOption) *Controller {
	c := &Controller{
		plan:         plan,
		idens:        NewIdenTable(plan.BandPlan),
		grantTimeout: DefaultGrantTimeout,
		logger:       zerolog.Nop(),
		grants:       newGrantTable(),
		ended:        make(map[grantKey]endedCall),
		neighbors:    make(map[uint16]Neighbor),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Plan() *ChannelPlan {
	return c.plan
}

// Follow reports whether the scanner should follow a grant.
func (c *Controller) Follow(g Grant) bool {
	if g.Unit {
		return c.plan.FollowUnitCalls
	}
	return c.plan.Allowed(g.Talkgroup)
}

// ResolveChannel maps a channel id to a downlink frequency using the static channel map
// first and the identifier table second.
func (c *Controller) ResolveChannel(channel uint16) (int, bool) {
	if freq, ok := c.plan.Channels[channel]; ok {
		return freq, true
	}
	return c.idens.Resolve(channel)
}

// HandleTSBK applies one trunking signalling block heard on controlFreq.
func (c *Controller) HandleTSBK(t p25.TSBK, controlFreq int, now time.Time) []Update {
	switch m := t.Message.(type) {
	case p25.GroupVoiceGrant:
		return c.grant(Grant{
			Talkgroup: m.Group,
			Source:    m.Source,
			ChannelID: m.Channel,
			Encrypted: m.Options.Encrypted(),
			Emergency: m.Options.Emergency(),
		}, true, now)
	case p25.GroupVoiceGrantUpdate:
		ups := c.grant(Grant{Talkgroup: m.GroupA, ChannelID: m.ChannelA}, false, now)
		if m.GroupB != m.GroupA || m.ChannelB != m.ChannelA {
			ups = append(ups, c.grant(Grant{Talkgroup: m.GroupB, ChannelID: m.ChannelB}, false, now)...)
		}
		return ups
	case p25.GroupVoiceGrantUpdateExplicit:
		return c.grant(Grant{
			Talkgroup: m.Group,
			ChannelID: m.TxChannel,
			Encrypted: m.Options.Encrypted(),
			Emergency: m.Options.Emergency(),
		}, false, now)
	case p25.UnitVoiceGrant:
		return c.grant(Grant{
			Unit:      true,
			Target:    m.Target,
			Source:    m.Source,
			ChannelID: m.Channel,
		}, true, now)
	case p25.IdentifierUpdate:
		if c.idens.Update(m) {
			c.logger.Info().
				Uint8("identifier", m.Identifier&0xf).
				Str("base", p25.MHzToString(m.BaseHz)).
				Int("spacing", m.SpacingHz).
				Msg("band plan update")
		}
	case p25.RFSSStatus:
		c.mu.Lock()
		c.site.SystemID = m.SystemID
		c.site.RFSS = m.RFSS
		c.site.Site = m.Site
		c.site.ControlChannel = m.Channel
		c.site.ControlFrequency = controlFreq
		c.site.LastSeen = now
		c.mu.Unlock()
	case p25.NetworkStatus:
		c.mu.Lock()
		c.site.WACN = m.WACN
		c.site.SystemID = m.SystemID
		c.site.ControlFrequency = controlFreq
		c.site.LastSeen = now
		c.mu.Unlock()
	case p25.AdjacentStatus:
		freq, _ := c.ResolveChannel(m.Channel)
		c.mu.Lock()
		c.neighbors[uint16(m.RFSS)<<8|uint16(m.Site)] = Neighbor{
			SystemID:  m.SystemID,
			RFSS:      m.RFSS,
			Site:      m.Site,
			Channel:   m.Channel,
			Frequency: freq,
			LastSeen:  now,
		}
		c.mu.Unlock()
	default:
		c.logger.Debug().Str("opcode", t.Opcode.String()).Msg("ignoring tsbk")
	}
	return nil
}

// grant adds or refreshes a call. fresh is set for explicit channel grants, as opposed
// to the update messages repeated while a call is up.
func (c *Controller) grant(g Grant, fresh bool, now time.Time) []Update {
	freq, ok := c.ResolveChannel(g.ChannelID)
	if !ok {
		c.logger.Debug().
			Uint16("channel", g.ChannelID).
			Uint16("talkgroup", g.Talkgroup).
			Msg("unresolvable channel, dropping grant")
		return nil
	}
	g.Frequency = freq
	k := keyOf(g)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.ended[k]; ok {
		if !fresh && e.frequency == freq && now.Sub(e.lastSeen) <= c.grantTimeout {
			e.lastSeen = now
			c.ended[k] = e
			c.logger.Debug().Str("grant", g.String()).Msg("ignoring update for ended call")
			return nil
		}
		delete(c.ended, k)
	}

	var ups []Update
	if holder, ok := c.grants.onFrequency(freq); ok && keyOf(holder) != k {
		c.grants.remove(keyOf(holder))
		ups = append(ups, Update{Kind: GrantReleased, Grant: holder})
	}

	if prev, ok := c.grants.get(k); ok && prev.Frequency == freq {
		prev.LastSeen = now
		if g.Source != 0 {
			prev.Source = g.Source
		}
		prev.Encrypted = prev.Encrypted || g.Encrypted
		prev.Emergency = prev.Emergency || g.Emergency
		c.grants.put(prev)
		return ups
	}

	g.Granted = now
	g.LastSeen = now
	c.grants.put(g)
	c.logger.Debug().
		Str("grant", g.String()).
		Uint32("source", g.Source).
		Bool("encrypted", g.Encrypted).
		Msg("grant received")
	return append(ups, Update{Kind: GrantReceived, Grant: g})
}

// HandleTerminator releases the grant holding freq after a call termination.
func (c *Controller) HandleTerminator(freq int, now time.Time) []Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	holder, ok := c.grants.onFrequency(freq)
	if !ok {
		return nil
	}
	c.grants.remove(keyOf(holder))
	c.ended[keyOf(holder)] = endedCall{frequency: freq, lastSeen: now}
	holder.LastSeen = now
	return []Update{{Kind: GrantReleased, Grant: holder}}
}

// RenewFrequency marks whatever grant is on freq as still active.
func (c *Controller) RenewFrequency(freq int, now time.Time) bool {
	c.mu.RLock()
	holder, ok := c.grants.onFrequency(freq)
	c.mu.RUnlock()
	if !ok {
		return false
	}
	return c.renew(keyOf(holder), now)
}

func (c *Controller) renew(k grantKey, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.grants.get(k)
	if !ok {
		return false
	}
	if now.After(g.LastSeen) {
		g.LastSeen = now
	}
	c.grants.put(g)
	return true
}

// Tick expires grants that have not been heard within the grant timeout.
func (c *Controller) Tick(now time.Time) []Update {
	c.mu.Lock()
	expired := c.grants.expired(now.Add(-c.grantTimeout))
	for k, e := range c.ended {
		if now.Sub(e.lastSeen) > c.grantTimeout {
			delete(c.ended, k)
		}
	}
	c.mu.Unlock()

	ups := make([]Update, 0, len(expired))
	for _, g := range expired {
		ups = append(ups, Update{Kind: GrantExpired, Grant: g})
	}
	return ups
}

func (c *Controller) Grant(talkgroup uint16) (Grant, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.grants.get(grantKey{id: uint32(talkgroup)})
}

func (c *Controller) GrantOnFrequency(freq int) (Grant, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.grants.onFrequency(freq)
}

// ActiveGrants returns the grant table, most recently heard first.
func (c *Controller) ActiveGrants() []Grant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.grants.all()
}

func (c *Controller) Site() Site {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.site
}

func (c *Controller) Neighbors() []Neighbor {
	c.mu.RLock()
	ret := make([]Neighbor, 0, len(c.neighbors))
	for _, n := range c.neighbors {
		ret = append(ret, n)
	}
	c.mu.RUnlock()
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].RFSS != ret[j].RFSS {
			return ret[i].RFSS < ret[j].RFSS
		}
		return ret[i].Site < ret[j].Site
	})
	return ret
}

// Reset forgets grants and site identity, keeping learned band plan entries.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.grants = newGrantTable()
	c.ended = make(map[grantKey]endedCall)
	c.site = Site{}
	c.mu.Unlock()
}
