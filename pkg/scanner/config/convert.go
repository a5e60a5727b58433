package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/norasector/p25scanner/pkg/p25"
	"github.com/norasector/p25scanner/pkg/scanner/device"
	"github.com/norasector/p25scanner/pkg/trunking"
)

func (d Device) ParseGain() (device.Gain, error) {
	s := strings.TrimSpace(strings.ToLower(d.Gain))
	if s == "" || s == "auto" {
		return device.Gain{Auto: true}, nil
	}
	db, err := strconv.ParseFloat(strings.TrimSuffix(s, "db"), 64)
	if err != nil {
		return device.Gain{}, fmt.Errorf("bad device.gain %q", d.Gain)
	}
	return device.Gain{TenthsDB: int(math.Round(db * 10))}, nil
}

// ChannelPlan converts the system section for the trunking controller.
func (s System) ChannelPlan() *trunking.ChannelPlan {
	plan := &trunking.ChannelPlan{
		ControlFrequencies: append([]int(nil), s.ControlFrequencies...),
		Channels:           make(map[uint16]int, len(s.Channels)),
		Allow:              append([]uint16(nil), s.Allow...),
		Deny:               append([]uint16(nil), s.Deny...),
		FollowUnitCalls:    s.FollowUnitCalls,
	}
	for id, freq := range s.Channels {
		plan.Channels[id] = freq
	}
	for _, e := range s.BandPlan {
		plan.BandPlan = append(plan.BandPlan, p25.IdentifierUpdate{
			Identifier:  e.Identifier,
			BaseHz:      e.BaseHz,
			SpacingHz:   e.SpacingHz,
			BandwidthHz: e.BandwidthHz,
			TxOffsetHz:  e.TxOffsetHz,
		})
	}
	return plan
}
