package config

import (
	"fmt"

	"github.com/rakyury/pmu30-host/internal/channel"
	"github.com/rakyury/pmu30-host/internal/protoerr"
)

// Validate runs the graph-level checks spec.md §4.3 requires after a
// structurally-valid parse: unique IDs, referential integrity,
// acyclicity, per-variant range checks, and hardware-binding sanity. It
// stops at the first violation, mirroring the device's own reject-whole
// behavior on SET_CONFIG.
func Validate(cfg *Config) error {
	byID := make(map[uint16]*channel.Channel, len(cfg.Channels))
	for _, c := range cfg.Channels {
		if _, dup := byID[c.ID]; dup {
			return fmt.Errorf("config: %w: %d", protoerr.ErrDuplicateID, c.ID)
		}
		byID[c.ID] = c
	}

	for _, c := range cfg.Channels {
		if err := rangeCheck(c); err != nil {
			return err
		}
		if err := hwBindingCheck(c); err != nil {
			return err
		}
		for _, ref := range c.References() {
			if _, ok := byID[ref]; !ok {
				return fmt.Errorf("config: %w: %d", protoerr.ErrDanglingRef, ref)
			}
		}
	}

	if chain := findCycle(cfg.Channels, byID); chain != nil {
		return fmt.Errorf("config: %w: %v", protoerr.ErrCyclicRef, chain)
	}
	return nil
}

func rangeCheck(c *channel.Channel) error {
	if len(c.Name) > channel.MaxNameLen {
		return fmt.Errorf("config: %w: channel %d name too long", protoerr.ErrRangeInvalid, c.ID)
	}
	if lp, ok := c.Payload.(*channel.LogicPayload); ok {
		if int(lp.InputCount) > MaxLogicInputs {
			return fmt.Errorf("config: %w: channel %d logic input_count %d exceeds %d", protoerr.ErrRangeInvalid, c.ID, lp.InputCount, MaxLogicInputs)
		}
		if !lp.Operation.Valid() {
			return fmt.Errorf("config: %w: channel %d unknown logic operation %d", protoerr.ErrRangeInvalid, c.ID, lp.Operation)
		}
	}
	return nil
}

func hwBindingCheck(c *channel.Channel) error {
	switch {
	case c.Kind.IsOutput() && c.HwDevice == channel.HwNone:
		return fmt.Errorf("config: %w: output channel %d has no hardware binding", protoerr.ErrHwBinding, c.ID)
	case c.Kind.IsVirtual() && c.HwDevice != channel.HwNone:
		return fmt.Errorf("config: %w: virtual channel %d has a hardware binding", protoerr.ErrHwBinding, c.ID)
	}
	return nil
}

// findCycle runs a recursive DFS with a recursion-stack color map over
// the reference graph and returns the first cycle found as an ID chain,
// or nil if the graph is acyclic.
func findCycle(channels []*channel.Channel, byID map[uint16]*channel.Channel) []uint16 {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[uint16]int, len(channels))
	var path []uint16
	var cycle []uint16

	var visit func(id uint16) bool
	visit = func(id uint16) bool {
		color[id] = gray
		path = append(path, id)
		c := byID[id]
		if c != nil {
			for _, ref := range c.References() {
				if ref == id {
					cycle = append(append([]uint16{}, path...), ref)
					return true
				}
				switch color[ref] {
				case white:
					if visit(ref) {
						return true
					}
				case gray:
					cycle = append(append([]uint16{}, path...), ref)
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return false
	}

	for _, c := range channels {
		if color[c.ID] == white {
			if visit(c.ID) {
				return cycle
			}
		}
	}
	return nil
}
