// Package tips decides when the pipette needs a fresh tip.
//
// A tip that has touched one liquid must not touch another, but throwing
// a tip away after every dispense of the same reagent wastes racks. The
// resolver walks the step sequence once and lets a step keep the tip left
// by the previous step on the same pipette only when both move the same
// material.
//
// A step uses a single tip for all of its destinations. Steps whose
// destinations would contaminate the tip (mixing after dispense) are
// emitted one destination at a time by the planner.
package tips

import (
	"errors"
	"fmt"
)

// Policy is the tip handling at the start of one transfer step.
type Policy string

const (
	// Reuse keeps the tip held from the previous step on the pipette.
	Reuse Policy = "reuse"
	// AlwaysFresh drops any held tip and picks up a new one.
	AlwaysFresh Policy = "always_fresh"
	// Never issues no tip-management call; the operator manages the tip.
	Never Policy = "never"
)

// ErrTipsExhausted is returned when a plan needs more tips than the
// pipette's racks hold.
var ErrTipsExhausted = errors.New("tips exhausted")

// Draft is the tip-relevant part of a planned transfer step.
type Draft struct {
	// Pipette is the instrument performing the step. Each pipette holds
	// its own tip.
	Pipette string
	// Class names the material the tip touches. Empty means unknown.
	Class string
	// MustIsolate forces a fresh tip and forbids the next step from
	// sharing it.
	MustIsolate bool
	// Pinned requests a policy explicitly. Only Never is honoured;
	// isolation overrides it.
	Pinned Policy
	// AfterPause marks the first transfer after a checkpoint or timed
	// wait. Every pipette drops its held tip across the pause.
	AfterPause bool
}

// Resolve annotates each draft with a tip policy. Step i reuses the held
// tip only when the previous step on the same pipette carried the same
// non-empty class and neither step must isolate. A Never step leaves the
// tip state unknown, so the step after it starts fresh. No tip is kept
// across a pause.
func Resolve(drafts []Draft) []Policy {
	out := make([]Policy, len(drafts))
	held := make(map[string]Draft)
	for i, d := range drafts {
		if d.AfterPause {
			clear(held)
		}
		if d.Pinned == Never && !d.MustIsolate {
			out[i] = Never
			delete(held, d.Pipette)
			continue
		}
		prev, ok := held[d.Pipette]
		if ok && compatible(prev, d) {
			out[i] = Reuse
		} else {
			out[i] = AlwaysFresh
		}
		held[d.Pipette] = d
	}
	return out
}

func compatible(prev, next Draft) bool {
	return prev.Class != "" &&
		prev.Class == next.Class &&
		!prev.MustIsolate &&
		!next.MustIsolate
}

// Pickups counts the fresh tips each pipette picks up under policies.
func Pickups(drafts []Draft, policies []Policy) map[string]int {
	counts := make(map[string]int)
	for i, d := range drafts {
		if policies[i] == AlwaysFresh {
			counts[d.Pipette]++
		}
	}
	return counts
}

// Budget checks pickups against the tips in a pipette's racks. Each
// multi-channel pickup consumes one column of tips, channels wide.
func Budget(pipette string, pickups, channels, tipsInRacks int) error {
	if channels <= 0 {
		channels = 1
	}
	available := tipsInRacks / channels
	if pickups > available {
		return fmt.Errorf("%w: pipette %q needs %d tip pickups, racks hold %d",
			ErrTipsExhausted, pipette, pickups, available)
	}
	return nil
}
