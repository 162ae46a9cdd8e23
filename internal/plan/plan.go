// Package plan assembles ordered liquid-handling plans.
//
// A Planner is built from an immutable deck layout and the initial pool
// volumes. Callers claim named sample sets (column ranges on plates), then
// add transfers, checkpoints, delays, and module commands in order. Build
// resolves tip policies, checks tip capacity, and returns a Plan that is
// safe to hand to an executor. Any error from any builder call is kept and
// returned by Build, so an invalid plan never exists.
package plan

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// PoolUsage is the ledger entry of one pool after planning.
type PoolUsage struct {
	ID string `json:"id"`
	// Before and After are the drawable volumes per channel.
	Before float64 `json:"before"`
	After  float64 `json:"after"`
	// Received is the volume collected into a sink pool.
	Received float64 `json:"received,omitempty"`
}

// Drawn is the volume the plan takes from the pool.
func (u PoolUsage) Drawn() float64 { return u.Before - u.After }

// TipUsage is the tip consumption of one pipette.
type TipUsage struct {
	Pipette string `json:"pipette"`
	// Pickups is the number of fresh (multi-channel) tip pickups.
	Pickups int `json:"pickups"`
	// Available is the number of pickups the pipette's racks allow.
	Available int `json:"available"`
}

// Plan is a built, validated sequence of steps. It is read-only: accessors
// return copies.
type Plan struct {
	// Name is the protocol the plan was compiled from.
	Name string
	// Bench is the bench the plan was built for.
	Bench string

	steps []Step
	pools []PoolUsage
	tips  []TipUsage
}

// Steps returns a copy of the plan's steps in execution order.
func (p *Plan) Steps() []Step {
	out := make([]Step, len(p.steps))
	for i, s := range p.steps {
		if t, ok := s.(TransferStep); ok {
			s = t.clone()
		}
		out[i] = s
	}
	return out
}

// Len returns the number of steps.
func (p *Plan) Len() int { return len(p.steps) }

// Pools returns the pool ledger in the order pools were supplied.
func (p *Plan) Pools() []PoolUsage {
	return append([]PoolUsage(nil), p.pools...)
}

// Tips returns tip usage per pipette, sorted by pipette name.
func (p *Plan) Tips() []TipUsage {
	return append([]TipUsage(nil), p.tips...)
}

// Counts returns the number of steps of each kind.
func (p *Plan) Counts() map[string]int {
	counts := make(map[string]int)
	for _, s := range p.steps {
		counts[s.Kind()]++
	}
	return counts
}

// TransferVolume is the total volume moved per channel by all transfers.
func (p *Plan) TransferVolume() float64 {
	var total float64
	for _, s := range p.steps {
		if t, ok := s.(TransferStep); ok {
			total += t.TotalVolume()
		}
	}
	return total
}

// WriteText renders the plan for an operator: numbered steps followed by
// the pool ledger and tip usage.
func (p *Plan) WriteText(w io.Writer) error {
	ew := &errWriter{w: w}
	name := p.Name
	if name == "" {
		name = "(unnamed)"
	}
	ew.printf("plan %s", name)
	if p.Bench != "" {
		ew.printf(" on %s", p.Bench)
	}
	ew.printf(": %d steps\n", len(p.steps))
	for i, s := range p.steps {
		ew.printf("%4d. %s\n", i+1, s)
	}
	if len(p.pools) > 0 {
		ew.printf("\npools:\n")
		for _, u := range p.pools {
			ew.printf("  %-20s %9.2f -> %9.2f µl", u.ID, u.Before, u.After)
			if u.Received > 0 {
				ew.printf("  (+%.2f µl collected)", u.Received)
			}
			ew.printf("\n")
		}
	}
	if len(p.tips) > 0 {
		ew.printf("\ntips:\n")
		for _, t := range p.tips {
			ew.printf("  %-20s %d of %d pickups\n", t.Pipette, t.Pickups, t.Available)
		}
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

type planJSON struct {
	Name  string            `json:"name,omitempty"`
	Bench string            `json:"bench,omitempty"`
	Steps []json.RawMessage `json:"steps"`
	Pools []PoolUsage       `json:"pools"`
	Tips  []TipUsage        `json:"tips"`
}

// MarshalJSON encodes the plan with each step tagged by "kind".
func (p *Plan) MarshalJSON() ([]byte, error) {
	out := planJSON{
		Name:  p.Name,
		Bench: p.Bench,
		Steps: make([]json.RawMessage, 0, len(p.steps)),
		Pools: p.Pools(),
		Tips:  p.Tips(),
	}
	for i, s := range p.steps {
		data, err := marshalStep(s)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		out.Steps = append(out.Steps, data)
	}
	return json.Marshal(out)
}

func marshalStep(s Step) ([]byte, error) {
	switch v := s.(type) {
	case TransferStep:
		return json.Marshal(struct {
			Kind string `json:"kind"`
			TransferStep
		}{KindTransfer, v})
	case ManualCheckpoint:
		return json.Marshal(struct {
			Kind string `json:"kind"`
			ManualCheckpoint
		}{KindCheckpoint, v})
	case Delay:
		return json.Marshal(struct {
			Kind    string  `json:"kind"`
			Seconds float64 `json:"seconds"`
			Delay
		}{KindDelay, v.Duration.Seconds(), v})
	case ModuleCommand:
		return json.Marshal(struct {
			Kind string `json:"kind"`
			ModuleCommand
		}{KindModule, v})
	default:
		return nil, fmt.Errorf("unknown step type %T", s)
	}
}

// Duration sums the delays in the plan. Checkpoints and transfers are not
// counted since their duration depends on the operator and the robot.
func (p *Plan) Duration() time.Duration {
	var d time.Duration
	for _, s := range p.steps {
		if dl, ok := s.(Delay); ok {
			d += dl.Duration
		}
	}
	return d
}
