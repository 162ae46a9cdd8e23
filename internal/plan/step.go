package plan

import (
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/wellplan/internal/plate"
	"github.com/steveyegge/wellplan/internal/tips"
)

// Step kinds, used as the "kind" tag in JSON output.
const (
	KindTransfer   = "transfer"
	KindCheckpoint = "checkpoint"
	KindDelay      = "delay"
	KindModule     = "module"
)

// Step is one entry in a plan. The set of implementations is closed:
// TransferStep, ManualCheckpoint, Delay, and ModuleCommand. Executors
// dispatch on the concrete type.
type Step interface {
	Kind() string
	String() string
	isStep()
}

// Mix is a mix cycle: aspirate and dispense Volume µl Repetitions times.
type Mix struct {
	Repetitions int     `json:"repetitions"`
	Volume      float64 `json:"volume"`
}

// Options are the per-transfer liquid handling settings passed through
// to the driver unchanged.
type Options struct {
	// BlowOut expels residual liquid after each dispense.
	BlowOut bool `json:"blow_out,omitempty"`
	// AspirateRate and DispenseRate are flow rates in µl/s. Zero keeps
	// the pipette default.
	AspirateRate float64 `json:"aspirate_rate,omitempty"`
	DispenseRate float64 `json:"dispense_rate,omitempty"`
	// Clearance is the tip height above the well bottom in mm.
	Clearance float64 `json:"clearance,omitempty"`
}

// TransferStep moves Volume µl per channel from one column to one or more
// destination columns using a single tip.
type TransferStep struct {
	// Ref is the recipe step that produced this transfer.
	Ref     string `json:"ref,omitempty"`
	Pipette string `json:"pipette"`
	// SourcePool is set when the source is a pool rather than a sample column.
	SourcePool string        `json:"source_pool,omitempty"`
	Source     plate.Address `json:"source"`
	// Destinations are dispensed into in order.
	Destinations []plate.Address `json:"destinations"`
	// SinkPool is set when the destination is a pool (waste, dilution reservoir).
	SinkPool string      `json:"sink_pool,omitempty"`
	Volume   float64     `json:"volume"`
	Tip      tips.Policy `json:"tip"`
	// Class is the contamination class the tip resolver saw.
	Class     string `json:"class,omitempty"`
	Isolate   bool   `json:"isolate,omitempty"`
	MixBefore *Mix   `json:"mix_before,omitempty"`
	MixAfter  *Mix   `json:"mix_after,omitempty"`
	Options
}

func (TransferStep) Kind() string { return KindTransfer }
func (TransferStep) isStep()      {}

// TotalVolume is the volume leaving the source per channel.
func (t TransferStep) TotalVolume() float64 {
	return t.Volume * float64(len(t.Destinations))
}

func (t TransferStep) String() string {
	var b strings.Builder
	src := t.Source.String()
	if t.SourcePool != "" {
		src = fmt.Sprintf("%s (%s)", t.SourcePool, src)
	}
	dst := FormatColumns(t.Destinations)
	if t.SinkPool != "" {
		dst = fmt.Sprintf("%s (%s)", t.SinkPool, dst)
	}
	fmt.Fprintf(&b, "transfer %s %.2f µl %s -> %s [%s]", t.Pipette, t.Volume, src, dst, t.Tip)
	if t.MixBefore != nil {
		fmt.Fprintf(&b, " mix before %dx%.2f µl", t.MixBefore.Repetitions, t.MixBefore.Volume)
	}
	if t.MixAfter != nil {
		fmt.Fprintf(&b, " mix after %dx%.2f µl", t.MixAfter.Repetitions, t.MixAfter.Volume)
	}
	if t.BlowOut {
		b.WriteString(" blow out")
	}
	return b.String()
}

func (t TransferStep) clone() TransferStep {
	t.Destinations = append([]plate.Address(nil), t.Destinations...)
	if t.MixBefore != nil {
		m := *t.MixBefore
		t.MixBefore = &m
	}
	if t.MixAfter != nil {
		m := *t.MixAfter
		t.MixAfter = &m
	}
	return t
}

// ManualCheckpoint blocks execution until an operator acknowledges it.
// Message is display text for the operator, not data.
type ManualCheckpoint struct {
	Ref     string `json:"ref,omitempty"`
	Message string `json:"message,omitempty"`
}

func (ManualCheckpoint) Kind() string { return KindCheckpoint }
func (ManualCheckpoint) isStep()      {}

func (c ManualCheckpoint) String() string {
	if c.Message == "" {
		return "pause"
	}
	return "pause: " + c.Message
}

// Delay holds the robot idle for Duration.
type Delay struct {
	Ref      string        `json:"ref,omitempty"`
	Duration time.Duration `json:"-"`
	Message  string        `json:"message,omitempty"`
}

func (Delay) Kind() string { return KindDelay }
func (Delay) isStep()      {}

func (d Delay) String() string {
	if d.Message == "" {
		return "delay " + d.Duration.String()
	}
	return fmt.Sprintf("delay %s: %s", d.Duration, d.Message)
}

// Module actions.
const (
	ActionTemperature = "temperature"
	ActionEngage      = "engage"
	ActionDisengage   = "disengage"
)

// ModuleCommand drives a hardware module. Value is the target in °C for
// temperature and the magnet height in mm for engage.
type ModuleCommand struct {
	Ref    string  `json:"ref,omitempty"`
	Module string  `json:"module"`
	Action string  `json:"action"`
	Value  float64 `json:"value,omitempty"`
}

func (ModuleCommand) Kind() string { return KindModule }
func (ModuleCommand) isStep()      {}

func (m ModuleCommand) String() string {
	switch m.Action {
	case ActionTemperature:
		return fmt.Sprintf("module %s set temperature %.1f °C", m.Module, m.Value)
	case ActionEngage:
		return fmt.Sprintf("module %s engage at %.1f mm", m.Module, m.Value)
	default:
		return fmt.Sprintf("module %s %s", m.Module, m.Action)
	}
}

// FormatColumns renders addresses compactly. A contiguous run on one
// plate is shown as "rxn:A1..A6".
func FormatColumns(addrs []plate.Address) string {
	switch len(addrs) {
	case 0:
		return "(none)"
	case 1:
		return addrs[0].String()
	}
	contiguous := true
	for i := 1; i < len(addrs); i++ {
		if addrs[i].Plate != addrs[0].Plate || addrs[i].Column != addrs[i-1].Column+1 {
			contiguous = false
			break
		}
	}
	if contiguous {
		return fmt.Sprintf("%s..%s", addrs[0], addrs[len(addrs)-1].WellName())
	}
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ",")
}
