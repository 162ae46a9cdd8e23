// Package protocol parses and compiles protocol recipes.
//
// A protocol is a *.protocol.toml (or *.protocol.yaml) file that names
// sample sets on the deck's plates, the liquid pools a run draws from, and
// an ordered list of steps: distributions, column transfers, collections,
// pauses, delays, and module commands. Compile turns a protocol and a deck
// layout into a validated plan.
package protocol

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Step actions.
const (
	ActionDistribute  = "distribute"
	ActionTransfer    = "transfer"
	ActionCollect     = "collect"
	ActionPause       = "pause"
	ActionDelay       = "delay"
	ActionTemperature = "temperature"
	ActionEngage      = "engage"
	ActionDisengage   = "disengage"
)

// Tip settings for a step.
const (
	TipNever   = "never"
	TipIsolate = "isolate"
)

// Protocol is a parsed protocol recipe.
type Protocol struct {
	// Name is the unique identifier for this protocol.
	Name string `toml:"protocol" yaml:"protocol" jsonschema:"required"`
	// Description explains what this protocol does.
	Description string `toml:"description,omitempty" yaml:"description,omitempty"`
	// Author is who wrote the protocol.
	Author string `toml:"author,omitempty" yaml:"author,omitempty"`
	// Reactions is the number of samples processed. Sample sets without
	// an explicit count hold this many samples.
	Reactions int `toml:"reactions" yaml:"reactions" jsonschema:"required,minimum=1"`
	// Samples names column ranges on the deck's plates.
	Samples []SampleSet `toml:"samples,omitempty" yaml:"samples,omitempty"`
	// Pools lists the liquid sources and sinks the protocol uses.
	Pools []Pool `toml:"pools,omitempty" yaml:"pools,omitempty"`
	// Steps is the ordered sequence of actions.
	Steps []Step `toml:"steps" yaml:"steps" jsonschema:"minItems=1"`
}

// SampleSet is a named column range on one or more plates.
type SampleSet struct {
	// Name is how steps refer to this set.
	Name string `toml:"name" yaml:"name" jsonschema:"required"`
	// Plate is the plate the set lives on.
	Plate string `toml:"plate,omitempty" yaml:"plate,omitempty"`
	// Plates spreads the set across several plates, filled in order.
	// Mutually exclusive with Plate.
	Plates []string `toml:"plates,omitempty" yaml:"plates,omitempty"`
	// Start is the first column. Defaults to 1.
	Start int `toml:"start,omitempty" yaml:"start,omitempty" jsonschema:"minimum=1"`
	// Count is the number of samples. Defaults to the protocol's reactions.
	Count int `toml:"count,omitempty" yaml:"count,omitempty"`
	// Shares names a set whose columns this set may reuse, such as a
	// dilution made in place over its cultures.
	Shares string `toml:"shares,omitempty" yaml:"shares,omitempty"`
}

// Pool is a liquid source or sink at one column of a labware.
type Pool struct {
	// ID is how steps refer to this pool.
	ID string `toml:"id" yaml:"id" jsonschema:"required"`
	// Labware is the reservoir or plate holding the liquid.
	Labware string `toml:"labware" yaml:"labware" jsonschema:"required"`
	// Well is the top-row well of the column, e.g. "A12".
	Well string `toml:"well" yaml:"well" jsonschema:"required"`
	// Volume is the drawable volume per channel in µl.
	Volume float64 `toml:"volume,omitempty" yaml:"volume,omitempty"`
	// Capacity bounds what a sink pool may receive in µl. 0 is unbounded.
	Capacity float64 `toml:"capacity,omitempty" yaml:"capacity,omitempty"`
	// Class is the contamination class of the liquid. Defaults to the id.
	Class string `toml:"class,omitempty" yaml:"class,omitempty"`
}

// Mix is a mix cycle.
type Mix struct {
	Repetitions int     `toml:"repetitions" yaml:"repetitions" jsonschema:"required,minimum=1"`
	Volume      float64 `toml:"volume" yaml:"volume" jsonschema:"required"`
}

// Step is one action in a protocol.
type Step struct {
	// ID is the unique identifier for this step within the protocol.
	ID string `toml:"id" yaml:"id" jsonschema:"required"`
	// Action is what the step does.
	Action string `toml:"action" yaml:"action" jsonschema:"required,enum=distribute,enum=transfer,enum=collect,enum=pause,enum=delay,enum=temperature,enum=engage,enum=disengage"`
	// Pipette names the pipette to use. Empty picks the smallest that fits.
	Pipette string `toml:"pipette,omitempty" yaml:"pipette,omitempty"`
	// Volume is µl per channel per column.
	Volume float64 `toml:"volume,omitempty" yaml:"volume,omitempty"`
	// From lists source pools (distribute) or one sample set (transfer, collect).
	From []string `toml:"from,omitempty" yaml:"from,omitempty"`
	// To is the destination sample set, or the sink pool for collect.
	To string `toml:"to,omitempty" yaml:"to,omitempty"`
	// Tip is "" to let the planner decide, "never", or "isolate".
	Tip string `toml:"tip,omitempty" yaml:"tip,omitempty" jsonschema:"enum=,enum=never,enum=isolate"`
	// MixBefore mixes the source before aspirating.
	MixBefore *Mix `toml:"mix_before,omitempty" yaml:"mix_before,omitempty"`
	// MixAfter mixes each destination after dispensing.
	MixAfter *Mix `toml:"mix_after,omitempty" yaml:"mix_after,omitempty"`
	// BlowOut expels residual liquid after dispensing.
	BlowOut bool `toml:"blow_out,omitempty" yaml:"blow_out,omitempty"`
	// AspirateRate and DispenseRate are flow rates in µl/s.
	AspirateRate float64 `toml:"aspirate_rate,omitempty" yaml:"aspirate_rate,omitempty"`
	DispenseRate float64 `toml:"dispense_rate,omitempty" yaml:"dispense_rate,omitempty"`
	// Clearance is the tip height above the well bottom in mm.
	Clearance float64 `toml:"clearance,omitempty" yaml:"clearance,omitempty"`
	// Repeat runs the step this many times. Defaults to 1.
	Repeat int `toml:"repeat,omitempty" yaml:"repeat,omitempty"`
	// Message is shown to the operator at a pause or delay.
	Message string `toml:"message,omitempty" yaml:"message,omitempty"`
	// Minutes is the length of a delay.
	Minutes float64 `toml:"minutes,omitempty" yaml:"minutes,omitempty"`
	// Module names the module for temperature, engage, and disengage.
	Module string `toml:"module,omitempty" yaml:"module,omitempty"`
	// Celsius is the target of a temperature step.
	Celsius float64 `toml:"celsius,omitempty" yaml:"celsius,omitempty"`
	// Height is the magnet height of an engage step in mm.
	Height float64 `toml:"height,omitempty" yaml:"height,omitempty"`
}

// Parse decodes TOML data into a Protocol. Unknown keys are rejected.
func Parse(data []byte) (*Protocol, error) {
	var p Protocol
	md, err := toml.Decode(string(data), &p)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	return &p, nil
}

// ParseYAML decodes YAML data into a Protocol. Unknown keys are rejected.
func ParseYAML(data []byte) (*Protocol, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("protocol is empty")
	}
	var p Protocol
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Marshal encodes a Protocol as TOML.
func Marshal(p *Protocol) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
