// Package deck loads and validates bench.toml, the description of what
// sits on the robot deck: labware by slot, hardware modules, and the
// pipettes with their tip racks.
//
// A Layout is read once and passed by value into planning; nothing in the
// planner mutates it.
package deck

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/steveyegge/wellplan/internal/fsys"
	"github.com/steveyegge/wellplan/internal/plate"
)

// Labware kinds.
const (
	KindPlate     = "plate"
	KindReservoir = "reservoir"
	KindTipRack   = "tiprack"
)

// Module kinds.
const (
	ModuleTemperature = "temperature"
	ModuleMagnetic    = "magnetic"
)

// Deck slots run 1..MaxSlot.
const MaxSlot = 11

// DefaultTipRackCapacity is the tip count of a standard rack.
const DefaultTipRackCapacity = 96

// Layout is the top-level bench.toml configuration.
type Layout struct {
	// Bench holds bench-level metadata.
	Bench Bench `toml:"bench"`
	// Labware lists every plate, reservoir, and tip rack on the deck.
	Labware []Labware `toml:"labware"`
	// Modules lists hardware modules (temperature, magnetic).
	Modules []Module `toml:"modules,omitempty"`
	// Pipettes lists the mounted pipettes.
	Pipettes []Pipette `toml:"pipettes" jsonschema:"minItems=1"`
}

// Bench holds bench-level metadata.
type Bench struct {
	// Name identifies the bench (robot) in events and plans.
	Name string `toml:"name" jsonschema:"required"`
	// ProtocolsDir is where protocol recipes live, relative to the bench root.
	// Defaults to "protocols".
	ProtocolsDir string `toml:"protocols_dir,omitempty"`
}

// Labware is one item on the deck.
type Labware struct {
	// ID is how protocols refer to this labware.
	ID string `toml:"id" jsonschema:"required"`
	// Kind is "plate", "reservoir", or "tiprack".
	Kind string `toml:"kind" jsonschema:"required,enum=plate,enum=reservoir,enum=tiprack"`
	// LoadName is the vendor labware definition name, passed through to the driver.
	LoadName string `toml:"load_name,omitempty"`
	// Slot is the deck slot (1-11). Omit when the labware sits on a module.
	Slot int `toml:"slot,omitempty"`
	// Module is the id of the module this labware is loaded on.
	Module string `toml:"module,omitempty"`
	// Rows is the number of well rows. Defaults to 8 for plates, 1 for reservoirs.
	Rows int `toml:"rows,omitempty"`
	// Columns is the number of well columns. Defaults to 12.
	Columns int `toml:"columns,omitempty"`
	// WellVolume is the working volume of one well in µl.
	WellVolume float64 `toml:"well_volume,omitempty"`
	// Capacity is the number of tips in a tip rack. Defaults to 96.
	Capacity int `toml:"capacity,omitempty"`
}

// Module is a hardware module occupying a deck slot.
type Module struct {
	// ID is how protocols refer to this module.
	ID string `toml:"id" jsonschema:"required"`
	// Kind is "temperature" or "magnetic".
	Kind string `toml:"kind" jsonschema:"required,enum=temperature,enum=magnetic"`
	// Slot is the deck slot (1-11).
	Slot int `toml:"slot" jsonschema:"required"`
	// LoadName is the vendor module name, passed through to the driver.
	LoadName string `toml:"load_name,omitempty"`
}

// Pipette is a mounted pipette: the PipetteProfile of a plan.
type Pipette struct {
	// Name is how protocols refer to this pipette (e.g. "p20").
	Name string `toml:"name" jsonschema:"required"`
	// Mount is "left" or "right".
	Mount string `toml:"mount,omitempty" jsonschema:"enum=left,enum=right"`
	// Model is the vendor instrument name, passed through to the driver.
	Model string `toml:"model,omitempty"`
	// Channels is the channel width of the head. Defaults to 8.
	Channels int `toml:"channels,omitempty"`
	// MaxVolume is the largest volume one aspiration can hold, in µl.
	MaxVolume float64 `toml:"max_volume" jsonschema:"required"`
	// MinVolume is the smallest volume the pipette moves accurately, in µl.
	MinVolume float64 `toml:"min_volume,omitempty"`
	// TipRacks lists the ids of the tip racks this pipette draws from.
	TipRacks []string `toml:"tip_racks" jsonschema:"minItems=1"`
}

// ChannelWidth returns the configured channel count, defaulting to 8.
func (p Pipette) ChannelWidth() int {
	if p.Channels <= 0 {
		return plate.DefaultWidth
	}
	return p.Channels
}

// Geometry returns the labware's grid, applying kind defaults.
func (l Labware) Geometry() plate.Geometry {
	g := plate.Geometry{Rows: l.Rows, Columns: l.Columns}
	if g.Columns <= 0 {
		g.Columns = 12
	}
	if g.Rows <= 0 {
		if l.Kind == KindReservoir {
			g.Rows = 1
		} else {
			g.Rows = plate.DefaultWidth
		}
	}
	return g
}

// TipCapacity returns the tip count of a tip rack, defaulting to 96.
func (l Labware) TipCapacity() int {
	if l.Capacity <= 0 {
		return DefaultTipRackCapacity
	}
	return l.Capacity
}

// ProtocolsDir returns the protocols directory relative to the bench root.
func (l *Layout) ProtocolsDir() string {
	if l.Bench.ProtocolsDir == "" {
		return "protocols"
	}
	return l.Bench.ProtocolsDir
}

// Find returns the labware with the given id.
func (l *Layout) Find(id string) (Labware, bool) {
	for _, lw := range l.Labware {
		if lw.ID == id {
			return lw, true
		}
	}
	return Labware{}, false
}

// Plate returns the plate with the given id. Reservoirs are not plates.
func (l *Layout) Plate(id string) (Labware, error) {
	lw, ok := l.Find(id)
	if !ok {
		return Labware{}, fmt.Errorf("unknown labware %q", id)
	}
	if lw.Kind != KindPlate {
		return Labware{}, fmt.Errorf("labware %q is a %s, not a plate", id, lw.Kind)
	}
	return lw, nil
}

// Pipette returns the pipette with the given name.
func (l *Layout) Pipette(name string) (Pipette, error) {
	for _, p := range l.Pipettes {
		if p.Name == name {
			return p, nil
		}
	}
	return Pipette{}, fmt.Errorf("unknown pipette %q", name)
}

// Module returns the module with the given id.
func (l *Layout) Module(id string) (Module, error) {
	for _, m := range l.Modules {
		if m.ID == id {
			return m, nil
		}
	}
	return Module{}, fmt.Errorf("unknown module %q", id)
}

// PipetteFor returns the pipette with the smallest max volume that can
// move volume in one aspiration.
func (l *Layout) PipetteFor(volume float64) (Pipette, error) {
	candidates := append([]Pipette(nil), l.Pipettes...)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].MaxVolume < candidates[j].MaxVolume
	})
	for _, p := range candidates {
		if volume <= p.MaxVolume {
			return p, nil
		}
	}
	return Pipette{}, fmt.Errorf("no pipette can move %.2f µl in one aspiration", volume)
}

// TipCapacity returns the total tips in the pipette's racks.
func (l *Layout) TipCapacity(p Pipette) int {
	total := 0
	for _, id := range p.TipRacks {
		if lw, ok := l.Find(id); ok {
			total += lw.TipCapacity()
		}
	}
	return total
}

// Default returns the layout written by "wp init": a 20 µl and a 300 µl
// eight-channel pipette, a PCR plate, a 12-well reservoir, and a
// temperature module.
func Default(name string) Layout {
	return Layout{
		Bench: Bench{Name: name},
		Labware: []Labware{
			{ID: "plate", Kind: KindPlate, LoadName: "armadillo_96_wellplate_200ul_pcr_full_skirt", Slot: 1, WellVolume: 200},
			{ID: "source", Kind: KindPlate, LoadName: "armadillo_96_wellplate_200ul_pcr_full_skirt", Slot: 2, WellVolume: 200},
			{ID: "cold", Kind: KindPlate, LoadName: "armadillo_96_wellplate_200ul_pcr_full_skirt", Module: "temp", WellVolume: 200},
			{ID: "tips20", Kind: KindTipRack, LoadName: "opentrons_96_tiprack_20ul", Slot: 4},
			{ID: "tips300", Kind: KindTipRack, LoadName: "opentrons_96_tiprack_300ul", Slot: 5},
			{ID: "reservoir", Kind: KindReservoir, LoadName: "usascientific_12_reservoir_22ml", Slot: 6, WellVolume: 22000},
		},
		Modules: []Module{
			{ID: "temp", Kind: ModuleTemperature, Slot: 3, LoadName: "temperature module gen2"},
		},
		Pipettes: []Pipette{
			{Name: "p20", Mount: "right", Model: "p20_multi_gen2", MaxVolume: 20, MinVolume: 1, TipRacks: []string{"tips20"}},
			{Name: "p300", Mount: "left", Model: "p300_multi_gen2", MaxVolume: 300, MinVolume: 20, TipRacks: []string{"tips300"}},
		},
	}
}

// Marshal encodes a Layout to TOML bytes.
func (l *Layout) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(l); err != nil {
		return nil, fmt.Errorf("marshaling bench: %w", err)
	}
	return buf.Bytes(), nil
}

// Load reads, parses, and validates a bench.toml file.
func Load(fs fsys.FS, path string) (*Layout, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading bench %q: %w", path, err)
	}
	l, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("loading bench %q: %w", path, err)
	}
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("loading bench %q: %w", path, err)
	}
	return l, nil
}

// Parse decodes TOML data into a Layout. Unknown keys are rejected so a
// misspelled field never silently falls back to a default.
func Parse(data []byte) (*Layout, error) {
	var l Layout
	md, err := toml.Decode(string(data), &l)
	if err != nil {
		return nil, fmt.Errorf("parsing bench: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parsing bench: unknown key %q", undecoded[0].String())
	}
	return &l, nil
}
