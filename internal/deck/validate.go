package deck

import "fmt"

// Validate checks a Layout for structural correctness: a bench name,
// unique ids, slots within 1..11 and used once, labware either in a slot
// or on a known module, positive geometry, and pipettes whose tip racks
// exist and are tip racks.
func (l *Layout) Validate() error {
	if l.Bench.Name == "" {
		return fmt.Errorf("bench name is required")
	}
	if len(l.Pipettes) == 0 {
		return fmt.Errorf("bench %q has no pipettes", l.Bench.Name)
	}

	slots := make(map[int]string)
	claim := func(slot int, owner string) error {
		if slot < 1 || slot > MaxSlot {
			return fmt.Errorf("%s: slot %d out of range 1..%d", owner, slot, MaxSlot)
		}
		if prev, ok := slots[slot]; ok {
			return fmt.Errorf("%s: slot %d already holds %s", owner, slot, prev)
		}
		slots[slot] = owner
		return nil
	}

	modules := make(map[string]bool)
	for _, m := range l.Modules {
		if m.ID == "" {
			return fmt.Errorf("module in slot %d has no id", m.Slot)
		}
		if modules[m.ID] {
			return fmt.Errorf("duplicate module id %q", m.ID)
		}
		modules[m.ID] = true
		if m.Kind != ModuleTemperature && m.Kind != ModuleMagnetic {
			return fmt.Errorf("module %q: unknown kind %q", m.ID, m.Kind)
		}
		if err := claim(m.Slot, "module "+m.ID); err != nil {
			return err
		}
	}

	ids := make(map[string]bool)
	onModule := make(map[string]string)
	for _, lw := range l.Labware {
		if lw.ID == "" {
			return fmt.Errorf("labware in slot %d has no id", lw.Slot)
		}
		if ids[lw.ID] || modules[lw.ID] {
			return fmt.Errorf("duplicate labware id %q", lw.ID)
		}
		ids[lw.ID] = true
		switch lw.Kind {
		case KindPlate, KindReservoir, KindTipRack:
		default:
			return fmt.Errorf("labware %q: unknown kind %q", lw.ID, lw.Kind)
		}
		if lw.Module != "" {
			if !modules[lw.Module] {
				return fmt.Errorf("labware %q: unknown module %q", lw.ID, lw.Module)
			}
			if prev, ok := onModule[lw.Module]; ok {
				return fmt.Errorf("labware %q: module %q already holds %s", lw.ID, lw.Module, prev)
			}
			if lw.Slot != 0 {
				return fmt.Errorf("labware %q: set slot or module, not both", lw.ID)
			}
			onModule[lw.Module] = lw.ID
		} else if err := claim(lw.Slot, "labware "+lw.ID); err != nil {
			return err
		}
		if lw.Rows < 0 || lw.Columns < 0 || lw.WellVolume < 0 || lw.Capacity < 0 {
			return fmt.Errorf("labware %q: negative geometry", lw.ID)
		}
	}

	names := make(map[string]bool)
	for _, p := range l.Pipettes {
		if p.Name == "" {
			return fmt.Errorf("pipette on %s mount has no name", p.Mount)
		}
		if names[p.Name] {
			return fmt.Errorf("duplicate pipette name %q", p.Name)
		}
		names[p.Name] = true
		if p.MaxVolume <= 0 {
			return fmt.Errorf("pipette %q: max_volume must be positive", p.Name)
		}
		if p.MinVolume < 0 || p.MinVolume > p.MaxVolume {
			return fmt.Errorf("pipette %q: min_volume must be within 0..max_volume", p.Name)
		}
		if len(p.TipRacks) == 0 {
			return fmt.Errorf("pipette %q has no tip racks", p.Name)
		}
		for _, id := range p.TipRacks {
			lw, ok := l.Find(id)
			if !ok {
				return fmt.Errorf("pipette %q: unknown tip rack %q", p.Name, id)
			}
			if lw.Kind != KindTipRack {
				return fmt.Errorf("pipette %q: %q is a %s, not a tip rack", p.Name, id, lw.Kind)
			}
		}
	}
	return nil
}
