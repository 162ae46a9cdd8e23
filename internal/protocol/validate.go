package protocol

import (
	"fmt"

	"github.com/steveyegge/wellplan/internal/deck"
	"github.com/steveyegge/wellplan/internal/plate"
)

// Validate checks a Protocol for structural correctness: a name, positive
// reactions, at least one step, unique ids, and every reference to a
// sample set, pool, pipette, or module resolving. When layout is non-nil
// the deck references (plates, labware, pipettes, modules) are checked
// against it too.
func Validate(p *Protocol, layout *deck.Layout) error {
	if p.Name == "" {
		return fmt.Errorf("protocol name is required")
	}
	if p.Reactions <= 0 {
		return fmt.Errorf("protocol %q: reactions must be positive, got %d", p.Name, p.Reactions)
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("protocol %q has no steps", p.Name)
	}

	sets := make(map[string]bool)
	for _, s := range p.Samples {
		if err := validateSet(s, sets, layout); err != nil {
			return fmt.Errorf("protocol %q: %w", p.Name, err)
		}
		sets[s.Name] = true
	}
	for _, s := range p.Samples {
		if s.Shares != "" && (!sets[s.Shares] || s.Shares == s.Name) {
			return fmt.Errorf("protocol %q: sample set %q shares unknown set %q", p.Name, s.Name, s.Shares)
		}
	}

	pools := make(map[string]bool)
	for _, pl := range p.Pools {
		if err := validatePool(pl, pools, layout); err != nil {
			return fmt.Errorf("protocol %q: %w", p.Name, err)
		}
		pools[pl.ID] = true
	}

	ids := make(map[string]bool)
	for _, s := range p.Steps {
		if s.ID == "" {
			return fmt.Errorf("protocol %q has a step with no id", p.Name)
		}
		if ids[s.ID] {
			return fmt.Errorf("protocol %q has duplicate step ID %q", p.Name, s.ID)
		}
		ids[s.ID] = true
		if err := validateStep(s, sets, pools, layout); err != nil {
			return fmt.Errorf("protocol %q: step %q: %w", p.Name, s.ID, err)
		}
	}
	return nil
}

func validateSet(s SampleSet, seen map[string]bool, layout *deck.Layout) error {
	if s.Name == "" {
		return fmt.Errorf("sample set with no name")
	}
	if seen[s.Name] {
		return fmt.Errorf("duplicate sample set %q", s.Name)
	}
	if (s.Plate == "") == (len(s.Plates) == 0) {
		return fmt.Errorf("sample set %q: set exactly one of plate or plates", s.Name)
	}
	if s.Start < 0 || s.Count < 0 {
		return fmt.Errorf("sample set %q: start and count must not be negative", s.Name)
	}
	if layout == nil {
		return nil
	}
	plates := s.Plates
	if s.Plate != "" {
		plates = []string{s.Plate}
	}
	for _, id := range plates {
		if _, err := layout.Plate(id); err != nil {
			return fmt.Errorf("sample set %q: %w", s.Name, err)
		}
	}
	return nil
}

func validatePool(pl Pool, seen map[string]bool, layout *deck.Layout) error {
	if pl.ID == "" {
		return fmt.Errorf("pool with no id")
	}
	if seen[pl.ID] {
		return fmt.Errorf("duplicate pool %q", pl.ID)
	}
	if pl.Volume < 0 || pl.Capacity < 0 {
		return fmt.Errorf("pool %q: volume and capacity must not be negative", pl.ID)
	}
	row, _, err := plate.ParseWell(pl.Well)
	if err != nil {
		return fmt.Errorf("pool %q: %w", pl.ID, err)
	}
	if row != 0 {
		return fmt.Errorf("pool %q: well %q is not in row A; pools are addressed by column", pl.ID, pl.Well)
	}
	if layout == nil {
		return nil
	}
	lw, ok := layout.Find(pl.Labware)
	if !ok {
		return fmt.Errorf("pool %q: unknown labware %q", pl.ID, pl.Labware)
	}
	if lw.Kind == deck.KindTipRack {
		return fmt.Errorf("pool %q: labware %q is a tip rack", pl.ID, pl.Labware)
	}
	if _, col, _ := plate.ParseWell(pl.Well); col > lw.Geometry().Columns {
		return fmt.Errorf("pool %q: well %q is past the last column of %q", pl.ID, pl.Well, pl.Labware)
	}
	return nil
}

func validateStep(s Step, sets, pools map[string]bool, layout *deck.Layout) error {
	switch s.Tip {
	case "", TipNever, TipIsolate:
	default:
		return fmt.Errorf("unknown tip setting %q", s.Tip)
	}
	if s.Repeat < 0 {
		return fmt.Errorf("repeat must not be negative")
	}
	for _, m := range []*Mix{s.MixBefore, s.MixAfter} {
		if m != nil && (m.Repetitions <= 0 || m.Volume <= 0) {
			return fmt.Errorf("mix needs positive repetitions and volume")
		}
	}
	if s.Pipette != "" && layout != nil {
		if _, err := layout.Pipette(s.Pipette); err != nil {
			return err
		}
	}

	switch s.Action {
	case ActionDistribute:
		if s.Volume <= 0 {
			return fmt.Errorf("volume must be positive")
		}
		if len(s.From) == 0 {
			return fmt.Errorf("distribute needs at least one source pool")
		}
		listed := make(map[string]bool, len(s.From))
		for _, id := range s.From {
			if !pools[id] {
				return fmt.Errorf("unknown pool %q", id)
			}
			if listed[id] {
				return fmt.Errorf("pool %q listed twice", id)
			}
			listed[id] = true
		}
		if !sets[s.To] {
			return fmt.Errorf("unknown sample set %q", s.To)
		}
	case ActionTransfer, ActionCollect:
		if s.Volume <= 0 {
			return fmt.Errorf("volume must be positive")
		}
		if len(s.From) != 1 {
			return fmt.Errorf("%s needs exactly one source sample set", s.Action)
		}
		if !sets[s.From[0]] {
			return fmt.Errorf("unknown sample set %q", s.From[0])
		}
		if s.Action == ActionTransfer && !sets[s.To] {
			return fmt.Errorf("unknown sample set %q", s.To)
		}
		if s.Action == ActionCollect {
			if !pools[s.To] {
				return fmt.Errorf("unknown pool %q", s.To)
			}
			if s.MixAfter != nil {
				return fmt.Errorf("collect cannot mix after dispensing")
			}
		}
	case ActionPause:
	case ActionDelay:
		if s.Minutes <= 0 {
			return fmt.Errorf("delay needs positive minutes")
		}
	case ActionTemperature, ActionEngage, ActionDisengage:
		if s.Module == "" {
			return fmt.Errorf("%s needs a module", s.Action)
		}
		if s.Action == ActionEngage && s.Height <= 0 {
			return fmt.Errorf("engage needs a positive height")
		}
		if layout != nil {
			if _, err := layout.Module(s.Module); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown action %q", s.Action)
	}
	return nil
}
