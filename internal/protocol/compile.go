package protocol

import (
	"fmt"
	"time"

	"github.com/steveyegge/wellplan/internal/deck"
	"github.com/steveyegge/wellplan/internal/plan"
	"github.com/steveyegge/wellplan/internal/plate"
	"github.com/steveyegge/wellplan/internal/pool"
	"github.com/steveyegge/wellplan/internal/tips"
)

// Compile validates p against layout and builds its plan. Sample sets
// are claimed in declaration order, then steps are added in order, each
// repeated Repeat times.
func Compile(p *Protocol, layout deck.Layout) (*plan.Plan, error) {
	if err := Validate(p, &layout); err != nil {
		return nil, err
	}
	pools, err := Pools(p)
	if err != nil {
		return nil, fmt.Errorf("protocol %q: %w", p.Name, err)
	}

	pl := plan.New(layout, pools)
	for _, s := range p.Samples {
		count := s.Count
		if count == 0 {
			count = p.Reactions
		}
		if len(s.Plates) > 0 {
			_, err = pl.ClaimSpan(s.Name, s.Plates, count, s.Start, s.Shares)
		} else {
			_, err = pl.Claim(s.Name, s.Plate, count, s.Start, s.Shares)
		}
		if err != nil {
			return nil, fmt.Errorf("protocol %q: %w", p.Name, err)
		}
	}

	for _, s := range p.Steps {
		repeat := s.Repeat
		if repeat == 0 {
			repeat = 1
		}
		for i := 0; i < repeat; i++ {
			if err := addStep(pl, s); err != nil {
				return nil, fmt.Errorf("protocol %q: %w", p.Name, err)
			}
		}
	}

	built, err := pl.Build()
	if err != nil {
		return nil, fmt.Errorf("protocol %q: %w", p.Name, err)
	}
	built.Name = p.Name
	return built, nil
}

// Pools converts the protocol's pool declarations into planner pools.
func Pools(p *Protocol) ([]pool.Pool, error) {
	out := make([]pool.Pool, 0, len(p.Pools))
	for _, pl := range p.Pools {
		_, col, err := plate.ParseWell(pl.Well)
		if err != nil {
			return nil, fmt.Errorf("pool %q: %w", pl.ID, err)
		}
		class := pl.Class
		if class == "" {
			class = pl.ID
		}
		out = append(out, pool.Pool{
			ID:        pl.ID,
			Location:  plate.Address{Plate: pl.Labware, Column: col},
			Class:     class,
			Available: pl.Volume,
			Capacity:  pl.Capacity,
		})
	}
	return out, nil
}

func addStep(pl *plan.Planner, s Step) error {
	pinned, isolate := tipSetting(s.Tip)
	opts := plan.Options{
		BlowOut:      s.BlowOut,
		AspirateRate: s.AspirateRate,
		DispenseRate: s.DispenseRate,
		Clearance:    s.Clearance,
	}
	switch s.Action {
	case ActionDistribute:
		return pl.Distribute(plan.DistributeSpec{
			Ref: s.ID, Pipette: s.Pipette, Volume: s.Volume,
			From: s.From, To: s.To,
			Tip: pinned, Isolate: isolate,
			MixBefore: mix(s.MixBefore), MixAfter: mix(s.MixAfter),
			Options: opts,
		})
	case ActionTransfer:
		return pl.Transfer(plan.TransferSpec{
			Ref: s.ID, Pipette: s.Pipette, Volume: s.Volume,
			From: s.From[0], To: s.To,
			Tip: pinned, Isolate: isolate,
			MixBefore: mix(s.MixBefore), MixAfter: mix(s.MixAfter),
			Options: opts,
		})
	case ActionCollect:
		return pl.Collect(plan.CollectSpec{
			Ref: s.ID, Pipette: s.Pipette, Volume: s.Volume,
			From: s.From[0], To: s.To,
			Tip: pinned, Isolate: isolate,
			MixBefore: mix(s.MixBefore),
			Options:   opts,
		})
	case ActionPause:
		pl.Checkpoint(s.ID, s.Message)
		return nil
	case ActionDelay:
		return pl.Delay(s.ID, time.Duration(s.Minutes*float64(time.Minute)), s.Message)
	case ActionTemperature:
		return pl.Module(s.ID, s.Module, plan.ActionTemperature, s.Celsius)
	case ActionEngage:
		return pl.Module(s.ID, s.Module, plan.ActionEngage, s.Height)
	case ActionDisengage:
		return pl.Module(s.ID, s.Module, plan.ActionDisengage, 0)
	default:
		return fmt.Errorf("step %q: unknown action %q", s.ID, s.Action)
	}
}

func tipSetting(tip string) (tips.Policy, bool) {
	switch tip {
	case TipNever:
		return tips.Never, false
	case TipIsolate:
		return "", true
	default:
		return "", false
	}
}

func mix(m *Mix) *plan.Mix {
	if m == nil {
		return nil
	}
	return &plan.Mix{Repetitions: m.Repetitions, Volume: m.Volume}
}
