// Package pool tracks finite liquid sources and splits column transfers
// across them.
//
// Volumes are per channel: a column operation that moves V µl per tip
// draws V from the pool it aspirates from. A reservoir trough is therefore
// described by what each lane of the head can safely take from it.
package pool

import (
	"errors"
	"fmt"

	"github.com/steveyegge/wellplan/internal/plate"
)

var (
	// ErrInsufficientVolume is returned when the candidate pools cannot
	// supply every destination column.
	ErrInsufficientVolume = errors.New("insufficient volume")
	// ErrOperationVolumeExceeded is returned when one column transfer needs
	// more than a single aspiration can hold.
	ErrOperationVolumeExceeded = errors.New("operation volume exceeded")
	// ErrOverfill is returned when a sink pool would exceed its capacity.
	ErrOverfill = errors.New("pool overfilled")
	// ErrDuplicatePool is returned when one pool is offered twice to the
	// same allocation.
	ErrDuplicatePool = errors.New("pool listed twice")
)

// VolumeError carries the numbers behind a volume failure.
type VolumeError struct {
	Kind      error
	Pool      string
	Required  float64
	Available float64
}

func (e *VolumeError) Error() string {
	switch e.Kind {
	case ErrOperationVolumeExceeded:
		return fmt.Sprintf("operation volume exceeded: %.2f µl per column, pipette max %.2f µl",
			e.Required, e.Available)
	case ErrOverfill:
		return fmt.Sprintf("pool %q overfilled: %.2f µl incoming, %.2f µl of room", e.Pool, e.Required, e.Available)
	default:
		if e.Pool != "" {
			return fmt.Sprintf("insufficient volume in %q: need %.2f µl, have %.2f µl", e.Pool, e.Required, e.Available)
		}
		return fmt.Sprintf("insufficient volume: need %.2f µl, have %.2f µl", e.Required, e.Available)
	}
}

// Unwrap returns the sentinel kind for errors.Is.
func (e *VolumeError) Unwrap() error { return e.Kind }

// Pool is a named liquid source: a reservoir well or a plate column.
type Pool struct {
	ID string `json:"id"`
	// Location is where the liquid sits on the deck.
	Location plate.Address `json:"location"`
	// Class names the biological material in the pool for tip decisions.
	Class string `json:"class,omitempty"`
	// Available is the remaining drawable volume per channel in µl.
	Available float64 `json:"available"`
	// Capacity bounds how much a sink pool may receive; 0 is unbounded.
	Capacity float64 `json:"capacity,omitempty"`
	// Received is the volume dispensed into the pool so far.
	Received float64 `json:"received,omitempty"`
}

// Group is one pool's share of a distribution: the destination columns it
// supplies, in their original order.
type Group struct {
	Pool    *Pool
	Columns []plate.Address
	// Volume is the total drawn from Pool for this group.
	Volume float64
}

// volumeEpsilon absorbs float error when comparing accumulated volumes.
const volumeEpsilon = 1e-9

// Allocate partitions dests across pools first-fit: each pool supplies
// whole columns until it cannot cover another, then the next pool takes
// over. Groups preserve destination order and each pool appears at most
// once. On success the used pools are decremented by exactly what was
// drawn; on error no pool is modified.
func Allocate(dests []plate.Address, perColumn, maxDraw float64, pools []*Pool) ([]Group, error) {
	if perColumn <= 0 {
		return nil, fmt.Errorf("volume per column must be positive, got %.2f", perColumn)
	}
	if maxDraw > 0 && perColumn > maxDraw+volumeEpsilon {
		return nil, &VolumeError{Kind: ErrOperationVolumeExceeded, Required: perColumn, Available: maxDraw}
	}
	seen := make(map[*Pool]bool, len(pools))
	for _, p := range pools {
		if seen[p] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicatePool, p.ID)
		}
		seen[p] = true
	}
	if len(dests) == 0 {
		return nil, nil
	}

	required := perColumn * float64(len(dests))
	var total float64
	for _, p := range pools {
		total += p.Available
	}
	if total+volumeEpsilon < required {
		return nil, &VolumeError{Kind: ErrInsufficientVolume, Required: required, Available: total}
	}

	var groups []Group
	next := 0
	for _, p := range pools {
		if next == len(dests) {
			break
		}
		fit := int((p.Available + volumeEpsilon) / perColumn)
		if fit == 0 {
			continue
		}
		if remaining := len(dests) - next; fit > remaining {
			fit = remaining
		}
		groups = append(groups, Group{
			Pool:    p,
			Columns: append([]plate.Address(nil), dests[next:next+fit]...),
			Volume:  perColumn * float64(fit),
		})
		next += fit
	}
	if next < len(dests) {
		// Enough volume in total, but split across pools so that no pool
		// can hold another whole column.
		return nil, &VolumeError{Kind: ErrInsufficientVolume, Required: required, Available: total}
	}

	for _, g := range groups {
		if g.Volume > g.Pool.Available+volumeEpsilon {
			return nil, &VolumeError{Kind: ErrInsufficientVolume, Pool: g.Pool.ID, Required: g.Volume, Available: g.Pool.Available}
		}
	}
	for _, g := range groups {
		g.Pool.Available -= g.Volume
		if g.Pool.Available < 0 {
			// Float residue within volumeEpsilon.
			g.Pool.Available = 0
		}
	}
	return groups, nil
}

// Fill records volume dispensed into a sink pool. It fails without
// modifying the pool when the pool would overflow its capacity.
func (p *Pool) Fill(volume float64) error {
	if p.Capacity > 0 && p.Received+volume > p.Capacity+volumeEpsilon {
		return &VolumeError{Kind: ErrOverfill, Pool: p.ID, Required: volume, Available: p.Capacity - p.Received}
	}
	p.Received += volume
	return nil
}

// Draw removes volume from a single pool.
func (p *Pool) Draw(volume float64) error {
	if volume > p.Available+volumeEpsilon {
		return &VolumeError{Kind: ErrInsufficientVolume, Pool: p.ID, Required: volume, Available: p.Available}
	}
	p.Available -= volume
	if p.Available < 0 {
		p.Available = 0
	}
	return nil
}
