package plan

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/steveyegge/wellplan/internal/deck"
	"github.com/steveyegge/wellplan/internal/plate"
	"github.com/steveyegge/wellplan/internal/pool"
	"github.com/steveyegge/wellplan/internal/tips"
)

// ErrChannelMismatch is returned when a pipette head is not as wide as the
// plate columns a step addresses. A column operation must reach every row.
var ErrChannelMismatch = errors.New("channel mismatch")

// DistributeSpec moves one liquid from a list of pools into every column
// of a sample set. Pools are drained first-fit in the order given.
type DistributeSpec struct {
	Ref     string
	Pipette string
	Volume  float64
	From    []string
	To      string
	// Tip pins the tip policy. Only tips.Never is honoured.
	Tip       tips.Policy
	Isolate   bool
	MixBefore *Mix
	MixAfter  *Mix
	Options
}

// TransferSpec moves Volume µl from each column of one sample set to the
// matching column of another.
type TransferSpec struct {
	Ref       string
	Pipette   string
	Volume    float64
	From      string
	To        string
	Tip       tips.Policy
	Isolate   bool
	MixBefore *Mix
	MixAfter  *Mix
	Options
}

// CollectSpec moves Volume µl from each column of a sample set into a
// sink pool.
type CollectSpec struct {
	Ref       string
	Pipette   string
	Volume    float64
	From      string
	To        string
	Tip       tips.Policy
	Isolate   bool
	MixBefore *Mix
	Options
}

// Planner accumulates steps for one plan. It is not safe for concurrent
// use.
type Planner struct {
	layout deck.Layout
	pools  []*pool.Pool
	byID   map[string]*pool.Pool
	before map[string]float64
	sets   []sampleSet
	steps  []Step
	err    error
}

// New returns a Planner for layout. The pools are copied; the caller's
// values are never modified.
func New(layout deck.Layout, pools []pool.Pool) *Planner {
	p := &Planner{
		layout: layout,
		byID:   make(map[string]*pool.Pool, len(pools)),
		before: make(map[string]float64, len(pools)),
	}
	for _, src := range pools {
		cp := src
		if _, dup := p.byID[cp.ID]; dup {
			p.fail(fmt.Errorf("duplicate pool %q", cp.ID))
			continue
		}
		p.pools = append(p.pools, &cp)
		p.byID[cp.ID] = &cp
		p.before[cp.ID] = cp.Available
	}
	return p
}

// Err returns the first error recorded by a builder call.
func (p *Planner) Err() error { return p.err }

func (p *Planner) fail(err error) error {
	if p.err == nil {
		p.err = err
	}
	return err
}

// Claim allocates count samples on plateID starting at column start and
// records them as the sample set name. Overlap with another set on the
// same plate is an AddressCollision unless shares names that set.
func (p *Planner) Claim(name, plateID string, count, start int, shares string) ([]plate.Address, error) {
	if p.err != nil {
		return nil, p.err
	}
	lw, err := p.layout.Plate(plateID)
	if err != nil {
		return nil, p.fail(fmt.Errorf("sample set %q: %w", name, err))
	}
	addrs, err := plate.Range(plateID, lw.Geometry(), count, start)
	if err != nil {
		return nil, p.fail(fmt.Errorf("sample set %q: %w", name, err))
	}
	return p.register(name, shares, addrs)
}

// ClaimSpan is Claim across several plates, filled in order. The first
// plate starts at column start; later plates start at column 1.
func (p *Planner) ClaimSpan(name string, plates []string, count, start int, shares string) ([]plate.Address, error) {
	if p.err != nil {
		return nil, p.err
	}
	segs := make([]plate.Segment, 0, len(plates))
	for i, id := range plates {
		lw, err := p.layout.Plate(id)
		if err != nil {
			return nil, p.fail(fmt.Errorf("sample set %q: %w", name, err))
		}
		seg := plate.Segment{Plate: id, Geometry: lw.Geometry()}
		if i == 0 {
			seg.First = start
		}
		segs = append(segs, seg)
	}
	addrs, err := plate.Span(count, segs)
	if err != nil {
		return nil, p.fail(fmt.Errorf("sample set %q: %w", name, err))
	}
	return p.register(name, shares, addrs)
}

func (p *Planner) register(name, shares string, addrs []plate.Address) ([]plate.Address, error) {
	if name == "" {
		return nil, p.fail(fmt.Errorf("sample set needs a name"))
	}
	for _, s := range p.sets {
		if s.name == name {
			return nil, p.fail(fmt.Errorf("sample set %q claimed twice", name))
		}
	}
	next := sampleSet{name: name, shares: shares, addrs: addrs}
	if err := checkCollision(p.sets, next); err != nil {
		return nil, p.fail(err)
	}
	p.sets = append(p.sets, next)
	return append([]plate.Address(nil), addrs...), nil
}

// Set returns the columns of a claimed sample set.
func (p *Planner) Set(name string) ([]plate.Address, bool) {
	for _, s := range p.sets {
		if s.name == name {
			return append([]plate.Address(nil), s.addrs...), true
		}
	}
	return nil, false
}

// Distribute adds one transfer per pool group. With MixAfter set the tip
// touches each destination's contents, so one transfer is emitted per
// destination column instead.
func (p *Planner) Distribute(spec DistributeSpec) error {
	if p.err != nil {
		return p.err
	}
	if err := p.distribute(spec); err != nil {
		return p.fail(fmt.Errorf("step %q: %w", spec.Ref, err))
	}
	return nil
}

func (p *Planner) distribute(spec DistributeSpec) error {
	pip, err := p.pipette(spec.Pipette, spec.Volume)
	if err != nil {
		return err
	}
	dests, err := p.set(spec.To)
	if err != nil {
		return err
	}
	if len(spec.From) == 0 {
		return fmt.Errorf("no source pools")
	}
	if err := p.checkChannels(pip, dests); err != nil {
		return err
	}
	sources := make([]*pool.Pool, 0, len(spec.From))
	listed := make(map[string]bool, len(spec.From))
	for _, id := range spec.From {
		src, ok := p.byID[id]
		if !ok {
			return fmt.Errorf("unknown pool %q", id)
		}
		if listed[id] {
			return fmt.Errorf("%w: %q", pool.ErrDuplicatePool, id)
		}
		listed[id] = true
		sources = append(sources, src)
	}
	groups, err := pool.Allocate(dests, spec.Volume, pip.MaxVolume, sources)
	if err != nil {
		return err
	}
	for _, g := range groups {
		base := TransferStep{
			Ref:        spec.Ref,
			Pipette:    pip.Name,
			SourcePool: g.Pool.ID,
			Source:     g.Pool.Location,
			Volume:     spec.Volume,
			Tip:        spec.Tip,
			Class:      g.Pool.Class,
			Isolate:    spec.Isolate,
			MixBefore:  copyMix(spec.MixBefore),
			MixAfter:   copyMix(spec.MixAfter),
			Options:    spec.Options,
		}
		if spec.MixAfter == nil {
			base.Destinations = g.Columns
			p.steps = append(p.steps, base)
			continue
		}
		for _, d := range g.Columns {
			t := base
			t.Destinations = []plate.Address{d}
			if t.Class != "" {
				t.Class = t.Class + ">" + d.String()
			}
			p.steps = append(p.steps, t)
		}
	}
	return nil
}

// Transfer adds one transfer per column pair of two equal-length sample
// sets. Each source column is its own contamination class.
func (p *Planner) Transfer(spec TransferSpec) error {
	if p.err != nil {
		return p.err
	}
	if err := p.transfer(spec); err != nil {
		return p.fail(fmt.Errorf("step %q: %w", spec.Ref, err))
	}
	return nil
}

func (p *Planner) transfer(spec TransferSpec) error {
	pip, err := p.pipette(spec.Pipette, spec.Volume)
	if err != nil {
		return err
	}
	if err := checkDraw(spec.Volume, pip); err != nil {
		return err
	}
	from, err := p.set(spec.From)
	if err != nil {
		return err
	}
	to, err := p.set(spec.To)
	if err != nil {
		return err
	}
	if len(from) != len(to) {
		return fmt.Errorf("sample set %q has %d columns, %q has %d", spec.From, len(from), spec.To, len(to))
	}
	for _, side := range [][]plate.Address{from, to} {
		if err := p.checkChannels(pip, side); err != nil {
			return err
		}
	}
	for i := range from {
		p.steps = append(p.steps, TransferStep{
			Ref:          spec.Ref,
			Pipette:      pip.Name,
			Source:       from[i],
			Destinations: []plate.Address{to[i]},
			Volume:       spec.Volume,
			Tip:          spec.Tip,
			Class:        "sample:" + from[i].String(),
			Isolate:      spec.Isolate,
			MixBefore:    copyMix(spec.MixBefore),
			MixAfter:     copyMix(spec.MixAfter),
			Options:      spec.Options,
		})
	}
	return nil
}

// Collect adds one transfer per column of a sample set into a sink pool.
// The sink's capacity is checked as volume accumulates.
func (p *Planner) Collect(spec CollectSpec) error {
	if p.err != nil {
		return p.err
	}
	if err := p.collect(spec); err != nil {
		return p.fail(fmt.Errorf("step %q: %w", spec.Ref, err))
	}
	return nil
}

func (p *Planner) collect(spec CollectSpec) error {
	pip, err := p.pipette(spec.Pipette, spec.Volume)
	if err != nil {
		return err
	}
	if err := checkDraw(spec.Volume, pip); err != nil {
		return err
	}
	from, err := p.set(spec.From)
	if err != nil {
		return err
	}
	if err := p.checkChannels(pip, from); err != nil {
		return err
	}
	sink, ok := p.byID[spec.To]
	if !ok {
		return fmt.Errorf("unknown pool %q", spec.To)
	}
	if err := sink.Fill(spec.Volume * float64(len(from))); err != nil {
		return err
	}
	for _, src := range from {
		p.steps = append(p.steps, TransferStep{
			Ref:          spec.Ref,
			Pipette:      pip.Name,
			Source:       src,
			Destinations: []plate.Address{sink.Location},
			SinkPool:     sink.ID,
			Volume:       spec.Volume,
			Tip:          spec.Tip,
			Class:        "sample:" + src.String(),
			Isolate:      spec.Isolate,
			MixBefore:    copyMix(spec.MixBefore),
			Options:      spec.Options,
		})
	}
	return nil
}

// Checkpoint adds a manual pause.
func (p *Planner) Checkpoint(ref, message string) {
	if p.err != nil {
		return
	}
	p.steps = append(p.steps, ManualCheckpoint{Ref: ref, Message: message})
}

// Delay adds a timed wait.
func (p *Planner) Delay(ref string, d time.Duration, message string) error {
	if p.err != nil {
		return p.err
	}
	if d <= 0 {
		return p.fail(fmt.Errorf("step %q: delay must be positive, got %s", ref, d))
	}
	p.steps = append(p.steps, Delay{Ref: ref, Duration: d, Message: message})
	return nil
}

// Module adds a hardware module command. The action must suit the
// module's kind.
func (p *Planner) Module(ref, module, action string, value float64) error {
	if p.err != nil {
		return p.err
	}
	m, err := p.layout.Module(module)
	if err != nil {
		return p.fail(fmt.Errorf("step %q: %w", ref, err))
	}
	want := deck.ModuleMagnetic
	switch action {
	case ActionTemperature:
		want = deck.ModuleTemperature
	case ActionEngage, ActionDisengage:
	default:
		return p.fail(fmt.Errorf("step %q: unknown module action %q", ref, action))
	}
	if m.Kind != want {
		return p.fail(fmt.Errorf("step %q: module %q is a %s module, cannot %s", ref, module, m.Kind, action))
	}
	p.steps = append(p.steps, ModuleCommand{Ref: ref, Module: module, Action: action, Value: value})
	return nil
}

// Build resolves tip policies, checks tip capacity, and returns the plan.
// It returns the first error any builder call recorded. Build does not
// change the planner, so calling it twice yields equal plans.
func (p *Planner) Build() (*Plan, error) {
	if p.err != nil {
		return nil, p.err
	}

	var drafts []tips.Draft
	var index []int
	paused := false
	for i, s := range p.steps {
		switch s.(type) {
		case ManualCheckpoint, Delay:
			paused = true
			continue
		}
		t, ok := s.(TransferStep)
		if !ok {
			continue
		}
		drafts = append(drafts, tips.Draft{
			Pipette:     t.Pipette,
			Class:       t.Class,
			MustIsolate: t.Isolate,
			Pinned:      t.Tip,
			AfterPause:  paused,
		})
		paused = false
		index = append(index, i)
	}
	policies := tips.Resolve(drafts)
	pickups := tips.Pickups(drafts, policies)

	names := make([]string, 0, len(pickups))
	for name := range pickups {
		names = append(names, name)
	}
	sort.Strings(names)
	usage := make([]TipUsage, 0, len(names))
	for _, name := range names {
		pip, err := p.layout.Pipette(name)
		if err != nil {
			return nil, err
		}
		channels := pip.ChannelWidth()
		capacity := p.layout.TipCapacity(pip)
		if err := tips.Budget(name, pickups[name], channels, capacity); err != nil {
			return nil, err
		}
		usage = append(usage, TipUsage{Pipette: name, Pickups: pickups[name], Available: capacity / channels})
	}

	steps := make([]Step, len(p.steps))
	for i, s := range p.steps {
		if t, ok := s.(TransferStep); ok {
			s = t.clone()
		}
		steps[i] = s
	}
	for j, i := range index {
		t := steps[i].(TransferStep)
		t.Tip = policies[j]
		steps[i] = t
	}

	ledger := make([]PoolUsage, len(p.pools))
	for i, pl := range p.pools {
		ledger[i] = PoolUsage{ID: pl.ID, Before: p.before[pl.ID], After: pl.Available, Received: pl.Received}
	}

	return &Plan{Bench: p.layout.Bench.Name, steps: steps, pools: ledger, tips: usage}, nil
}

// pipette returns the named pipette, or the smallest one that can move
// volume in one aspiration.
func (p *Planner) pipette(name string, volume float64) (deck.Pipette, error) {
	if volume <= 0 {
		return deck.Pipette{}, fmt.Errorf("volume must be positive, got %.2f", volume)
	}
	if name != "" {
		return p.layout.Pipette(name)
	}
	pip, err := p.layout.PipetteFor(volume)
	if err == nil {
		return pip, nil
	}
	var largest float64
	for _, c := range p.layout.Pipettes {
		if c.MaxVolume > largest {
			largest = c.MaxVolume
		}
	}
	return deck.Pipette{}, &pool.VolumeError{Kind: pool.ErrOperationVolumeExceeded, Required: volume, Available: largest}
}

// checkChannels requires pip to span a full column of every plate in
// addrs.
func (p *Planner) checkChannels(pip deck.Pipette, addrs []plate.Address) error {
	seen := make(map[string]bool)
	for _, a := range addrs {
		if seen[a.Plate] {
			continue
		}
		seen[a.Plate] = true
		lw, err := p.layout.Plate(a.Plate)
		if err != nil {
			return err
		}
		if rows := lw.Geometry().Rows; rows != pip.ChannelWidth() {
			return fmt.Errorf("%w: pipette %q has %d channels, plate %q has %d rows",
				ErrChannelMismatch, pip.Name, pip.ChannelWidth(), a.Plate, rows)
		}
	}
	return nil
}

func checkDraw(volume float64, pip deck.Pipette) error {
	if volume > pip.MaxVolume {
		return &pool.VolumeError{Kind: pool.ErrOperationVolumeExceeded, Required: volume, Available: pip.MaxVolume}
	}
	return nil
}

func (p *Planner) set(name string) ([]plate.Address, error) {
	addrs, ok := p.Set(name)
	if !ok {
		return nil, fmt.Errorf("unknown sample set %q", name)
	}
	return addrs, nil
}

func copyMix(m *Mix) *Mix {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}
