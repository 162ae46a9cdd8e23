package doctor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/steveyegge/wellplan/internal/deck"
	"github.com/steveyegge/wellplan/internal/events"
	"github.com/steveyegge/wellplan/internal/fsys"
	"github.com/steveyegge/wellplan/internal/protocol"
)

// Bench file names, relative to the bench root.
const (
	BenchFile  = "bench.toml"
	StateDir   = ".wp"
	EventsFile = "events.jsonl"
	LockFile   = "robot.lock"
)

// --- Core checks ---

// BenchStructureCheck verifies bench.toml and the .wp/ state dir exist.
type BenchStructureCheck struct{}

// Name returns the check identifier.
func (c *BenchStructureCheck) Name() string { return "bench-structure" }

// Run checks that the bench directory has the expected structure.
func (c *BenchStructureCheck) Run(ctx *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	if _, err := os.Stat(filepath.Join(ctx.BenchPath, BenchFile)); err != nil {
		r.Status = StatusError
		r.Message = "bench.toml missing"
		r.FixHint = "run wp init"
		return r
	}
	if fi, err := os.Stat(filepath.Join(ctx.BenchPath, StateDir)); err != nil || !fi.IsDir() {
		r.Status = StatusWarning
		r.Message = ".wp/ directory missing (events will not be logged)"
		return r
	}
	r.Status = StatusOK
	r.Message = "bench.toml and .wp/ present"
	return r
}

// CanFix returns true: a missing .wp/ can be created.
func (c *BenchStructureCheck) CanFix() bool { return true }

// Fix creates the .wp/ state directory. It never writes bench.toml.
func (c *BenchStructureCheck) Fix(ctx *CheckContext) error {
	if _, err := os.Stat(filepath.Join(ctx.BenchPath, BenchFile)); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(ctx.BenchPath, StateDir), 0o755)
}

// BenchConfigCheck verifies bench.toml parses and the deck validates.
type BenchConfigCheck struct{}

// Name returns the check identifier.
func (c *BenchConfigCheck) Name() string { return "bench-config" }

// Run loads bench.toml.
func (c *BenchConfigCheck) Run(ctx *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	layout, err := deck.Load(fsys.OSFS{}, filepath.Join(ctx.BenchPath, BenchFile))
	if err != nil {
		r.Status = StatusError
		r.Message = err.Error()
		return r
	}
	r.Status = StatusOK
	r.Message = fmt.Sprintf("bench %q loaded (%d labware, %d pipettes, %d modules)",
		layout.Bench.Name, len(layout.Labware), len(layout.Pipettes), len(layout.Modules))
	for _, p := range layout.Pipettes {
		r.Details = append(r.Details, fmt.Sprintf("%s: %.0f-%.0f µl, %d pickups",
			p.Name, p.MinVolume, p.MaxVolume, layout.TipCapacity(p)/p.ChannelWidth()))
	}
	return r
}

// CanFix returns false.
func (c *BenchConfigCheck) CanFix() bool { return false }

// Fix is a no-op.
func (c *BenchConfigCheck) Fix(_ *CheckContext) error { return nil }

// ProtocolsCheck compiles every protocol against the layout.
type ProtocolsCheck struct {
	layout *deck.Layout
	dir    string
}

// NewProtocolsCheck creates a check for the protocols in dir.
func NewProtocolsCheck(layout *deck.Layout, dir string) *ProtocolsCheck {
	return &ProtocolsCheck{layout: layout, dir: dir}
}

// Name returns the check identifier.
func (c *ProtocolsCheck) Name() string { return "protocols" }

// Run plans each protocol with its default variables.
func (c *ProtocolsCheck) Run(_ *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	fs := fsys.OSFS{}
	names, err := protocol.List(fs, c.dir)
	if err != nil {
		r.Status = StatusError
		r.Message = err.Error()
		return r
	}
	if len(names) == 0 {
		r.Status = StatusWarning
		r.Message = fmt.Sprintf("no protocols in %s", c.dir)
		return r
	}

	resolve := protocol.DirResolver(fs, c.dir)
	var failed []string
	for _, name := range names {
		p, err := resolve(name)
		if err == nil {
			p, err = protocol.SubstituteVars(p, nil)
		}
		if err == nil {
			_, err = protocol.Compile(p, *c.layout)
		}
		if err != nil {
			failed = append(failed, name)
			r.Details = append(r.Details, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(failed) > 0 {
		r.Status = StatusError
		r.Message = fmt.Sprintf("%d of %d protocols do not plan", len(failed), len(names))
		r.FixHint = "run wp protocol validate for the reasons"
		return r
	}
	r.Status = StatusOK
	r.Message = fmt.Sprintf("%d protocols plan", len(names))
	return r
}

// CanFix returns false.
func (c *ProtocolsCheck) CanFix() bool { return false }

// Fix is a no-op.
func (c *ProtocolsCheck) Fix(_ *CheckContext) error { return nil }

// --- State checks ---

// EventsLogCheck verifies .wp/events.jsonl is readable and writable.
type EventsLogCheck struct{}

// Name returns the check identifier.
func (c *EventsLogCheck) Name() string { return "events-log" }

// Run checks the events log file.
func (c *EventsLogCheck) Run(ctx *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	path := filepath.Join(ctx.BenchPath, StateDir, EventsFile)
	fi, err := os.Stat(path)
	if err != nil {
		r.Status = StatusOK
		r.Message = "events.jsonl not created yet"
		return r
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, fi.Mode())
	if err != nil {
		r.Status = StatusWarning
		r.Message = fmt.Sprintf("events.jsonl not writable: %v", err)
		return r
	}
	f.Close() //nolint:errcheck // best-effort close
	evts, err := events.ReadAll(path)
	if err != nil {
		r.Status = StatusWarning
		r.Message = err.Error()
		return r
	}
	r.Status = StatusOK
	r.Message = fmt.Sprintf("events.jsonl holds %d events", len(evts))
	return r
}

// CanFix returns false.
func (c *EventsLogCheck) CanFix() bool { return false }

// Fix is a no-op.
func (c *EventsLogCheck) Fix(_ *CheckContext) error { return nil }

// RobotLockCheck reports whether a run currently holds the robot lock.
type RobotLockCheck struct{}

// Name returns the check identifier.
func (c *RobotLockCheck) Name() string { return "robot-lock" }

// Run tries .wp/robot.lock without waiting. A held lock is a warning:
// it is normal while a run is in progress.
func (c *RobotLockCheck) Run(ctx *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	path := filepath.Join(ctx.BenchPath, StateDir, LockFile)
	if _, err := os.Stat(path); err != nil {
		r.Status = StatusOK
		r.Message = "robot idle (no lock file)"
		return r
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		r.Status = StatusWarning
		r.Message = fmt.Sprintf("probing %s: %v", path, err)
		return r
	}
	if !ok {
		r.Status = StatusWarning
		r.Message = "robot busy: a run holds robot.lock"
		r.FixHint = "wait for the run to finish or stop it with Ctrl-C"
		return r
	}
	lock.Unlock() //nolint:errcheck // best-effort unlock
	r.Status = StatusOK
	r.Message = "robot idle"
	return r
}

// CanFix returns false. The lock is released by the process holding it.
func (c *RobotLockCheck) CanFix() bool { return false }

// Fix is a no-op.
func (c *RobotLockCheck) Fix(_ *CheckContext) error { return nil }
