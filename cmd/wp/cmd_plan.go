package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/steveyegge/wellplan/internal/deck"
	"github.com/steveyegge/wellplan/internal/events"
	"github.com/steveyegge/wellplan/internal/fsys"
	"github.com/steveyegge/wellplan/internal/plan"
	"github.com/steveyegge/wellplan/internal/protocol"
	"github.com/steveyegge/wellplan/internal/telemetry"
)

// planOptions carries the flags shared by "wp plan" and "wp run".
type planOptions struct {
	vars    []string
	jsonOut bool
	outPath string
}

func newPlanCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts planOptions
	var watch bool
	cmd := &cobra.Command{
		Use:   "plan <protocol>",
		Short: "Build and print the plan for a protocol",
		Long: `Build the plan for a protocol against the bench layout and print it.

The plan lists every transfer, checkpoint, delay and module command in
execution order, followed by the volume left in each pool and the tip
pickups per pipette. Nothing moves; use "wp run" to execute.

With --watch the plan is rebuilt whenever bench.toml or a protocol file
changes, until interrupted.`,
		Example: `  wp plan golden-gate-setup
  wp plan loading-dye --var reactions=40 --json
  wp plan dilute-and-plate --out plan.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if watch {
				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
				defer stop()
				if cmdPlanWatch(ctx, args[0], opts, stdout, stderr) != 0 {
					return errExit
				}
				return nil
			}
			if cmdPlan(args[0], opts, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&opts.vars, "var", nil, "Set a protocol variable (key=value, repeatable)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the plan as JSON")
	cmd.Flags().StringVarP(&opts.outPath, "out", "o", "", "Write the plan as JSON to this file")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Rebuild the plan when the bench or protocols change")
	return cmd
}

// cmdPlan is the CLI entry point for a one-shot plan.
func cmdPlan(name string, opts planOptions, stdout, stderr io.Writer) int {
	dir, layout, err := openBench()
	if err != nil {
		fmt.Fprintf(stderr, "wp plan: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	rec := openBenchRecorder(dir, stderr)
	return doPlan(fsys.OSFS{}, protocolsDir(dir, layout), layout, name, opts, rec, stdout, stderr)
}

// doPlan builds and prints one plan. Accepts an injected filesystem and
// recorder for testability.
func doPlan(fs fsys.FS, protoDir string, layout *deck.Layout, name string, opts planOptions, rec events.Recorder, stdout, stderr io.Writer) int {
	p, err := buildPlan(fs, protoDir, layout, name, opts.vars, rec)
	if err != nil {
		fmt.Fprintf(stderr, "wp plan: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	if opts.outPath != "" {
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			fmt.Fprintf(stderr, "wp plan: %v\n", err) //nolint:errcheck // best-effort stderr
			return 1
		}
		if err := fsys.WriteAtomic(fs, opts.outPath, append(data, '\n'), 0o644); err != nil {
			fmt.Fprintf(stderr, "wp plan: %v\n", err) //nolint:errcheck // best-effort stderr
			return 1
		}
		fmt.Fprintf(stdout, "Wrote plan %s (%d steps) to %s\n", p.Name, p.Len(), opts.outPath) //nolint:errcheck // best-effort stdout
		return 0
	}

	if opts.jsonOut {
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			fmt.Fprintf(stderr, "wp plan: %v\n", err) //nolint:errcheck // best-effort stderr
			return 1
		}
		fmt.Fprintln(stdout, string(data)) //nolint:errcheck // best-effort stdout
		return 0
	}

	if err := p.WriteText(stdout); err != nil {
		fmt.Fprintf(stderr, "wp plan: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	if d := p.Duration(); d > 0 {
		fmt.Fprintf(stdout, "\ntimed waits: %s\n", d) //nolint:errcheck // best-effort stdout
	}
	return 0
}

// buildPlan resolves, parameterizes and compiles a protocol, recording
// the outcome as an event and in telemetry.
func buildPlan(fs fsys.FS, protoDir string, layout *deck.Layout, name string, vars []string, rec events.Recorder) (*plan.Plan, error) {
	p, err := compileProtocol(fs, protoDir, layout, name, vars)
	ctx := context.Background()
	if err != nil {
		telemetry.RecordPlanBuild(ctx, name, 0, 0, err)
		rec.Record(events.Event{
			Type:    events.PlanRejected,
			Actor:   eventActor(),
			Subject: name,
			Message: err.Error(),
		})
		return nil, err
	}
	telemetry.RecordPlanBuild(ctx, name, p.Len(), p.TransferVolume(), nil)
	rec.Record(events.WithPayload(events.Event{
		Type:    events.PlanBuilt,
		Actor:   eventActor(),
		Subject: name,
		Message: fmt.Sprintf("%d steps, %.2f µl", p.Len(), p.TransferVolume()),
	}, p.Counts()))
	return p, nil
}

func compileProtocol(fs fsys.FS, protoDir string, layout *deck.Layout, name string, vars []string) (*plan.Plan, error) {
	proto, err := protocol.DirResolver(fs, protoDir)(name)
	if err != nil {
		return nil, err
	}
	proto, err = protocol.SubstituteVars(proto, vars)
	if err != nil {
		return nil, fmt.Errorf("protocol %q: %w", name, err)
	}
	return protocol.Compile(proto, *layout)
}

// cmdPlanWatch is the CLI entry point for watch mode.
func cmdPlanWatch(ctx context.Context, name string, opts planOptions, stdout, stderr io.Writer) int {
	dir, layout, err := openBench()
	if err != nil {
		fmt.Fprintf(stderr, "wp plan: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	rec := openBenchRecorder(dir, stderr)
	return doPlanWatch(ctx, dir, protocolsDir(dir, layout), name, opts, rec, 200*time.Millisecond, stdout, stderr)
}

// doPlanWatch prints the plan, then rebuilds it after every change to
// bench.toml or the protocols directory. Bursts of file events within
// debounce collapse into one rebuild. Planning errors are reported and
// watching continues. Returns 0 when ctx ends.
func doPlanWatch(ctx context.Context, benchDir, protoDir, name string, opts planOptions, rec events.Recorder,
	debounce time.Duration, stdout, stderr io.Writer,
) int {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintf(stderr, "wp plan: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	defer w.Close() //nolint:errcheck // best-effort cleanup
	for _, d := range []string{benchDir, protoDir} {
		if err := w.Add(d); err != nil {
			fmt.Fprintf(stderr, "wp plan: watching %s: %v\n", d, err) //nolint:errcheck // best-effort stderr
			return 1
		}
	}

	replan := func() {
		layout, err := deck.Load(fsys.OSFS{}, filepath.Join(benchDir, benchFile))
		if err != nil {
			fmt.Fprintf(stderr, "wp plan: %v\n", err) //nolint:errcheck // best-effort stderr
			return
		}
		doPlan(fsys.OSFS{}, protoDir, layout, name, opts, rec, stdout, stderr)
	}

	replan()
	fmt.Fprintf(stdout, "watching %s for changes (Ctrl-C to stop)\n", benchDir) //nolint:errcheck // best-effort stdout

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return 0
		case ev, ok := <-w.Events:
			if !ok {
				return 0
			}
			if !relevant(ev, benchDir, protoDir) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return 0
			}
			fmt.Fprintf(stderr, "wp plan: watch: %v\n", err) //nolint:errcheck // best-effort stderr
		case <-fire:
			fire = nil
			fmt.Fprintf(stdout, "\n--- %s changed, replanning ---\n", name) //nolint:errcheck // best-effort stdout
			replan()
		}
	}
}

// relevant reports whether a file event can change the plan: a write,
// create, rename or removal of bench.toml or of a protocol file.
func relevant(ev fsnotify.Event, benchDir, protoDir string) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return false
	}
	dir, base := filepath.Split(ev.Name)
	dir = filepath.Clean(dir)
	if dir == filepath.Clean(benchDir) && base == benchFile {
		return true
	}
	if dir != filepath.Clean(protoDir) {
		return false
	}
	return filepath.Ext(base) == ".toml" || filepath.Ext(base) == ".yaml"
}
