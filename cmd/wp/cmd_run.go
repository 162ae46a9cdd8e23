package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"github.com/steveyegge/wellplan/internal/deck"
	"github.com/steveyegge/wellplan/internal/events"
	"github.com/steveyegge/wellplan/internal/fsys"
	wprun "github.com/steveyegge/wellplan/internal/run"
)

// runOptions holds the "wp run" flags.
type runOptions struct {
	vars  []string
	yes   bool
	sleep bool
}

// errRobotBusy is returned when another wp process holds the robot lock.
var errRobotBusy = errors.New("robot is busy")

func newRunCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <protocol>",
		Short: "Build a plan and execute it on the robot",
		Long: `Build the plan for a protocol and execute it step by step.

Only one run may drive a bench at a time; the run holds .wp/robot.lock
until it ends. Manual checkpoints stop the run until Enter is pressed,
unless --yes acknowledges them automatically. The run stops at the
first failing step, and Ctrl-C stops it before the next step.

Steps go to the script driver, which prints each robot command.`,
		Example: `  wp run golden-gate-setup
  wp run loading-dye --var reactions=40 --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			if cmdRun(ctx, args[0], opts, stdin, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&opts.vars, "var", nil, "Set a protocol variable (key=value, repeatable)")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Acknowledge manual checkpoints automatically")
	cmd.Flags().BoolVar(&opts.sleep, "sleep", false, "Wait out timed delays instead of skipping them")
	return cmd
}

// cmdRun is the CLI entry point for executing a protocol.
func cmdRun(ctx context.Context, name string, opts runOptions, stdin io.Reader, stdout, stderr io.Writer) int {
	dir, layout, err := openBench()
	if err != nil {
		fmt.Fprintf(stderr, "wp run: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	rec := openBenchRecorder(dir, stderr)
	return doRun(ctx, fsys.OSFS{}, dir, layout, name, opts, rec, stdin, stdout, stderr)
}

// doRun plans the protocol, takes the robot lock and executes the plan.
func doRun(ctx context.Context, fs fsys.FS, benchDir string, layout *deck.Layout, name string, opts runOptions,
	rec events.Recorder, stdin io.Reader, stdout, stderr io.Writer,
) int {
	p, err := buildPlan(fs, protocolsDir(benchDir, layout), layout, name, opts.vars, rec)
	if err != nil {
		fmt.Fprintf(stderr, "wp run: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	unlock, err := lockRobot(fs, benchDir)
	if err != nil {
		fmt.Fprintf(stderr, "wp run: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	defer unlock()

	if err := p.WriteText(stdout); err != nil {
		fmt.Fprintf(stderr, "wp run: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	fmt.Fprintln(stdout) //nolint:errcheck // best-effort stdout

	var ack wprun.Acknowledger = &wprun.LineAcknowledger{In: stdin, Out: stdout}
	if opts.yes {
		ack = wprun.AutoAcknowledger{Out: stdout}
	}
	r := &wprun.Runner{
		Driver:   &wprun.ScriptDriver{Out: stdout, Sleep: opts.sleep},
		Ack:      ack,
		Recorder: rec,
		Actor:    eventActor(),
	}
	rep, err := r.Execute(ctx, p)
	if err != nil {
		fmt.Fprintf(stderr, "wp run: %v (%d of %d steps done)\n", err, rep.Executed, rep.Total) //nolint:errcheck // best-effort stderr
		return 1
	}
	fmt.Fprintf(stdout, "Run finished: %d steps, %d transfers, %d checkpoints.\n", //nolint:errcheck // best-effort stdout
		rep.Executed, rep.Transfers, rep.Checkpoints)
	return 0
}

// lockRobot takes the bench's exclusive robot lock without waiting.
func lockRobot(fs fsys.FS, benchDir string) (func(), error) {
	state := filepath.Join(benchDir, stateDir)
	if err := fs.MkdirAll(state, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(state, lockFile)
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is held by another run", errRobotBusy, path)
	}
	return func() { lock.Unlock() }, nil //nolint:errcheck // best-effort unlock
}
