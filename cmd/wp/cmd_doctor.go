package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/steveyegge/wellplan/internal/deck"
	"github.com/steveyegge/wellplan/internal/doctor"
	"github.com/steveyegge/wellplan/internal/fsys"
)

func newDoctorCmd(stdout, stderr io.Writer) *cobra.Command {
	var fix, verbose bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check bench health",
		Long: `Run diagnostic health checks on the bench.

Checks the bench structure, that bench.toml loads and validates, that
every protocol plans against the deck, the event log, and whether a run
holds the robot lock. Use --fix to create a missing .wp/ directory.`,
		Example: `  wp doctor
  wp doctor --fix
  wp doctor --verbose`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			benchPath, err := resolveBench()
			if err != nil {
				fmt.Fprintf(stderr, "wp doctor: %v\n", err) //nolint:errcheck // best-effort stderr
				return errExit
			}
			if doDoctor(benchPath, fix, verbose, stdout) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "attempt to fix issues automatically")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show extra diagnostic details")
	return cmd
}

// doDoctor runs all health checks for the bench at benchPath and prints
// results. Returns 1 if any check failed.
func doDoctor(benchPath string, fix, verbose bool, stdout io.Writer) int {
	d := &doctor.Doctor{}
	ctx := &doctor.CheckContext{BenchPath: benchPath, Verbose: verbose}

	d.Register(&doctor.BenchStructureCheck{})
	d.Register(&doctor.BenchConfigCheck{})

	// Protocols can only be checked against a deck that loads; the config
	// check above reports the load error otherwise.
	layout, err := deck.Load(fsys.OSFS{}, filepath.Join(benchPath, benchFile))
	if err == nil {
		d.Register(doctor.NewProtocolsCheck(layout, protocolsDir(benchPath, layout)))
	}

	d.Register(&doctor.EventsLogCheck{})
	d.Register(&doctor.RobotLockCheck{})

	report := d.Run(ctx, stdout, fix)
	doctor.PrintSummary(stdout, report)
	if !report.Healthy() {
		return 1
	}
	return 0
}
