package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/steveyegge/wellplan/internal/deck"
	"github.com/steveyegge/wellplan/internal/fsys"
	"github.com/steveyegge/wellplan/internal/protocol"
)

func newProtocolCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "protocol",
		Short: "Inspect protocol recipes",
		Long: `Inspect protocol recipes.

Recipes are *.protocol.toml or *.protocol.yaml files in the bench's
protocols directory. Each declares sample sets, reagent pools and an
ordered list of steps.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprintln(stderr, "wp protocol: missing subcommand (list, show, validate)") //nolint:errcheck // best-effort stderr
			} else {
				fmt.Fprintf(stderr, "wp protocol: unknown subcommand %q\n", args[0]) //nolint:errcheck // best-effort stderr
			}
			return errExit
		},
	}
	cmd.AddCommand(
		newProtocolListCmd(stdout, stderr),
		newProtocolShowCmd(stdout, stderr),
		newProtocolValidateCmd(stdout, stderr),
	)
	return cmd
}

func newProtocolListCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available protocols",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			dir, layout, err := openBench()
			if err != nil {
				fmt.Fprintf(stderr, "wp protocol list: %v\n", err) //nolint:errcheck // best-effort stderr
				return errExit
			}
			if doProtocolList(fsys.OSFS{}, protocolsDir(dir, layout), stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

func newProtocolShowCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show details of a protocol",
		Long: `Parse and display a protocol recipe: its sample sets, pools and steps.
The recipe is checked for structural errors before it is shown.`,
		Example: `  wp protocol show golden-gate-setup`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dir, layout, err := openBench()
			if err != nil {
				fmt.Fprintf(stderr, "wp protocol show: %v\n", err) //nolint:errcheck // best-effort stderr
				return errExit
			}
			if doProtocolShow(fsys.OSFS{}, protocolsDir(dir, layout), args[0], stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

func newProtocolValidateCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [name...]",
		Short: "Check protocols against the bench",
		Long: `Check protocols against the bench layout and build their plans.

With no names every protocol in the protocols directory is checked.
A protocol passes when it is well-formed, refers only to labware,
pipettes and modules on the deck, and plans without running out of
wells, liquid or tips. Exits 1 if any protocol fails.`,
		Example: `  wp protocol validate
  wp protocol validate loading-dye strep-tag-pcr`,
		RunE: func(_ *cobra.Command, args []string) error {
			dir, layout, err := openBench()
			if err != nil {
				fmt.Fprintf(stderr, "wp protocol validate: %v\n", err) //nolint:errcheck // best-effort stderr
				return errExit
			}
			if doProtocolValidate(fsys.OSFS{}, protocolsDir(dir, layout), layout, args, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

// doProtocolList prints the protocol names in dir. Accepts an injected
// filesystem for testability.
func doProtocolList(fs fsys.FS, dir string, stdout, stderr io.Writer) int {
	names, err := protocol.List(fs, dir)
	if err != nil {
		fmt.Fprintf(stderr, "wp protocol list: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	if len(names) == 0 {
		fmt.Fprintln(stdout, "No protocols found.") //nolint:errcheck // best-effort stdout
		return 0
	}
	for _, name := range names {
		fmt.Fprintln(stdout, name) //nolint:errcheck // best-effort stdout
	}
	return 0
}

// doProtocolShow loads a protocol and prints its details.
func doProtocolShow(fs fsys.FS, dir, name string, stdout, stderr io.Writer) int {
	p, err := protocol.DirResolver(fs, dir)(name)
	if err == nil {
		p, err = protocol.SubstituteVars(p, nil)
	}
	if err != nil {
		fmt.Fprintf(stderr, "wp protocol show: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	w := func(s string) { fmt.Fprintln(stdout, s) } //nolint:errcheck // best-effort stdout
	w(fmt.Sprintf("Protocol:    %s", p.Name))
	if p.Description != "" {
		w(fmt.Sprintf("Description: %s", p.Description))
	}
	if p.Author != "" {
		w(fmt.Sprintf("Author:      %s", p.Author))
	}
	w(fmt.Sprintf("Reactions:   %d", p.Reactions))

	if len(p.Samples) > 0 {
		w("")
		w("Samples:")
		for _, s := range p.Samples {
			where := s.Plate
			if len(s.Plates) > 0 {
				where = strings.Join(s.Plates, "+")
			}
			count := s.Count
			if count == 0 {
				count = p.Reactions
			}
			line := fmt.Sprintf("  %-16s %d on %s", s.Name, count, where)
			if s.Shares != "" {
				line += fmt.Sprintf(" (shares %s)", s.Shares)
			}
			w(line)
		}
	}
	if len(p.Pools) > 0 {
		w("")
		w("Pools:")
		for _, pl := range p.Pools {
			w(fmt.Sprintf("  %-16s %s:%s  %.2f µl", pl.ID, pl.Labware, pl.Well, pl.Volume))
		}
	}
	w("")
	w(fmt.Sprintf("Steps (%d):", len(p.Steps)))
	for i, s := range p.Steps {
		w(fmt.Sprintf("  %d. %s %s", i+1, s.ID, describeStep(s)))
	}
	return 0
}

// describeStep summarizes a recipe step on one line.
func describeStep(s protocol.Step) string {
	var b strings.Builder
	b.WriteString(s.Action)
	switch s.Action {
	case protocol.ActionDistribute, protocol.ActionTransfer, protocol.ActionCollect:
		fmt.Fprintf(&b, " %.2f µl %s -> %s", s.Volume, strings.Join(s.From, ","), s.To)
		if s.Pipette != "" {
			fmt.Fprintf(&b, " with %s", s.Pipette)
		}
	case protocol.ActionDelay:
		fmt.Fprintf(&b, " %g min", s.Minutes)
	case protocol.ActionTemperature:
		fmt.Fprintf(&b, " %s %.1f °C", s.Module, s.Celsius)
	case protocol.ActionEngage, protocol.ActionDisengage:
		fmt.Fprintf(&b, " %s", s.Module)
	}
	if s.Repeat > 1 {
		fmt.Fprintf(&b, " x%d", s.Repeat)
	}
	if s.Message != "" {
		fmt.Fprintf(&b, ": %s", s.Message)
	}
	return b.String()
}

// doProtocolValidate checks each named protocol (all when names is empty)
// against layout by compiling it.
func doProtocolValidate(fs fsys.FS, dir string, layout *deck.Layout, names []string, stdout, stderr io.Writer) int {
	if len(names) == 0 {
		var err error
		names, err = protocol.List(fs, dir)
		if err != nil {
			fmt.Fprintf(stderr, "wp protocol validate: %v\n", err) //nolint:errcheck // best-effort stderr
			return 1
		}
		if len(names) == 0 {
			fmt.Fprintln(stdout, "No protocols found.") //nolint:errcheck // best-effort stdout
			return 0
		}
	}

	resolve := protocol.DirResolver(fs, dir)
	failed := 0
	for _, name := range names {
		p, err := resolve(name)
		if err == nil {
			_, err = protocol.Compile(p, *layout)
		}
		if err != nil {
			failed++
			fmt.Fprintf(stdout, "FAIL  %s: %v\n", name, err) //nolint:errcheck // best-effort stdout
			continue
		}
		fmt.Fprintf(stdout, "ok    %s\n", name) //nolint:errcheck // best-effort stdout
	}
	if failed > 0 {
		fmt.Fprintf(stderr, "wp protocol validate: %d of %d protocols failed\n", failed, len(names)) //nolint:errcheck // best-effort stderr
		return 1
	}
	return 0
}
