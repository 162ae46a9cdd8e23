package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/steveyegge/wellplan/internal/deck"
	"github.com/steveyegge/wellplan/internal/fsys"
	"github.com/steveyegge/wellplan/internal/overlay"
	"github.com/steveyegge/wellplan/internal/protocol"
)

// exampleProtocol is written by "wp init" so a fresh bench can plan
// something immediately.
const exampleProtocol = `protocol = "example"
description = "Fill {{reactions}} wells with buffer, then seal."
reactions = 24

[[samples]]
name = "wells"
plate = "plate"

[[pools]]
id = "buffer"
labware = "reservoir"
well = "A1"
volume = 2000

[[steps]]
id = "buffer"
action = "distribute"
volume = 50
from = ["buffer"]
to = "wells"

[[steps]]
id = "seal"
action = "pause"
message = "Seal the plate and spin it down"
`

func newInitCmd(stdout, stderr io.Writer) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Initialize a bench with a default deck layout",
		Long: `Initialize a bench directory.

Writes bench.toml with the default deck (two 96-well plates, a cooled
plate, 20 µl and 300 µl tip racks, a 12-column reservoir and a
temperature module), a protocols/ directory holding an example recipe,
and the .wp/ state directory. The bench is named after the directory.

With --from the deck and protocols are copied from an existing bench
instead, such as one of the benches under examples/. The template's
event log and lock are not copied.`,
		Example: `  wp init
  wp init ~/benches/ot2-left
  wp init --from examples/cloning ~/benches/cloning`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				fmt.Fprintf(stderr, "wp init: %v\n", err) //nolint:errcheck // best-effort stderr
				return errExit
			}
			if doInit(fsys.OSFS{}, abs, from, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Copy the deck and protocols from this bench directory")
	return cmd
}

// doInit creates the bench skeleton in dir, from the default deck or
// from the template bench at from. Accepts an injected filesystem for
// testability.
func doInit(fs fsys.FS, dir, from string, stdout, stderr io.Writer) int {
	benchPath := filepath.Join(dir, benchFile)
	if fsys.Exists(fs, benchPath) {
		fmt.Fprintf(stderr, "wp init: bench already initialized at %s\n", dir) //nolint:errcheck // best-effort stderr
		return 1
	}

	layout := deck.Default(filepath.Base(dir))
	if from != "" {
		tmpl, err := deck.Load(fs, filepath.Join(from, benchFile))
		if err != nil {
			fmt.Fprintf(stderr, "wp init: template: %v\n", err) //nolint:errcheck // best-effort stderr
			return 1
		}
		layout = *tmpl
		layout.Bench.Name = filepath.Base(dir)
	}
	data, err := layout.Marshal()
	if err != nil {
		fmt.Fprintf(stderr, "wp init: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	protoDir := filepath.Join(dir, layout.ProtocolsDir())
	for _, d := range []string{dir, protoDir, filepath.Join(dir, stateDir)} {
		if err := fs.MkdirAll(d, 0o755); err != nil {
			fmt.Fprintf(stderr, "wp init: %v\n", err) //nolint:errcheck // best-effort stderr
			return 1
		}
	}
	if err := fsys.WriteAtomic(fs, benchPath, data, 0o644); err != nil {
		fmt.Fprintf(stderr, "wp init: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	if from != "" {
		skip := func(rel string, _ bool) bool {
			return rel == benchFile || rel == stateDir
		}
		res, err := overlay.CopyDir(fs, from, dir, skip)
		if err != nil {
			fmt.Fprintf(stderr, "wp init: %v\n", err) //nolint:errcheck // best-effort stderr
			return 1
		}
		for _, rel := range res.Kept {
			fmt.Fprintf(stdout, "Kept existing %s\n", rel) //nolint:errcheck // best-effort stdout
		}
		fmt.Fprintf(stdout, "Initialized bench %q in %s from %s (%d files copied)\n", //nolint:errcheck // best-effort stdout
			layout.Bench.Name, dir, from, len(res.Copied))
		fmt.Fprintln(stdout, "Try: wp protocol list") //nolint:errcheck // best-effort stdout
		return 0
	}

	examplePath := filepath.Join(protoDir, "example"+protocol.SuffixTOML)
	if !fsys.Exists(fs, examplePath) {
		if err := fs.WriteFile(examplePath, []byte(exampleProtocol), 0o644); err != nil {
			fmt.Fprintf(stderr, "wp init: %v\n", err) //nolint:errcheck // best-effort stderr
			return 1
		}
	}

	fmt.Fprintf(stdout, "Initialized bench %q in %s\n", layout.Bench.Name, dir) //nolint:errcheck // best-effort stdout
	fmt.Fprintln(stdout, "Try: wp plan example")                                 //nolint:errcheck // best-effort stdout
	return 0
}
