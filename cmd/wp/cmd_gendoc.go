package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/steveyegge/wellplan/internal/docgen"
	"github.com/steveyegge/wellplan/internal/fsys"
)

// newGenDocCmd creates the hidden "wp gen-doc" subcommand. It writes
// docs/reference/cli.md by walking the real command tree. Must be called
// from the repository root (go.mod must exist).
func newGenDocCmd(stdout, stderr io.Writer, root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:    "gen-doc",
		Short:  "Generate CLI reference documentation",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doGenDoc(fsys.OSFS{}, root, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

// doGenDoc writes the CLI reference. Accepts an injected filesystem for
// testability.
func doGenDoc(fs fsys.FS, root *cobra.Command, stdout, stderr io.Writer) int {
	if !fsys.Exists(fs, "go.mod") {
		fmt.Fprintln(stderr, "wp gen-doc: must run from repository root (go.mod not found)") //nolint:errcheck // best-effort stderr
		return 1
	}
	if err := fs.MkdirAll("docs/reference", 0o755); err != nil {
		fmt.Fprintf(stderr, "wp gen-doc: creating docs/reference: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	outPath := "docs/reference/cli.md"
	if err := docgen.WriteCLIMarkdown(fs, outPath, root); err != nil {
		fmt.Fprintf(stderr, "wp gen-doc: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	fmt.Fprintf(stdout, "Generated: %s\n", outPath) //nolint:errcheck // best-effort stdout
	return 0
}
