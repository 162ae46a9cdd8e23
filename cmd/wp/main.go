// wp is the wellplan CLI: it plans and runs batch liquid-handling
// protocols against a bench layout.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/steveyegge/wellplan/internal/telemetry"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// errExit is a sentinel error returned by cobra RunE functions to signal
// non-zero exit. The command has already written its own error to stderr.
var errExit = errors.New("exit")

// benchFlag holds the value of the --bench persistent flag.
// Empty means "WP_BENCH, then discover from cwd."
var benchFlag string

// run executes the wp CLI with the given args, writing output to stdout and
// errors to stderr. Returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	ctx := context.Background()
	shutdown, err := telemetry.Init(ctx, version)
	if err != nil {
		fmt.Fprintf(stderr, "wp: telemetry disabled: %v\n", err) //nolint:errcheck // best-effort stderr
	}
	defer shutdown(ctx) //nolint:errcheck // best-effort flush

	root := newRootCmd(os.Stdin, stdout, stderr)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}

// newRootCmd creates the root cobra command with all subcommands.
func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "wp",
		Short:         "wellplan: plan and run batch liquid-handling protocols",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			fmt.Fprintf(stderr, "wp: unknown command %q\n", args[0]) //nolint:errcheck // best-effort stderr
			return errExit
		},
	}
	root.PersistentFlags().StringVar(&benchFlag, "bench", "",
		"path to the bench directory (default: $WP_BENCH, then walk up from cwd)")
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(
		newInitCmd(stdout, stderr),
		newProtocolCmd(stdout, stderr),
		newPlanCmd(stdout, stderr),
		newRunCmd(stdin, stdout, stderr),
		newEventsCmd(stdout, stderr),
		newDoctorCmd(stdout, stderr),
		newVersionCmd(stdout),
	)
	root.AddCommand(newGenDocCmd(stdout, stderr, root))
	return root
}
