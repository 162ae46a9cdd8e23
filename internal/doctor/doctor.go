package doctor

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Report summarizes the results of a doctor run.
type Report struct {
	// Passed is the number of checks with StatusOK.
	Passed int
	// Warned is the number of checks with StatusWarning.
	Warned int
	// Failed is the number of checks with StatusError.
	Failed int
	// Fixed is the number of checks remediated by --fix.
	Fixed int
	// Bench is the name of the bench directory checked.
	Bench string
	// Failing and Warning name the checks that ended in error or warning,
	// in the order they ran.
	Failing []string
	Warning []string
}

// Doctor runs registered health checks and reports results.
type Doctor struct {
	checks []Check
}

// Register adds a check to the doctor's check list.
func (d *Doctor) Register(c Check) {
	d.checks = append(d.checks, c)
}

// Run executes all registered checks, streaming results to w as each
// completes. When fix is true, fixable checks that fail are remediated
// and re-run. Returns a summary report.
func (d *Doctor) Run(ctx *CheckContext, w io.Writer, fix bool) *Report {
	r := &Report{}
	if ctx.BenchPath != "" {
		r.Bench = filepath.Base(ctx.BenchPath)
	}
	for _, c := range d.checks {
		result := c.Run(ctx)

		if fix && result.Status != StatusOK && c.CanFix() {
			if err := c.Fix(ctx); err == nil {
				result = c.Run(ctx)
				if result.Status == StatusOK {
					result.Fixed = true
				}
			}
		}

		printResult(w, result, ctx.Verbose)

		switch {
		case result.Fixed:
			r.Fixed++
			r.Passed++
		case result.Status == StatusOK:
			r.Passed++
		case result.Status == StatusWarning:
			r.Warned++
			r.Warning = append(r.Warning, result.Name)
		case result.Status == StatusError:
			r.Failed++
			r.Failing = append(r.Failing, result.Name)
		}
	}
	return r
}

// printResult writes a single check result line to w. Details are only
// shown in verbose mode; the fix hint only while the check is failing.
func printResult(w io.Writer, r *CheckResult, verbose bool) {
	var icon string
	switch {
	case r.Fixed:
		icon = "✓"
	case r.Status == StatusOK:
		icon = "✓"
	case r.Status == StatusWarning:
		icon = "⚠"
	case r.Status == StatusError:
		icon = "✗"
	}

	suffix := ""
	if r.Fixed {
		suffix = " (fixed)"
	}
	fmt.Fprintf(w, "  %s %s: %s%s\n", icon, r.Name, r.Message, suffix) //nolint:errcheck // best-effort output
	if verbose {
		for _, d := range r.Details {
			fmt.Fprintf(w, "      %s\n", d) //nolint:errcheck // best-effort output
		}
	}
	if r.FixHint != "" && r.Status != StatusOK && !r.Fixed {
		fmt.Fprintf(w, "      hint: %s\n", r.FixHint) //nolint:errcheck // best-effort output
	}
}

// Healthy reports whether no check failed. Warnings do not count.
func (r *Report) Healthy() bool { return r.Failed == 0 }

// PrintSummary writes the check counts and whether the bench can start a
// run to w.
func PrintSummary(w io.Writer, r *Report) {
	parts := []string{}
	if r.Passed > 0 {
		parts = append(parts, fmt.Sprintf("%d passed", r.Passed))
	}
	if r.Warned > 0 {
		parts = append(parts, fmt.Sprintf("%d warnings", r.Warned))
	}
	if r.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", r.Failed))
	}
	if r.Fixed > 0 {
		parts = append(parts, fmt.Sprintf("%d fixed", r.Fixed))
	}
	if len(parts) == 0 {
		fmt.Fprintln(w, "\nNo checks ran.") //nolint:errcheck // best-effort output
		return
	}
	fmt.Fprintf(w, "\n%s\n", strings.Join(parts, ", ")) //nolint:errcheck // best-effort output

	bench := "bench"
	if r.Bench != "" {
		bench = fmt.Sprintf("bench %q", r.Bench)
	}
	switch {
	case !r.Healthy() && len(r.Failing) > 0:
		fmt.Fprintf(w, "%s is not ready to run: fix %s\n", bench, strings.Join(r.Failing, ", ")) //nolint:errcheck // best-effort output
	case !r.Healthy():
		fmt.Fprintf(w, "%s is not ready to run\n", bench) //nolint:errcheck // best-effort output
	case len(r.Warning) > 0:
		fmt.Fprintf(w, "%s can run; see %s\n", bench, strings.Join(r.Warning, ", ")) //nolint:errcheck // best-effort output
	default:
		fmt.Fprintf(w, "%s is ready to run\n", bench) //nolint:errcheck // best-effort output
	}
}
