package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/steveyegge/wellplan/internal/events"
)

// eventsOptions holds the "wp events" flags.
type eventsOptions struct {
	typeFilter string
	subject    string
	since      string
	watch      bool
	timeout    string
	after      uint64
}

func newEventsCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts eventsOptions
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the bench event log",
		Long: `Show the bench event log (.wp/events.jsonl).

Every plan build, rejected plan, run, executed step and checkpoint is
recorded. With --watch the command blocks until a matching event is
recorded after the current head (or after --after) and prints it as a
JSON line; empty output means the timeout expired.`,
		Example: `  wp events --type plan.rejected
  wp events --protocol loading-dye --since 1h
  wp events --watch --type checkpoint.waiting --timeout 10m`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if cmdEvents(opts, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.typeFilter, "type", "", "Filter by event type (e.g. plan.built)")
	cmd.Flags().StringVar(&opts.subject, "protocol", "", "Filter by protocol name")
	cmd.Flags().StringVar(&opts.since, "since", "", "Show events since duration ago (e.g. 1h, 30m)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Block until matching events arrive")
	cmd.Flags().StringVar(&opts.timeout, "timeout", "30s", "Max wait duration for --watch (e.g. 30s, 5m)")
	cmd.Flags().Uint64Var(&opts.after, "after", 0, "Resume watching from this sequence number (0 = current head)")
	return cmd
}

// cmdEvents is the CLI entry point for the event log.
func cmdEvents(opts eventsOptions, stdout, stderr io.Writer) int {
	dir, err := resolveBench()
	if err != nil {
		fmt.Fprintf(stderr, "wp events: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	path := filepath.Join(dir, stateDir, eventsFile)
	if opts.watch {
		timeout, err := time.ParseDuration(opts.timeout)
		if err != nil {
			fmt.Fprintf(stderr, "wp events: invalid --timeout %q: %v\n", opts.timeout, err) //nolint:errcheck // best-effort stderr
			return 1
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return doEventsWatch(ctx, path, opts, events.DefaultPoll, stdout, stderr)
	}
	return doEvents(path, opts, stdout, stderr)
}

// doEvents reads and displays events from the log file. Accepts the path
// directly for testability.
func doEvents(path string, opts eventsOptions, stdout, stderr io.Writer) int {
	filter := events.Filter{Type: opts.typeFilter, Subject: opts.subject}
	if opts.since != "" {
		d, err := time.ParseDuration(opts.since)
		if err != nil {
			fmt.Fprintf(stderr, "wp events: invalid --since %q: %v\n", opts.since, err) //nolint:errcheck // best-effort stderr
			return 1
		}
		filter.Since = time.Now().Add(-d)
	}

	evts, err := events.ReadFiltered(path, filter)
	if err != nil {
		fmt.Fprintf(stderr, "wp events: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	if len(evts) == 0 {
		fmt.Fprintln(stdout, "No events.") //nolint:errcheck // best-effort stdout
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTYPE\tACTOR\tPROTOCOL\tMESSAGE\tTIME") //nolint:errcheck // best-effort stdout
	for _, e := range evts {
		msg := e.Message
		if len(msg) > 48 {
			msg = msg[:45] + "..."
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", //nolint:errcheck // best-effort stdout
			e.Seq, e.Type, e.Actor, e.Subject, msg,
			e.Ts.Format("2006-01-02 15:04:05"),
		)
	}
	tw.Flush() //nolint:errcheck // best-effort stdout
	return 0
}

// doEventsWatch follows the log until a matching event arrives or ctx
// ends, then prints that event as a JSON line. Without --after it starts
// at the current head. Returns 0 on timeout with empty output.
func doEventsWatch(ctx context.Context, path string, opts eventsOptions, poll time.Duration, stdout, stderr io.Writer) int {
	after := opts.after
	if after == 0 {
		seq, err := events.ReadLatestSeq(path)
		if err != nil {
			fmt.Fprintf(stderr, "wp events: %v\n", err) //nolint:errcheck // best-effort stderr
			return 1
		}
		after = seq
	}
	filter := events.Filter{Type: opts.typeFilter, Subject: opts.subject}

	w := events.NewFileWatcher(ctx, path, after, poll)
	defer w.Close() //nolint:errcheck // no-op
	for {
		e, err := w.Next()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return 0
			}
			fmt.Fprintf(stderr, "wp events: %v\n", err) //nolint:errcheck // best-effort stderr
			return 1
		}
		if !filter.Match(e) {
			continue
		}
		data, err := json.Marshal(e)
		if err != nil {
			fmt.Fprintf(stderr, "wp events: marshal: %v\n", err) //nolint:errcheck // best-effort stderr
			return 1
		}
		fmt.Fprintln(stdout, string(data)) //nolint:errcheck // best-effort stdout
		return 0
	}
}
