package run

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/steveyegge/wellplan/internal/plan"
)

// ScriptDriver simulates a robot by writing one line per step. Delays are
// printed and skipped unless Sleep is set.
type ScriptDriver struct {
	Out   io.Writer
	Sleep bool
}

// Transfer prints the transfer.
func (d *ScriptDriver) Transfer(_ context.Context, t plan.TransferStep) error {
	_, err := fmt.Fprintf(d.Out, "-> %s\n", t)
	return err
}

// Delay prints the delay and, with Sleep set, waits it out.
func (d *ScriptDriver) Delay(ctx context.Context, dl plan.Delay) error {
	if _, err := fmt.Fprintf(d.Out, "-> %s\n", dl); err != nil {
		return err
	}
	if !d.Sleep {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(dl.Duration):
		return nil
	}
}

// Module prints the module command.
func (d *ScriptDriver) Module(_ context.Context, m plan.ModuleCommand) error {
	_, err := fmt.Fprintf(d.Out, "-> %s\n", m)
	return err
}

// ErrNoOperator is returned when operator input ends before a checkpoint
// is acknowledged.
var ErrNoOperator = errors.New("no operator input")

// LineAcknowledger prompts on Out and waits for a line on In.
type LineAcknowledger struct {
	In  io.Reader
	Out io.Writer

	once  sync.Once
	lines chan error
}

// Acknowledge prints the checkpoint and waits for Enter. A pending read
// stays outstanding after ctx is cancelled and is consumed by the next
// checkpoint.
func (a *LineAcknowledger) Acknowledge(ctx context.Context, c plan.ManualCheckpoint) error {
	a.once.Do(a.start)
	msg := c.Message
	if msg == "" {
		msg = "paused"
	}
	if _, err := fmt.Fprintf(a.Out, "PAUSE: %s\nPress Enter to continue... ", msg); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err, ok := <-a.lines:
		if !ok {
			return ErrNoOperator
		}
		return err
	}
}

func (a *LineAcknowledger) start() {
	a.lines = make(chan error)
	go func() {
		sc := bufio.NewScanner(a.In)
		for sc.Scan() {
			a.lines <- nil
		}
		if err := sc.Err(); err != nil {
			a.lines <- err
		}
		close(a.lines)
	}()
}

// AutoAcknowledger confirms every checkpoint immediately, optionally
// echoing it to Out.
type AutoAcknowledger struct {
	Out io.Writer
}

// Acknowledge confirms c.
func (a AutoAcknowledger) Acknowledge(_ context.Context, c plan.ManualCheckpoint) error {
	if a.Out == nil {
		return nil
	}
	_, err := fmt.Fprintf(a.Out, "-> %s (auto-acknowledged)\n", c)
	return err
}
