// Package run executes built plans one step at a time.
//
// The Runner owns ordering and bookkeeping: it dispatches each step to a
// Driver (liquid handling, delays, modules) or an Acknowledger (manual
// checkpoints), records events and telemetry, and stops at the first
// failure. Drivers never see a plan, only single steps.
package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/wellplan/internal/events"
	"github.com/steveyegge/wellplan/internal/plan"
	"github.com/steveyegge/wellplan/internal/telemetry"
)

// Driver performs robot steps. Implementations may block and should
// return promptly when ctx is cancelled.
type Driver interface {
	Transfer(ctx context.Context, t plan.TransferStep) error
	Delay(ctx context.Context, d plan.Delay) error
	Module(ctx context.Context, m plan.ModuleCommand) error
}

// Acknowledger blocks until an operator confirms a checkpoint.
type Acknowledger interface {
	Acknowledge(ctx context.Context, c plan.ManualCheckpoint) error
}

// Runner executes plans. Recorder defaults to events.Discard and Actor
// to "human".
type Runner struct {
	Driver   Driver
	Ack      Acknowledger
	Recorder events.Recorder
	Actor    string
}

// Report summarizes an execution.
type Report struct {
	// Executed is the number of steps completed.
	Executed int `json:"executed"`
	// Total is the number of steps in the plan.
	Total       int           `json:"total"`
	Transfers   int           `json:"transfers"`
	Checkpoints int           `json:"checkpoints"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Done reports whether every step ran.
func (r Report) Done() bool { return r.Executed == r.Total }

// StepError is returned when a step fails. Index is 1-based.
type StepError struct {
	Index int
	Step  plan.Step
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// stepPayload is the step.executed event payload.
type stepPayload struct {
	Index int    `json:"index"`
	Kind  string `json:"kind"`
}

// Execute runs every step of p in order. It returns the report so far and
// a *StepError on the first failure or cancellation.
func (r *Runner) Execute(ctx context.Context, p *plan.Plan) (Report, error) {
	if r.Driver == nil {
		return Report{}, errors.New("run: no driver")
	}
	if r.Ack == nil {
		return Report{}, errors.New("run: no acknowledger")
	}
	rec := r.Recorder
	if rec == nil {
		rec = events.Discard
	}
	actor := r.Actor
	if actor == "" {
		actor = "human"
	}

	steps := p.Steps()
	rep := Report{Total: len(steps)}
	start := time.Now()
	rec.Record(events.Event{
		Type:    events.RunStarted,
		Actor:   actor,
		Subject: p.Name,
		Message: fmt.Sprintf("%d steps on %s", len(steps), p.Bench),
	})

	finish := func(err error) (Report, error) {
		rep.Elapsed = time.Since(start)
		telemetry.RecordRun(ctx, p.Name, rep.Executed, float64(rep.Elapsed.Milliseconds()), err)
		if err != nil {
			rec.Record(events.Event{
				Type:    events.RunAborted,
				Actor:   actor,
				Subject: p.Name,
				Message: err.Error(),
			})
			return rep, err
		}
		rec.Record(events.Event{
			Type:    events.RunFinished,
			Actor:   actor,
			Subject: p.Name,
			Message: fmt.Sprintf("%d steps in %s", rep.Executed, rep.Elapsed.Round(time.Millisecond)),
		})
		return rep, nil
	}

	for i, s := range steps {
		index := i + 1
		if err := ctx.Err(); err != nil {
			return finish(&StepError{Index: index, Step: s, Err: err})
		}
		err := r.dispatch(ctx, rec, actor, p.Name, s)
		telemetry.RecordStep(ctx, p.Name, s.Kind(), index, err)
		if err != nil {
			return finish(&StepError{Index: index, Step: s, Err: err})
		}
		rep.Executed++
		switch s.(type) {
		case plan.TransferStep:
			rep.Transfers++
		case plan.ManualCheckpoint:
			rep.Checkpoints++
		}
		rec.Record(events.WithPayload(events.Event{
			Type:    events.StepExecuted,
			Actor:   actor,
			Subject: p.Name,
			Message: s.String(),
		}, stepPayload{Index: index, Kind: s.Kind()}))
	}
	return finish(nil)
}

func (r *Runner) dispatch(ctx context.Context, rec events.Recorder, actor, name string, s plan.Step) error {
	switch s := s.(type) {
	case plan.TransferStep:
		return r.Driver.Transfer(ctx, s)
	case plan.Delay:
		return r.Driver.Delay(ctx, s)
	case plan.ModuleCommand:
		return r.Driver.Module(ctx, s)
	case plan.ManualCheckpoint:
		rec.Record(events.Event{
			Type:    events.CheckpointWaiting,
			Actor:   actor,
			Subject: name,
			Message: s.Message,
		})
		waitStart := time.Now()
		err := r.Ack.Acknowledge(ctx, s)
		telemetry.RecordCheckpoint(ctx, name, s.Message, float64(time.Since(waitStart).Milliseconds()), err)
		if err != nil {
			return err
		}
		rec.Record(events.Event{
			Type:    events.CheckpointAcknowledged,
			Actor:   actor,
			Subject: name,
			Message: s.Message,
		})
		return nil
	default:
		return fmt.Errorf("unsupported step kind %q", s.Kind())
	}
}
