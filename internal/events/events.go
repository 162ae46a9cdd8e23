// Package events records what happened on a bench.
//
// Events are synchronous, append-only records of planning and runs. The
// recorder writes JSON lines to .wp/events.jsonl; the reader scans them
// back. Recording is best-effort: errors go to stderr and are never
// returned to callers. Planning never reads the log.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Event types.
const (
	PlanBuilt              = "plan.built"
	PlanRejected           = "plan.rejected"
	RunStarted             = "run.started"
	StepExecuted           = "step.executed"
	CheckpointWaiting      = "checkpoint.waiting"
	CheckpointAcknowledged = "checkpoint.acknowledged"
	RunFinished            = "run.finished"
	RunAborted             = "run.aborted"
)

// Event is a single recorded occurrence. Subject is the protocol name.
type Event struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Ts      time.Time       `json:"ts"`
	Actor   string          `json:"actor"`
	Subject string          `json:"subject,omitempty"`
	Message string          `json:"message,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Recorder records events. Safe for concurrent use. Best-effort.
type Recorder interface {
	Record(e Event)
}

// Provider is a Recorder that can also read its events back.
type Provider interface {
	Recorder
	// List returns recorded events matching filter, oldest first.
	List(filter Filter) ([]Event, error)
	// LatestSeq returns the highest sequence number recorded, or 0.
	LatestSeq() (uint64, error)
	// Watch streams events with Seq > afterSeq until ctx is done.
	Watch(ctx context.Context, afterSeq uint64) (Watcher, error)
	Close() error
}

// Watcher yields events as they are recorded.
type Watcher interface {
	// Next blocks until an event arrives or the watch context ends.
	Next() (Event, error)
	Close() error
}

// Discard silently drops all events.
var Discard Recorder = discardRecorder{}

type discardRecorder struct{}

func (discardRecorder) Record(Event) {}

// WithPayload returns e with v encoded as its payload. Encoding errors
// leave the payload empty; events are best-effort.
func WithPayload(e Event, v any) Event {
	data, err := json.Marshal(v)
	if err == nil {
		e.Payload = data
	}
	return e
}
