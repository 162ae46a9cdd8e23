package events

import (
	"context"
	"sync"
	"time"
)

// Fake is an in-memory [Provider] for testing. It captures all recorded
// events in the Events slice, filling Seq and Ts like the file recorder.
// Safe for concurrent use.
type Fake struct {
	mu     sync.Mutex
	Events []Event
}

// NewFake returns a ready-to-use [Fake] recorder.
func NewFake() *Fake {
	return &Fake{}
}

// Record appends the event to the Events slice.
func (f *Fake) Record(e Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.Seq = uint64(len(f.Events)) + 1
	if e.Ts.IsZero() {
		e.Ts = time.Now()
	}
	f.Events = append(f.Events, e)
}

// Types returns the recorded event types in order.
func (f *Fake) Types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Events))
	for i, e := range f.Events {
		out[i] = e.Type
	}
	return out
}

// List returns recorded events matching filter.
func (f *Fake) List(filter Filter) ([]Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Event
	for _, e := range f.Events {
		if filter.Match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// LatestSeq returns the number of recorded events.
func (f *Fake) LatestSeq() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.Events)), nil
}

// Watch polls the in-memory slice for events after afterSeq.
func (f *Fake) Watch(ctx context.Context, afterSeq uint64) (Watcher, error) {
	return &fakeWatcher{fake: f, ctx: ctx, next: afterSeq}, nil
}

// Close is a no-op.
func (f *Fake) Close() error { return nil }

type fakeWatcher struct {
	fake *Fake
	ctx  context.Context
	next uint64
}

func (w *fakeWatcher) Next() (Event, error) {
	for {
		w.fake.mu.Lock()
		if int(w.next) < len(w.fake.Events) {
			e := w.fake.Events[w.next]
			w.next++
			w.fake.mu.Unlock()
			return e, nil
		}
		w.fake.mu.Unlock()
		select {
		case <-w.ctx.Done():
			return Event{}, w.ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (w *fakeWatcher) Close() error { return nil }
