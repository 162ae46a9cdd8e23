// Package eventstest provides a conformance suite for events.Provider
// implementations. Each implementation's test file calls RunProviderTests
// with its own factory.
package eventstest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/steveyegge/wellplan/internal/events"
)

// RunProviderTests runs the core suite against a Provider. newProvider
// must return a fresh, empty provider and a cleanup closure.
func RunProviderTests(t *testing.T, newProvider func(t *testing.T) (events.Provider, func())) {
	t.Helper()

	t.Run("RecordAndList", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		p.Record(events.Event{
			Type:    events.PlanBuilt,
			Actor:   "human",
			Subject: "golden-gate-setup",
			Message: "7 steps",
		})
		got, err := p.List(events.Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("List returned %d events, want 1", len(got))
		}
		e := got[0]
		if e.Type != events.PlanBuilt || e.Actor != "human" || e.Subject != "golden-gate-setup" || e.Message != "7 steps" {
			t.Errorf("event = %+v", e)
		}
		if e.Seq == 0 || e.Ts.IsZero() {
			t.Errorf("Seq/Ts not filled: %+v", e)
		}
	})

	t.Run("SeqMonotonic", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		p.Record(events.Event{Type: events.RunStarted, Actor: "human"})
		p.Record(events.Event{Type: events.StepExecuted, Actor: "human"})
		p.Record(events.Event{Type: events.RunFinished, Actor: "human"})
		got, err := p.List(events.Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		for i := 1; i < len(got); i++ {
			if got[i].Seq <= got[i-1].Seq {
				t.Errorf("Seq not increasing: %d after %d", got[i].Seq, got[i-1].Seq)
			}
		}
		seq, err := p.LatestSeq()
		if err != nil {
			t.Fatalf("LatestSeq: %v", err)
		}
		if seq != got[len(got)-1].Seq {
			t.Errorf("LatestSeq = %d, want %d", seq, got[len(got)-1].Seq)
		}
	})

	t.Run("PreservesExplicitTimestamp", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		explicit := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
		p.Record(events.Event{Type: events.PlanBuilt, Actor: "human", Ts: explicit})
		got, err := p.List(events.Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if !got[0].Ts.Equal(explicit) {
			t.Errorf("Ts = %v, want %v", got[0].Ts, explicit)
		}
	})

	t.Run("Filters", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		past := time.Now().Add(-2 * time.Hour)
		p.Record(events.Event{Type: events.PlanBuilt, Actor: "human", Subject: "a", Ts: past})
		p.Record(events.Event{Type: events.PlanRejected, Actor: "ci", Subject: "b"})
		p.Record(events.Event{Type: events.PlanBuilt, Actor: "human", Subject: "b"})

		tests := []struct {
			name   string
			filter events.Filter
			want   int
		}{
			{"type", events.Filter{Type: events.PlanBuilt}, 2},
			{"actor", events.Filter{Actor: "ci"}, 1},
			{"subject", events.Filter{Subject: "b"}, 2},
			{"since", events.Filter{Since: time.Now().Add(-time.Hour)}, 2},
			{"after seq", events.Filter{AfterSeq: 1}, 2},
			{"combined", events.Filter{Type: events.PlanBuilt, Subject: "b"}, 1},
			{"no match", events.Filter{Type: events.RunAborted}, 0},
		}
		for _, tt := range tests {
			got, err := p.List(tt.filter)
			if err != nil {
				t.Fatalf("%s: List: %v", tt.name, err)
			}
			if len(got) != tt.want {
				t.Errorf("%s: got %d events, want %d", tt.name, len(got), tt.want)
			}
		}
	})

	t.Run("EmptyProvider", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		got, err := p.List(events.Filter{})
		if err != nil || len(got) != 0 {
			t.Errorf("List(empty) = %v, %v", got, err)
		}
		seq, err := p.LatestSeq()
		if err != nil || seq != 0 {
			t.Errorf("LatestSeq(empty) = %d, %v", seq, err)
		}
	})

	t.Run("WatchNewEvents", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		p.Record(events.Event{Type: events.RunStarted, Actor: "human", Subject: "old"})
		last, err := p.LatestSeq()
		if err != nil {
			t.Fatal(err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		w, err := p.Watch(ctx, last)
		if err != nil {
			t.Fatalf("Watch: %v", err)
		}
		defer w.Close() //nolint:errcheck // test cleanup

		go func() {
			time.Sleep(50 * time.Millisecond)
			p.Record(events.Event{Type: events.CheckpointWaiting, Actor: "human", Subject: "new"})
		}()
		e, err := w.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if e.Subject != "new" || e.Seq <= last {
			t.Errorf("event = %+v, want new event after seq %d", e, last)
		}
	})

	t.Run("WatchContextCancel", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		ctx, cancel := context.WithCancel(context.Background())
		w, err := p.Watch(ctx, 0)
		if err != nil {
			t.Fatalf("Watch: %v", err)
		}
		defer w.Close() //nolint:errcheck // test cleanup
		cancel()
		if _, err := w.Next(); !errors.Is(err, context.Canceled) {
			t.Errorf("Next after cancel = %v, want context.Canceled", err)
		}
	})

	t.Run("CloseNoError", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()
		if err := p.Close(); err != nil {
			t.Errorf("Close() = %v", err)
		}
	})
}

// RunConcurrencyTests checks that concurrent Record calls keep unique
// sequence numbers. Only valid for in-process providers.
func RunConcurrencyTests(t *testing.T, newProvider func(t *testing.T) (events.Provider, func())) {
	t.Helper()

	t.Run("ConcurrentRecordSafe", func(t *testing.T) {
		p, cleanup := newProvider(t)
		defer cleanup()

		const goroutines, perGoroutine = 10, 10
		var wg sync.WaitGroup
		wg.Add(goroutines)
		for g := 0; g < goroutines; g++ {
			go func() {
				defer wg.Done()
				for i := 0; i < perGoroutine; i++ {
					p.Record(events.Event{Type: events.StepExecuted, Actor: "human"})
				}
			}()
		}
		wg.Wait()

		got, err := p.List(events.Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != goroutines*perGoroutine {
			t.Errorf("List returned %d events, want %d", len(got), goroutines*perGoroutine)
		}
		seen := make(map[uint64]bool, len(got))
		for _, e := range got {
			if seen[e.Seq] {
				t.Errorf("duplicate seq: %d", e.Seq)
			}
			seen[e.Seq] = true
		}
	})
}
