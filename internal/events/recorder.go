package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultPoll is how often a file watcher checks for new lines.
const DefaultPoll = 250 * time.Millisecond

// FileRecorder appends events to a JSONL file. It opens the file with
// O_APPEND so a planner and a run in separate processes can share one log,
// and serializes writers within a process with a mutex. Recording errors
// are written to stderr and never returned.
type FileRecorder struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	seq    uint64
	stderr io.Writer
}

// NewFileRecorder opens (or creates) the event log at path and continues
// numbering after the highest sequence number already in it. Parent
// directories are created as needed.
func NewFileRecorder(path string, stderr io.Writer) (*FileRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating event log directory: %w", err)
	}
	last, err := ReadLatestSeq(path)
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &FileRecorder{path: path, file: file, seq: last, stderr: stderr}, nil
}

// Path returns the log file path.
func (r *FileRecorder) Path() string { return r.path }

// Record appends an event, filling Seq and (if zero) Ts.
func (r *FileRecorder) Record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	e.Seq = r.seq
	if e.Ts.IsZero() {
		e.Ts = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		fmt.Fprintf(r.stderr, "events: marshal: %v\n", err) //nolint:errcheck // best-effort stderr
		return
	}
	if _, err := r.file.Write(append(data, '\n')); err != nil {
		fmt.Fprintf(r.stderr, "events: write: %v\n", err) //nolint:errcheck // best-effort stderr
	}
}

// List returns events matching the filter from the underlying file.
func (r *FileRecorder) List(filter Filter) ([]Event, error) {
	return ReadFiltered(r.path, filter)
}

// LatestSeq returns the highest sequence number in the event log.
func (r *FileRecorder) LatestSeq() (uint64, error) {
	return ReadLatestSeq(r.path)
}

// Watch returns a Watcher that polls the event file for new events.
func (r *FileRecorder) Watch(ctx context.Context, afterSeq uint64) (Watcher, error) {
	return NewFileWatcher(ctx, r.path, afterSeq, DefaultPoll), nil
}

// Close closes the underlying file.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}

// NewFileWatcher follows the JSONL log at path, which need not exist yet,
// yielding events with Seq > afterSeq. "wp events --watch" uses it
// without opening the log for writing.
func NewFileWatcher(ctx context.Context, path string, afterSeq uint64, poll time.Duration) Watcher {
	if poll <= 0 {
		poll = DefaultPoll
	}
	return &fileWatcher{path: path, afterSeq: afterSeq, ctx: ctx, poll: poll}
}

type fileWatcher struct {
	path     string
	afterSeq uint64
	ctx      context.Context
	poll     time.Duration
	offset   int64
	buf      []Event
}

// Next blocks until the next event is available or the context ends.
func (w *fileWatcher) Next() (Event, error) {
	for {
		if len(w.buf) > 0 {
			e := w.buf[0]
			w.buf = w.buf[1:]
			return e, nil
		}
		if err := w.ctx.Err(); err != nil {
			return Event{}, err
		}

		evts, offset, err := ReadFrom(w.path, w.offset)
		if err != nil {
			return Event{}, err
		}
		w.offset = offset
		for _, e := range evts {
			if e.Seq > w.afterSeq {
				w.afterSeq = e.Seq
				w.buf = append(w.buf, e)
			}
		}
		if len(w.buf) > 0 {
			continue
		}

		select {
		case <-w.ctx.Done():
			return Event{}, w.ctx.Err()
		case <-time.After(w.poll):
		}
	}
}

// Close is a no-op; cancelling the context stops Next.
func (w *fileWatcher) Close() error {
	return nil
}
