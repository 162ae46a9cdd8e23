package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/steveyegge/wellplan/internal/deck"
	"github.com/steveyegge/wellplan/internal/doctor"
	"github.com/steveyegge/wellplan/internal/events"
	"github.com/steveyegge/wellplan/internal/fsys"
)

const (
	benchFile  = doctor.BenchFile
	stateDir   = doctor.StateDir
	eventsFile = doctor.EventsFile
	lockFile   = doctor.LockFile
)

// findBench walks dir upward looking for a directory containing bench.toml.
func findBench(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if fi, err := os.Stat(filepath.Join(dir, benchFile)); err == nil && !fi.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not in a bench directory (no %s found)", benchFile)
		}
		dir = parent
	}
}

// resolveBench returns the bench root. --bench wins, then WP_BENCH; both
// must name a directory holding bench.toml. Otherwise the bench is found
// by walking up from the working directory.
func resolveBench() (string, error) {
	explicit := benchFlag
	if explicit == "" {
		explicit = os.Getenv("WP_BENCH")
	}
	if explicit != "" {
		p, err := filepath.Abs(explicit)
		if err != nil {
			return "", err
		}
		if fi, err := os.Stat(filepath.Join(p, benchFile)); err != nil || fi.IsDir() {
			return "", fmt.Errorf("not a bench directory: %s (no %s found)", p, benchFile)
		}
		return p, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return findBench(cwd)
}

// openBench resolves the bench root and loads its layout.
func openBench() (string, *deck.Layout, error) {
	dir, err := resolveBench()
	if err != nil {
		return "", nil, err
	}
	layout, err := deck.Load(fsys.OSFS{}, filepath.Join(dir, benchFile))
	if err != nil {
		return "", nil, err
	}
	return dir, layout, nil
}

// protocolsDir returns the absolute protocols directory of a bench.
func protocolsDir(benchDir string, layout *deck.Layout) string {
	d := layout.ProtocolsDir()
	if filepath.IsAbs(d) {
		return d
	}
	return filepath.Join(benchDir, d)
}

// openBenchRecorder returns a Recorder that appends to .wp/events.jsonl in
// the bench. Returns events.Discard on any error; commands always get a
// valid recorder.
func openBenchRecorder(benchDir string, stderr io.Writer) events.Recorder {
	rec, err := events.NewFileRecorder(filepath.Join(benchDir, stateDir, eventsFile), stderr)
	if err != nil {
		return events.Discard
	}
	return rec
}

// eventActor returns the actor identity for events: WP_ACTOR if set,
// otherwise "human".
func eventActor() string {
	if a := os.Getenv("WP_ACTOR"); a != "" {
		return a
	}
	return "human"
}
