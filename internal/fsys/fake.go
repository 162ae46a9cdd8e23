package fsys

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Fake is an in-memory [FS]. Seed Files and Dirs directly; set Fail to
// make any call on a path return an error. Every call is appended to Calls.
type Fake struct {
	Files map[string][]byte
	Dirs  map[string]bool
	Fail  map[string]error
	Calls []string // "Method path"
}

// NewFake returns an empty [Fake].
func NewFake() *Fake {
	return &Fake{
		Files: make(map[string][]byte),
		Dirs:  make(map[string]bool),
		Fail:  make(map[string]error),
	}
}

func (f *Fake) record(method, path string) error {
	f.Calls = append(f.Calls, method+" "+path)
	return f.Fail[path]
}

func notExist(op, path string) error {
	return &os.PathError{Op: op, Path: path, Err: os.ErrNotExist}
}

// ReadFile returns a copy of the seeded contents.
func (f *Fake) ReadFile(name string) ([]byte, error) {
	if err := f.record("ReadFile", name); err != nil {
		return nil, err
	}
	data, ok := f.Files[name]
	if !ok {
		return nil, notExist("open", name)
	}
	return append([]byte(nil), data...), nil
}

// WriteFile stores a copy of data. The parent directory must exist.
func (f *Fake) WriteFile(name string, data []byte, _ os.FileMode) error {
	if err := f.record("WriteFile", name); err != nil {
		return err
	}
	if dir := filepath.Dir(name); dir != "." && dir != "/" && !f.Dirs[dir] {
		return notExist("open", name)
	}
	f.Files[name] = append([]byte(nil), data...)
	return nil
}

// MkdirAll marks path and its parents as directories.
func (f *Fake) MkdirAll(path string, _ os.FileMode) error {
	if err := f.record("MkdirAll", path); err != nil {
		return err
	}
	for p := filepath.Clean(path); p != "." && p != "/"; p = filepath.Dir(p) {
		f.Dirs[p] = true
	}
	return nil
}

// ReadDir lists the direct children of name, sorted by name.
func (f *Fake) ReadDir(name string) ([]os.DirEntry, error) {
	if err := f.record("ReadDir", name); err != nil {
		return nil, err
	}
	name = filepath.Clean(name)
	if !f.Dirs[name] {
		return nil, notExist("open", name)
	}
	var out []os.DirEntry
	for d := range f.Dirs {
		if d != name && filepath.Dir(d) == name {
			out = append(out, fakeEntry{name: filepath.Base(d), dir: true})
		}
	}
	for p, data := range f.Files {
		if filepath.Dir(p) == name {
			out = append(out, fakeEntry{name: filepath.Base(p), size: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

// Stat reports seeded files and directories.
func (f *Fake) Stat(name string) (os.FileInfo, error) {
	if err := f.record("Stat", name); err != nil {
		return nil, err
	}
	if f.Dirs[filepath.Clean(name)] {
		return fakeEntry{name: filepath.Base(name), dir: true}, nil
	}
	if data, ok := f.Files[name]; ok {
		return fakeEntry{name: filepath.Base(name), size: int64(len(data))}, nil
	}
	return nil, notExist("stat", name)
}

// Rename moves a file.
func (f *Fake) Rename(oldpath, newpath string) error {
	if err := f.record("Rename", oldpath); err != nil {
		return err
	}
	data, ok := f.Files[oldpath]
	if !ok {
		return notExist("rename", oldpath)
	}
	delete(f.Files, oldpath)
	f.Files[newpath] = data
	return nil
}

// fakeEntry serves as both os.FileInfo and os.DirEntry.
type fakeEntry struct {
	name string
	size int64
	dir  bool
}

func (e fakeEntry) Name() string { return e.name }
func (e fakeEntry) Size() int64  { return e.size }
func (e fakeEntry) IsDir() bool  { return e.dir }
func (e fakeEntry) Mode() fs.FileMode {
	if e.dir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}
func (e fakeEntry) Type() fs.FileMode          { return e.Mode().Type() }
func (e fakeEntry) ModTime() time.Time         { return time.Time{} }
func (e fakeEntry) Sys() any                   { return nil }
func (e fakeEntry) Info() (fs.FileInfo, error) { return e, nil }

var (
	_ FS          = (*Fake)(nil)
	_ FS          = OSFS{}
	_ os.FileInfo = fakeEntry{}
	_ os.DirEntry = fakeEntry{}
)
