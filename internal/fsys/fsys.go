// Package fsys is the filesystem seam used by bench loading, protocol
// resolution, and CLI output.
//
// Production code passes [OSFS]. Tests pass a [Fake], an in-memory tree
// that records every call and can be told to fail on chosen paths.
package fsys

import (
	"fmt"
	"os"
)

// FS covers the file operations wellplan performs and nothing more.
type FS interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
	ReadDir(name string) ([]os.DirEntry, error)
	Stat(name string) (os.FileInfo, error)
	Rename(oldpath, newpath string) error
}

// OSFS implements [FS] with the os package.
type OSFS struct{}

// ReadFile delegates to [os.ReadFile].
func (OSFS) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

// WriteFile delegates to [os.WriteFile].
func (OSFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// MkdirAll delegates to [os.MkdirAll].
func (OSFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

// ReadDir delegates to [os.ReadDir].
func (OSFS) ReadDir(name string) ([]os.DirEntry, error) { return os.ReadDir(name) }

// Stat delegates to [os.Stat].
func (OSFS) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }

// Rename delegates to [os.Rename].
func (OSFS) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }

// WriteAtomic writes data next to name and renames it into place, so a
// reader never sees a half-written plan or config.
func WriteAtomic(fs FS, name string, data []byte, perm os.FileMode) error {
	tmp := name + ".tmp"
	if err := fs.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := fs.Rename(tmp, name); err != nil {
		return fmt.Errorf("renaming %s: %w", name, err)
	}
	return nil
}

// Exists reports whether name can be stat'ed.
func Exists(fs FS, name string) bool {
	_, err := fs.Stat(name)
	return err == nil
}
