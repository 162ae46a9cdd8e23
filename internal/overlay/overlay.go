// Package overlay copies a template bench into a new bench directory.
package overlay

import (
	"fmt"
	"path/filepath"

	"github.com/steveyegge/wellplan/internal/fsys"
)

// SkipFunc reports whether a file or directory should be skipped during copy.
// relPath is relative to the source root. isDir indicates whether it's a directory.
type SkipFunc func(relPath string, isDir bool) bool

// Result lists what a copy did, as paths relative to the source root.
type Result struct {
	// Copied holds the files written to the destination.
	Copied []string
	// Kept holds files that already existed in the destination and were
	// left untouched.
	Kept []string
}

// CopyDir recursively copies srcDir into dstDir, skipping entries where
// skip returns true. If skip is nil, copies everything. Files already
// present in dstDir are never overwritten. Returns on the first error.
func CopyDir(fs fsys.FS, srcDir, dstDir string, skip SkipFunc) (Result, error) {
	var res Result
	info, err := fs.Stat(srcDir)
	if err != nil {
		return res, fmt.Errorf("overlay: stat %q: %w", srcDir, err)
	}
	if !info.IsDir() {
		return res, fmt.Errorf("overlay: %q is not a directory", srcDir)
	}
	if err := fs.MkdirAll(dstDir, 0o755); err != nil {
		return res, fmt.Errorf("overlay: mkdir %q: %w", dstDir, err)
	}
	err = copyRecursive(fs, srcDir, dstDir, "", skip, &res)
	return res, err
}

// copyRecursive walks srcBase/rel and copies files into dstBase/rel.
func copyRecursive(fs fsys.FS, srcBase, dstBase, rel string, skip SkipFunc, res *Result) error {
	srcPath := filepath.Join(srcBase, rel)
	entries, err := fs.ReadDir(srcPath)
	if err != nil {
		return fmt.Errorf("overlay: reading %q: %w", srcPath, err)
	}

	for _, entry := range entries {
		entryRel := filepath.Join(rel, entry.Name())
		if skip != nil && skip(entryRel, entry.IsDir()) {
			continue
		}

		if entry.IsDir() {
			dstSubDir := filepath.Join(dstBase, entryRel)
			if err := fs.MkdirAll(dstSubDir, 0o755); err != nil {
				return fmt.Errorf("overlay: mkdir %q: %w", dstSubDir, err)
			}
			if err := copyRecursive(fs, srcBase, dstBase, entryRel, skip, res); err != nil {
				return err
			}
			continue
		}

		dst := filepath.Join(dstBase, entryRel)
		if fsys.Exists(fs, dst) {
			res.Kept = append(res.Kept, entryRel)
			continue
		}
		data, err := fs.ReadFile(filepath.Join(srcBase, entryRel))
		if err != nil {
			return fmt.Errorf("overlay: %w", err)
		}
		if err := fs.WriteFile(dst, data, 0o644); err != nil {
			return fmt.Errorf("overlay: writing %q: %w", dst, err)
		}
		res.Copied = append(res.Copied, entryRel)
	}
	return nil
}
