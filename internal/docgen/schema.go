// Package docgen generates JSON Schema and markdown documentation from
// the bench and protocol structs.
package docgen

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"
	"github.com/steveyegge/wellplan/internal/deck"
	"github.com/steveyegge/wellplan/internal/protocol"
)

const modulePath = "github.com/steveyegge/wellplan"

// ModuleRoot finds the repo root by walking up from the current directory
// looking for go.mod. Returns the absolute path.
func ModuleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent of %s", dir)
		}
		dir = parent
	}
}

// newReflector creates a jsonschema.Reflector that uses TOML field names
// and takes descriptions from Go doc comments.
//
// AddGoComments walks "." and maps directories to import paths, so the
// working directory must be the module root while it runs.
func newReflector() (*jsonschema.Reflector, error) {
	root, err := ModuleRoot()
	if err != nil {
		return nil, err
	}
	orig, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	if err := os.Chdir(root); err != nil {
		return nil, fmt.Errorf("chdir to module root: %w", err)
	}
	defer func() { _ = os.Chdir(orig) }()

	r := &jsonschema.Reflector{
		FieldNameTag: "toml",
	}
	if err := r.AddGoComments(modulePath, "./internal"); err != nil {
		return nil, fmt.Errorf("extracting Go comments: %w", err)
	}
	return r, nil
}

// GenerateBenchSchema produces a JSON Schema for bench.toml.
func GenerateBenchSchema() (*jsonschema.Schema, error) {
	r, err := newReflector()
	if err != nil {
		return nil, err
	}
	s := r.Reflect(&deck.Layout{})
	s.Title = "Bench Configuration"
	s.Description = "Schema for bench.toml, the deck layout of one liquid-handling robot."
	return s, nil
}

// GenerateProtocolSchema produces a JSON Schema for protocol recipes.
// TOML and YAML recipes share field names.
func GenerateProtocolSchema() (*jsonschema.Schema, error) {
	r, err := newReflector()
	if err != nil {
		return nil, err
	}
	s := r.Reflect(&protocol.Protocol{})
	s.Title = "Protocol Recipe"
	s.Description = "Schema for *.protocol.toml and *.protocol.yaml recipe files."
	return s, nil
}
