package protocol

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/steveyegge/wellplan/internal/fsys"
)

// File suffixes of protocol recipes, in lookup order.
const (
	SuffixTOML = ".protocol.toml"
	SuffixYAML = ".protocol.yaml"
)

// Resolver loads a protocol by name.
type Resolver func(name string) (*Protocol, error)

// DirResolver returns a Resolver that loads protocols from dir. The name
// maps to <dir>/<name>.protocol.toml, falling back to
// <dir>/<name>.protocol.yaml. The loaded protocol is validated without a
// deck layout.
func DirResolver(fs fsys.FS, dir string) Resolver {
	return func(name string) (*Protocol, error) {
		p, path, err := load(fs, dir, name)
		if err != nil {
			return nil, err
		}
		if err := Validate(p, nil); err != nil {
			return nil, fmt.Errorf("validating protocol %q (%s): %w", name, path, err)
		}
		return p, nil
	}
}

func load(fs fsys.FS, dir, name string) (*Protocol, string, error) {
	tomlPath := filepath.Join(dir, name+SuffixTOML)
	data, err := fs.ReadFile(tomlPath)
	if err == nil {
		p, err := Parse(data)
		if err != nil {
			return nil, tomlPath, fmt.Errorf("parsing protocol %q: %w", name, err)
		}
		return p, tomlPath, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, tomlPath, fmt.Errorf("loading protocol %q: %w", name, err)
	}
	yamlPath := filepath.Join(dir, name+SuffixYAML)
	data, yerr := fs.ReadFile(yamlPath)
	if yerr != nil {
		if errors.Is(yerr, os.ErrNotExist) {
			return nil, tomlPath, fmt.Errorf("loading protocol %q: %w", name, err)
		}
		return nil, yamlPath, fmt.Errorf("loading protocol %q: %w", name, yerr)
	}
	p, err := ParseYAML(data)
	if err != nil {
		return nil, yamlPath, fmt.Errorf("parsing protocol %q: %w", name, err)
	}
	return p, yamlPath, nil
}

// List returns the names of the protocols in dir, sorted. A missing
// directory holds no protocols.
func List(fs fsys.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing protocols in %q: %w", dir, err)
	}
	seen := make(map[string]bool)
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		for _, suffix := range []string{SuffixTOML, SuffixYAML} {
			if base, ok := strings.CutSuffix(name, suffix); ok && base != "" && !seen[base] {
				seen[base] = true
				names = append(names, base)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// SubstituteVars applies vars (format "key=value") to a copy of p.
// "reactions=N" overrides the reaction count. Every other key replaces
// {{key}} in the description and step messages, and {{reactions}} is
// always replaced with the final count. The original is not modified.
func SubstituteVars(p *Protocol, vars []string) (*Protocol, error) {
	kv := make(map[string]string, len(vars))
	for _, v := range vars {
		i := strings.IndexByte(v, '=')
		if i <= 0 {
			return nil, fmt.Errorf("variable %q: want key=value", v)
		}
		kv[v[:i]] = v[i+1:]
	}

	out := *p
	if raw, ok := kv["reactions"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("variable reactions=%q: want a positive integer", raw)
		}
		out.Reactions = n
	}
	kv["reactions"] = strconv.Itoa(out.Reactions)

	replace := func(s string) string {
		if !strings.Contains(s, "{{") {
			return s
		}
		for k, val := range kv {
			s = strings.ReplaceAll(s, "{{"+k+"}}", val)
		}
		return s
	}
	out.Description = replace(out.Description)
	out.Steps = make([]Step, len(p.Steps))
	for i, s := range p.Steps {
		s.Message = replace(s.Message)
		out.Steps[i] = s
	}
	return &out, nil
}
