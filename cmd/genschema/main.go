// Command genschema generates JSON Schema and markdown reference docs
// from the bench and protocol structs. Run from the repository root:
//
//	go run ./cmd/genschema
//
// Output:
//
//	docs/schema/bench-schema.json
//	docs/schema/protocol-schema.json
//	docs/reference/bench.md
//	docs/reference/protocol.md
//	docs/reference/cli.md
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/invopop/jsonschema"
	"github.com/steveyegge/wellplan/internal/docgen"
	"github.com/steveyegge/wellplan/internal/fsys"
)

func main() {
	if err := run(fsys.OSFS{}); err != nil {
		fmt.Fprintf(os.Stderr, "genschema: %v\n", err) //nolint:errcheck // best-effort stderr
		os.Exit(1)
	}
}

// output pairs a schema generator with the files it feeds.
type output struct {
	name     string
	generate func() (*jsonschema.Schema, error)
	schema   string
	markdown string
}

var outputs = []output{
	{"bench", docgen.GenerateBenchSchema, "docs/schema/bench-schema.json", "docs/reference/bench.md"},
	{"protocol", docgen.GenerateProtocolSchema, "docs/schema/protocol-schema.json", "docs/reference/protocol.md"},
}

func run(fs fsys.FS) error {
	if !fsys.Exists(fs, "go.mod") {
		return fmt.Errorf("must run from repository root (go.mod not found)")
	}
	for _, dir := range []string{"docs/schema", "docs/reference"} {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	var files []string
	for _, o := range outputs {
		s, err := o.generate()
		if err != nil {
			return fmt.Errorf("generating %s schema: %w", o.name, err)
		}
		if err := writeSchema(fs, o.schema, s); err != nil {
			return err
		}
		if err := docgen.WriteMarkdown(fs, o.markdown, s); err != nil {
			return fmt.Errorf("writing %s: %w", o.markdown, err)
		}
		files = append(files, o.schema, o.markdown)
	}

	// The CLI reference needs the real command tree, which lives in cmd/wp.
	genDoc := exec.Command("go", "run", "./cmd/wp", "gen-doc")
	genDoc.Stdout = os.Stdout
	genDoc.Stderr = os.Stderr
	if err := genDoc.Run(); err != nil {
		return fmt.Errorf("generating CLI docs: %w", err)
	}
	files = append(files, "docs/reference/cli.md")

	fmt.Println("Generated:")
	for _, f := range files {
		fmt.Printf("  %s\n", f)
	}
	return nil
}

// writeSchema writes a JSON Schema as indented JSON with an atomic write.
func writeSchema(fs fsys.FS, path string, s *jsonschema.Schema) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	return fsys.WriteAtomic(fs, path, append(data, '\n'), 0o644)
}
