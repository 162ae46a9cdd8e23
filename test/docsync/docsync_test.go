// Package docsync verifies that tutorial prose and testscript txtar files
// cover the same set of wp commands. Every `$ wp <verb>` in a tutorial
// markdown must have a corresponding `exec wp <verb>` in the txtar.
package docsync

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
)

// groups are the wp commands whose first argument is a subcommand.
var groups = map[string]bool{"protocol": true}

func repoRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..")
}

// wpVerbsFromMarkdown extracts unique wp subcommands from code blocks.
// Only matches unindented `$ wp ...` lines so sample output is skipped.
func wpVerbsFromMarkdown(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	verbs := make(map[string]bool)
	inCodeBlock := false
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			continue
		}
		if !inCodeBlock {
			continue
		}
		if !strings.HasPrefix(line, "$ wp ") {
			continue
		}
		verb := extractVerb(line[len("$ wp "):])
		if verb != "" {
			verbs[verb] = true
		}
	}
	return verbs, scanner.Err()
}

// wpVerbsFromTxtar extracts unique wp subcommands from exec lines, with or
// without a leading "!".
func wpVerbsFromTxtar(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	verbs := make(map[string]bool)
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimSpace(strings.TrimPrefix(line, "!"))
		after, ok := strings.CutPrefix(line, "exec wp ")
		if !ok {
			continue
		}
		verb := extractVerb(after)
		if verb != "" {
			verbs[verb] = true
		}
	}
	return verbs, scanner.Err()
}

// extractVerb pulls the subcommand from args. Group commands take their
// second word too: "protocol show example" → "protocol show",
// "plan example --json" → "plan".
func extractVerb(args string) string {
	words := strings.Fields(args)
	if len(words) == 0 || !isLowerAlpha(words[0]) {
		return ""
	}
	if groups[words[0]] && len(words) > 1 && isLowerAlpha(words[1]) {
		return words[0] + " " + words[1]
	}
	return words[0]
}

func isLowerAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}

func TestExtractVerb(t *testing.T) {
	tests := []struct {
		args string
		want string
	}{
		{"init lab", "init"},
		{"protocol show example", "protocol show"},
		{"protocol", "protocol"},
		{"plan example --var reactions=96", "plan"},
		{"events --type run.finished", "events"},
		{"--bench x plan", ""},
	}
	for _, tt := range tests {
		if got := extractVerb(tt.args); got != tt.want {
			t.Errorf("extractVerb(%q) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestTutorialCommandSync(t *testing.T) {
	root := repoRoot()
	tutorial := filepath.Join(root, "docs", "tutorial.md")
	txtar := filepath.Join(root, "cmd", "wp", "testdata", "tutorial.txtar")

	mdVerbs, err := wpVerbsFromMarkdown(tutorial)
	if err != nil {
		t.Fatalf("parsing tutorial: %v", err)
	}
	if len(mdVerbs) == 0 {
		t.Fatal("tutorial has no wp commands")
	}

	txtarVerbs, err := wpVerbsFromTxtar(txtar)
	if err != nil {
		t.Fatalf("parsing txtar: %v", err)
	}

	// Every tutorial command must have txtar coverage.
	var missing []string
	for verb := range mdVerbs {
		if !txtarVerbs[verb] {
			missing = append(missing, verb)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		t.Errorf("wp commands in tutorial but not in txtar:")
		for _, v := range missing {
			t.Errorf("  wp %s", v)
		}
	}

	// Every txtar command must have tutorial coverage.
	var extra []string
	for verb := range txtarVerbs {
		if !mdVerbs[verb] {
			extra = append(extra, verb)
		}
	}

	if len(extra) > 0 {
		sort.Strings(extra)
		t.Errorf("wp commands in txtar but not in tutorial:")
		for _, v := range extra {
			t.Errorf("  wp %s", v)
		}
	}
}
