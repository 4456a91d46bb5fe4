package main

import (
	"os"
	"path/filepath"
	"testing"

	"praetor-hq/tribune/pkg/compiler"
	"praetor-hq/tribune/pkg/graph/parser"
)

const validDoc = `
graph_id: fee-waiver
tenant: acme
decision_type: fees
revision: 1
nodes:
  - {id: entry, kind: decision}
  - id: waive
    kind: action
    guard: {has: loyal}
    params: {waive: true}
edges:
  - {from: entry, to: waive, kind: flows_to}
`

func TestCollectGraphFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml", "ignored.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	files, err := collectGraphFiles("", dir)
	if err != nil {
		t.Fatalf("collectGraphFiles: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("found %d files, want 2: %v", len(files), files)
	}

	if _, err := collectGraphFiles("", ""); err == nil {
		t.Error("expected error when neither --file nor --dir is given")
	}
	if _, err := collectGraphFiles("", t.TempDir()); err == nil {
		t.Error("expected error for an empty directory")
	}
}

func TestCompileOnceDeterministic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.yaml")
	if err := os.WriteFile(path, []byte(validDoc), 0o600); err != nil {
		t.Fatal(err)
	}

	p := parser.NewParser()
	comp := compiler.New()

	first, err := compileOnce(p, comp, path)
	if err != nil {
		t.Fatalf("compileOnce: %v", err)
	}
	second, err := compileOnce(p, comp, path)
	if err != nil {
		t.Fatalf("compileOnce: %v", err)
	}
	if first.Ref.ContentHash != second.Ref.ContentHash {
		t.Errorf("content hash not deterministic: %s != %s",
			first.Ref.ContentHash, second.Ref.ContentHash)
	}
}

func TestCompileOnceReportsStructuralErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	doc := `
graph_id: broken
tenant: acme
decision_type: fees
revision: 1
nodes:
  - {id: entry, kind: decision}
  - {id: a, kind: action}
edges:
  - {from: entry, to: a, kind: flows_to}
  - {from: a, to: a, kind: requires}
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := compileOnce(parser.NewParser(), compiler.New(), path); err == nil {
		t.Fatal("expected compile error for self-referential edge")
	}
}
