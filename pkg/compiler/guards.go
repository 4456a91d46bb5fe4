package compiler

import (
	"sort"

	"praetor-hq/tribune/pkg/graph"
)

// guardTables holds the runtime gating conditions synthesized from
// dependency edges, keyed by target node id.
type guardTables struct {
	// requires[n] lists nodes that must have fired before n may fire.
	requires map[string][]string

	// skipIf[n] lists nodes whose firing neutralizes n.
	skipIf map[string][]string
}

// synthesizeGuards converts REQUIRES and NEUTRALIZES edges into the fired-set
// checks the runtime enforces structurally, outside any predicate program.
// Source lists are sorted for deterministic blueprint output.
func synthesizeGuards(w *workset) *guardTables {
	t := &guardTables{
		requires: make(map[string][]string),
		skipIf:   make(map[string][]string),
	}

	for _, e := range w.edgesOfKind(graph.EdgeRequires) {
		t.requires[e.To] = append(t.requires[e.To], e.From)
	}
	for _, e := range w.edgesOfKind(graph.EdgeNeutralizes) {
		t.skipIf[e.To] = append(t.skipIf[e.To], e.From)
	}

	for _, m := range []map[string][]string{t.requires, t.skipIf} {
		for k := range m {
			sort.Strings(m[k])
		}
	}
	return t
}
