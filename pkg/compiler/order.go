package compiler

import (
	"praetor-hq/tribune/pkg/graph"
)

// computeOrder produces a deterministic topological order over REQUIRES and
// FLOWS_TO edges via Kahn's algorithm. Among simultaneously ready nodes,
// ties break by declared priority (descending), then node id (ascending).
// The returned slice holds indices into w.nodes.
//
// Lint already rejected cycles; a residual here means the stages disagree
// and is reported as an order-stage error rather than a panic.
func computeOrder(g *graph.Graph, w *workset) ([]int, error) {
	n := len(w.nodes)
	adj := make([][]int, n)
	indeg := make([]int, n)
	for _, e := range w.edges {
		if e.Kind != graph.EdgeRequires && e.Kind != graph.EdgeFlowsTo {
			continue
		}
		from := w.index[e.From]
		to := w.index[e.To]
		adj[from] = append(adj[from], to)
		indeg[to]++
	}

	ready := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}

	// pick removes and returns the best ready node: highest priority,
	// then smallest id. Linear scan keeps the selection stable without a
	// heap; graphs are authoring-scale.
	pick := func() int {
		best := 0
		for i := 1; i < len(ready); i++ {
			a := w.nodes[ready[i]]
			b := w.nodes[ready[best]]
			if a.Priority > b.Priority || (a.Priority == b.Priority && a.ID < b.ID) {
				best = i
			}
		}
		idx := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		return idx
	}

	order := make([]int, 0, n)
	for len(ready) > 0 {
		u := pick()
		order = append(order, u)
		for _, v := range adj[u] {
			indeg[v]--
			if indeg[v] == 0 {
				ready = append(ready, v)
			}
		}
	}

	if len(order) != n {
		issues := graph.NewIssueList()
		issues.Addf(graph.IssueCycleDetected, graph.Location{},
			"ordering left %d nodes unplaced after lint passed", n-len(order))
		return nil, newCompileError(g, StageOrder, issues)
	}

	return order, nil
}
