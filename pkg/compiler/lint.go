package compiler

import (
	"sort"

	"praetor-hq/tribune/pkg/graph"
)

// lint performs structural validation on the normalized workset: dangling
// edge references, self-loops, REQUIRES/FLOWS_TO cycles (with a
// deterministic cycle witness), missing entry nodes, and DOMINATES edges
// spanning distinct arbitration groups.
func lint(g *graph.Graph, w *workset) error {
	issues := graph.NewIssueList()

	for _, e := range w.edges {
		if _, ok := w.index[e.From]; !ok {
			issues.Add(&graph.Issue{
				Kind:     graph.IssueDanglingReference,
				Message:  "edge references a missing node",
				NodeIDs:  []string{e.From},
				Location: e.Location,
			})
		}
		if _, ok := w.index[e.To]; !ok {
			issues.Add(&graph.Issue{
				Kind:     graph.IssueDanglingReference,
				Message:  "edge references a missing node",
				NodeIDs:  []string{e.To},
				Location: e.Location,
			})
		}
		if e.From == e.To {
			issues.Add(&graph.Issue{
				Kind:     graph.IssueSelfLoop,
				Message:  "edge from a node to itself",
				NodeIDs:  []string{e.From},
				Location: e.Location,
			})
		}
	}

	// Dangling references make further analysis meaningless.
	if issues.HasIssues() {
		return newCompileError(g, StageLint, issues)
	}

	entries := 0
	for _, n := range w.nodes {
		if n.Kind == graph.NodeKindDecision {
			entries++
		}
	}
	if entries == 0 {
		issues.Add(&graph.Issue{
			Kind:       graph.IssueNoEntryNode,
			Message:    "graph has no decision (entry) node",
			Suggestion: "declare at least one node with kind: decision",
		})
	}

	if cycle := findCycle(w); len(cycle) > 0 {
		issues.Add(&graph.Issue{
			Kind:    graph.IssueCycleDetected,
			Message: "REQUIRES/FLOWS_TO chain forms a cycle",
			NodeIDs: cycle,
		})
	}

	checkDominates(w, issues)

	if issues.HasIssues() {
		return newCompileError(g, StageLint, issues)
	}
	return nil
}

// findCycle runs Kahn's algorithm over REQUIRES and FLOWS_TO edges. If any
// nodes remain unprocessed they sit on or downstream of a cycle; a
// predecessor walk restricted to the residual set extracts one concrete
// cycle as the witness, returned as sorted node ids for determinism.
func findCycle(w *workset) []string {
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

	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}
	processed := 0
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		processed++
		for _, v := range adj[u] {
			indeg[v]--
			if indeg[v] == 0 {
				queue = append(queue, v)
			}
		}
	}
	if processed == n {
		return nil
	}

	// Residual nodes have indeg > 0, meaning each kept at least one
	// unprocessed predecessor — but not necessarily an unprocessed
	// successor (nodes merely downstream of a cycle are residual too).
	// Walking predecessors therefore always revisits a node, and the
	// revisited segment is a concrete cycle.
	residual := make(map[int]bool, n-processed)
	for i := 0; i < n; i++ {
		if indeg[i] > 0 {
			residual[i] = true
		}
	}

	radj := make([][]int, n)
	for u, succ := range adj {
		if !residual[u] {
			continue
		}
		for _, v := range succ {
			if residual[v] {
				radj[v] = append(radj[v], u)
			}
		}
	}

	start := -1
	for i := 0; i < n; i++ {
		if residual[i] {
			start = i
			break
		}
	}

	visitedAt := make(map[int]int)
	path := []int{}
	cur := start
	for {
		if at, seen := visitedAt[cur]; seen {
			cycle := path[at:]
			ids := make([]string, 0, len(cycle))
			for _, idx := range cycle {
				ids = append(ids, w.nodes[idx].ID)
			}
			sort.Strings(ids)
			return ids
		}
		visitedAt[cur] = len(path)
		path = append(path, cur)
		cur = radj[cur][0]
	}
}

// checkDominates verifies every DOMINATES edge connects two members of the
// same EXCLUDES component. Cross-group dominance has no defined arbitration
// semantics and is rejected as ambiguous.
func checkDominates(w *workset, issues *graph.IssueList) {
	comp := excludesComponents(w)

	for _, e := range w.edgesOfKind(graph.EdgeDominates) {
		cf, okf := comp[e.From]
		ct, okt := comp[e.To]
		if !okf || !okt || cf != ct {
			issues.Add(&graph.Issue{
				Kind:       graph.IssueAmbiguousArbitration,
				Message:    "DOMINATES edge does not connect two members of one EXCLUDES group",
				NodeIDs:    []string{e.From, e.To},
				Location:   e.Location,
				Suggestion: "link both nodes with EXCLUDES edges so they share an arbitration group",
			})
		}
	}
}

// excludesComponents assigns each node touched by an EXCLUDES edge a
// component id via union-find. Component ids are the smallest declaration
// index in the component, which makes them deterministic.
func excludesComponents(w *workset) map[string]int {
	parent := make(map[int]int)

	var find func(x int) int
	find = func(x int) int {
		p, ok := parent[x]
		if !ok || p == x {
			parent[x] = x
			return x
		}
		root := find(p)
		parent[x] = root
		return root
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}

	for _, e := range w.edgesOfKind(graph.EdgeExcludes) {
		from, okf := w.index[e.From]
		to, okt := w.index[e.To]
		if !okf || !okt {
			continue
		}
		union(from, to)
	}

	out := make(map[string]int, len(parent))
	for idx := range parent {
		out[w.nodes[idx].ID] = find(idx)
	}
	return out
}
