package compiler

import (
	"sort"

	"praetor-hq/tribune/pkg/graph"
)

// workset is the canonical working representation the pipeline stages pass
// along. Stages never mutate a workset they received; they derive new ones.
type workset struct {
	nodes []*graph.Node // declaration order, ids unique
	edges []*graph.Edge // canonical order, duplicates collapsed
	index map[string]int
}

func (w *workset) node(id string) (*graph.Node, bool) {
	i, ok := w.index[id]
	if !ok {
		return nil, false
	}
	return w.nodes[i], true
}

func (w *workset) edgesOfKind(kind graph.EdgeKind) []*graph.Edge {
	var out []*graph.Edge
	for _, e := range w.edges {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// normalize canonicalizes the graph's node and edge representation: node
// declaration order is preserved with duplicate ids rejected, edges are
// sorted by (kind, from, to) with exact duplicates collapsed.
func normalize(g *graph.Graph) (*workset, error) {
	issues := graph.NewIssueList()

	index := make(map[string]int, len(g.Nodes))
	nodes := make([]*graph.Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if prev, exists := index[n.ID]; exists {
			issues.Add(&graph.Issue{
				Kind:       graph.IssueDuplicateNode,
				Message:    "node id declared more than once",
				NodeIDs:    []string{n.ID},
				Location:   n.Location,
				Suggestion: "rename one of the declarations",
			})
			_ = prev
			continue
		}
		index[n.ID] = len(nodes)
		nodes = append(nodes, n)
	}

	type edgeKey struct {
		kind     graph.EdgeKind
		from, to string
	}
	seen := make(map[edgeKey]struct{}, len(g.Edges))
	edges := make([]*graph.Edge, 0, len(g.Edges))
	for _, e := range g.Edges {
		key := edgeKey{kind: e.Kind, from: e.From, to: e.To}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		edges = append(edges, e)
	}
	sort.SliceStable(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})

	if issues.HasIssues() {
		return nil, newCompileError(g, StageNormalize, issues)
	}

	return &workset{nodes: nodes, edges: edges, index: index}, nil
}
