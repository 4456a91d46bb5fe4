package graph

import "fmt"

// DefaultSelectionPolicy names how a selector step picks a winner when the
// graph does not override it per composite.
const DefaultSelectionPolicy = "highest-priority"

// Defaults carries graph-level evaluation defaults.
type Defaults struct {
	// SelectionPolicy is the arbitration policy applied to selector steps
	// without a composite-level hint: highest-priority, first-match, or
	// best-match.
	SelectionPolicy string

	// OnMissingContext controls the cache-miss path: "default" evaluates
	// against the anonymous default context, "fail" surfaces a resolution
	// error instead.
	OnMissingContext string

	// DefaultAction, when set, names an action node whose outcome is
	// returned when a selector produces an empty candidate set.
	DefaultAction string
}

// Graph is an authored rule graph revision: the mutable source-of-truth that
// the compiler converts into an immutable blueprint. Nodes are stored in
// declaration order in an arena slice, indexed by id.
type Graph struct {
	// GraphID identifies the graph across revisions.
	GraphID string

	// Tenant scopes the graph. A blueprint compiled from this graph only
	// ever executes against contexts of the same tenant.
	Tenant string

	// DecisionType is the decision type this graph answers.
	DecisionType string

	// Revision is the immutable revision number this object represents.
	Revision int

	// Nodes in declaration order.
	Nodes []*Node

	// Edges in declaration order.
	Edges []*Edge

	// Guardrails in declaration (= evaluation) order.
	Guardrails []*GuardrailDecl

	// Attributes optionally pre-declares the attribute dictionary. The
	// compiler extends it with every attribute referenced by a guard.
	Attributes []string

	// Defaults carries graph-level evaluation defaults.
	Defaults Defaults

	// SourceFile is the document path this graph was parsed from, if any.
	SourceFile string

	index map[string]int // node id -> Nodes index, built lazily
}

// Node returns the node with the given id and whether it exists.
func (g *Graph) Node(id string) (*Node, bool) {
	if g.index == nil {
		g.buildIndex()
	}
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.Nodes[i], true
}

// NodeIndex returns the declaration index of the node with the given id.
func (g *Graph) NodeIndex(id string) (int, bool) {
	if g.index == nil {
		g.buildIndex()
	}
	i, ok := g.index[id]
	return i, ok
}

func (g *Graph) buildIndex() {
	g.index = make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		// First declaration wins; duplicates are a lint error.
		if _, exists := g.index[n.ID]; !exists {
			g.index[n.ID] = i
		}
	}
}

// EdgesOfKind returns all edges of the given kind in declaration order.
func (g *Graph) EdgesOfKind(kind EdgeKind) []*Edge {
	var out []*Edge
	for _, e := range g.Edges {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// EntryNodes returns all decision nodes in declaration order.
func (g *Graph) EntryNodes() []*Node {
	var out []*Node
	for _, n := range g.Nodes {
		if n.Kind == NodeKindDecision {
			out = append(out, n)
		}
	}
	return out
}

// RevisionKey returns the "graphID@revision" identity of this graph revision.
func (g *Graph) RevisionKey() string {
	return fmt.Sprintf("%s@%d", g.GraphID, g.Revision)
}
