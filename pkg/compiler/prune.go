package compiler

import (
	"praetor-hq/tribune/pkg/graph"
)

// prune removes nodes unreachable from any decision (entry) node and nodes
// whose guards are provably false under constant folding. Pruned nodes are
// reported as warnings, never errors: a partially authored graph still
// compiles to a plan for the part that is live.
func prune(g *graph.Graph, w *workset, warnings *graph.IssueList) *workset {
	n := len(w.nodes)

	// Reachability over structural edges. REQUIRES and FLOWS_TO are
	// followed forward; EXCLUDES is undirected so co-members of a
	// reachable arbitration group stay live.
	adj := make([][]int, n)
	for _, e := range w.edges {
		from := w.index[e.From]
		to := w.index[e.To]
		switch e.Kind {
		case graph.EdgeRequires, graph.EdgeFlowsTo:
			adj[from] = append(adj[from], to)
		case graph.EdgeExcludes:
			adj[from] = append(adj[from], to)
			adj[to] = append(adj[to], from)
		}
	}

	reachable := make([]bool, n)
	var stack []int
	for i, node := range w.nodes {
		if node.Kind == graph.NodeKindDecision {
			reachable[i] = true
			stack = append(stack, i)
		}
	}
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, v := range adj[u] {
			if !reachable[v] {
				reachable[v] = true
				stack = append(stack, v)
			}
		}
	}

	keep := make([]bool, n)
	for i, node := range w.nodes {
		if !reachable[i] {
			warnings.Add(&graph.Issue{
				Kind:     graph.IssueUnreachableNode,
				Message:  "node is unreachable from any decision node and was pruned",
				NodeIDs:  []string{node.ID},
				Location: node.Location,
			})
			continue
		}
		if folded, known := foldExpr(node.Guard); known && !folded && node.Kind != graph.NodeKindDecision {
			warnings.Add(&graph.Issue{
				Kind:     graph.IssueUnsatisfiableGuard,
				Message:  "node guard is statically false and the node was pruned",
				NodeIDs:  []string{node.ID},
				Location: node.Location,
			})
			continue
		}
		keep[i] = true
	}

	nodes := make([]*graph.Node, 0, n)
	index := make(map[string]int, n)
	for i, node := range w.nodes {
		if keep[i] {
			index[node.ID] = len(nodes)
			nodes = append(nodes, node)
		}
	}

	edges := make([]*graph.Edge, 0, len(w.edges))
	for _, e := range w.edges {
		if _, okf := index[e.From]; !okf {
			continue
		}
		if _, okt := index[e.To]; !okt {
			continue
		}
		edges = append(edges, e)
	}

	return &workset{nodes: nodes, edges: edges, index: index}
}

// foldExpr constant-folds a guard expression. Returns (value, true) when
// the expression's truth is statically known, (false, false) otherwise.
// Folding only looks at literal comparisons and const leaves; anything
// touching runtime data is unknown.
func foldExpr(e *graph.Expr) (value, known bool) {
	if e == nil {
		return true, true // no guard always passes
	}

	switch e.Kind {
	case graph.ExprKindConst:
		return e.Bool, true

	case graph.ExprKindCompare:
		l, lok := foldOperand(e.Left)
		r, rok := foldOperand(e.Right)
		if !lok || !rok {
			return false, false
		}
		op, ok := compareOpcode(e.Operator)
		if !ok {
			return false, false
		}
		result, err := foldCompare(op, l, r)
		if err != nil {
			return false, false
		}
		return result, true

	case graph.ExprKindAll:
		all := true
		for _, c := range e.Children {
			v, k := foldExpr(c)
			if k && !v {
				return false, true // one statically false conjunct decides
			}
			if !k {
				all = false
			}
		}
		if all {
			return true, true
		}
		return false, false

	case graph.ExprKindAny:
		anyUnknown := false
		for _, c := range e.Children {
			v, k := foldExpr(c)
			if k && v {
				return true, true
			}
			if !k {
				anyUnknown = true
			}
		}
		if !anyUnknown {
			return false, true
		}
		return false, false

	case graph.ExprKindNot:
		if len(e.Children) != 1 {
			return false, false
		}
		v, k := foldExpr(e.Children[0])
		if !k {
			return false, false
		}
		return !v, true

	default: // has: depends on runtime context
		return false, false
	}
}

func foldOperand(op *graph.Operand) (any, bool) {
	if op == nil {
		return nil, false
	}
	if op.Kind == graph.OperandLiteral {
		return op.Literal, true
	}
	// Calc over literals could fold too; not worth the complexity.
	return nil, false
}
