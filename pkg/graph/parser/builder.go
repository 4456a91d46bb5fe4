package parser

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"praetor-hq/tribune/pkg/graph"
)

// builder constructs graph AST nodes from intermediate YAML structures. It
// handles type conversion and accumulates issues with source locations.
type builder struct {
	sourcePath string
	maxDepth   int
	issues     *graph.IssueList
}

// newBuilder creates a new AST builder for the given source document.
func newBuilder(sourcePath string, maxDepth int) *builder {
	return &builder{
		sourcePath: sourcePath,
		maxDepth:   maxDepth,
		issues:     graph.NewIssueList(),
	}
}

// buildGraph transforms a yamlGraph into a graph.Graph.
func (b *builder) buildGraph(yg *yamlGraph) *graph.Graph {
	g := &graph.Graph{
		GraphID:      yg.GraphID,
		Tenant:       yg.Tenant,
		DecisionType: yg.DecisionType,
		Revision:     yg.Revision,
		Attributes:   yg.Attributes,
		SourceFile:   b.sourcePath,
		Defaults: graph.Defaults{
			SelectionPolicy:  yg.Defaults.SelectionPolicy,
			OnMissingContext: yg.Defaults.OnMissingContext,
			DefaultAction:    yg.Defaults.DefaultAction,
		},
	}

	docLoc := graph.Location{File: b.sourcePath, Line: 1, Column: 1}

	if g.GraphID == "" {
		b.issues.Addf(graph.IssueStructural, docLoc, "graph_id is required")
	}
	if g.Tenant == "" {
		b.issues.Addf(graph.IssueStructural, docLoc, "tenant is required")
	}
	if g.DecisionType == "" {
		b.issues.Addf(graph.IssueStructural, docLoc, "decision_type is required")
	}
	if g.Revision <= 0 {
		b.issues.Addf(graph.IssueStructural, docLoc, "revision must be a positive integer, got %d", g.Revision)
	}
	if len(yg.Nodes) == 0 {
		b.issues.Addf(graph.IssueStructural, docLoc, "graph declares no nodes")
	}

	if g.Defaults.SelectionPolicy == "" {
		g.Defaults.SelectionPolicy = graph.DefaultSelectionPolicy
	}
	if g.Defaults.OnMissingContext == "" {
		g.Defaults.OnMissingContext = "default"
	}

	for i := range yg.Nodes {
		if n := b.buildNode(&yg.Nodes[i]); n != nil {
			g.Nodes = append(g.Nodes, n)
		}
	}
	for i := range yg.Edges {
		if e := b.buildEdge(&yg.Edges[i]); e != nil {
			g.Edges = append(g.Edges, e)
		}
	}
	for i := range yg.Guardrails {
		if gr := b.buildGuardrail(&yg.Guardrails[i]); gr != nil {
			g.Guardrails = append(g.Guardrails, gr)
		}
	}

	return g
}

// buildNode transforms a yamlNode. Returns nil on structural failure.
func (b *builder) buildNode(yn *yamlNode) *graph.Node {
	loc := b.location(yn.node)

	if yn.ID == "" {
		b.issues.Addf(graph.IssueStructural, loc, "node id is required")
		return nil
	}

	kind := graph.NodeKind(yn.Kind)
	if !graph.ValidNodeKind(kind) {
		b.issues.Add(&graph.Issue{
			Kind:       graph.IssueStructural,
			Message:    fmt.Sprintf("node %q has unknown kind %q", yn.ID, yn.Kind),
			NodeIDs:    []string{yn.ID},
			Location:   loc,
			Suggestion: "kind must be one of: decision, evaluator, action, composite",
		})
		return nil
	}

	n := &graph.Node{
		ID:          yn.ID,
		Kind:        kind,
		Label:       yn.Label,
		Priority:    yn.Priority,
		Weight:      yn.Weight,
		Params:      yn.Params,
		Arbitration: yn.Arbitration,
		Location:    loc,
	}

	if yn.Guard != nil {
		n.Guard = b.buildExpr(yn.Guard, yn.ID, 0, false)
	}
	if yn.Arbitration != "" && kind != graph.NodeKindComposite {
		b.issues.AddNodes(graph.IssueStructural, []string{yn.ID}, loc,
			"arbitration hints are only valid on composite nodes, node %q is %s", yn.ID, kind)
	}

	return n
}

// buildEdge transforms a yamlEdge. Returns nil on structural failure.
func (b *builder) buildEdge(ye *yamlEdge) *graph.Edge {
	loc := b.location(ye.node)

	if ye.From == "" || ye.To == "" {
		b.issues.Addf(graph.IssueStructural, loc, "edge requires both from and to")
		return nil
	}

	kind := graph.EdgeKind(ye.Kind)
	if !graph.ValidEdgeKind(kind) {
		b.issues.Add(&graph.Issue{
			Kind:       graph.IssueStructural,
			Message:    fmt.Sprintf("edge %s -> %s has unknown kind %q", ye.From, ye.To, ye.Kind),
			NodeIDs:    []string{ye.From, ye.To},
			Location:   loc,
			Suggestion: "kind must be one of: requires, flows_to, excludes, dominates, neutralizes",
		})
		return nil
	}

	return &graph.Edge{From: ye.From, To: ye.To, Kind: kind, Location: loc}
}

// buildGuardrail transforms a yamlGuardrail. Returns nil on failure.
func (b *builder) buildGuardrail(yg *yamlGuardrail) *graph.GuardrailDecl {
	loc := b.location(yg.node)

	if yg.ID == "" {
		b.issues.Addf(graph.IssueInvalidGuardrail, loc, "guardrail id is required")
		return nil
	}
	if yg.When == nil {
		b.issues.AddNodes(graph.IssueInvalidGuardrail, []string{yg.ID}, loc,
			"guardrail %q has no firing condition", yg.ID)
		return nil
	}

	effect := graph.GuardrailEffect(yg.Effect)
	switch effect {
	case graph.EffectDeny, graph.EffectCap:
	default:
		b.issues.AddNodes(graph.IssueInvalidGuardrail, []string{yg.ID}, loc,
			"guardrail %q has unknown effect %q (must be deny or cap)", yg.ID, yg.Effect)
		return nil
	}

	if effect == graph.EffectCap {
		if _, ok := yg.Params["param"]; !ok {
			b.issues.AddNodes(graph.IssueInvalidGuardrail, []string{yg.ID}, loc,
				"guardrail %q with effect cap requires params.param", yg.ID)
			return nil
		}
		if _, ok := yg.Params["max"]; !ok {
			b.issues.AddNodes(graph.IssueInvalidGuardrail, []string{yg.ID}, loc,
				"guardrail %q with effect cap requires params.max", yg.ID)
			return nil
		}
	}

	return &graph.GuardrailDecl{
		ID:       yg.ID,
		When:     b.buildExpr(yg.When, yg.ID, 0, true),
		Effect:   effect,
		Params:   yg.Params,
		Message:  yg.Message,
		Location: loc,
	}
}

// buildExpr transforms a yamlExpr into a graph.Expr. ownerID is the node or
// guardrail id the expression belongs to, used in diagnostics. allowField
// permits decision-field operands, which are only meaningful in guardrails.
func (b *builder) buildExpr(ye *yamlExpr, ownerID string, depth int, allowField bool) *graph.Expr {
	loc := b.location(ye.node)

	if depth > b.maxDepth {
		b.issues.AddNodes(graph.IssueInvalidExpression, []string{ownerID}, loc,
			"guard expression on %q exceeds maximum nesting depth %d", ownerID, b.maxDepth)
		return nil
	}

	variants := 0
	if ye.Has != "" {
		variants++
	}
	if ye.Compare != nil {
		variants++
	}
	if len(ye.All) > 0 {
		variants++
	}
	if len(ye.Any) > 0 {
		variants++
	}
	if ye.Not != nil {
		variants++
	}
	if ye.Const != nil {
		variants++
	}
	if variants != 1 {
		b.issues.Add(&graph.Issue{
			Kind:       graph.IssueInvalidExpression,
			Message:    fmt.Sprintf("guard expression on %q must have exactly one of: has, compare, all, any, not, const", ownerID),
			NodeIDs:    []string{ownerID},
			Location:   loc,
			Suggestion: "split combined clauses into an all: block",
		})
		return nil
	}

	switch {
	case ye.Has != "":
		return &graph.Expr{Kind: graph.ExprKindHas, Attr: ye.Has, Location: loc}

	case ye.Compare != nil:
		return b.buildCompare(ye.Compare, ownerID, loc, allowField)

	case len(ye.All) > 0:
		return b.buildLogical(graph.ExprKindAll, ye.All, ownerID, depth, loc, allowField)

	case len(ye.Any) > 0:
		return b.buildLogical(graph.ExprKindAny, ye.Any, ownerID, depth, loc, allowField)

	case ye.Not != nil:
		child := b.buildExpr(ye.Not, ownerID, depth+1, allowField)
		if child == nil {
			return nil
		}
		return &graph.Expr{Kind: graph.ExprKindNot, Children: []*graph.Expr{child}, Location: loc}

	default: // const
		return &graph.Expr{Kind: graph.ExprKindConst, Bool: *ye.Const, Location: loc}
	}
}

func (b *builder) buildLogical(kind graph.ExprKind, children []*yamlExpr, ownerID string, depth int, loc graph.Location, allowField bool) *graph.Expr {
	out := &graph.Expr{Kind: kind, Location: loc}
	for _, yc := range children {
		if c := b.buildExpr(yc, ownerID, depth+1, allowField); c != nil {
			out.Children = append(out.Children, c)
		}
	}
	if len(out.Children) == 0 {
		return nil
	}
	return out
}

func (b *builder) buildCompare(yc *yamlCompare, ownerID string, loc graph.Location, allowField bool) *graph.Expr {
	op := graph.Operator(yc.Op)
	if !graph.ValidOperator(op) {
		b.issues.AddNodes(graph.IssueInvalidExpression, []string{ownerID}, loc,
			"comparison on %q uses unknown operator %q", ownerID, yc.Op)
		return nil
	}

	left := b.buildOperand(yc.Left, ownerID, loc, allowField)
	right := b.buildOperand(yc.Right, ownerID, loc, allowField)
	if left == nil || right == nil {
		return nil
	}

	return &graph.Expr{
		Kind:     graph.ExprKindCompare,
		Left:     left,
		Operator: op,
		Right:    right,
		Location: loc,
	}
}

func (b *builder) buildOperand(yo *yamlOperand, ownerID string, loc graph.Location, allowField bool) *graph.Operand {
	if yo == nil {
		b.issues.AddNodes(graph.IssueInvalidExpression, []string{ownerID}, loc,
			"comparison on %q is missing an operand", ownerID)
		return nil
	}

	variants := 0
	if yo.Value != nil && yo.Value.set {
		variants++
	}
	if yo.Attr != "" {
		variants++
	}
	if yo.Input != "" {
		variants++
	}
	if yo.Field != "" {
		variants++
	}
	if yo.Calc != nil {
		variants++
	}
	if variants != 1 {
		b.issues.AddNodes(graph.IssueInvalidExpression, []string{ownerID}, loc,
			"operand on %q must have exactly one of: value, attr, input, field, calc", ownerID)
		return nil
	}

	switch {
	case yo.Value != nil && yo.Value.set:
		return &graph.Operand{Kind: graph.OperandLiteral, Literal: normalizeLiteral(yo.Value.v)}

	case yo.Attr != "":
		return &graph.Operand{Kind: graph.OperandAttr, Ref: yo.Attr}

	case yo.Input != "":
		return &graph.Operand{Kind: graph.OperandInput, Ref: yo.Input}

	case yo.Field != "":
		if !allowField {
			b.issues.AddNodes(graph.IssueInvalidExpression, []string{ownerID}, loc,
				"decision field operands are only valid in guardrail conditions (on %q)", ownerID)
			return nil
		}
		return &graph.Operand{Kind: graph.OperandField, Ref: yo.Field}

	default: // calc
		aop := graph.ArithOp(yo.Calc.Op)
		if !graph.ValidArithOp(aop) {
			b.issues.AddNodes(graph.IssueInvalidExpression, []string{ownerID}, loc,
				"calculation on %q uses unknown operator %q", ownerID, yo.Calc.Op)
			return nil
		}
		if len(yo.Calc.Args) != 2 {
			b.issues.AddNodes(graph.IssueInvalidExpression, []string{ownerID}, loc,
				"calculation on %q requires exactly two args, got %d", ownerID, len(yo.Calc.Args))
			return nil
		}
		out := &graph.Operand{Kind: graph.OperandCalc, Op: aop}
		for _, a := range yo.Calc.Args {
			arg := b.buildOperand(a, ownerID, loc, allowField)
			if arg == nil {
				return nil
			}
			out.Args = append(out.Args, arg)
		}
		return out
	}
}

// normalizeLiteral coerces YAML integer literals to float64 so that numeric
// comparisons behave uniformly regardless of how the author wrote the number.
func normalizeLiteral(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = normalizeLiteral(e)
		}
		return out
	default:
		return v
	}
}

// location extracts a source location from a yaml node.
func (b *builder) location(node *yaml.Node) graph.Location {
	if node == nil {
		return graph.Location{File: b.sourcePath}
	}
	return graph.Location{File: b.sourcePath, Line: node.Line, Column: node.Column}
}
