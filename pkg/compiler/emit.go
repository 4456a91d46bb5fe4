package compiler

import (
	"errors"
	"reflect"
	"regexp"
	"sort"
	"time"

	"praetor-hq/tribune/pkg/blueprint"
	"praetor-hq/tribune/pkg/graph"
	"praetor-hq/tribune/pkg/snapshot"
)

// emit flattens the ordered workset into the final blueprint: it builds the
// attribute dictionary, compiles guards to predicate programs, extracts rule
// masks, folds arbitration groups into selector steps, and stamps the
// content hash.
func emit(g *graph.Graph, w *workset, order []int, groups []*arbGroup, guards *guardTables) (*blueprint.Blueprint, error) {
	issues := graph.NewIssueList()

	dict := buildDictionary(g, w)

	// Map each arbitration group member to its group.
	groupOf := make(map[string]*arbGroup)
	for _, grp := range groups {
		for _, m := range grp.members {
			groupOf[m] = grp
		}
	}

	var steps []blueprint.Step
	emitted := make(map[*arbGroup]bool)
	for _, idx := range order {
		n := w.nodes[idx]

		if grp, ok := groupOf[n.ID]; ok {
			// The selector step sits at the earliest member's position;
			// later members contribute branches, not steps.
			if emitted[grp] {
				continue
			}
			emitted[grp] = true
			step, ok := emitSelector(w, grp, dict, guards, issues)
			if ok {
				steps = append(steps, step)
			}
			continue
		}

		switch n.Kind {
		case graph.NodeKindComposite:
			// Composites are arbitration hints, not executable steps.
			continue
		case graph.NodeKindDecision, graph.NodeKindEvaluator:
			step, ok := emitNode(n, blueprint.StepSequential, dict, guards, issues)
			if ok {
				steps = append(steps, step)
			}
		case graph.NodeKindAction:
			step, ok := emitNode(n, blueprint.StepTask, dict, guards, issues)
			if ok {
				step.Action = &blueprint.ActionSpec{NodeID: n.ID, Params: n.Params}
				steps = append(steps, step)
			}
		}
	}

	var rails []blueprint.Guardrail
	for _, decl := range g.Guardrails {
		rail, ok := emitGuardrail(decl, issues)
		if ok {
			rails = append(rails, rail)
		}
	}

	defaultOutcome := resolveDefaultOutcome(g, w, issues)

	onMissing := g.Defaults.OnMissingContext
	if onMissing == "" {
		onMissing = "default"
	}

	if issues.HasIssues() {
		return nil, newCompileError(g, StageOptimizeEmit, issues)
	}

	bp := &blueprint.Blueprint{
		Ref: blueprint.Ref{
			GraphID:  g.GraphID,
			Revision: g.Revision,
		},
		Tenant:           g.Tenant,
		DecisionType:     g.DecisionType,
		Dictionary:       dict,
		Steps:            steps,
		Guardrails:       rails,
		DefaultOutcome:   defaultOutcome,
		OnMissingContext: onMissing,
		CompiledAt:       time.Now().UTC(),
		CompilerVersion:  blueprint.CompilerVersion,
	}
	bp.Ref.ContentHash = blueprint.ComputeContentHash(bp)

	if err := bp.Prepare(); err != nil {
		issues.Addf(graph.IssueInvalidExpression, graph.Location{}, "%v", err)
		return nil, newCompileError(g, StageOptimizeEmit, issues)
	}

	return bp, nil
}

// buildDictionary unions the graph's declared attributes with every
// attribute referenced by a node guard or a guardrail condition, sorted so
// that bit assignment is independent of declaration order.
func buildDictionary(g *graph.Graph, w *workset) *snapshot.Dictionary {
	seen := make(map[string]struct{})
	var names []string
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	for _, name := range g.Attributes {
		add(name)
	}
	for _, n := range w.nodes {
		if n.Guard != nil {
			for _, name := range n.Guard.ReferencedAttrs() {
				add(name)
			}
		}
	}
	for _, decl := range g.Guardrails {
		if decl.When != nil {
			for _, name := range decl.When.ReferencedAttrs() {
				add(name)
			}
		}
	}

	sort.Strings(names)
	return snapshot.NewDictionary(names)
}

func emitNode(n *graph.Node, kind blueprint.StepKind, dict *snapshot.Dictionary, guards *guardTables, issues *graph.IssueList) (blueprint.Step, bool) {
	prog, ok := compileGuard(n, issues)
	if !ok {
		return blueprint.Step{}, false
	}
	return blueprint.Step{
		ID:            n.ID,
		Kind:          kind,
		Label:         n.Label,
		RuleMask:      maskFor(n.Guard, dict),
		Guard:         prog,
		RequiresFired: guards.requires[n.ID],
		SkipIfFired:   guards.skipIf[n.ID],
	}, true
}

func emitSelector(w *workset, grp *arbGroup, dict *snapshot.Dictionary, guards *guardTables, issues *graph.IssueList) (blueprint.Step, bool) {
	branchIdx := make(map[string]int, len(grp.members))
	branches := make([]blueprint.Branch, 0, len(grp.members))
	for _, id := range grp.members {
		n, ok := w.node(id)
		if !ok {
			continue
		}
		prog, ok := compileGuard(n, issues)
		if !ok {
			return blueprint.Step{}, false
		}
		b := blueprint.Branch{
			NodeID:        n.ID,
			Label:         n.Label,
			RuleMask:      maskFor(n.Guard, dict),
			Guard:         prog,
			RequiresFired: guards.requires[n.ID],
			SkipIfFired:   guards.skipIf[n.ID],
			Priority:      n.Priority,
			Weight:        n.Weight,
		}
		if n.Kind == graph.NodeKindAction {
			b.Action = &blueprint.ActionSpec{NodeID: n.ID, Params: n.Params}
		}
		branchIdx[n.ID] = len(branches)
		branches = append(branches, b)
	}

	var dominance [][2]int
	for _, pair := range grp.dominance {
		wi, wok := branchIdx[pair[0]]
		li, lok := branchIdx[pair[1]]
		if wok && lok {
			dominance = append(dominance, [2]int{wi, li})
		}
	}

	// A bit required by every branch is required by the step: the step
	// mask is the intersection of branch masks. Branch-specific bits are
	// re-checked per branch during arbitration.
	var stepMask snapshot.Mask
	for i := range branches {
		if i == 0 {
			stepMask = branches[i].RuleMask.Clone()
			continue
		}
		stepMask = intersectMasks(stepMask, branches[i].RuleMask)
	}

	return blueprint.Step{
		ID:        "selector:" + grp.members[0],
		Kind:      blueprint.StepSelector,
		RuleMask:  stepMask,
		Branches:  branches,
		Policy:    grp.policy,
		Dominance: dominance,
	}, true
}

func emitGuardrail(decl *graph.GuardrailDecl, issues *graph.IssueList) (blueprint.Guardrail, bool) {
	when, err := compileProgram(decl.When)
	if err != nil {
		issues.Add(&graph.Issue{
			Kind:     graph.IssueInvalidGuardrail,
			Message:  "guardrail condition does not compile: " + err.Error(),
			NodeIDs:  []string{decl.ID},
			Location: decl.Location,
		})
		return blueprint.Guardrail{}, false
	}

	rail := blueprint.Guardrail{
		ID:      decl.ID,
		When:    when,
		Effect:  string(decl.Effect),
		Message: decl.Message,
	}
	if decl.Effect == graph.EffectCap {
		param, _ := decl.Params["param"].(string)
		max, ok := asFloat(decl.Params["max"])
		if param == "" || !ok {
			issues.Add(&graph.Issue{
				Kind:       graph.IssueInvalidGuardrail,
				Message:    "cap guardrail needs params.param (string) and params.max (number)",
				NodeIDs:    []string{decl.ID},
				Location:   decl.Location,
				Suggestion: `params: {param: discount_pct, max: 20}`,
			})
			return blueprint.Guardrail{}, false
		}
		rail.Param = param
		rail.Max = max
	}
	return rail, true
}

func resolveDefaultOutcome(g *graph.Graph, w *workset, issues *graph.IssueList) *blueprint.ActionSpec {
	id := g.Defaults.DefaultAction
	if id == "" {
		return nil
	}
	n, ok := w.node(id)
	if !ok {
		issues.AddNodes(graph.IssueDanglingReference, []string{id}, graph.Location{},
			"defaults.default_action names a node that does not survive compilation")
		return nil
	}
	if n.Kind != graph.NodeKindAction {
		issues.AddNodes(graph.IssueStructural, []string{id}, n.Location,
			"defaults.default_action must name an action node, got %s", n.Kind)
		return nil
	}
	return &blueprint.ActionSpec{NodeID: n.ID, Params: n.Params}
}

// compileGuard compiles a node guard, dropping the program entirely when the
// guard is pure presence checks: the rule mask already encodes those, so
// re-evaluating them at runtime would be wasted work.
func compileGuard(n *graph.Node, issues *graph.IssueList) (*blueprint.Program, bool) {
	if n.Guard == nil || isPurelyPresence(n.Guard) {
		return nil, true
	}
	prog, err := compileProgram(n.Guard)
	if err != nil {
		issues.Add(&graph.Issue{
			Kind:     graph.IssueInvalidExpression,
			Message:  "guard does not compile: " + err.Error(),
			NodeIDs:  []string{n.ID},
			Location: n.Guard.Location,
		})
		return nil, false
	}
	return prog, true
}

// isPurelyPresence reports whether the expression is fully captured by the
// rule mask: has-checks, const-true, and all-of combinations thereof.
func isPurelyPresence(e *graph.Expr) bool {
	switch e.Kind {
	case graph.ExprKindHas:
		return true
	case graph.ExprKindConst:
		return e.Bool
	case graph.ExprKindAll:
		for _, c := range e.Children {
			if !isPurelyPresence(c) {
				return false
			}
		}
		return true
	}
	return false
}

func maskFor(e *graph.Expr, dict *snapshot.Dictionary) snapshot.Mask {
	m := snapshot.NewMask(dict.Len())
	if e == nil {
		return m
	}
	for _, name := range e.PositiveConjunctAttrs() {
		if bit, ok := dict.Bit(name); ok {
			m.Set(bit)
		}
	}
	return m
}

func intersectMasks(a, b snapshot.Mask) snapshot.Mask {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make(snapshot.Mask, n)
	for i := 0; i < n; i++ {
		out[i] = a[i] & b[i]
	}
	return out
}

// progBuilder accumulates bytecode and interned pools while walking an
// expression tree.
type progBuilder struct {
	code    []blueprint.Instr
	consts  []any
	names   []string
	regexps []string
}

// compileProgram compiles an expression to a predicate program. A nil
// expression compiles to a constant-true program.
func compileProgram(e *graph.Expr) (*blueprint.Program, error) {
	b := &progBuilder{}
	if e == nil {
		b.emit(blueprint.OpConst, b.constIdx(true))
	} else if err := b.expr(e); err != nil {
		return nil, err
	}
	return &blueprint.Program{
		Code:    b.code,
		Consts:  b.consts,
		Names:   b.names,
		Regexps: b.regexps,
	}, nil
}

func (b *progBuilder) emit(op blueprint.Op, arg int) {
	b.code = append(b.code, blueprint.Instr{Op: op, Arg: arg})
}

func (b *progBuilder) constIdx(v any) int {
	for i, c := range b.consts {
		if reflect.DeepEqual(c, v) {
			return i
		}
	}
	b.consts = append(b.consts, v)
	return len(b.consts) - 1
}

func (b *progBuilder) nameIdx(s string) int {
	for i, n := range b.names {
		if n == s {
			return i
		}
	}
	b.names = append(b.names, s)
	return len(b.names) - 1
}

func (b *progBuilder) regexIdx(pattern string) (int, error) {
	if _, err := regexp.Compile(pattern); err != nil {
		return 0, err
	}
	for i, r := range b.regexps {
		if r == pattern {
			return i, nil
		}
	}
	b.regexps = append(b.regexps, pattern)
	return len(b.regexps) - 1, nil
}

func (b *progBuilder) expr(e *graph.Expr) error {
	switch e.Kind {
	case graph.ExprKindConst:
		b.emit(blueprint.OpConst, b.constIdx(e.Bool))
		return nil

	case graph.ExprKindHas:
		b.emit(blueprint.OpHas, b.nameIdx(e.Attr))
		return nil

	case graph.ExprKindCompare:
		if e.Operator == graph.OperatorMatches {
			if e.Right == nil || e.Right.Kind != graph.OperandLiteral {
				return errors.New("matches requires a literal string pattern on the right")
			}
			pattern, ok := e.Right.Literal.(string)
			if !ok {
				return errors.New("matches requires a literal string pattern on the right")
			}
			if err := b.operand(e.Left); err != nil {
				return err
			}
			idx, err := b.regexIdx(pattern)
			if err != nil {
				return err
			}
			b.emit(blueprint.OpMatch, idx)
			return nil
		}

		op, ok := compareOpcode(e.Operator)
		if !ok {
			return errors.New("unknown comparison operator: " + string(e.Operator))
		}
		if err := b.operand(e.Left); err != nil {
			return err
		}
		if err := b.operand(e.Right); err != nil {
			return err
		}
		b.emit(op, 0)
		return nil

	case graph.ExprKindAll, graph.ExprKindAny:
		join := blueprint.OpAnd
		empty := true
		if e.Kind == graph.ExprKindAny {
			join = blueprint.OpOr
			empty = false
		}
		if len(e.Children) == 0 {
			b.emit(blueprint.OpConst, b.constIdx(empty))
			return nil
		}
		for i, c := range e.Children {
			if err := b.expr(c); err != nil {
				return err
			}
			if i > 0 {
				b.emit(join, 0)
			}
		}
		return nil

	case graph.ExprKindNot:
		if len(e.Children) != 1 {
			return errors.New("not requires exactly one child")
		}
		if err := b.expr(e.Children[0]); err != nil {
			return err
		}
		b.emit(blueprint.OpNot, 0)
		return nil
	}
	return errors.New("unknown expression kind: " + string(e.Kind))
}

func (b *progBuilder) operand(o *graph.Operand) error {
	if o == nil {
		return errors.New("missing comparison operand")
	}
	switch o.Kind {
	case graph.OperandLiteral:
		b.emit(blueprint.OpConst, b.constIdx(o.Literal))
		return nil
	case graph.OperandAttr:
		b.emit(blueprint.OpAttr, b.nameIdx(o.Ref))
		return nil
	case graph.OperandInput:
		b.emit(blueprint.OpInput, b.nameIdx(o.Ref))
		return nil
	case graph.OperandField:
		b.emit(blueprint.OpField, b.nameIdx(o.Ref))
		return nil
	case graph.OperandCalc:
		if len(o.Args) != 2 {
			return errors.New("calc requires exactly two arguments")
		}
		if err := b.operand(o.Args[0]); err != nil {
			return err
		}
		if err := b.operand(o.Args[1]); err != nil {
			return err
		}
		b.emit(arithOpcode(o.Op), 0)
		return nil
	}
	return errors.New("unknown operand kind: " + string(o.Kind))
}

func arithOpcode(op graph.ArithOp) blueprint.Op {
	switch op {
	case graph.ArithAdd:
		return blueprint.OpAdd
	case graph.ArithSub:
		return blueprint.OpSub
	case graph.ArithMul:
		return blueprint.OpMul
	default:
		return blueprint.OpDiv
	}
}

func compareOpcode(op graph.Operator) (blueprint.Op, bool) {
	switch op {
	case graph.OperatorEqual:
		return blueprint.OpEq, true
	case graph.OperatorNotEqual:
		return blueprint.OpNe, true
	case graph.OperatorLessThan:
		return blueprint.OpLt, true
	case graph.OperatorGreaterThan:
		return blueprint.OpGt, true
	case graph.OperatorLessEqual:
		return blueprint.OpLe, true
	case graph.OperatorGreaterEqual:
		return blueprint.OpGe, true
	case graph.OperatorIn:
		return blueprint.OpIn, true
	case graph.OperatorContains:
		return blueprint.OpContains, true
	case graph.OperatorMatches:
		return blueprint.OpMatch, true
	}
	return 0, false
}

// foldCompare evaluates a literal comparison at compile time by running it
// through the same stack machine the runtime uses, so folding can never
// disagree with execution. Regex matches are not folded.
func foldCompare(op blueprint.Op, left, right any) (bool, error) {
	if op == blueprint.OpMatch {
		return false, errors.New("matches is not foldable")
	}
	p := &blueprint.Program{
		Code: []blueprint.Instr{
			{Op: blueprint.OpConst, Arg: 0},
			{Op: blueprint.OpConst, Arg: 1},
			{Op: op},
		},
		Consts: []any{left, right},
	}
	return p.Eval(emptyEnv{})
}

// emptyEnv is the data-free environment constant folding evaluates under.
type emptyEnv struct{}

func (emptyEnv) Attr(string) (any, bool)  { return nil, false }
func (emptyEnv) Input(string) (any, bool) { return nil, false }
func (emptyEnv) Field(string) (any, bool) { return nil, false }

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
