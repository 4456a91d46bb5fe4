package graph

// ExprKind represents the kind of a guard expression node.
type ExprKind string

const (
	ExprKindHas     ExprKind = "has"     // attribute presence check
	ExprKindCompare ExprKind = "compare" // left op right
	ExprKindAll     ExprKind = "all"     // AND of children
	ExprKindAny     ExprKind = "any"     // OR of children
	ExprKindNot     ExprKind = "not"     // NOT of single child
	ExprKindConst   ExprKind = "const"   // boolean literal
)

// Operator represents a comparison operator in guard expressions.
type Operator string

const (
	OperatorEqual        Operator = "=="
	OperatorNotEqual     Operator = "!="
	OperatorLessThan     Operator = "<"
	OperatorGreaterThan  Operator = ">"
	OperatorLessEqual    Operator = "<="
	OperatorGreaterEqual Operator = ">="
	OperatorIn           Operator = "in"
	OperatorContains     Operator = "contains"
	OperatorMatches      Operator = "matches" // Regex match
)

// ValidOperator reports whether op is a known comparison operator.
func ValidOperator(op Operator) bool {
	switch op {
	case OperatorEqual, OperatorNotEqual, OperatorLessThan, OperatorGreaterThan,
		OperatorLessEqual, OperatorGreaterEqual, OperatorIn, OperatorContains, OperatorMatches:
		return true
	}
	return false
}

// ArithOp represents an arithmetic operator inside an operand calculation.
type ArithOp string

const (
	ArithAdd ArithOp = "+"
	ArithSub ArithOp = "-"
	ArithMul ArithOp = "*"
	ArithDiv ArithOp = "/"
)

// ValidArithOp reports whether op is a known arithmetic operator.
func ValidArithOp(op ArithOp) bool {
	switch op {
	case ArithAdd, ArithSub, ArithMul, ArithDiv:
		return true
	}
	return false
}

// OperandKind represents the kind of a comparison operand.
type OperandKind string

const (
	OperandLiteral OperandKind = "literal" // constant value
	OperandAttr    OperandKind = "attr"    // context attribute lookup
	OperandInput   OperandKind = "input"   // dynamic request input lookup
	OperandField   OperandKind = "field"   // winning decision outcome field (guardrails only)
	OperandCalc    OperandKind = "calc"    // arithmetic over sub-operands
)

// Operand is one side of a comparison. Operands form small arithmetic trees:
// literals, attribute/input/decision-field references, and calculations over
// sub-operands.
type Operand struct {
	Kind    OperandKind
	Literal any        // for OperandLiteral
	Ref     string     // attribute/input/field name for reference kinds
	Op      ArithOp    // for OperandCalc
	Args    []*Operand // for OperandCalc (exactly two)
}

// Expr is a guard expression node. Expressions are tagged variants dispatched
// by kind: presence checks, comparisons, and the boolean combinators all/any/not.
//
// Missing-data semantics: any comparison touching an absent attribute or
// input evaluates to false. This is what makes the compiled rule-mask
// pre-filter sound — a presence bit extracted from a positive conjunct can
// never skip a step whose guard would have passed.
type Expr struct {
	Kind     ExprKind
	Attr     string   // for ExprKindHas
	Left     *Operand // for ExprKindCompare
	Operator Operator // for ExprKindCompare
	Right    *Operand // for ExprKindCompare
	Bool     bool     // for ExprKindConst
	Children []*Expr  // for All/Any/Not
	Location Location
}

// IsLogical returns true if this is a boolean combinator (all/any/not).
func (e *Expr) IsLogical() bool {
	return e.Kind == ExprKindAll || e.Kind == ExprKindAny || e.Kind == ExprKindNot
}

// Walk visits e and every descendant expression in depth-first order.
func (e *Expr) Walk(fn func(*Expr)) {
	if e == nil {
		return
	}
	fn(e)
	for _, c := range e.Children {
		c.Walk(fn)
	}
}

// ReferencedAttrs returns the distinct context attribute names referenced
// anywhere in the expression, in first-reference order.
func (e *Expr) ReferencedAttrs() []string {
	var names []string
	seen := make(map[string]struct{})
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

	var walkOperand func(op *Operand)
	walkOperand = func(op *Operand) {
		if op == nil {
			return
		}
		if op.Kind == OperandAttr {
			add(op.Ref)
		}
		for _, a := range op.Args {
			walkOperand(a)
		}
	}

	e.Walk(func(node *Expr) {
		if node.Kind == ExprKindHas {
			add(node.Attr)
		}
		if node.Kind == ExprKindCompare {
			walkOperand(node.Left)
			walkOperand(node.Right)
		}
	})

	return names
}

// PositiveConjunctAttrs returns the attribute names whose presence is implied
// by the expression's positive conjunctive skeleton: has-checks and attribute
// references found at the top level or under all-nodes, never inside any/not
// subtrees. These are the only attributes safe to encode into a rule mask.
func (e *Expr) PositiveConjunctAttrs() []string {
	var names []string
	seen := make(map[string]struct{})
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

	var walkOperand func(op *Operand)
	walkOperand = func(op *Operand) {
		if op == nil {
			return
		}
		if op.Kind == OperandAttr {
			add(op.Ref)
		}
		for _, a := range op.Args {
			walkOperand(a)
		}
	}

	var walk func(node *Expr)
	walk = func(node *Expr) {
		if node == nil {
			return
		}
		switch node.Kind {
		case ExprKindHas:
			add(node.Attr)
		case ExprKindCompare:
			walkOperand(node.Left)
			walkOperand(node.Right)
		case ExprKindAll:
			for _, c := range node.Children {
				walk(c)
			}
		}
		// any/not/const contribute nothing: a missing attribute under a
		// disjunction or negation does not force the guard false.
	}
	walk(e)

	return names
}
