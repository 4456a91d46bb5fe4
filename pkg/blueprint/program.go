package blueprint

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// Op is a predicate program opcode. Programs are small stack machines
// compiled ahead of time by pkg/compiler; evaluation is pure CPU work with
// no allocation beyond the value stack.
type Op uint8

const (
	// OpConst pushes constant pool entry Arg.
	OpConst Op = iota
	// OpAttr pushes the context attribute named by name pool entry Arg,
	// or the absent marker when the attribute is missing.
	OpAttr
	// OpInput pushes the dynamic input named by name pool entry Arg.
	OpInput
	// OpField pushes the decision outcome field named by name pool entry
	// Arg (guardrail programs only).
	OpField
	// OpHas pushes whether the attribute named by name pool entry Arg is
	// present.
	OpHas

	// Arithmetic: pop right, pop left, push left op right.
	OpAdd
	OpSub
	OpMul
	OpDiv

	// Comparisons: pop right, pop left, push bool.
	OpEq
	OpNe
	OpLt
	OpGt
	OpLe
	OpGe
	OpIn
	OpContains
	// OpMatch pops a string and pushes whether regex pool entry Arg
	// matches it.
	OpMatch

	// Boolean: pop operands, push bool.
	OpAnd
	OpOr
	OpNot
)

// Instr is a single instruction.
type Instr struct {
	Op  Op  `json:"op"`
	Arg int `json:"arg,omitempty"`
}

// Env supplies the data a program reads: context attributes, dynamic
// request inputs, and (for guardrails) the winning decision's outcome
// fields. Lookups must be cheap, non-blocking map access.
type Env interface {
	Attr(name string) (any, bool)
	Input(name string) (any, bool)
	Field(name string) (any, bool)
}

// EvalFault is a predicate program runtime fault (division by zero, type
// mismatch, stack corruption). The runtime records it and treats the guard
// as failed; it never aborts the request.
type EvalFault struct {
	Detail string
}

// Error implements the error interface.
func (f *EvalFault) Error() string {
	return "predicate evaluation fault: " + f.Detail
}

// absent marks a missing attribute or input on the value stack. Any
// comparison touching absent evaluates to false; arithmetic propagates it.
type absent struct{}

// Program is a compiled predicate: bytecode plus interned constant, name,
// and regex pools. Programs are immutable after Prepare and safe for
// concurrent evaluation.
type Program struct {
	Code    []Instr  `json:"code"`
	Consts  []any    `json:"consts,omitempty"`
	Names   []string `json:"names,omitempty"`
	Regexps []string `json:"regexps,omitempty"`

	compiled []*regexp.Regexp // built by prepare, read-only afterwards
}

// prepare compiles the regex pool. Called once via Blueprint.Prepare before
// the program is published for execution.
func (p *Program) prepare() error {
	if len(p.Regexps) == 0 {
		p.compiled = nil
		return nil
	}
	compiled := make([]*regexp.Regexp, len(p.Regexps))
	for i, pattern := range p.Regexps {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid regex %q in compiled program: %w", pattern, err)
		}
		compiled[i] = re
	}
	p.compiled = compiled
	return nil
}

// Eval runs the program against the environment and returns the boolean
// result. A non-nil error is always an *EvalFault; a panic raised while
// evaluating, including from the environment, is converted to one so a bad
// guard never aborts the request it runs in.
func (p *Program) Eval(env Env) (result bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = false
			err = &EvalFault{Detail: fmt.Sprintf("guard program panic: %v", r)}
		}
	}()
	stack := make([]any, 0, 8)
	push := func(v any) { stack = append(stack, v) }
	pop := func() (any, bool) {
		if len(stack) == 0 {
			return nil, false
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, true
	}
	pop2 := func() (left, right any, ok bool) {
		right, ok = pop()
		if !ok {
			return nil, nil, false
		}
		left, ok = pop()
		return left, right, ok
	}

	for pc := range p.Code {
		instr := p.Code[pc]
		switch instr.Op {
		case OpConst:
			if instr.Arg < 0 || instr.Arg >= len(p.Consts) {
				return false, &EvalFault{Detail: fmt.Sprintf("const index %d out of range", instr.Arg)}
			}
			push(p.Consts[instr.Arg])

		case OpAttr, OpInput, OpField:
			name, err := p.name(instr.Arg)
			if err != nil {
				return false, err
			}
			var v any
			var ok bool
			switch instr.Op {
			case OpAttr:
				v, ok = env.Attr(name)
			case OpInput:
				v, ok = env.Input(name)
			default:
				v, ok = env.Field(name)
			}
			if !ok {
				push(absent{})
			} else {
				push(v)
			}

		case OpHas:
			name, err := p.name(instr.Arg)
			if err != nil {
				return false, err
			}
			_, ok := env.Attr(name)
			push(ok)

		case OpAdd, OpSub, OpMul, OpDiv:
			left, right, ok := pop2()
			if !ok {
				return false, &EvalFault{Detail: "arithmetic on empty stack"}
			}
			v, err := arith(instr.Op, left, right)
			if err != nil {
				return false, err
			}
			push(v)

		case OpEq, OpNe, OpLt, OpGt, OpLe, OpGe, OpIn, OpContains:
			left, right, ok := pop2()
			if !ok {
				return false, &EvalFault{Detail: "comparison on empty stack"}
			}
			v, err := compare(instr.Op, left, right)
			if err != nil {
				return false, err
			}
			push(v)

		case OpMatch:
			v, ok := pop()
			if !ok {
				return false, &EvalFault{Detail: "match on empty stack"}
			}
			if instr.Arg < 0 || instr.Arg >= len(p.compiled) || p.compiled[instr.Arg] == nil {
				return false, &EvalFault{Detail: fmt.Sprintf("regex index %d not prepared", instr.Arg)}
			}
			s, ok := v.(string)
			if !ok {
				// Absent or non-string subject never matches.
				push(false)
				break
			}
			push(p.compiled[instr.Arg].MatchString(s))

		case OpAnd, OpOr:
			left, right, ok := pop2()
			if !ok {
				return false, &EvalFault{Detail: "boolean op on empty stack"}
			}
			lb, lok := left.(bool)
			rb, rok := right.(bool)
			if !lok || !rok {
				return false, &EvalFault{Detail: "boolean op on non-boolean operands"}
			}
			if instr.Op == OpAnd {
				push(lb && rb)
			} else {
				push(lb || rb)
			}

		case OpNot:
			v, ok := pop()
			if !ok {
				return false, &EvalFault{Detail: "not on empty stack"}
			}
			b, bok := v.(bool)
			if !bok {
				return false, &EvalFault{Detail: "not on non-boolean operand"}
			}
			push(!b)

		default:
			return false, &EvalFault{Detail: fmt.Sprintf("unknown opcode %d", instr.Op)}
		}
	}

	if len(stack) != 1 {
		return false, &EvalFault{Detail: fmt.Sprintf("program left %d values on stack", len(stack))}
	}
	result, ok := stack[0].(bool)
	if !ok {
		return false, &EvalFault{Detail: "program result is not boolean"}
	}
	return result, nil
}

func (p *Program) name(arg int) (string, error) {
	if arg < 0 || arg >= len(p.Names) {
		return "", &EvalFault{Detail: fmt.Sprintf("name index %d out of range", arg)}
	}
	return p.Names[arg], nil
}

// arith evaluates an arithmetic opcode. Absent operands propagate; division
// by zero is a fault.
func arith(op Op, left, right any) (any, error) {
	if isAbsent(left) || isAbsent(right) {
		return absent{}, nil
	}
	l, lok := asNumber(left)
	r, rok := asNumber(right)
	if !lok || !rok {
		return nil, &EvalFault{Detail: fmt.Sprintf("arithmetic on non-numeric operands (%T, %T)", left, right)}
	}

	switch op {
	case OpAdd:
		return l + r, nil
	case OpSub:
		return l - r, nil
	case OpMul:
		return l * r, nil
	default: // OpDiv
		if r == 0 {
			return nil, &EvalFault{Detail: "division by zero"}
		}
		return l / r, nil
	}
}

// compare evaluates a comparison opcode. Any comparison touching an absent
// operand evaluates false — this is what keeps the rule mask pre-filter
// sound (an absent attribute can only ever make a positive conjunct false).
func compare(op Op, left, right any) (bool, error) {
	if isAbsent(left) || isAbsent(right) {
		return false, nil
	}

	switch op {
	case OpEq:
		return looseEqual(left, right), nil
	case OpNe:
		return !looseEqual(left, right), nil

	case OpLt, OpGt, OpLe, OpGe:
		l, lok := asNumber(left)
		r, rok := asNumber(right)
		if lok && rok {
			switch op {
			case OpLt:
				return l < r, nil
			case OpGt:
				return l > r, nil
			case OpLe:
				return l <= r, nil
			default:
				return l >= r, nil
			}
		}
		ls, lsok := left.(string)
		rs, rsok := right.(string)
		if lsok && rsok {
			switch op {
			case OpLt:
				return ls < rs, nil
			case OpGt:
				return ls > rs, nil
			case OpLe:
				return ls <= rs, nil
			default:
				return ls >= rs, nil
			}
		}
		return false, &EvalFault{Detail: fmt.Sprintf("ordered comparison on mismatched types (%T, %T)", left, right)}

	case OpIn:
		list, ok := right.([]any)
		if !ok {
			return false, &EvalFault{Detail: fmt.Sprintf("in requires a list right operand, got %T", right)}
		}
		for _, item := range list {
			if looseEqual(left, item) {
				return true, nil
			}
		}
		return false, nil

	default: // OpContains
		switch l := left.(type) {
		case string:
			s, ok := right.(string)
			if !ok {
				return false, &EvalFault{Detail: fmt.Sprintf("contains on string requires a string right operand, got %T", right)}
			}
			return strings.Contains(l, s), nil
		case []any:
			for _, item := range l {
				if looseEqual(item, right) {
					return true, nil
				}
			}
			return false, nil
		default:
			return false, &EvalFault{Detail: fmt.Sprintf("contains requires a string or list left operand, got %T", left)}
		}
	}
}

func isAbsent(v any) bool {
	_, ok := v.(absent)
	return ok
}

// asNumber coerces numeric types to float64. YAML and JSON decoding produce
// a mix of int and float64; comparisons treat them uniformly.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// looseEqual compares two values with numeric coercion and no other
// coercion. Uncomparable dynamic types (lists, maps from decoded JSON)
// compare structurally; interface equality on those would panic.
func looseEqual(left, right any) bool {
	if l, ok := asNumber(left); ok {
		if r, rok := asNumber(right); rok {
			return l == r
		}
		return false
	}
	if t := reflect.TypeOf(left); t != nil && !t.Comparable() {
		return reflect.DeepEqual(left, right)
	}
	return left == right
}
