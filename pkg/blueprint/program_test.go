package blueprint

import (
	"errors"
	"testing"
)

// mapEnv is a plain map-backed environment for program tests.
type mapEnv struct {
	attrs  map[string]any
	inputs map[string]any
	fields map[string]any
}

func (e mapEnv) Attr(name string) (any, bool)  { v, ok := e.attrs[name]; return v, ok }
func (e mapEnv) Input(name string) (any, bool) { v, ok := e.inputs[name]; return v, ok }
func (e mapEnv) Field(name string) (any, bool) { v, ok := e.fields[name]; return v, ok }

// panicEnv simulates a misbehaving environment lookup.
type panicEnv struct{ mapEnv }

func (panicEnv) Attr(string) (any, bool) { panic("attr lookup exploded") }

func TestEvalListValuedComparisons(t *testing.T) {
	// Snapshot attrs decode from arbitrary JSON, so attribute values can
	// be lists or maps. Comparing those must not abort evaluation.
	env := mapEnv{attrs: map[string]any{
		"tags":   []any{"a", "b"},
		"labels": []any{"a", "b"},
		"other":  []any{"c"},
		"prefs":  map[string]any{"channel": "email"},
		"tier":   "premium",
	}}

	tests := []struct {
		name string
		prog *Program
		want bool
	}{
		{
			name: "equal lists compare structurally",
			prog: &Program{
				Code:  []Instr{{Op: OpAttr, Arg: 0}, {Op: OpAttr, Arg: 1}, {Op: OpEq}},
				Names: []string{"tags", "labels"},
			},
			want: true,
		},
		{
			name: "unequal lists are not equal",
			prog: &Program{
				Code:  []Instr{{Op: OpAttr, Arg: 0}, {Op: OpAttr, Arg: 1}, {Op: OpEq}},
				Names: []string{"tags", "other"},
			},
			want: false,
		},
		{
			name: "list against scalar is not equal",
			prog: &Program{
				Code:  []Instr{{Op: OpAttr, Arg: 0}, {Op: OpAttr, Arg: 1}, {Op: OpEq}},
				Names: []string{"tags", "tier"},
			},
			want: false,
		},
		{
			name: "equal maps compare structurally",
			prog: &Program{
				Code:  []Instr{{Op: OpAttr, Arg: 0}, {Op: OpAttr, Arg: 1}, {Op: OpEq}},
				Names: []string{"prefs", "prefs"},
			},
			want: true,
		},
		{
			name: "ne on equal lists",
			prog: &Program{
				Code:  []Instr{{Op: OpAttr, Arg: 0}, {Op: OpAttr, Arg: 1}, {Op: OpNe}},
				Names: []string{"tags", "labels"},
			},
			want: false,
		},
		{
			name: "in with list members that are lists",
			prog: &Program{
				Code:   []Instr{{Op: OpAttr, Arg: 0}, {Op: OpConst, Arg: 0}, {Op: OpIn}},
				Names:  []string{"tags"},
				Consts: []any{[]any{[]any{"a", "b"}, []any{"c"}}},
			},
			want: true,
		},
		{
			name: "contains with list needle",
			prog: &Program{
				Code:   []Instr{{Op: OpConst, Arg: 0}, {Op: OpAttr, Arg: 0}, {Op: OpContains}},
				Names:  []string{"other"},
				Consts: []any{[]any{[]any{"c"}, []any{"d"}}},
			},
			want: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.prog.Eval(env)
			if err != nil {
				t.Fatalf("Eval() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("Eval() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvalPanicBecomesFault(t *testing.T) {
	prog := &Program{
		Code:  []Instr{{Op: OpAttr, Arg: 0}, {Op: OpAttr, Arg: 0}, {Op: OpEq}},
		Names: []string{"tags"},
	}
	got, err := prog.Eval(panicEnv{})
	if err == nil {
		t.Fatal("Eval() with a panicking environment returned no error")
	}
	var fault *EvalFault
	if !errors.As(err, &fault) {
		t.Fatalf("Eval() error = %T, want *EvalFault", err)
	}
	if got {
		t.Error("Eval() = true after a fault, want false")
	}
}
