package blueprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"math"
	"sort"

	"praetor-hq/tribune/pkg/snapshot"
)

// ComputeContentHash computes the blueprint's deterministic content hash:
// sha256 over a canonical, length-prefixed binary encoding of every
// semantic field. CompiledAt and the hash itself are excluded, so compiling
// the same graph revision twice always yields the same hash.
func ComputeContentHash(bp *Blueprint) string {
	e := newHashEncoder()

	e.str(CompilerVersion)
	e.str(bp.Tenant)
	e.str(bp.DecisionType)
	e.str(bp.Ref.GraphID)
	e.i64(int64(bp.Ref.Revision))
	e.str(bp.OnMissingContext)

	if bp.Dictionary != nil {
		names := bp.Dictionary.Names()
		e.i64(int64(len(names)))
		for _, name := range names {
			e.str(name)
		}
	} else {
		e.i64(0)
	}

	e.i64(int64(len(bp.Steps)))
	for i := range bp.Steps {
		e.step(&bp.Steps[i])
	}

	e.i64(int64(len(bp.Guardrails)))
	for i := range bp.Guardrails {
		e.guardrail(&bp.Guardrails[i])
	}

	e.action(bp.DefaultOutcome)

	return hex.EncodeToString(e.h.Sum(nil))
}

// hashEncoder writes length-prefixed fields into a sha256 hash. Every field
// is framed so that adjacent fields can never alias.
type hashEncoder struct {
	h   hash.Hash
	buf [8]byte
}

func newHashEncoder() *hashEncoder {
	return &hashEncoder{h: sha256.New()}
}

func (e *hashEncoder) raw(data []byte) {
	binary.BigEndian.PutUint64(e.buf[:], uint64(len(data)))
	e.h.Write(e.buf[:])
	e.h.Write(data)
}

func (e *hashEncoder) str(s string) {
	e.raw([]byte(s))
}

func (e *hashEncoder) i64(v int64) {
	binary.BigEndian.PutUint64(e.buf[:], uint64(v))
	e.h.Write(e.buf[:])
}

func (e *hashEncoder) f64(v float64) {
	binary.BigEndian.PutUint64(e.buf[:], math.Float64bits(v))
	e.h.Write(e.buf[:])
}

func (e *hashEncoder) boolean(v bool) {
	if v {
		e.h.Write([]byte{1})
	} else {
		e.h.Write([]byte{0})
	}
}

func (e *hashEncoder) mask(m snapshot.Mask) {
	e.i64(int64(len(m)))
	for _, w := range m {
		binary.BigEndian.PutUint64(e.buf[:], w)
		e.h.Write(e.buf[:])
	}
}

func (e *hashEncoder) strings(ss []string) {
	e.i64(int64(len(ss)))
	for _, s := range ss {
		e.str(s)
	}
}

func (e *hashEncoder) step(s *Step) {
	e.str(s.ID)
	e.str(string(s.Kind))
	e.str(s.Label)
	e.mask(s.RuleMask)
	e.program(s.Guard)
	e.strings(s.RequiresFired)
	e.strings(s.SkipIfFired)
	e.action(s.Action)
	e.str(string(s.Policy))

	e.i64(int64(len(s.Branches)))
	for i := range s.Branches {
		b := &s.Branches[i]
		e.str(b.NodeID)
		e.str(b.Label)
		e.mask(b.RuleMask)
		e.program(b.Guard)
		e.strings(b.RequiresFired)
		e.strings(b.SkipIfFired)
		e.i64(int64(b.Priority))
		e.f64(b.Weight)
		e.action(b.Action)
	}

	e.i64(int64(len(s.Dominance)))
	for _, pair := range s.Dominance {
		e.i64(int64(pair[0]))
		e.i64(int64(pair[1]))
	}
}

func (e *hashEncoder) guardrail(g *Guardrail) {
	e.str(g.ID)
	e.program(g.When)
	e.str(g.Effect)
	e.str(g.Param)
	e.f64(g.Max)
	e.str(g.Message)
}

func (e *hashEncoder) action(a *ActionSpec) {
	if a == nil {
		e.boolean(false)
		return
	}
	e.boolean(true)
	e.str(a.NodeID)
	e.anyMap(a.Params)
}

func (e *hashEncoder) program(p *Program) {
	if p == nil {
		e.boolean(false)
		return
	}
	e.boolean(true)

	e.i64(int64(len(p.Code)))
	for _, instr := range p.Code {
		e.i64(int64(instr.Op))
		e.i64(int64(instr.Arg))
	}

	e.i64(int64(len(p.Consts)))
	for _, c := range p.Consts {
		e.anyValue(c)
	}

	e.strings(p.Names)
	e.strings(p.Regexps)
}

// anyValue canonically encodes a literal: a type tag byte followed by the
// framed content. Maps encode in sorted key order.
func (e *hashEncoder) anyValue(v any) {
	switch val := v.(type) {
	case nil:
		e.h.Write([]byte{'z'})
	case bool:
		e.h.Write([]byte{'b'})
		e.boolean(val)
	case string:
		e.h.Write([]byte{'s'})
		e.str(val)
	case float64:
		e.h.Write([]byte{'n'})
		e.f64(val)
	case int:
		e.h.Write([]byte{'n'})
		e.f64(float64(val))
	case int64:
		e.h.Write([]byte{'n'})
		e.f64(float64(val))
	case []any:
		e.h.Write([]byte{'l'})
		e.i64(int64(len(val)))
		for _, item := range val {
			e.anyValue(item)
		}
	case map[string]any:
		e.h.Write([]byte{'m'})
		e.anyMap(val)
	default:
		// Unknown literal types hash by their formatted representation.
		e.h.Write([]byte{'?'})
		e.str(fmt.Sprintf("%T:%v", v, v))
	}
}

func (e *hashEncoder) anyMap(m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e.i64(int64(len(keys)))
	for _, k := range keys {
		e.str(k)
		e.anyValue(m[k])
	}
}
