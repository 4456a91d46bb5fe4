package runtime

import (
	"context"

	"praetor-hq/tribune/pkg/blueprint"
	"praetor-hq/tribune/pkg/snapshot"
)

// evalEnv is the layered lookup predicate programs read from: snapshot
// attributes (overrides already merged), dynamic request inputs, and the
// winning decision's outcome fields during guardrail evaluation.
type evalEnv struct {
	attrs  map[string]any
	inputs map[string]any
	fields map[string]any
}

func (e *evalEnv) Attr(name string) (any, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

func (e *evalEnv) Input(name string) (any, bool) {
	v, ok := e.inputs[name]
	return v, ok
}

func (e *evalEnv) Field(name string) (any, bool) {
	v, ok := e.fields[name]
	return v, ok
}

// Evaluation is the result of evaluating one blueprint against one snapshot.
type Evaluation struct {
	Outcome      Outcome
	Alternatives []Alternative
	Explain      *Explain

	// MaskRecomputed reports dictionary drift: the snapshot's stored mask
	// was built through a different dictionary and had to be rebuilt.
	MaskRecomputed bool

	// Faults counts contained guard evaluation faults.
	Faults int

	attrs map[string]any // the attributes evaluation actually saw
}

// Evaluate runs a prepared blueprint against a snapshot and dynamic inputs.
// It is pure CPU work over immutable inputs — the same triple always
// produces the same outcome, which is what makes decisions replayable. The
// context is checked between steps; on expiry the evaluation aborts with
// the context's error and no partial result.
func Evaluate(ctx context.Context, bp *blueprint.Blueprint, snap *snapshot.Snapshot, inputs map[string]any, explain bool) (*Evaluation, error) {
	ev := &Evaluation{Outcome: Outcome{Kind: OutcomeNoDecision}}
	if explain {
		ev.Explain = &Explain{}
	}

	entityMask := snap.Mask
	if bp.Dictionary != nil && snap.DictHash != bp.Dictionary.Hash() {
		entityMask = bp.Dictionary.MaskOf(snap.Attrs)
		ev.MaskRecomputed = snap.DictHash != ""
	}

	env := &evalEnv{attrs: snap.Attrs, inputs: inputs}
	ev.attrs = snap.Attrs
	fired := make(map[string]bool, len(bp.Steps))
	haveOutcome := false

	for i := range bp.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step := &bp.Steps[i]

		if reason, blocked := gated(step.RequiresFired, step.SkipIfFired, fired); blocked {
			ev.trace(StepTrace{StepID: step.ID, Kind: string(step.Kind), Skip: reason})
			continue
		}
		if !entityMask.Contains(step.RuleMask) {
			ev.trace(StepTrace{StepID: step.ID, Kind: string(step.Kind), Skip: SkipMask})
			continue
		}

		if step.Kind == blueprint.StepSelector {
			winner, alts := arbitrateStep(step, env, entityMask, fired, ev)
			ev.Alternatives = append(ev.Alternatives, alts...)
			if winner == nil {
				if bp.DefaultOutcome != nil && !haveOutcome {
					haveOutcome = true
					ev.Outcome = Outcome{
						Kind:     OutcomeDefault,
						ActionID: bp.DefaultOutcome.NodeID,
						Params:   cloneParams(bp.DefaultOutcome.Params),
					}
					fired[bp.DefaultOutcome.NodeID] = true
				}
				continue
			}
			fired[winner.NodeID] = true
			if winner.Action != nil && !haveOutcome {
				haveOutcome = true
				ev.Outcome = Outcome{
					Kind:     OutcomeDecision,
					ActionID: winner.Action.NodeID,
					Params:   cloneParams(winner.Action.Params),
				}
			}
			continue
		}

		pass, fault := evalGuard(step.Guard, env)
		if fault != "" {
			ev.Faults++
			ev.trace(StepTrace{StepID: step.ID, Kind: string(step.Kind), Skip: SkipGuardFault, Detail: fault, MaskPassed: true})
			continue
		}
		if !pass {
			ev.trace(StepTrace{StepID: step.ID, Kind: string(step.Kind), Skip: SkipGuardFalse, MaskPassed: true})
			continue
		}

		fired[step.ID] = true
		ev.trace(StepTrace{StepID: step.ID, Kind: string(step.Kind), Fired: true, MaskPassed: true})
		if step.Kind == blueprint.StepTask && step.Action != nil && !haveOutcome {
			haveOutcome = true
			ev.Outcome = Outcome{
				Kind:     OutcomeDecision,
				ActionID: step.Action.NodeID,
				Params:   cloneParams(step.Action.Params),
			}
		}
	}

	applyGuardrails(bp, env, ev)
	return ev, nil
}

// gated checks structural fired-set conditions: unmet REQUIRES dependencies
// block, a fired NEUTRALIZES source skips.
func gated(requires, skipIf []string, fired map[string]bool) (SkipReason, bool) {
	for _, id := range requires {
		if !fired[id] {
			return SkipRequires, true
		}
	}
	for _, id := range skipIf {
		if fired[id] {
			return SkipNeutralized, true
		}
	}
	return "", false
}

// evalGuard evaluates a compiled guard. A nil guard always passes. A fault
// is contained: the guard is treated false and the fault detail returned.
func evalGuard(p *blueprint.Program, env *evalEnv) (pass bool, fault string) {
	if p == nil {
		return true, ""
	}
	ok, err := p.Eval(env)
	if err != nil {
		return false, err.Error()
	}
	return ok, ""
}

func (ev *Evaluation) trace(t StepTrace) {
	if ev.Explain != nil {
		ev.Explain.Steps = append(ev.Explain.Steps, t)
	}
}

func (ev *Evaluation) traceGuardrail(t GuardrailTrace) {
	if ev.Explain != nil {
		ev.Explain.Guardrails = append(ev.Explain.Guardrails, t)
	}
}

// cloneParams copies an outcome payload so guardrail caps never write into
// the immutable blueprint.
func cloneParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
