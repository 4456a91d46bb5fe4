package runtime

import (
	"fmt"

	"praetor-hq/tribune/pkg/blueprint"
)

// applyGuardrails evaluates the blueprint's guardrails against the winning
// outcome, in declared order. Guardrails never reselect: a deny replaces
// the winner with the no-action outcome and stops, a cap clamps the named
// numeric param in place. With no outcome there is nothing to veto and the
// guardrails are skipped entirely.
func applyGuardrails(bp *blueprint.Blueprint, env *evalEnv, ev *Evaluation) {
	if ev.Outcome.Kind == OutcomeNoDecision || len(bp.Guardrails) == 0 {
		return
	}

	env.fields = ev.Outcome.Params

	for i := range bp.Guardrails {
		rail := &bp.Guardrails[i]

		firing, err := rail.When.Eval(env)
		if err != nil {
			// A faulting guardrail cannot justify a veto; contained like
			// any other guard fault.
			ev.Faults++
			ev.traceGuardrail(GuardrailTrace{GuardrailID: rail.ID, Detail: err.Error()})
			continue
		}
		if !firing {
			ev.traceGuardrail(GuardrailTrace{GuardrailID: rail.ID})
			continue
		}

		switch rail.Effect {
		case "deny":
			ev.Outcome.Kind = OutcomeDenied
			ev.Outcome.Params = nil
			ev.Outcome.Guardrails = append(ev.Outcome.Guardrails, rail.ID)
			ev.traceGuardrail(GuardrailTrace{
				GuardrailID: rail.ID,
				Fired:       true,
				Effect:      "deny",
				Message:     rail.Message,
			})
			return

		case "cap":
			v, ok := asNumber(ev.Outcome.Params[rail.Param])
			if !ok || v <= rail.Max {
				ev.traceGuardrail(GuardrailTrace{
					GuardrailID: rail.ID,
					Detail:      fmt.Sprintf("param %s already within cap", rail.Param),
				})
				continue
			}
			ev.Outcome.Params[rail.Param] = rail.Max
			ev.Outcome.Guardrails = append(ev.Outcome.Guardrails, rail.ID)
			ev.traceGuardrail(GuardrailTrace{
				GuardrailID: rail.ID,
				Fired:       true,
				Effect:      "cap",
				Message:     rail.Message,
				Detail:      fmt.Sprintf("%s clamped from %v to %v", rail.Param, v, rail.Max),
			})
		}
	}
}

func asNumber(v any) (float64, bool) {
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
