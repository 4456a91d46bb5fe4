package runtime

import (
	"fmt"

	"praetor-hq/tribune/pkg/blueprint"
	"praetor-hq/tribune/pkg/snapshot"
)

// arbitrateStep resolves a selector step: filter branches by fired-set
// gates, mask, and guard; drop dominated candidates; score by the step's
// policy. Ties always break by compiled branch order. Losers are returned
// as alternatives with the reason they lost.
func arbitrateStep(step *blueprint.Step, env *evalEnv, entityMask snapshot.Mask, fired map[string]bool, ev *Evaluation) (*blueprint.Branch, []Alternative) {
	type candidate struct {
		idx    int
		branch *blueprint.Branch
	}

	var candidates []candidate
	for i := range step.Branches {
		b := &step.Branches[i]
		if _, blocked := gated(b.RequiresFired, b.SkipIfFired, fired); blocked {
			continue
		}
		if !entityMask.Contains(b.RuleMask) {
			continue
		}
		pass, fault := evalGuard(b.Guard, env)
		if fault != "" {
			ev.Faults++
			continue
		}
		if pass {
			candidates = append(candidates, candidate{idx: i, branch: b})
		}
	}

	if len(candidates) == 0 {
		ev.trace(StepTrace{StepID: step.ID, Kind: string(step.Kind), MaskPassed: true, Detail: "no eligible candidates"})
		return nil, nil
	}

	total := len(candidates)

	// Dominance pairs drop the dominated branch before scoring, but only
	// when the dominator is itself a candidate.
	inSet := make(map[int]bool, len(candidates))
	for _, c := range candidates {
		inSet[c.idx] = true
	}
	var alts []Alternative
	dominated := make(map[int]bool)
	for _, pair := range step.Dominance {
		if inSet[pair[0]] && inSet[pair[1]] && !dominated[pair[0]] {
			dominated[pair[1]] = true
		}
	}
	kept := candidates[:0]
	for _, c := range candidates {
		if dominated[c.idx] {
			alts = append(alts, Alternative{
				NodeID: c.branch.NodeID,
				Reason: "dominated",
				Params: c.branch.ActionParams(),
			})
			continue
		}
		kept = append(kept, c)
	}
	candidates = kept

	// Score by policy. Candidates are in compiled branch order, and the
	// strict comparison means an equal score never displaces an earlier
	// candidate: declared order is the universal tie-break.
	better := func(a, b candidate) bool {
		switch step.Policy {
		case blueprint.PolicyFirstMatch:
			return false
		case blueprint.PolicyBestMatch:
			if a.branch.Weight != b.branch.Weight {
				return a.branch.Weight > b.branch.Weight
			}
			return a.branch.RuleMask.Popcount() > b.branch.RuleMask.Popcount()
		default: // highest-priority
			return a.branch.Priority > b.branch.Priority
		}
	}

	winner := candidates[0]
	for _, c := range candidates[1:] {
		if better(c, winner) {
			winner = c
		}
	}

	for _, c := range candidates {
		if c.idx == winner.idx {
			continue
		}
		reason := "outscored"
		if !better(winner, c) {
			reason = "tie_order"
		}
		alts = append(alts, Alternative{
			NodeID: c.branch.NodeID,
			Reason: reason,
			Params: c.branch.ActionParams(),
		})
	}

	ev.trace(StepTrace{
		StepID:     step.ID,
		Kind:       string(step.Kind),
		Fired:      true,
		MaskPassed: true,
		BranchID:   winner.branch.NodeID,
		Detail:     fmt.Sprintf("policy %s over %d candidates", step.Policy, total),
	})
	return winner.branch, alts
}
