package compiler

import (
	"sort"

	"praetor-hq/tribune/pkg/blueprint"
	"praetor-hq/tribune/pkg/graph"
)

// arbGroup is one arbitration group: the members of an EXCLUDES component,
// the selection policy resolved for it, and its DOMINATES precedence pairs.
type arbGroup struct {
	// members in declaration order. The first member anchors the selector
	// step's position and synthesized id.
	members []string

	policy blueprint.SelectionPolicy

	// dominance pairs as [winner, loser] node ids.
	dominance [][2]string
}

// arbitrate derives arbitration groups from EXCLUDES components. Each group
// resolves a selection policy: a composite node hint when exactly one
// composite flows into the group, the graph default otherwise. Conflicting
// composite hints and DOMINATES cycles are fatal.
func arbitrate(g *graph.Graph, w *workset) ([]*arbGroup, error) {
	issues := graph.NewIssueList()

	comp := excludesComponents(w)
	if len(comp) == 0 {
		return nil, nil
	}

	byComp := make(map[int][]string)
	for _, n := range w.nodes { // declaration order
		if c, ok := comp[n.ID]; ok {
			byComp[c] = append(byComp[c], n.ID)
		}
	}

	compIDs := make([]int, 0, len(byComp))
	for c := range byComp {
		compIDs = append(compIDs, c)
	}
	sort.Ints(compIDs)

	defaultPolicy := blueprint.SelectionPolicy(g.Defaults.SelectionPolicy)
	if defaultPolicy == "" {
		defaultPolicy = blueprint.SelectionPolicy(graph.DefaultSelectionPolicy)
	}
	if !blueprint.ValidSelectionPolicy(defaultPolicy) {
		issues.Addf(graph.IssueAmbiguousArbitration, graph.Location{},
			"unknown default selection policy %q", g.Defaults.SelectionPolicy)
		return nil, newCompileError(g, StageArbitrate, issues)
	}

	// A composite node hints the policy of the group its FLOWS_TO edges
	// point into. A composite fanning into two groups, or two composites
	// disagreeing over one group, is ambiguous.
	hints := make(map[int]blueprint.SelectionPolicy)
	hintedBy := make(map[int]string)
	for _, n := range w.nodes {
		if n.Kind != graph.NodeKindComposite || n.Arbitration == "" {
			continue
		}
		hint := blueprint.SelectionPolicy(n.Arbitration)
		if !blueprint.ValidSelectionPolicy(hint) {
			issues.Add(&graph.Issue{
				Kind:       graph.IssueAmbiguousArbitration,
				Message:    "composite declares an unknown arbitration policy: " + n.Arbitration,
				NodeIDs:    []string{n.ID},
				Location:   n.Location,
				Suggestion: "use highest-priority, first-match, or best-match",
			})
			continue
		}

		target := -1
		split := false
		for _, e := range w.edgesOfKind(graph.EdgeFlowsTo) {
			if e.From != n.ID {
				continue
			}
			c, ok := comp[e.To]
			if !ok {
				continue
			}
			if target != -1 && target != c {
				split = true
			}
			target = c
		}
		if target == -1 {
			issues.Add(&graph.Issue{
				Kind:       graph.IssueAmbiguousArbitration,
				Message:    "composite arbitration hint does not flow into any EXCLUDES group",
				NodeIDs:    []string{n.ID},
				Location:   n.Location,
				Suggestion: "add a flows_to edge from the composite to a group member",
			})
			continue
		}
		if split {
			issues.Add(&graph.Issue{
				Kind:     graph.IssueAmbiguousArbitration,
				Message:  "composite arbitration hint flows into more than one EXCLUDES group",
				NodeIDs:  []string{n.ID},
				Location: n.Location,
			})
			continue
		}
		if prev, taken := hints[target]; taken && prev != hint {
			issues.Add(&graph.Issue{
				Kind:     graph.IssueAmbiguousArbitration,
				Message:  "two composites declare conflicting arbitration policies for one group",
				NodeIDs:  []string{hintedBy[target], n.ID},
				Location: n.Location,
			})
			continue
		}
		hints[target] = hint
		hintedBy[target] = n.ID
	}

	groups := make([]*arbGroup, 0, len(compIDs))
	for _, c := range compIDs {
		members := byComp[c]

		policy := defaultPolicy
		if hint, ok := hints[c]; ok {
			policy = hint
		}

		grp := &arbGroup{members: members, policy: policy}
		memberSet := make(map[string]bool, len(members))
		for _, m := range members {
			memberSet[m] = true
		}
		for _, e := range w.edgesOfKind(graph.EdgeDominates) {
			if memberSet[e.From] && memberSet[e.To] {
				grp.dominance = append(grp.dominance, [2]string{e.From, e.To})
			}
		}
		if cycle := dominanceCycle(grp); len(cycle) > 0 {
			issues.Add(&graph.Issue{
				Kind:    graph.IssueAmbiguousArbitration,
				Message: "DOMINATES edges form a precedence cycle",
				NodeIDs: cycle,
			})
		}
		groups = append(groups, grp)
	}

	if issues.HasIssues() {
		return nil, newCompileError(g, StageArbitrate, issues)
	}
	return groups, nil
}

// dominanceCycle runs Kahn's algorithm over a group's dominance pairs and
// returns the residual node ids (sorted) when precedence is cyclic.
func dominanceCycle(grp *arbGroup) []string {
	indeg := make(map[string]int, len(grp.members))
	adj := make(map[string][]string)
	for _, m := range grp.members {
		indeg[m] = 0
	}
	for _, pair := range grp.dominance {
		adj[pair[0]] = append(adj[pair[0]], pair[1])
		indeg[pair[1]]++
	}

	var queue []string
	for _, m := range grp.members {
		if indeg[m] == 0 {
			queue = append(queue, m)
		}
	}
	processed := 0
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		processed++
		for _, v := range adj[u] {
			indeg[v]--
			if indeg[v] == 0 {
				queue = append(queue, v)
			}
		}
	}
	if processed == len(grp.members) {
		return nil
	}

	var residual []string
	for m, d := range indeg {
		if d > 0 {
			residual = append(residual, m)
		}
	}
	sort.Strings(residual)
	return residual
}
