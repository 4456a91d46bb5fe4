package graph

import (
	"fmt"
	"strings"
)

// IssueKind categorizes a diagnostic raised while parsing or compiling a
// graph revision.
type IssueKind string

const (
	IssueSyntax               IssueKind = "syntax"                // YAML syntax error
	IssueStructural           IssueKind = "structural"            // schema violation (missing/invalid fields)
	IssueDuplicateNode        IssueKind = "duplicate_node"        // node id declared twice
	IssueDanglingReference    IssueKind = "dangling_reference"    // edge targets a missing node
	IssueSelfLoop             IssueKind = "self_loop"             // edge from a node to itself
	IssueCycleDetected        IssueKind = "cycle_detected"        // REQUIRES/FLOWS_TO chain cycles
	IssueNoEntryNode          IssueKind = "no_entry_node"         // graph has no decision node
	IssueAmbiguousArbitration IssueKind = "ambiguous_arbitration" // DOMINATES across arbitration groups
	IssueUnreachableNode      IssueKind = "unreachable_node"      // pruned: unreachable from any entry (warning)
	IssueUnsatisfiableGuard   IssueKind = "unsatisfiable_guard"   // pruned: statically false guard (warning)
	IssueInvalidExpression    IssueKind = "invalid_expression"    // malformed guard expression
	IssueInvalidGuardrail     IssueKind = "invalid_guardrail"     // malformed guardrail declaration
)

// Issue is a single diagnostic with location, the graph element ids it
// concerns, and an optional suggested fix.
type Issue struct {
	Kind       IssueKind
	Message    string
	NodeIDs    []string // offending node (or edge endpoint) ids
	Location   Location
	Suggestion string
}

// Error implements the error interface.
func (i *Issue) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] %s", i.Kind, i.Message))
	if len(i.NodeIDs) > 0 {
		sb.WriteString(fmt.Sprintf(" (nodes: %s)", strings.Join(i.NodeIDs, ", ")))
	}
	if i.Location.IsValid() {
		sb.WriteString(fmt.Sprintf("\n  --> %s", i.Location.String()))
	}
	if i.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("\n  = suggestion: %s", i.Suggestion))
	}

	return sb.String()
}

// IssueList accumulates diagnostics instead of failing on the first one.
type IssueList struct {
	Issues []*Issue
}

// NewIssueList creates a new empty issue list.
func NewIssueList() *IssueList {
	return &IssueList{Issues: make([]*Issue, 0)}
}

// Add appends an issue to the list.
func (il *IssueList) Add(issue *Issue) {
	il.Issues = append(il.Issues, issue)
}

// Addf creates and appends an issue with a formatted message.
func (il *IssueList) Addf(kind IssueKind, loc Location, format string, args ...any) {
	il.Add(&Issue{
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Location: loc,
	})
}

// AddNodes creates and appends an issue referencing specific node ids.
func (il *IssueList) AddNodes(kind IssueKind, nodeIDs []string, loc Location, format string, args ...any) {
	il.Add(&Issue{
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		NodeIDs:  nodeIDs,
		Location: loc,
	})
}

// HasIssues returns true if the list contains any issues.
func (il *IssueList) HasIssues() bool {
	return len(il.Issues) > 0
}

// Count returns the number of issues in the list.
func (il *IssueList) Count() int {
	return len(il.Issues)
}

// ByKind returns all issues of the given kind.
func (il *IssueList) ByKind(kind IssueKind) []*Issue {
	var out []*Issue
	for _, i := range il.Issues {
		if i.Kind == kind {
			out = append(out, i)
		}
	}
	return out
}

// HasKind returns true if the list contains at least one issue of the kind.
func (il *IssueList) HasKind(kind IssueKind) bool {
	for _, i := range il.Issues {
		if i.Kind == kind {
			return true
		}
	}
	return false
}

// Error implements the error interface, formatting every issue.
func (il *IssueList) Error() string {
	if !il.HasIssues() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("found %d issue(s):\n", il.Count()))
	for n, issue := range il.Issues {
		sb.WriteString(fmt.Sprintf("\n%d. %s\n", n+1, issue.Error()))
	}
	return sb.String()
}

// ToError returns nil if the list is empty, otherwise the list itself.
func (il *IssueList) ToError() error {
	if !il.HasIssues() {
		return nil
	}
	return il
}
