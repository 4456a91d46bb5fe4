// Package runtime executes compiled blueprints against context snapshots.
//
// Execution is a pure pipeline over immutable inputs: resolve the active
// blueprint and the entity's snapshot, pre-filter each step by bitmask,
// run the surviving predicate programs, arbitrate selector branches, apply
// guardrails, and return an explainable outcome. The only suspension point
// is resource resolution; evaluation itself is CPU work and never blocks.
package runtime
