// Package graph defines the authored rule graph model: polymorphic nodes,
// typed edges, guard expressions, and guardrail declarations.
//
// A graph is the mutable source-of-truth for business decision logic. Each
// save produces a new immutable revision; the compiler (pkg/compiler) always
// reads a specific revision and never mutates it. Graphs are represented with
// explicit node/edge identifiers and adjacency built on demand (arena +
// index pattern) so cyclic authoring graphs are representable; the compiler
// is the single boundary that converts a graph into a strictly acyclic,
// flattened blueprint.
package graph
