// Package blueprint defines the compiled, immutable, versioned execution
// plan the decision runtime evaluates.
//
// A blueprint is derived from exactly one graph revision by pkg/compiler and
// is never edited in place: activation replaces the active blueprint pointer
// atomically. It consists of flattened, topologically ordered steps, each
// carrying a rule bitmask for the cheap pre-filter and an ahead-of-time
// compiled predicate program for the residual guard logic, plus the
// attribute dictionary and the compiled guardrail list.
//
// Blueprints are identified by (graph id, revision, content hash); the
// content hash is computed over a deterministic binary encoding, so
// compiling the same revision twice yields the same hash.
package blueprint
