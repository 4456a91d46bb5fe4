// Package compiler converts an authored rule graph revision into an
// immutable, executable blueprint.
//
// Compilation is a seven-stage pipeline — normalize, lint, prune, order,
// arbitrate, synthesize guards, optimize & emit — where every stage is total
// and side-effect-free on its input. The first failing stage aborts with a
// structured CompileError enumerating the offending node and edge ids; no
// partial blueprint is ever emitted.
//
// Compilation is deterministic: the same graph revision always yields a
// blueprint with the same content hash, which enables content-hash
// deduplication and idempotent activation.
package compiler
