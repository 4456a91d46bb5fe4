// Package parser parses rule graph documents into graph ASTs.
//
// A graph document is a YAML (or JSON, which YAML subsumes) file describing
// one graph revision: metadata, nodes, edges, guardrails, and defaults. The
// parser accumulates structural issues with precise source locations rather
// than failing on the first problem; the result is only usable when the
// returned error is nil.
package parser
