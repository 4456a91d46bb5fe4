// Tribune is a compiled decision runtime: it compiles business rule graphs
// into immutable blueprints and evaluates them against per-entity context
// snapshots with deterministic arbitration, guardrails, and full audit.
//
// Usage:
//
//	# Start the server
//	tribune run --config /etc/tribune/config.yaml
//
//	# Compile a graph document offline
//	tribune compile -f graph.yaml -o blueprint.json
//
//	# Lint a graph document
//	tribune lint -f graph.yaml
//
//	# Replay a recorded decision
//	tribune replay --trace 4f7c…
//
//	# Show version information
//	tribune version
package main

func main() {
	Execute()
}
