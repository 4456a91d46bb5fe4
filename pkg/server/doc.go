// Package server provides tribune's HTTP surface: compile, activate,
// execute, context ingest, trace retrieval, and replay, plus health and
// metrics endpoints. Handlers are plain net/http on the standard mux,
// wrapped by request-id, logging, recovery, and metrics middleware.
package server
