package runtime

import (
	"context"
	"fmt"
	"time"
)

// ResolutionError means a required resource (active blueprint or context
// snapshot) could not be resolved and fail-safe defaults were disabled.
type ResolutionError struct {
	Tenant       string
	DecisionType string
	EntityID     string
	Resource     string // "blueprint" or "context"
	Cause        error
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("cannot resolve %s for %s/%s", e.Resource, e.Tenant, e.DecisionType)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ResolutionError) Unwrap() error { return e.Cause }

// DeadlineError means the request exceeded its deadline mid-evaluation and
// failed closed: no partial response was produced. It carries the trace id
// so the timeout can still be audited.
type DeadlineError struct {
	TraceID string
	Elapsed time.Duration
}

// Error implements the error interface.
func (e *DeadlineError) Error() string {
	return fmt.Sprintf("decision %s exceeded its deadline after %s", e.TraceID, e.Elapsed)
}

// Unwrap makes errors.Is(err, context.DeadlineExceeded) hold.
func (e *DeadlineError) Unwrap() error { return context.DeadlineExceeded }

// OverrideError means the request carried an override token that failed
// verification. The request is rejected rather than silently served from
// the unmodified snapshot.
type OverrideError struct {
	Cause error
}

// Error implements the error interface.
func (e *OverrideError) Error() string {
	return "override token rejected: " + e.Cause.Error()
}

// Unwrap returns the verification failure.
func (e *OverrideError) Unwrap() error { return e.Cause }
