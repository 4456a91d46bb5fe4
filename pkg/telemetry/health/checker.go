// Package health provides liveness and readiness endpoints. Liveness is
// unconditional; readiness runs registered dependency checks (registry
// store, audit storage) and reports per-check status.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Check probes one dependency. It must honor the context deadline.
type Check func(ctx context.Context) error

// Checker aggregates readiness checks.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]Check
	timeout time.Duration
}

// NewChecker creates a Checker. Each check gets at most timeout to answer;
// zero means one second.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Checker{
		checks:  make(map[string]Check),
		timeout: timeout,
	}
}

// Register adds a named readiness check. Re-registering a name replaces it.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

type checkResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Healthz answers liveness: the process is up.
func (c *Checker) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz answers readiness: all registered checks pass within the timeout.
func (c *Checker) Readyz(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	results := make(map[string]checkResult, len(checks))
	ready := true
	for name, check := range checks {
		if err := check(ctx); err != nil {
			results[name] = checkResult{Status: "fail", Error: err.Error()}
			ready = false
		} else {
			results[name] = checkResult{Status: "ok"}
		}
	}

	status := http.StatusOK
	overall := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		overall = "not_ready"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": results})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
