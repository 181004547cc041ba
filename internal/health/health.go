// SPDX-License-Identifier: MIT

// Package health serves liveness and readiness probes. Adapters register
// connectivity checks; required checks gate readiness, optional ones only
// degrade the reported status.
package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/snapdog/snapdog/internal/version"
)

// Status is the aggregate or per-check health state.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is one registered connectivity probe.
type Check struct {
	Name     string
	Required bool
	// Probe reports whether the component is currently up.
	Probe func() bool
}

// CheckResult is the serialized outcome of one check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the health endpoint payload.
type Response struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	UptimeS   int64                  `json:"uptimeS"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Manager aggregates checks and serves the probe endpoints.
type Manager struct {
	mu      sync.RWMutex
	checks  []Check
	started time.Time
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{started: time.Now()}
}

// Register adds a check. Call during wiring, before serving.
func (m *Manager) Register(c Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, c)
}

// evaluate runs every probe and folds the aggregate status.
func (m *Manager) evaluate() (Status, map[string]CheckResult) {
	m.mu.RLock()
	checks := append([]Check(nil), m.checks...)
	m.mu.RUnlock()

	agg := StatusHealthy
	results := make(map[string]CheckResult, len(checks))
	for _, c := range checks {
		if c.Probe() {
			results[c.Name] = CheckResult{Status: StatusHealthy}
			continue
		}
		if c.Required {
			agg = StatusUnhealthy
			results[c.Name] = CheckResult{Status: StatusUnhealthy, Message: "disconnected"}
			continue
		}
		if agg == StatusHealthy {
			agg = StatusDegraded
		}
		results[c.Name] = CheckResult{Status: StatusDegraded, Message: "disconnected"}
	}
	return agg, results
}

// ServeHealth reports full health. Unhealthy answers 503.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	status, results := m.evaluate()
	code := http.StatusOK
	if status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	m.write(w, code, status, results)
}

// ServeReady reports readiness: every required check must pass.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	status, results := m.evaluate()
	code := http.StatusOK
	if status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	m.write(w, code, status, results)
}

// ServeLive reports process liveness only.
func (m *Manager) ServeLive(w http.ResponseWriter, r *http.Request) {
	m.write(w, http.StatusOK, StatusHealthy, nil)
}

func (m *Manager) write(w http.ResponseWriter, code int, status Status, results map[string]CheckResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{
		Status:    status,
		Version:   version.Version,
		Timestamp: time.Now().UTC(),
		UptimeS:   int64(time.Since(m.started).Seconds()),
		Checks:    results,
	})
}
