package providers

import "sync"

// failureThreshold is the consecutive-failure count at which a provider is
// considered Unhealthy. Below it, any recent failure means Degraded.
const failureThreshold = 3

// HealthMonitor tracks per-provider consecutive failures and derives a
// HealthStatus from them. Successes reset the streak.
type HealthMonitor struct {
	mu       sync.RWMutex
	failures map[string]int
	forced   map[string]HealthStatus
}

// NewHealthMonitor returns an empty monitor; unknown providers are Healthy.
func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{
		failures: make(map[string]int),
		forced:   make(map[string]HealthStatus),
	}
}

// RecordSuccess resets the provider's failure streak.
func (m *HealthMonitor) RecordSuccess(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[name] = 0
}

// RecordFailure bumps the provider's failure streak.
func (m *HealthMonitor) RecordFailure(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[name]++
}

// SetStatus pins a provider's status, overriding the derived one. Used by
// operational tooling and tests.
func (m *HealthMonitor) SetStatus(name string, status HealthStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced[name] = status
}

// ClearStatus removes a pinned status.
func (m *HealthMonitor) ClearStatus(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.forced, name)
}

// Status derives the provider's current status.
func (m *HealthMonitor) Status(name string) HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.forced[name]; ok {
		return s
	}
	n := m.failures[name]
	switch {
	case n == 0:
		return Healthy
	case n < failureThreshold:
		return Degraded
	default:
		return Unhealthy
	}
}
