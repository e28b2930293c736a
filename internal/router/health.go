package router

import (
	"sync"
	"time"
)

// HealthState is the observed health of a backend. It is reported on the
// health endpoints only and never changes availability or routing.
type HealthState int

const (
	HealthOK HealthState = iota
	HealthDegraded
)

func (s HealthState) String() string {
	switch s {
	case HealthOK:
		return "ok"
	case HealthDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

type HealthStatus struct {
	State               HealthState `json:"-"`
	Status              string      `json:"status"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	LastFailure         time.Time   `json:"last_failure,omitzero"`
	LastSuccess         time.Time   `json:"last_success,omitzero"`
}

type backendHealth struct {
	state       HealthState
	failures    int
	lastFailure time.Time
	lastSuccess time.Time
	degradedAt  time.Time
}

// HealthMonitor tracks consecutive dispatch failures per backend. A backend is
// degraded after threshold failures in a row and reads as ok again after a
// success or once cooldown has elapsed.
type HealthMonitor struct {
	mu       sync.Mutex
	backends map[string]*backendHealth
	watchers []func(backend string, state HealthState)

	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

func NewHealthMonitor(threshold int, cooldown time.Duration) *HealthMonitor {
	if threshold <= 0 {
		threshold = 1
	}
	return &HealthMonitor{
		backends:  make(map[string]*backendHealth),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// OnChange registers a callback fired after a backend changes state.
// Callbacks run with no lock held.
func (m *HealthMonitor) OnChange(fn func(backend string, state HealthState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, fn)
}

// get must be called with mu held.
func (m *HealthMonitor) get(backend string) *backendHealth {
	h, ok := m.backends[backend]
	if !ok {
		h = &backendHealth{}
		m.backends[backend] = h
	}
	return h
}

// current must be called with mu held.
func (m *HealthMonitor) current(h *backendHealth) HealthState {
	if h.state == HealthDegraded && m.cooldown > 0 && m.now().Sub(h.degradedAt) >= m.cooldown {
		h.state = HealthOK
		h.failures = 0
	}
	return h.state
}

func (m *HealthMonitor) RecordSuccess(backend string) {
	m.mu.Lock()
	h := m.get(backend)
	prev := h.state
	h.state = HealthOK
	h.failures = 0
	h.lastSuccess = m.now()
	watchers := m.watchers
	m.mu.Unlock()

	if prev != HealthOK {
		notify(watchers, backend, HealthOK)
	}
}

func (m *HealthMonitor) RecordFailure(backend string) {
	m.mu.Lock()
	h := m.get(backend)
	prev := h.state
	m.current(h)
	h.failures++
	h.lastFailure = m.now()
	if h.state == HealthOK && h.failures >= m.threshold {
		h.state = HealthDegraded
		h.degradedAt = h.lastFailure
	}
	state := h.state
	watchers := m.watchers
	m.mu.Unlock()

	if prev != state {
		notify(watchers, backend, state)
	}
}

func (m *HealthMonitor) Status(backend string) HealthStatus {
	m.mu.Lock()
	h := m.get(backend)
	prev := h.state
	state := m.current(h)
	status := HealthStatus{
		State:               state,
		Status:              state.String(),
		ConsecutiveFailures: h.failures,
		LastFailure:         h.lastFailure,
		LastSuccess:         h.lastSuccess,
	}
	watchers := m.watchers
	m.mu.Unlock()

	if prev != state {
		notify(watchers, backend, state)
	}
	return status
}

func notify(watchers []func(string, HealthState), backend string, state HealthState) {
	for _, fn := range watchers {
		fn(backend, state)
	}
}
