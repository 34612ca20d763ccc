package metrics

import (
	"sort"
	"sync"
	"time"
)

// Agent components that report health
const (
	ComponentBackend    = "backend"
	ComponentReconciler = "reconciler"
	ComponentJournal    = "journal"
	ComponentAPI        = "api"
)

// ComponentStatus is the last report from one component
type ComponentStatus struct {
	Healthy bool      `json:"healthy"`
	Message string    `json:"message,omitempty"`
	Updated time.Time `json:"updated"`
}

// Components records the health each agent component last reported and
// mirrors it into burrow_component_healthy. A nil *Components ignores reports.
type Components struct {
	mu     sync.RWMutex
	status map[string]ComponentStatus
}

// NewComponents creates an empty component registry
func NewComponents() *Components {
	return &Components{status: make(map[string]ComponentStatus)}
}

// Report records the outcome of a component's latest operation.
// A nil err marks the component healthy.
func (c *Components) Report(name string, err error) {
	if c == nil {
		return
	}

	st := ComponentStatus{Healthy: err == nil, Updated: time.Now()}
	gauge := 1.0
	if err != nil {
		st.Message = err.Error()
		gauge = 0
	}

	c.mu.Lock()
	c.status[name] = st
	c.mu.Unlock()

	ComponentHealthy.WithLabelValues(name).Set(gauge)
}

// Status returns the last report for name
func (c *Components) Status(name string) (ComponentStatus, bool) {
	if c == nil {
		return ComponentStatus{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.status[name]
	return st, ok
}

// Snapshot returns a copy of every report
func (c *Components) Snapshot() map[string]ComponentStatus {
	out := make(map[string]ComponentStatus)
	if c == nil {
		return out
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for name, st := range c.status {
		out[name] = st
	}
	return out
}

// Unhealthy returns the sorted names whose last report was a failure
func (c *Components) Unhealthy() []string {
	var names []string
	for name, st := range c.Snapshot() {
		if !st.Healthy {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
