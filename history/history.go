// Package history tracks the per-request execution record the planner
// exposes for observability, and the event publisher that streams
// incremental updates to subscribers as the executor runs.
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status mirrors the planner's coordinator states that are externally
// visible in a history entry.
type Status string

const (
	StatusRunning  Status = "RUNNING"
	StatusRetrying Status = "RETRYING"
	StatusDone     Status = "DONE"
	StatusAborted  Status = "ABORTED"
)

// Execution is one request's history entry: the original query, its
// current status, the result once available, and the accumulated log
// lines across every retry attempt.
type Execution struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitempty"`
	Status    Status    `json:"status"`
	Result    string    `json:"result,omitempty"`
	Logs      []string  `json:"logs,omitempty"`
}

// Manager holds every request's Execution entry in memory, keyed by ID.
// One entry per request: a retry attempt calls Update in place rather than
// appending a new entry, matching the "update, not add" deduplication rule
// the planner's retry loop relies on.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*Execution
}

// NewManager creates an empty history manager.
func NewManager() *Manager {
	return &Manager{entries: make(map[string]*Execution)}
}

// Start creates a new Execution entry for query and returns its ID.
func (m *Manager) Start(query string) string {
	id := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = &Execution{
		ID:        id,
		Query:     query,
		StartTime: time.Now(),
		Status:    StatusRunning,
	}
	return id
}

// Update replaces the status, result, and appends logLines to the entry
// identified by id. A no-op if id is unknown.
func (m *Manager) Update(id string, status Status, result string, logLines ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return
	}
	e.Status = status
	if result != "" {
		e.Result = result
	}
	e.Logs = append(e.Logs, logLines...)
	if status == StatusDone || status == StatusAborted {
		e.EndTime = time.Now()
	}
}

// Get returns a copy of the entry for id, or nil if unknown.
func (m *Manager) Get(id string) *Execution {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil
	}
	cp := *e
	cp.Logs = append([]string(nil), e.Logs...)
	return &cp
}

// All returns a snapshot of every tracked execution.
func (m *Manager) All() []*Execution {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Execution, 0, len(m.entries))
	for _, e := range m.entries {
		cp := *e
		out = append(out, &cp)
	}
	return out
}
