// Package lifecycle runs the kernel's graceful shutdown as an ordered list
// of named steps the caller registers up front: steps run once, in
// registration order, and the whole sequence shares one total timeout so
// one stuck component can't hang the whole process.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluxweave/conductor/conductorerr"
	"github.com/fluxweave/conductor/core"
)

// Step is one unit of graceful shutdown: a name for logging plus the
// teardown function itself.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// DefaultTotalTimeout bounds the entire shutdown sequence: a single short
// grace period rather than letting every component pick its own.
const DefaultTotalTimeout = 10 * time.Second

// Manager runs a fixed, ordered sequence of shutdown steps exactly once.
// Steps run in the order they were added; a step's own error is logged and
// collected but does not stop later steps from running, since a later
// step (closing a socket) may be the only way to unblock an earlier one's
// in-flight requests.
type Manager struct {
	mu       sync.Mutex
	steps    []Step
	logger   core.Logger
	timeout  time.Duration
	shutdown atomic.Bool
}

// New creates a Manager. A zero or negative timeout uses DefaultTotalTimeout.
func New(logger core.Logger, timeout time.Duration) *Manager {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if timeout <= 0 {
		timeout = DefaultTotalTimeout
	}
	return &Manager{logger: logger, timeout: timeout}
}

// Register appends a shutdown step. Steps registered earlier run earlier
// (cmd/conductor registers its HTTP server first, so it stops accepting
// requests before anything else is torn down). Callers decide ordering by
// registration order; Manager does not reverse it implicitly.
func (m *Manager) Register(name string, run func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, Step{Name: name, Run: run})
}

// Shutdown runs every registered step once, in registration order, each
// within the manager's overall timeout budget. Calling Shutdown a second
// time returns ErrAlreadyShuttingDown immediately rather than re-running
// steps that already tore down their dependencies.
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.shutdown.CompareAndSwap(false, true) {
		return conductorerr.New("lifecycle.Shutdown", "lifecycle", conductorerr.ErrAlreadyShuttingDown)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	m.mu.Lock()
	steps := append([]Step(nil), m.steps...)
	m.mu.Unlock()

	m.logger.Info("shutdown starting", map[string]interface{}{"steps": len(steps)})

	var errs []error
	for _, step := range steps {
		if err := m.runStep(ctx, step); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.Name, err))
		}
	}

	if len(errs) > 0 {
		m.logger.Error("shutdown completed with errors", map[string]interface{}{"errors": len(errs)})
		return fmt.Errorf("lifecycle: %d step(s) failed: %v", len(errs), errs)
	}
	m.logger.Info("shutdown complete", nil)
	return nil
}

// runStep runs one step, recording how long it took and whether the
// shared deadline had already expired by the time it started.
func (m *Manager) runStep(ctx context.Context, step Step) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	start := time.Now()
	err := step.Run(ctx)
	m.logger.Info("shutdown step complete", map[string]interface{}{
		"step": step.Name, "duration_ms": time.Since(start).Milliseconds(), "error": errString(err),
	})
	return err
}

// IsShuttingDown reports whether Shutdown has been called, so request
// handlers can reject new work once teardown has started.
func (m *Manager) IsShuttingDown() bool {
	return m.shutdown.Load()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
