// Package core provides the fundamental abstractions shared across the
// orchestration kernel: logging and telemetry contracts. Concrete
// implementations live in sibling packages (conductorlog, telemetry); core
// only defines the interfaces so that capability, executor, llm, and
// planner can depend on behavior without depending on a specific backend.
package core

import "context"

// Logger is the structured logging contract used throughout the kernel.
// Fields are free-form key/value pairs, matching the grep-able style every
// log call in this codebase uses:
//
//	logger.Info("node completed", map[string]interface{}{
//	    "node_id": node.ID, "capability": node.Capability, "duration_ms": dur,
//	})
//
// The *WithContext variants exist for call sites running inside a request
// span that want trace correlation (request ID, span ID) pulled from ctx
// without every caller threading it through by hand.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger extends Logger with a component tag, so one base
// logger can be specialized per subsystem while sharing sinks and
// formatting.
//
// Component naming convention:
//   - "conductor/planner"   - planner/coordinator state machine
//   - "conductor/executor"  - tree executor
//   - "conductor/validator" - plan validator
//   - "conductor/capability"- capability registry
//   - "conductor/llm"       - LLM task router
//   - "conductor/history"   - execution history & event publisher
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// Telemetry is the optional metrics/tracing contract. LLM calls,
// capability invocations and planner requests open a span through this
// interface; history publishes do not.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span is a single traced operation.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// NoOpLogger discards everything. It is the zero-value default so every
// package works undecorated in unit tests.
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

func (n *NoOpLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}

// NoOpTelemetry discards every span and metric.
type NoOpTelemetry struct{}

func (n *NoOpTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, &NoOpSpan{}
}

func (n *NoOpTelemetry) RecordMetric(name string, value float64, labels map[string]string) {}

// NoOpSpan discards attributes and errors.
type NoOpSpan struct{}

func (n *NoOpSpan) End()                                       {}
func (n *NoOpSpan) SetAttribute(key string, value interface{}) {}
func (n *NoOpSpan) RecordError(err error)                      {}
