package logging

import "context"

// NoOpLogger discards all logs. Used by tests.
type NoOpLogger struct{}

// NewNoOpLogger creates a new no-op logger
func NewNoOpLogger() Logger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) Info(string, ...interface{})  {}
func (n *NoOpLogger) Warn(string, ...interface{})  {}
func (n *NoOpLogger) Error(string, ...interface{}) {}
func (n *NoOpLogger) Debug(string, ...interface{}) {}

func (n *NoOpLogger) InfoContext(context.Context, string, ...interface{})  {}
func (n *NoOpLogger) WarnContext(context.Context, string, ...interface{})  {}
func (n *NoOpLogger) ErrorContext(context.Context, string, ...interface{}) {}
func (n *NoOpLogger) DebugContext(context.Context, string, ...interface{}) {}

func (n *NoOpLogger) WithTraceID(string) Logger   { return n }
func (n *NoOpLogger) WithComponent(string) Logger { return n }
