// Package logging provides a minimal logging interface and adapters for roundtable.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the engine, stores and server use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - RoomLogger with conversation/round context and agent-call helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	eng := engine.New(r, func(o *engine.Options) { o.Logger = logger })
package logging
