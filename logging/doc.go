// Package logging provides a minimal logging interface and adapters for modelmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the registry, selector, lifecycle monitor and mesh use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - ZapAdapter wrapping a *zap.Logger
//   - MeshLogger with component context and scheduling specific helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	reg := registry.New(func(o *registry.Options) { o.Logger = logger })
//
// Arguments after the message are slog style key/value pairs.
package logging
