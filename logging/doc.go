// Package logging provides a minimal logging interface and adapters for
// browsermesh.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the relay, the controller client and the runner use for
// observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - RunLog, an append-only JSONL event trail for post-hoc inspection of
//     relay sessions and plan runs
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "text", false)
//	srv := relay.New(func(o *relay.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal so callers can plug
// any structured logger without vendor lock-in.
package logging
