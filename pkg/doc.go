// Package pkg provides shared utilities for the eisusb firmware and host tools.
//
// This package contains common functionality used across the device core,
// the transports, and the host client, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for USB protocol and transport errors
//   - A typed [TimeoutError] for bounded hardware waits
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentSession, "session started", "frequencies", 2)
//
// # Errors
//
// Common errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrTimeout) {
//	    // Hardware never confirmed the operation
//	}
package pkg
