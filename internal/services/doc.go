// Package services defines shared utilities consumed by the session engine
// and the subordinate-agent transport.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs and turn states for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     (validation, not found, protocol, timeout, process) consistently.
//
// Use these helpers when wiring new engine logic so operational behaviour
// (error handling, observability) stays uniform across the codebase.
package services
