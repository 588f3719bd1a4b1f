// Package transport owns the subordinate agent process for exactly one turn:
// it spawns the process, feeds commands to its stdin, decodes the protocol
// events from its stdout, and keeps the last stderr lines for failure
// messages.
//
// A turn is an explicit state machine (handshaking, prompting, streaming)
// driven by a single event channel. The handshake and prompt-acknowledgment
// steps race a fixed deadline; streaming races a sliding inactivity deadline
// rearmed by every delta and tool event. Teardown runs exactly once on every
// exit path: timers cancelled, progress record removed, stdin closed, and the
// process group signalled.
package transport
