// Package engine exposes the public session operations: start, send, end,
// purge, ask, and list. It composes the session store and the per-turn
// transport; all session state lives on disk, so the engine itself is
// stateless between calls.
package engine
