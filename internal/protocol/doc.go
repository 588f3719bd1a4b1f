// Package protocol models the newline-delimited JSON wire protocol spoken by
// the subordinate agent process.
//
// Incoming lines decode into a closed set of tagged event variants; outgoing
// commands are encoded one JSON object per line and carry a monotonically
// increasing per-turn identifier echoed on the matching response event.
// Non-JSON lines and unrecognized tags are skipped explicitly: the agent's
// stdout is allowed to carry non-protocol noise.
package protocol
