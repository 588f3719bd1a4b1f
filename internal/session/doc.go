// Package session persists session metadata as one JSON document per session
// in a spool directory. The store is the sole source of truth between turns;
// the engine keeps no in-memory session state across calls.
//
// Transcripts (<id>.jsonl) live next to the metadata but are owned and
// appended to by the subordinate agent process; this package only derives and
// removes their paths.
package session
