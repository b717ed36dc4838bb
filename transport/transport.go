// Package transport implements the external transport contract spec §6
// defines: a best-effort, non-blocking send and a non-blocking poll, with
// optional per-node enable/disable to simulate partitions.
package transport

import "github.com/dkirilov/raftcore/raft"

// Transport is the narrow interface the engine's surrounding runtime (the
// simulator or the real driver) uses to move Envelopes between servers.
// The engine itself never calls these methods directly — it only produces
// and consumes Envelopes as data (spec §5).
type Transport interface {
	// Send enqueues msg for dst. It returns immediately; delivery is
	// best-effort and no error is surfaced (spec §6, §7: "message loss is
	// silently accepted, the algorithm self-heals").
	Send(dst uint64, msg raft.Message)

	// Poll returns the next available envelope addressed to self, or
	// (zero, false) if none is currently available. It never blocks.
	Poll() (raft.Envelope, bool)

	// Enable and Disable simulate a node's link going up/down, for
	// partition testing.
	Enable(id uint64)
	Disable(id uint64)
}
