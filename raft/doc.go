// Package raft implements the core of a Raft consensus engine: a per-server
// log, the follower/candidate/leader role state machine, leader-driven log
// replication with per-follower progress tracking, and the election
// protocol with its up-to-date-log vote guard.
//
// The engine is a pure event-step function. Every entry point on Server
// (Step, ClientAppend) mutates only the server's own state and performs no
// I/O. Step returns the outgoing messages it produced; ClientAppend only
// appends locally, and the new entry goes out with the next heartbeat. This keeps the
// engine usable from a deterministic simulator, a randomized property
// tester, or a real network runtime without change.
//
// Cluster membership changes, log compaction/snapshots, and pre-vote are
// out of scope.
package raft
