// Package apply implements spec §4.6's application binding: the bridge
// between a committed log index and the application state machine that
// consumes it. The engine itself never calls Apply — something external
// drives Binding.Advance after observing CommitIndex move forward (spec §5
// "both are external; the core is agnostic").
package apply

import "github.com/dkirilov/raftcore/raft"

// StateMachine is anything that can apply a committed command and is
// queried by clients afterward. KVStore is the bundled implementation.
type StateMachine interface {
	Apply(index int64, command []byte)
}

// Binding tracks lastApplied and feeds each newly committed entry to sm
// exactly once, in index order, per spec §4.6.
type Binding struct {
	server      *raft.Server
	sm          StateMachine
	lastApplied int64
}

// NewBinding wires sm to receive entries committed on server.
func NewBinding(server *raft.Server, sm StateMachine) *Binding {
	return &Binding{server: server, sm: sm, lastApplied: raft.NoIndex}
}

// Advance applies every entry between the previous lastApplied and the
// server's current CommitIndex, in order. Call it after every Step that may
// have moved CommitIndex forward.
func (b *Binding) Advance() {
	commitIndex := b.server.CommitIndex()
	for b.lastApplied < commitIndex {
		next := b.lastApplied + 1
		entry := b.server.LogEntry(next)
		b.sm.Apply(next, entry.Command)
		b.lastApplied = next
	}
}

// LastApplied reports the highest index applied so far.
func (b *Binding) LastApplied() int64 {
	return b.lastApplied
}
