// Package store implements spec §6's persistence contract: current_term,
// voted_for, and the log must be durably saved before any RPC response
// depending on the new value is sent, and a write failure is fatal (spec
// §7) because the server cannot honor an ack it can't recover after
// restart.
package store

import (
	"errors"

	"github.com/dkirilov/raftcore/raft"
)

// ErrPersistenceFailed marks a persistence write failure. Per spec §7 this
// is fatal: callers must halt the server rather than respond with an ack
// they cannot honor after a restart.
var ErrPersistenceFailed = errors.New("store: persistence write failed")

// Store is the durable-state boundary the engine depends on. The engine
// itself never touches a Store directly (it has no I/O); driver.Runtime
// calls Save after every Step and every successful ClientAppend, and
// cmd/raftd calls Load once at startup.
type Store interface {
	// Save durably writes term, votedFor, and the full log. It must
	// complete (including fsync, if applicable) before returning.
	Save(term uint64, votedFor uint64, log []raft.Entry) error

	// Load reads back the most recently saved state. A Store that has
	// never been written to returns zero values and a nil error.
	Load() (term uint64, votedFor uint64, log []raft.Entry, err error)

	// Close releases the underlying resource.
	Close() error
}
