package sim

import (
	"sort"

	"github.com/dkirilov/raftcore/raft"
	"github.com/dkirilov/raftcore/transport"
)

// Simulator is a deterministic, single-threaded scheduler over a fixed set
// of raft.Server instances wired to a shared transport.SimNetwork. Nothing
// advances except when the caller asks it to: there are no goroutines and
// no real timers, so tests can explore event orderings exhaustively or via
// randomized DFS (spec §8), grounded on
// gyuho-db/raft/rafttest/rafttest.go's network-stepping harness.
type Simulator struct {
	servers map[uint64]*raft.Server
	nodes   map[uint64]transport.Transport
	network *transport.SimNetwork
	order   []uint64
}

// NewSimulator builds a simulator spanning servers, all initially connected.
func NewSimulator(servers map[uint64]*raft.Server) *Simulator {
	ids := make([]uint64, 0, len(servers))
	for id := range servers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	net := transport.NewSimNetwork(ids)
	nodes := make(map[uint64]transport.Transport, len(ids))
	for _, id := range ids {
		nodes[id] = net.Node(id)
	}

	return &Simulator{servers: servers, nodes: nodes, network: net, order: ids}
}

// Network exposes the underlying fake network for drop-rate/duplicate-rate
// configuration and manual partitioning.
func (s *Simulator) Network() *transport.SimNetwork { return s.network }

// Server returns the server for id, for assertions in tests.
func (s *Simulator) Server(id uint64) *raft.Server { return s.servers[id] }

// Servers returns every server in deterministic id order, for CheckInvariants.
func (s *Simulator) Servers() []*raft.Server {
	out := make([]*raft.Server, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.servers[id])
	}
	return out
}

// FireElectionTimeout drives id's election timer once.
func (s *Simulator) FireElectionTimeout(id uint64) {
	s.step(id, raft.Event{Kind: raft.EventElectionTimeout})
}

// FireHeartbeatTimeout drives id's heartbeat timer once.
func (s *Simulator) FireHeartbeatTimeout(id uint64) {
	s.step(id, raft.Event{Kind: raft.EventHeartbeatTimeout})
}

// DeliverOne pops and delivers one pending message addressed to id. It
// reports whether there was a message to deliver.
func (s *Simulator) DeliverOne(id uint64) bool {
	env, ok := s.nodes[id].Poll()
	if !ok {
		return false
	}
	s.step(id, raft.Event{Kind: raft.EventMessage, Message: env.Message})
	return true
}

// DeliverAll drains every node's inbox, repeating until no node has
// pending messages (a single round can itself produce new messages, e.g. a
// vote response triggering AppendEntries broadcasts).
func (s *Simulator) DeliverAll() int {
	delivered := 0
	for {
		progressed := false
		for _, id := range s.order {
			for s.DeliverOne(id) {
				delivered++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return delivered
}

// Partition disables delivery to and from id.
func (s *Simulator) Partition(id uint64) { s.network.Disable(id) }

// Heal re-enables delivery to and from id.
func (s *Simulator) Heal(id uint64) { s.network.Enable(id) }

func (s *Simulator) step(id uint64, ev raft.Event) {
	server := s.servers[id]
	for _, env := range server.Step(ev) {
		s.nodes[id].Send(env.To, env.Message)
	}
}
