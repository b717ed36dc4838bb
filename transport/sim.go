package transport

import (
	"math/rand"
	"sync"

	"github.com/dkirilov/raftcore/raft"
)

// SimNetwork is an in-memory, lossy, unordered, duplicating-capable
// datagram network shared by every simulated node, grounded on the
// per-node-mailbox-plus-drop-policy pattern in
// gyuho-db/raft/rafttest/rafttest_fake_network_node.go, adapted to the
// simpler Send/Poll shape spec §6 asks for.
type SimNetwork struct {
	mu sync.Mutex

	inboxes map[uint64][]raft.Envelope
	enabled map[uint64]bool

	dropRate      float64
	duplicateRate float64
	rng           *rand.Rand
}

// NewSimNetwork creates a network spanning nodeIDs, all initially enabled.
func NewSimNetwork(nodeIDs []uint64) *SimNetwork {
	n := &SimNetwork{
		inboxes: make(map[uint64][]raft.Envelope),
		enabled: make(map[uint64]bool, len(nodeIDs)),
		rng:     rand.New(rand.NewSource(1)),
	}
	for _, id := range nodeIDs {
		n.enabled[id] = true
	}
	return n
}

// WithDropRate sets the fraction of messages silently dropped in transit.
func (n *SimNetwork) WithDropRate(rate float64) *SimNetwork {
	n.dropRate = rate
	return n
}

// WithDuplicateRate sets the fraction of delivered messages additionally
// duplicated once.
func (n *SimNetwork) WithDuplicateRate(rate float64) *SimNetwork {
	n.duplicateRate = rate
	return n
}

// Seed reseeds the network's drop/duplicate decisions for reproducibility.
func (n *SimNetwork) Seed(seed int64) {
	n.rng = rand.New(rand.NewSource(seed))
}

// Node returns a Transport bound to id, backed by this shared network.
func (n *SimNetwork) Node(id uint64) Transport {
	return &simNodeTransport{net: n, self: id}
}

// Enable re-enables delivery to and from id (spec §6's partition toggle).
func (n *SimNetwork) Enable(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled[id] = true
}

// Disable simulates a partition: messages to or from id are dropped until
// Enable is called again.
func (n *SimNetwork) Disable(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled[id] = false
}

func (n *SimNetwork) send(from, dst uint64, msg raft.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.enabled[from] || !n.enabled[dst] {
		return
	}
	if n.dropRate > 0 && n.rng.Float64() < n.dropRate {
		return
	}

	env := raft.Envelope{To: dst, Message: msg}
	n.inboxes[dst] = append(n.inboxes[dst], env)
	if n.duplicateRate > 0 && n.rng.Float64() < n.duplicateRate {
		n.inboxes[dst] = append(n.inboxes[dst], env)
	}
}

// poll pops one arbitrary (oldest-first, but reordering is permitted by
// spec §2.2 so callers must not depend on order) envelope addressed to id.
func (n *SimNetwork) poll(id uint64) (raft.Envelope, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	inbox := n.inboxes[id]
	if len(inbox) == 0 {
		return raft.Envelope{}, false
	}
	env := inbox[0]
	n.inboxes[id] = inbox[1:]
	return env, true
}

// Reorder shuffles every node's pending inbox. Useful in tests exploring
// event-ordering sensitivity (spec §8).
func (n *SimNetwork) Reorder() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, inbox := range n.inboxes {
		n.rng.Shuffle(len(inbox), func(i, j int) { inbox[i], inbox[j] = inbox[j], inbox[i] })
		n.inboxes[id] = inbox
	}
}

type simNodeTransport struct {
	net  *SimNetwork
	self uint64
}

func (t *simNodeTransport) Send(dst uint64, msg raft.Message) {
	t.net.send(t.self, dst, msg)
}

func (t *simNodeTransport) Poll() (raft.Envelope, bool) {
	return t.net.poll(t.self)
}

func (t *simNodeTransport) Enable(id uint64)  { t.net.Enable(id) }
func (t *simNodeTransport) Disable(id uint64) { t.net.Disable(id) }
