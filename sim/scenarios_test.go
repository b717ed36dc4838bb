package sim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkirilov/raftcore/raft"
)

// Figure 7/8 scenario 4: election with fresher log wins, and is denied by a
// peer with a higher last-log term. Grounded on
// original_source/lucas/raft/test_raft_core.py's equivalent vote-guard
// scenarios and spec §8 scenario 4.
func TestScenario_ElectionWithFresherLogWins(t *testing.T) {
	a := raft.NewServer(raft.Config{ID: 1, Peers: []uint64{1, 2, 3}, Restored: struct {
		Term     uint64
		VotedFor uint64
		Log      []raft.Entry
	}{Term: 3, Log: []raft.Entry{{Term: 1}, {Term: 1}, {Term: 2}, {Term: 3}, {Term: 3}}}})

	b := raft.NewServer(raft.Config{ID: 2, Peers: []uint64{1, 2, 3}, Restored: struct {
		Term     uint64
		VotedFor uint64
		Log      []raft.Entry
	}{Term: 3, Log: []raft.Entry{{Term: 1}, {Term: 1}, {Term: 2}, {Term: 3}}}})

	c := raft.NewServer(raft.Config{ID: 3, Peers: []uint64{1, 2, 3}, Restored: struct {
		Term     uint64
		VotedFor uint64
		Log      []raft.Entry
	}{Term: 3, Log: []raft.Entry{{Term: 1}, {Term: 4}}}})

	envs := a.Step(raft.Event{Kind: raft.EventElectionTimeout})
	require.Len(t, envs, 2)

	var requestVote raft.Message
	for _, env := range envs {
		requestVote = env.Message
		break
	}

	bResp := b.Step(raft.Event{Kind: raft.EventMessage, Message: requestVote})
	require.Len(t, bResp, 1)
	require.True(t, bResp[0].Message.VoteGranted, "B's log is no more up to date than A's, vote must be granted")

	cResp := c.Step(raft.Event{Kind: raft.EventMessage, Message: requestVote})
	require.Len(t, cResp, 1)
	require.False(t, cResp[0].Message.VoteGranted, "C's last log term is higher than A's, vote must be denied")
}

// Figure-8 safety (spec §8 scenario 5): a leader may not treat an
// inherited, lower-term entry as committed purely by replication count;
// commit only advances once the leader also replicates a current-term
// entry to a majority, and then covers both in one jump. Driven through
// Simulator's real message flow rather than hand-built Step calls.
func TestScenario_Figure8SafetyWithholdsCommitUntilCurrentTermEntry(t *testing.T) {
	restored := func(term uint64, log []raft.Entry) struct {
		Term     uint64
		VotedFor uint64
		Log      []raft.Entry
	} {
		return struct {
			Term     uint64
			VotedFor uint64
			Log      []raft.Entry
		}{Term: term, Log: log}
	}

	oldEntry := []raft.Entry{{Term: 2, Command: []byte("old")}}
	servers := map[uint64]*raft.Server{
		1: raft.NewServer(raft.Config{ID: 1, Peers: []uint64{1, 2, 3}, Restored: restored(3, oldEntry)}),
		2: raft.NewServer(raft.Config{ID: 2, Peers: []uint64{1, 2, 3}, Restored: restored(3, oldEntry)}),
		3: raft.NewServer(raft.Config{ID: 3, Peers: []uint64{1, 2, 3}, Restored: restored(3, oldEntry)}),
	}
	s := NewSimulator(servers)

	s.FireElectionTimeout(1)
	s.DeliverAll()
	require.Equal(t, raft.Leader, s.Server(1).Role())
	require.Equal(t, uint64(4), s.Server(1).Term())

	s.FireHeartbeatTimeout(1)
	s.DeliverAll()
	require.Equal(t, int64(raft.NoIndex), s.Server(1).CommitIndex(),
		"inherited term-2 entry must not be committed by term-4 leader on replication count alone")

	result, ok := s.Server(1).ClientAppend([]byte("new"))
	require.True(t, ok)
	require.Equal(t, int64(1), result.Index)

	s.FireHeartbeatTimeout(1)
	s.DeliverAll()
	require.Equal(t, int64(1), s.Server(1).CommitIndex(),
		"once a current-term entry reaches a majority, commit must jump to cover it and everything before it")

	require.NoError(t, CheckInvariants(s.Servers(), nil))
}

// Spec §8 scenario 6: a follower that heard from the leader this interval
// ignores its own election timeout firing.
func TestScenario_HeartbeatPreventsSpuriousElection(t *testing.T) {
	servers := map[uint64]*raft.Server{
		1: raft.NewServer(raft.Config{ID: 1, Peers: []uint64{1, 2, 3}}),
		2: raft.NewServer(raft.Config{ID: 2, Peers: []uint64{1, 2, 3}}),
		3: raft.NewServer(raft.Config{ID: 3, Peers: []uint64{1, 2, 3}}),
	}
	s := NewSimulator(servers)

	s.FireElectionTimeout(1)
	s.DeliverAll()
	require.Equal(t, raft.Leader, s.Server(1).Role())

	s.FireHeartbeatTimeout(1)
	s.DeliverAll()

	termBefore := s.Server(2).Term()
	s.FireElectionTimeout(2)
	require.Equal(t, raft.Follower, s.Server(2).Role())
	require.Equal(t, termBefore, s.Server(2).Term(), "a suppressed election timeout must not bump the term")
}

// Partitioning a follower away and healing it must not violate any
// invariant, and the healed follower must catch back up once heartbeats
// resume reaching it.
func TestScenario_PartitionAndHealPreservesInvariants(t *testing.T) {
	servers := map[uint64]*raft.Server{
		1: raft.NewServer(raft.Config{ID: 1, Peers: []uint64{1, 2, 3}}),
		2: raft.NewServer(raft.Config{ID: 2, Peers: []uint64{1, 2, 3}}),
		3: raft.NewServer(raft.Config{ID: 3, Peers: []uint64{1, 2, 3}}),
	}
	s := NewSimulator(servers)

	s.FireElectionTimeout(1)
	s.DeliverAll()
	require.NoError(t, CheckInvariants(s.Servers(), nil))

	s.Partition(3)
	_, ok := s.Server(1).ClientAppend([]byte("a"))
	require.True(t, ok)

	s.FireHeartbeatTimeout(1)
	s.DeliverAll()
	require.NoError(t, CheckInvariants(s.Servers(), nil))
	require.Equal(t, int64(0), s.Server(1).CommitIndex(), "majority reached via the leader and the still-connected follower alone")

	s.Heal(3)
	s.FireHeartbeatTimeout(1)
	s.DeliverAll()
	require.NoError(t, CheckInvariants(s.Servers(), nil))
	require.Equal(t, int64(0), s.Server(3).CommitIndex(), "healed follower must catch up to the leader's commit index")
}
