package raft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func makeLeader(t *testing.T, id uint64, peers []uint64, voters ...uint64) *Server {
	s := newTestServer(id, peers)
	s.Step(Event{Kind: EventElectionTimeout})
	for _, v := range voters {
		s.Step(Event{Kind: EventMessage, Message: Message{
			Type: MessageRequestVoteResponse, Term: s.Term(), From: v, VoteGranted: true,
		}})
	}
	require.Equal(t, Leader, s.Role())
	return s
}

func TestReplication_SuccessAdvancesProgressAndCommit(t *testing.T) {
	s := makeLeader(t, 1, []uint64{1, 2, 3}, 2)
	s.ClientAppend([]byte("a"))

	s.Step(Event{Kind: EventMessage, Message: Message{
		Type: MessageAppendEntriesResponse, Term: s.Term(), From: 2, Success: true, MatchIndex: 0,
	}})
	// Only 1 other ack (self + peer2 = 2 of 3): majority reached, and the
	// entry is from the current term, so it commits.
	require.Equal(t, int64(0), s.CommitIndex())
}

func TestReplication_FailureDecrementsNextIndexAndRetries(t *testing.T) {
	s := makeLeader(t, 1, []uint64{1, 2, 3}, 2)
	for i := 0; i < 5; i++ {
		s.ClientAppend([]byte{byte(i)})
	}
	s.leaderSt.nextIndex[3] = 5

	out := s.Step(Event{Kind: EventMessage, Message: Message{
		Type: MessageAppendEntriesResponse, Term: s.Term(), From: 3, Success: false,
	}})

	require.Equal(t, int64(4), s.leaderSt.nextIndex[3])
	require.Len(t, out, 1)
	require.Equal(t, MessageAppendEntries, out[0].Message.Type)
	require.Equal(t, uint64(3), out[0].To)
}

func TestReplication_Figure8SafetyWithholdsCommitUntilCurrentTermEntry(t *testing.T) {
	// A term-2 leader replicates entry E (index 0) to a minority (itself
	// only) then crashes. A term-4 leader never saw E. Even once E (or any
	// prior-term entry) is replicated to a majority by match_index alone,
	// commit_index must not move until a current-term entry is also
	// majority-replicated.
	s := newTestServer(1, []uint64{1, 2, 3})
	s.persistent.currentTerm = 4
	s.persistent.log.entries = entries(2) // E, from term 2, never committed
	s.role = Leader
	s.leaderSt.nextIndex = map[uint64]int64{2: 1, 3: 1}
	s.leaderSt.matchIndex = map[uint64]int64{2: 0, 3: 0}
	s.leaderSt.acked = map[uint64]uint64{}

	// Both peers report having replicated E (index 0, term 2): a majority
	// by count, but term 2 != current term 4.
	s.Step(Event{Kind: EventMessage, Message: Message{Type: MessageAppendEntriesResponse, Term: 4, From: 2, Success: true, MatchIndex: 0}})
	s.Step(Event{Kind: EventMessage, Message: Message{Type: MessageAppendEntriesResponse, Term: 4, From: 3, Success: true, MatchIndex: 0}})
	require.Equal(t, NoIndex, s.CommitIndex(), "must not commit a prior-term entry by replication count alone")

	// The leader now appends its own term-4 entry at index 1 and it gets
	// majority-replicated: this implicitly commits both index 0 and 1.
	s.ClientAppend([]byte("current-term-entry"))
	s.Step(Event{Kind: EventMessage, Message: Message{Type: MessageAppendEntriesResponse, Term: 4, From: 2, Success: true, MatchIndex: 1}})
	require.Equal(t, int64(1), s.CommitIndex())
}

func TestReplication_HeartbeatSuppressesElectionTimeout(t *testing.T) {
	leader := makeLeader(t, 1, []uint64{1, 2, 3}, 2)
	follower := newTestServer(2, []uint64{1, 2, 3})

	heartbeats := leader.Step(Event{Kind: EventHeartbeatTimeout})
	require.NotEmpty(t, heartbeats)

	for _, env := range heartbeats {
		if env.To != follower.ID() {
			continue
		}
		follower.Step(Event{Kind: EventMessage, Message: env.Message})
	}

	out := follower.Step(Event{Kind: EventElectionTimeout})
	require.Empty(t, out, "a follower that heard a heartbeat this interval must not start an election")
}

func TestIsLeader_FiresTrueOnceMajorityAcksCurrentBarrier(t *testing.T) {
	s := makeLeader(t, 1, []uint64{1, 2, 3}, 2)

	var result *bool
	s.IsLeader(func(ok bool) { result = &ok })
	require.Nil(t, result, "must not resolve before any ack at or after this call's barrier")

	s.Step(Event{Kind: EventHeartbeatTimeout})
	s.Step(Event{Kind: EventMessage, Message: Message{
		Type: MessageAppendEntriesResponse, Term: s.Term(), From: 2, Success: true, MatchIndex: NoIndex,
	}})

	require.NotNil(t, result)
	require.True(t, *result)
}

func TestIsLeader_FiresFalseOnRoleLoss(t *testing.T) {
	s := makeLeader(t, 1, []uint64{1, 2, 3}, 2)

	var result *bool
	s.IsLeader(func(ok bool) { result = &ok })

	s.Step(Event{Kind: EventMessage, Message: Message{Type: MessageAppendEntries, Term: s.Term() + 1, From: 2, PrevIndex: NoIndex, PrevTerm: NoIndex, LeaderCommit: NoIndex}})

	require.NotNil(t, result)
	require.False(t, *result)
}

func TestNewServer_DefaultElectionTimeoutUsedWhenNoneInjected(t *testing.T) {
	s := NewServer(Config{ID: 1, Peers: []uint64{1, 2, 3}})
	require.NotNil(t, s.electionTimeout)
	d := s.electionTimeout()
	require.GreaterOrEqual(t, d, defaultElectionMinDuration)
	require.Less(t, d, defaultElectionMaxDuration)
}

const (
	defaultElectionMinDuration = time.Duration(defaultElectionMin)
	defaultElectionMaxDuration = time.Duration(defaultElectionMax)
)
