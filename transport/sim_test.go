package transport

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkirilov/raftcore/raft"
)

func TestSimNetwork_DeliversMessageBetweenNodes(t *testing.T) {
	net := NewSimNetwork([]uint64{1, 2})
	n1 := net.Node(1)
	n2 := net.Node(2)

	n1.Send(2, raft.Message{Type: raft.MessageRequestVote, Term: 1, From: 1})

	_, ok := n1.Poll()
	require.False(t, ok)

	env, ok := n2.Poll()
	require.True(t, ok)
	require.Equal(t, uint64(2), env.To)
	require.Equal(t, uint64(1), env.Message.From)

	_, ok = n2.Poll()
	require.False(t, ok)
}

func TestSimNetwork_DisabledNodeDropsInboundAndOutbound(t *testing.T) {
	net := NewSimNetwork([]uint64{1, 2})
	n1 := net.Node(1)
	n2 := net.Node(2)

	net.Disable(2)
	n1.Send(2, raft.Message{Type: raft.MessageRequestVote})
	_, ok := n2.Poll()
	require.False(t, ok, "disabled destination must not receive")

	net.Enable(2)
	net.Disable(1)
	n1.Send(2, raft.Message{Type: raft.MessageRequestVote})
	_, ok = n2.Poll()
	require.False(t, ok, "disabled sender must not deliver")

	net.Enable(1)
	n1.Send(2, raft.Message{Type: raft.MessageRequestVote})
	_, ok = n2.Poll()
	require.True(t, ok)
}

func TestSimNetwork_DropRateZeroDeliversEverything(t *testing.T) {
	net := NewSimNetwork([]uint64{1, 2}).WithDropRate(0)
	n1 := net.Node(1)
	n2 := net.Node(2)

	for i := 0; i < 20; i++ {
		n1.Send(2, raft.Message{Type: raft.MessageRequestVote, Term: uint64(i)})
	}

	count := 0
	for {
		if _, ok := n2.Poll(); !ok {
			break
		}
		count++
	}
	require.Equal(t, 20, count)
}

func TestSimNetwork_DropRateOneDeliversNothing(t *testing.T) {
	net := NewSimNetwork([]uint64{1, 2}).WithDropRate(1)
	net.Seed(42)
	n1 := net.Node(1)
	n2 := net.Node(2)

	for i := 0; i < 20; i++ {
		n1.Send(2, raft.Message{Type: raft.MessageRequestVote, Term: uint64(i)})
	}

	_, ok := n2.Poll()
	require.False(t, ok)
}
