package driver

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkirilov/raftcore/apply"
	"github.com/dkirilov/raftcore/raft"
	"github.com/dkirilov/raftcore/store"
	"github.com/dkirilov/raftcore/transport"
)

func newTestRuntime(t *testing.T, id uint64, net *transport.SimNetwork) (*Runtime, *store.BoltStore, *apply.KVStore) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "raft.db")
	st, err := store.OpenBoltStore(path)
	require.NoError(t, err)

	server := raft.NewServer(raft.Config{
		ID:              id,
		Peers:           []uint64{1, 2, 3},
		ElectionTimeout: raft.RandomElectionTimeout(20*time.Millisecond, 40*time.Millisecond),
	})
	kv := apply.NewKVStore()
	binding := apply.NewBinding(server, kv)

	rt := NewRuntime(server, net.Node(id), st, binding, 8*time.Millisecond, nil)
	return rt, st, kv
}

func TestRuntime_ElectsLeaderAndReplicatesClientAppend(t *testing.T) {
	net := transport.NewSimNetwork([]uint64{1, 2, 3})

	rt1, st1, kv1 := newTestRuntime(t, 1, net)
	rt2, st2, kv2 := newTestRuntime(t, 2, net)
	rt3, st3, kv3 := newTestRuntime(t, 3, net)
	defer st1.Close()
	defer st2.Close()
	defer st3.Close()

	go rt1.Run()
	go rt2.Run()
	go rt3.Run()
	defer rt1.Stop()
	defer rt2.Stop()
	defer rt3.Stop()

	runtimes := []*Runtime{rt1, rt2, rt3}
	var leader *Runtime
	require.Eventually(t, func() bool {
		for _, rt := range runtimes {
			if rt.server.Role() == raft.Leader {
				leader = rt
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "expected a leader to emerge")

	encoded, err := apply.Encode(apply.NewSetCommand("a", "1"))
	require.NoError(t, err)

	_, ok := leader.ClientAppend(encoded)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, found := kv1.Get("a")
		return found
	}, 2*time.Second, 5*time.Millisecond)

	for _, kv := range []*apply.KVStore{kv1, kv2, kv3} {
		require.Eventually(t, func() bool {
			v, found := kv.Get("a")
			return found && v == "1"
		}, 2*time.Second, 5*time.Millisecond)
	}
}
