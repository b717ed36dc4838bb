package raft

// IsLeader implements spec §4.5/§9's confirmed-leadership read: callback
// fires with true once a majority of peers have acknowledged an
// AppendEntries round started at or after this call, or with false
// immediately if the server isn't leader, or later if it loses the role or
// observes a higher term before that majority is reached.
func (s *Server) IsLeader(callback func(isLeader bool)) {
	if s.role != Leader {
		callback(false)
		return
	}
	s.pendingReads = append(s.pendingReads, pendingRead{
		barrier:  s.leaderSt.barrier,
		callback: callback,
	})
}

// resolvePendingReads fires and drops every pending read whose barrier has
// been acknowledged by a majority of peers (the leader itself always
// counts, since its own log is authoritative as of the call).
func (s *Server) resolvePendingReads() {
	if len(s.pendingReads) == 0 {
		return
	}
	remaining := s.pendingReads[:0]
	for _, r := range s.pendingReads {
		if s.ackedByMajority(r.barrier) {
			r.callback(true)
		} else {
			remaining = append(remaining, r)
		}
	}
	s.pendingReads = remaining
}

func (s *Server) ackedByMajority(barrier uint64) bool {
	count := 1 // the leader itself
	for _, acked := range s.leaderSt.acked {
		if acked >= barrier {
			count++
		}
	}
	return count >= s.majority()
}
