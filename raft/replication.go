package raft

// onHeartbeatTimeout fires on the leader's fixed shorter interval (spec
// §5). It is a no-op for non-leaders (a stray timer fire after a role
// change).
func (s *Server) onHeartbeatTimeout() []Envelope {
	if s.role != Leader {
		return nil
	}
	return s.broadcastAppendEntries()
}

// broadcastAppendEntries implements the leader send policy of spec §4.4,
// batching every un-replicated entry into the message rather than probing
// (spec §9's open question, resolved in favor of batching). Each call also
// advances the read-barrier round (spec §4.5).
func (s *Server) broadcastAppendEntries() []Envelope {
	s.leaderSt.barrier++
	out := make([]Envelope, 0, len(s.otherPeers()))
	for _, peer := range s.otherPeers() {
		out = append(out, Envelope{To: peer, Message: s.appendEntriesFor(peer)})
	}
	return out
}

func (s *Server) appendEntriesFor(peer uint64) Message {
	nextIndex := s.leaderSt.nextIndex[peer]
	prevIndex := nextIndex - 1
	prevTerm := s.persistent.log.TermAt(prevIndex)
	return Message{
		Type:         MessageAppendEntries,
		Term:         s.persistent.currentTerm,
		From:         s.id,
		PrevIndex:    prevIndex,
		PrevTerm:     prevTerm,
		Entries:      s.persistent.log.Slice(nextIndex),
		LeaderCommit: s.volatile.commitIndex,
	}
}

// handleAppendEntries implements the follower side of spec §4.4. The
// universal term rule has already run; a message reaching here with a
// lower term than ours would have short-circuited in rejectStaleMessage,
// so by construction msg.Term >= s.persistent.currentTerm here, and the
// Candidate -> Follower transition (spec §4.2, "received AppendEntries
// with term == current_term") applies whenever we're not already a
// follower.
func (s *Server) handleAppendEntries(msg Message) []Envelope {
	s.role = Follower
	s.volatile.heardFromLeader = true

	ok := s.persistent.log.AppendEntries(msg.PrevIndex, msg.PrevTerm, msg.Entries)
	if !ok {
		return []Envelope{{To: msg.From, Message: Message{
			Type:       MessageAppendEntriesResponse,
			Term:       s.persistent.currentTerm,
			From:       s.id,
			Success:    false,
			MatchIndex: NoIndex,
		}}}
	}

	matchIndex := msg.PrevIndex + int64(len(msg.Entries))
	newCommit := msg.LeaderCommit
	if matchIndex < newCommit {
		newCommit = matchIndex
	}
	if newCommit > s.volatile.commitIndex {
		s.volatile.commitIndex = newCommit
	}
	s.checkCommitInvariant()

	return []Envelope{{To: msg.From, Message: Message{
		Type:       MessageAppendEntriesResponse,
		Term:       s.persistent.currentTerm,
		From:       s.id,
		Success:    true,
		MatchIndex: matchIndex,
	}}}
}

// handleAppendEntriesResponse implements the leader side of spec §4.4: it
// ignores stale responses (role changed, or term mismatch — the universal
// rule already filtered out a lower term, and a higher term would have
// demoted us to Follower before reaching here, so only an exact match
// survives), updates progress, and recomputes the commit index.
func (s *Server) handleAppendEntriesResponse(msg Message) []Envelope {
	if s.role != Leader {
		return nil
	}

	if msg.Success {
		if msg.MatchIndex > s.leaderSt.matchIndex[msg.From] {
			s.leaderSt.matchIndex[msg.From] = msg.MatchIndex
		}
		s.leaderSt.nextIndex[msg.From] = s.leaderSt.matchIndex[msg.From] + 1
		if s.leaderSt.barrier > s.leaderSt.acked[msg.From] {
			s.leaderSt.acked[msg.From] = s.leaderSt.barrier
		}
		s.advanceCommitIndex()
		s.resolvePendingReads()
		return nil
	}

	if s.leaderSt.nextIndex[msg.From] > 0 {
		s.leaderSt.nextIndex[msg.From]--
	}
	return []Envelope{{To: msg.From, Message: s.appendEntriesFor(msg.From)}}
}

// advanceCommitIndex implements spec §4.4's commit rule, including the
// Figure-8 safety constraint that a leader may only commit by
// replication-count a log entry from its own current term.
func (s *Server) advanceCommitIndex() {
	matches := s.sortedMatchIndex()
	candidate := matches[s.majority()-1]
	if candidate <= s.volatile.commitIndex {
		return
	}
	if s.persistent.log.TermAt(candidate) != int64(s.persistent.currentTerm) {
		return
	}
	s.volatile.commitIndex = candidate
	s.checkCommitInvariant()
}

func (s *Server) checkCommitInvariant() {
	if s.volatile.commitIndex > s.persistent.log.LastIndex() {
		s.invariantViolation("commit index %d exceeds last log index %d", s.volatile.commitIndex, s.persistent.log.LastIndex())
	}
}

// ClientAppendResult is returned by ClientAppend on success (spec §4.5,
// supplemented per SPEC_FULL.md §3.1).
type ClientAppendResult struct {
	Index int64
	Term  uint64
}

// ClientAppend implements spec §4.5: a leader appends the command locally
// (always succeeds, by construction); a non-leader refuses. Replication to
// followers happens on the next heartbeat, per spec §4.4's explicit
// permission to batch rather than send per-append.
func (s *Server) ClientAppend(command []byte) (ClientAppendResult, bool) {
	if s.role != Leader {
		return ClientAppendResult{}, false
	}
	entry := Entry{Term: s.persistent.currentTerm, Command: command}
	prevIndex := s.persistent.log.LastIndex()
	prevTerm := s.persistent.log.LastTerm()
	if ok := s.persistent.log.AppendEntries(prevIndex, prevTerm, []Entry{entry}); !ok {
		s.invariantViolation("leader-local append_entries must always succeed")
	}
	s.leaderSt.matchIndex[s.id] = s.persistent.log.LastIndex()
	return ClientAppendResult{Index: s.persistent.log.LastIndex(), Term: s.persistent.currentTerm}, true
}
