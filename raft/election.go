package raft

// onElectionTimeout implements the Follower/Candidate -> Candidate
// transition (spec §4.2): if the server already heard from a leader this
// interval, the timeout is a no-op; otherwise it starts (or restarts) an
// election in a new term.
func (s *Server) onElectionTimeout() []Envelope {
	if s.role == Leader {
		// Leaders don't hold elections; a stray timer fire is ignored.
		return nil
	}
	if s.volatile.heardFromLeader {
		s.volatile.heardFromLeader = false
		return nil
	}
	return s.startElection()
}

func (s *Server) startElection() []Envelope {
	s.persistent.currentTerm++
	s.persistent.votedFor = s.id
	s.role = Candidate
	s.leaderSt.votesReceived = map[uint64]bool{s.id: true}
	s.volatile.heardFromLeader = false

	lastTerm := s.persistent.log.LastTerm()
	lastIndex := s.persistent.log.LastIndex()

	out := make([]Envelope, 0, len(s.otherPeers()))
	for _, peer := range s.otherPeers() {
		out = append(out, Envelope{To: peer, Message: Message{
			Type:         MessageRequestVote,
			Term:         s.persistent.currentTerm,
			From:         s.id,
			LastLogIndex: lastIndex,
			LastLogTerm:  lastTerm,
		}})
	}
	return out
}

// handleRequestVote implements spec §4.3's vote-granting guard. The
// universal term rule has already run in handleMessage, so msg.Term ==
// s.persistent.currentTerm here.
func (s *Server) handleRequestVote(msg Message) []Envelope {
	grant := s.canGrantVote(msg)
	if grant {
		s.persistent.votedFor = msg.From
		s.volatile.heardFromLeader = true
	}
	return []Envelope{{To: msg.From, Message: Message{
		Type:        MessageRequestVoteResponse,
		Term:        s.persistent.currentTerm,
		From:        s.id,
		VoteGranted: grant,
	}}}
}

func (s *Server) canGrantVote(msg Message) bool {
	if s.persistent.votedFor != NoVote && s.persistent.votedFor != msg.From {
		return false
	}
	myLastTerm := s.persistent.log.LastTerm()
	myLastIndex := s.persistent.log.LastIndex()
	if msg.LastLogTerm != myLastTerm {
		return msg.LastLogTerm > myLastTerm
	}
	return msg.LastLogIndex >= myLastIndex
}

// handleRequestVoteResponse implements spec §4.3's candidate bookkeeping
// and the Candidate -> Leader transition.
func (s *Server) handleRequestVoteResponse(msg Message) []Envelope {
	if s.role != Candidate {
		return nil
	}
	if !msg.VoteGranted {
		return nil
	}
	s.leaderSt.votesReceived[msg.From] = true
	if len(s.leaderSt.votesReceived) < s.majority() {
		return nil
	}
	return s.becomeLeader()
}

func (s *Server) becomeLeader() []Envelope {
	s.role = Leader
	lastIndex := s.persistent.log.LastIndex()
	s.leaderSt.nextIndex = make(map[uint64]int64, len(s.peers))
	s.leaderSt.matchIndex = make(map[uint64]int64, len(s.peers))
	s.leaderSt.acked = make(map[uint64]uint64, len(s.peers))
	s.leaderSt.matchIndex[s.id] = lastIndex
	for _, peer := range s.otherPeers() {
		s.leaderSt.nextIndex[peer] = lastIndex + 1
		s.leaderSt.matchIndex[peer] = NoIndex
	}
	s.leaderSt.barrier = 0
	s.log.Infof("node %d became leader for term %d", s.id, s.persistent.currentTerm)
	return s.broadcastAppendEntries()
}
