package raft

import (
	"sort"
	"time"
)

// Logger is the narrow logging surface the engine depends on (grounded on
// gyuho-db/raft's Logger interface), backed in practice by zap. The engine
// never writes to stdout/stderr directly.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Warnf(string, ...interface{})  {}

// NoopLogger returns a Logger that discards everything, for callers (tests,
// transports) that don't need one wired up.
func NoopLogger() Logger { return noopLogger{} }

// Config carries the static, load-time parameters for one Server (spec §6).
type Config struct {
	ID      uint64
	Peers   []uint64 // includes ID
	Logger  Logger
	Restored struct {
		Term     uint64
		VotedFor uint64
		Log      []Entry
	}
	ElectionTimeout ElectionTimeoutFunc
}

// Server owns one Raft node's log, persistent/volatile state, and (while
// leader) per-follower progress tables. It exclusively owns this data; the
// only way another server can affect it is by sending a Message through
// Step. See package doc for the pure event-step contract.
type Server struct {
	id    uint64
	peers []uint64 // all ids in the cluster, including id

	log Logger

	role Role

	persistent persistentState
	volatile   volatileState
	leaderSt   leaderState

	electionTimeout ElectionTimeoutFunc

	pendingReads []pendingRead
}

type pendingRead struct {
	barrier  uint64
	callback func(isLeader bool)
}

// NewServer constructs a Server from Config, seeding persistent state from
// Config.Restored (as returned by store.Store.Load on restart; zero values
// mean "fresh cluster member").
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.ElectionTimeout == nil {
		cfg.ElectionTimeout = RandomElectionTimeout(defaultElectionMin, defaultElectionMax)
	}

	s := &Server{
		id:              cfg.ID,
		peers:           append([]uint64(nil), cfg.Peers...),
		log:             cfg.Logger,
		role:            Follower,
		electionTimeout: cfg.ElectionTimeout,
		persistent: persistentState{
			currentTerm: cfg.Restored.Term,
			votedFor:    cfg.Restored.VotedFor,
			log:         NewLog(cfg.Restored.Log),
		},
		volatile: volatileState{
			commitIndex: NoIndex,
		},
	}
	return s
}

// EventKind discriminates the Event tagged union driving Step.
type EventKind int

const (
	EventMessage EventKind = iota
	EventElectionTimeout
	EventHeartbeatTimeout
)

// Event is the single entry point's input union (spec §9).
type Event struct {
	Kind    EventKind
	Message Message // populated when Kind == EventMessage
}

// Step dispatches one event to its pure handler and returns the outgoing
// messages produced. It never blocks and never performs I/O.
func (s *Server) Step(ev Event) []Envelope {
	switch ev.Kind {
	case EventMessage:
		return s.handleMessage(ev.Message)
	case EventElectionTimeout:
		return s.onElectionTimeout()
	case EventHeartbeatTimeout:
		return s.onHeartbeatTimeout()
	default:
		s.invariantViolation("unknown event kind %d", ev.Kind)
		return nil
	}
}

// handleMessage applies the universal term rule (spec §4.2) before
// dispatching to the message-specific handler.
func (s *Server) handleMessage(msg Message) []Envelope {
	if msg.Term > s.persistent.currentTerm {
		s.becomeFollower(msg.Term)
	} else if msg.Term < s.persistent.currentTerm {
		return s.rejectStaleMessage(msg)
	}

	switch msg.Type {
	case MessageRequestVote:
		return s.handleRequestVote(msg)
	case MessageRequestVoteResponse:
		return s.handleRequestVoteResponse(msg)
	case MessageAppendEntries:
		return s.handleAppendEntries(msg)
	case MessageAppendEntriesResponse:
		return s.handleAppendEntriesResponse(msg)
	default:
		s.invariantViolation("unknown message type %d", msg.Type)
		return nil
	}
}

// rejectStaleMessage answers a stale request with the current term so the
// stale sender can update itself; stale responses are silently dropped
// (spec §4.2 universal rule).
func (s *Server) rejectStaleMessage(msg Message) []Envelope {
	switch msg.Type {
	case MessageRequestVote:
		return []Envelope{{To: msg.From, Message: Message{
			Type: MessageRequestVoteResponse,
			Term: s.persistent.currentTerm,
			From: s.id,
		}}}
	case MessageAppendEntries:
		return []Envelope{{To: msg.From, Message: Message{
			Type:       MessageAppendEntriesResponse,
			Term:       s.persistent.currentTerm,
			From:       s.id,
			Success:    false,
			MatchIndex: NoIndex,
		}}}
	default:
		// Stale responses carry no reply obligation.
		return nil
	}
}

// becomeFollower implements the "any -> Follower" transition (spec §4.2):
// observing a higher term resets vote state and role regardless of the
// server's current role.
func (s *Server) becomeFollower(term uint64) {
	s.persistent.currentTerm = term
	s.persistent.votedFor = NoVote
	s.role = Follower
	s.failPendingReads()
}

func (s *Server) failPendingReads() {
	for _, r := range s.pendingReads {
		r.callback(false)
	}
	s.pendingReads = nil
}

// CommitIndex is the monotonically non-decreasing value apply.Binding
// watches (spec §4.6).
func (s *Server) CommitIndex() int64 { return s.volatile.commitIndex }

// ID returns the server's own id.
func (s *Server) ID() uint64 { return s.id }

// Role reports the server's current role.
func (s *Server) Role() Role { return s.role }

// Term reports the current term.
func (s *Server) Term() uint64 { return s.persistent.currentTerm }

// LogEntry gives read-only access to the entries at and below lastApplied/
// commitIndex for apply.Binding. Index must be in range.
func (s *Server) LogEntry(idx int64) Entry { return s.persistent.log.At(idx) }

// Persistent exposes exactly what store.Store needs to durably save, in
// the shape store.Store.Save expects (spec §6 persistence contract).
func (s *Server) Persistent() (term uint64, votedFor uint64, log []Entry) {
	return s.persistent.currentTerm, s.persistent.votedFor, s.persistent.log.All()
}

// NextElectionTimeout draws the next election interval from the
// ElectionTimeoutFunc supplied at construction. The engine never calls
// this itself (it has no timers); driver.Runtime calls it to arm its
// election timer at startup and again, with a fresh draw, after every
// election-timeout fire.
func (s *Server) NextElectionTimeout() time.Duration {
	return s.electionTimeout()
}

func (s *Server) peerCount() int { return len(s.peers) }

func (s *Server) majority() int { return s.peerCount()/2 + 1 }

func (s *Server) otherPeers() []uint64 {
	out := make([]uint64, 0, len(s.peers)-1)
	for _, p := range s.peers {
		if p != s.id {
			out = append(out, p)
		}
	}
	return out
}

// sortedMatchIndex returns match_index across the whole cluster, including
// the leader's own entry (kept up to date in leaderSt.matchIndex by
// ClientAppend and becomeLeader, same as every follower's), sorted
// descending. Used by advanceCommitIndex (spec §4.4), grounded on
// original_source/lucas/raft/raft_core.py's compute_majority_match_index.
func (s *Server) sortedMatchIndex() []int64 {
	out := make([]int64, 0, s.peerCount())
	out = append(out, s.leaderSt.matchIndex[s.id])
	for _, p := range s.otherPeers() {
		out = append(out, s.leaderSt.matchIndex[p])
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}

const (
	defaultElectionMin = defaultHeartbeat * 3
	defaultElectionMax = defaultHeartbeat * 6
	defaultHeartbeat   = 50 * time.Millisecond
)
