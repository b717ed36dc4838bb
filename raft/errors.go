package raft

import "fmt"

// InvariantViolation marks a bug, not an expected protocol outcome: a log
// hole, two self-reported leaders in the same term, a commit index past the
// end of the log. Per spec, these are fatal — the server must crash rather
// than attempt to recover from a state the algorithm never predicts.
type InvariantViolation struct {
	Node    uint64
	Message string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("raft: invariant violated on node %d: %s", e.Node, e.Message)
}

func (s *Server) invariantViolation(format string, args ...interface{}) {
	panic(&InvariantViolation{Node: s.id, Message: fmt.Sprintf(format, args...)})
}
