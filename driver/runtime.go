// Package driver wires a raft.Server to real wall-clock timers and a real
// transport, funneling every timer fire, inbound message, and client
// request through a single goroutine's calls into the engine, so the
// "single-threaded event handler per server" scheduling model spec §5
// requires holds even though the process as a whole is concurrent:
// multiple HTTP handler goroutines and timers all feed requests in, but
// only Run's own goroutine ever touches raft.Server directly.
package driver

import (
	"time"

	"github.com/dkirilov/raftcore/apply"
	"github.com/dkirilov/raftcore/raft"
	"github.com/dkirilov/raftcore/store"
	"github.com/dkirilov/raftcore/transport"
)

// pollInterval is how often the runtime drains the transport's inbox.
const pollInterval = 5 * time.Millisecond

// Runtime is the real-clock, real-transport driver for one raft.Server.
type Runtime struct {
	server    *raft.Server
	transport transport.Transport
	store     store.Store
	binding   *apply.Binding
	log       raft.Logger

	heartbeatInterval time.Duration

	stop chan struct{}
	done chan struct{}

	// appendReqs and isLeaderReqs let HTTP handlers (or any other caller)
	// submit work to the server from a goroutine that isn't Run's, without
	// touching raft.Server directly: every request is replayed through
	// Run's select loop so the "single-threaded event handler per server"
	// rule (spec §5) holds even though the surrounding process is
	// concurrent.
	appendReqs   chan clientAppendRequest
	isLeaderReqs chan func(isLeader bool)
}

type clientAppendRequest struct {
	command []byte
	reply   chan clientAppendReply
}

type clientAppendReply struct {
	result raft.ClientAppendResult
	ok     bool
}

// NewRuntime builds a Runtime. heartbeatInterval comes from
// config.TimingConfig.HeartbeatInterval(); the election interval is
// whatever ElectionTimeoutFunc the server was constructed with.
func NewRuntime(server *raft.Server, tr transport.Transport, st store.Store, binding *apply.Binding, heartbeatInterval time.Duration, log raft.Logger) *Runtime {
	if log == nil {
		log = raft.NoopLogger()
	}
	return &Runtime{
		server:            server,
		transport:         tr,
		store:             st,
		binding:           binding,
		log:               log,
		heartbeatInterval: heartbeatInterval,
		stop:              make(chan struct{}),
		done:              make(chan struct{}),
		appendReqs:        make(chan clientAppendRequest),
		isLeaderReqs:      make(chan func(isLeader bool)),
	}
}

// Run drives the event loop until Stop is called. It blocks; call it from
// its own goroutine.
func (r *Runtime) Run() {
	defer close(r.done)

	electionTimer := time.NewTimer(r.server.NextElectionTimeout())
	heartbeatTicker := time.NewTicker(r.heartbeatInterval)
	pollTicker := time.NewTicker(pollInterval)
	defer electionTimer.Stop()
	defer heartbeatTicker.Stop()
	defer pollTicker.Stop()

	for {
		select {
		case <-r.stop:
			return

		case <-electionTimer.C:
			r.step(raft.Event{Kind: raft.EventElectionTimeout})
			electionTimer.Reset(r.server.NextElectionTimeout())

		case <-heartbeatTicker.C:
			r.step(raft.Event{Kind: raft.EventHeartbeatTimeout})

		case <-pollTicker.C:
			for {
				env, ok := r.transport.Poll()
				if !ok {
					break
				}
				r.step(raft.Event{Kind: raft.EventMessage, Message: env.Message})
			}

		case req := <-r.appendReqs:
			result, ok := r.server.ClientAppend(req.command)
			if ok {
				r.persist("client append")
				if r.binding != nil {
					r.binding.Advance()
				}
			}
			req.reply <- clientAppendReply{result: result, ok: ok}

		case callback := <-r.isLeaderReqs:
			r.server.IsLeader(callback)
		}
	}
}

// Stop signals Run to return and blocks until it has.
func (r *Runtime) Stop() {
	close(r.stop)
	<-r.done
}

// step runs ev through the engine, persists any resulting state change,
// ships outgoing envelopes, and advances the application binding. A
// persistence failure is fatal (spec §7): the runtime cannot honor a vote
// or an ack it can't recover after a crash, so it stops rather than
// continuing to serve requests on unsaved state.
func (r *Runtime) step(ev raft.Event) {
	envelopes := r.server.Step(ev)
	r.persist("event step")

	for _, env := range envelopes {
		r.transport.Send(env.To, env.Message)
	}

	if r.binding != nil {
		r.binding.Advance()
	}
}

// persist saves the server's current persistent state. A failure is fatal
// (spec §7): the runtime cannot honor a vote or an ack it can't recover
// after a crash, so it halts rather than continuing to serve requests on
// unsaved state.
func (r *Runtime) persist(reason string) {
	term, votedFor, log := r.server.Persistent()
	if err := r.store.Save(term, votedFor, log); err != nil {
		r.log.Warnf("driver: persistence failed after %s, halting: %v", reason, err)
		panic(err)
	}
}

// ClientAppend is the synchronous path a CLI or RPC handler calls to submit
// a command (spec §4.5). Callers run on their own goroutine (an HTTP
// handler, typically); the request is handed to Run's event-loop goroutine
// over a channel so raft.Server is still only ever touched from one
// goroutine (spec §5), and the caller blocks for the reply.
func (r *Runtime) ClientAppend(command []byte) (raft.ClientAppendResult, bool) {
	reply := make(chan clientAppendReply, 1)
	select {
	case r.appendReqs <- clientAppendRequest{command: command, reply: reply}:
	case <-r.done:
		return raft.ClientAppendResult{}, false
	}
	select {
	case rep := <-reply:
		return rep.result, rep.ok
	case <-r.done:
		return raft.ClientAppendResult{}, false
	}
}

// IsLeader exposes the engine's read barrier (spec §4.5) for linearizable
// reads; callback fires once the current leadership round is confirmed or
// refuted. The registration itself is handed to Run's goroutine for the
// same reason ClientAppend is; callback then fires from that goroutine once
// resolved.
func (r *Runtime) IsLeader(callback func(isLeader bool)) {
	select {
	case r.isLeaderReqs <- callback:
	case <-r.done:
		callback(false)
	}
}
