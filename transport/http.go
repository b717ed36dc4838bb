package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dkirilov/raftcore/raft"
)

// wireEnvelope is the JSON-over-HTTP representation of an Envelope. Since
// raft.Message is a single tagged union (spec §5), one endpoint and one
// struct carry every message kind instead of one pair per RPC.
type wireEnvelope struct {
	From uint64       `json:"from"`
	To   uint64       `json:"to"`
	Msg  raft.Message `json:"msg"`
}

// HTTPTransport is the real-network implementation of Transport: outbound
// messages are posted as JSON to the destination's /raft endpoint; inbound
// messages arrive via the handler registered with RegisterHandlers and
// queue in an in-memory inbox for Poll.
type HTTPTransport struct {
	self uint64

	mu        sync.Mutex
	addresses map[uint64]string
	enabled   map[uint64]bool
	inbox     []raft.Envelope

	client *http.Client
	log    raft.Logger
}

// NewHTTPTransport builds a transport for node self, where addresses maps
// every peer ID (self included) to its "host:port" listen address.
func NewHTTPTransport(self uint64, addresses map[uint64]string, log raft.Logger) *HTTPTransport {
	enabled := make(map[uint64]bool, len(addresses))
	for id := range addresses {
		enabled[id] = true
	}
	if log == nil {
		log = raft.NoopLogger()
	}
	return &HTTPTransport{
		self:      self,
		addresses: addresses,
		enabled:   enabled,
		client:    &http.Client{Timeout: 150 * time.Millisecond},
		log:       log,
	}
}

// RegisterHandlers wires the receiving half onto mux.
func (t *HTTPTransport) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/raft", t.handleIncoming)
}

func (t *HTTPTransport) handleIncoming(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var wire wireEnvelope
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	t.mu.Lock()
	if t.enabled[t.self] && t.enabled[wire.From] {
		t.inbox = append(t.inbox, raft.Envelope{To: wire.To, Message: wire.Msg})
	}
	t.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

// Send posts msg to dst's /raft endpoint. Failures (peer down, timeout,
// non-200) are logged and swallowed: spec §6 treats send as best-effort
// and fire-and-forget, same as the simulated transport.
func (t *HTTPTransport) Send(dst uint64, msg raft.Message) {
	t.mu.Lock()
	addr, known := t.addresses[dst]
	allowed := t.enabled[t.self] && t.enabled[dst]
	t.mu.Unlock()

	if !known || !allowed {
		return
	}

	wire := wireEnvelope{From: t.self, To: dst, Msg: msg}
	data, err := json.Marshal(wire)
	if err != nil {
		t.log.Warnf("transport: marshal envelope to %d: %v", dst, err)
		return
	}

	url := fmt.Sprintf("http://%s/raft", addr)
	resp, err := t.client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.log.Debugf("transport: send to %d failed: %v", dst, err)
		return
	}
	_ = resp.Body.Close()
}

// Poll returns the oldest queued inbound envelope, if any.
func (t *HTTPTransport) Poll() (raft.Envelope, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.inbox) == 0 {
		return raft.Envelope{}, false
	}
	env := t.inbox[0]
	t.inbox = t.inbox[1:]
	return env, true
}

// Enable and Disable simulate a node's link going up or down without
// tearing down the listener: Send and handleIncoming both honor it.
func (t *HTTPTransport) Enable(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled[id] = true
}

func (t *HTTPTransport) Disable(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled[id] = false
}
