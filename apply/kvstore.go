package apply

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/google/uuid"
)

// cmdKind is the command's one-byte type tag.
type cmdKind uint8

const (
	cmdSet cmdKind = iota
	cmdGet
)

// Command is a client request to the KVStore. ID lets a client recognize
// the result of a command it already submitted if it has to resubmit after
// a leader change drops the original in-flight request (spec §7's
// at-least-once delivery above the log).
type Command struct {
	ID    uuid.UUID
	Kind  cmdKind
	Key   string
	Value string
}

// NewSetCommand builds a tagged, uniquely-identified set command.
func NewSetCommand(key, value string) Command {
	return Command{ID: uuid.New(), Kind: cmdSet, Key: key, Value: value}
}

// NewGetCommand builds a tagged, uniquely-identified get command. Gets are
// still logged and committed: spec §4.6 requires linearizable reads to go
// through the same commit path as writes unless served via the read
// barrier (raft.Server.IsLeader).
func NewGetCommand(key string) Command {
	return Command{ID: uuid.New(), Kind: cmdGet, Key: key}
}

// Encode lays a Command out as
// [id(16)][kind(1)][keylen(4)][key][vallen(4)][value].
func Encode(cmd Command) ([]byte, error) {
	if len(cmd.Key) > 0xFFFFFFFF || len(cmd.Value) > 0xFFFFFFFF {
		return nil, fmt.Errorf("apply: key or value too long to encode")
	}

	buf := make([]byte, 0, 16+1+4+len(cmd.Key)+4+len(cmd.Value))
	buf = append(buf, cmd.ID[:]...)
	buf = append(buf, byte(cmd.Kind))
	buf = appendLenPrefixed(buf, cmd.Key)
	buf = appendLenPrefixed(buf, cmd.Value)
	return buf, nil
}

func appendLenPrefixed(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, s...)
}

// Decode is the inverse of Encode.
func Decode(msg []byte) (Command, error) {
	if len(msg) < 16+1+4 {
		return Command{}, fmt.Errorf("apply: message too short for command header")
	}

	var id uuid.UUID
	copy(id[:], msg[0:16])
	kind := cmdKind(msg[16])
	rest := msg[17:]

	key, rest, err := readLenPrefixed(rest)
	if err != nil {
		return Command{}, err
	}

	var value string
	if kind == cmdSet {
		value, _, err = readLenPrefixed(rest)
		if err != nil {
			return Command{}, err
		}
	}

	return Command{ID: id, Kind: kind, Key: key, Value: value}, nil
}

func readLenPrefixed(buf []byte) (string, []byte, error) {
	if len(buf) < 4 {
		return "", nil, fmt.Errorf("apply: message too short for length prefix")
	}
	n := binary.BigEndian.Uint32(buf[0:4])
	buf = buf[4:]
	if uint64(n) > uint64(len(buf)) {
		return "", nil, fmt.Errorf("apply: invalid length: %d", n)
	}
	return string(buf[:n]), buf[n:], nil
}

// kvItem is the btree.Item wrapping a key for sorted iteration, grounded on
// gyuho-db/mvcc's treeIndex use of *btree.BTree.
type kvItem struct {
	key string
}

func (i kvItem) Less(than btree.Item) bool {
	return i.key < than.(kvItem).key
}

// Result is what a committed command produced, cached by command ID so a
// resubmitted command returns the same answer instead of re-applying.
type Result struct {
	Found bool
	Value string
}

// KVStore is the demo application state machine bound to committed log
// entries via Binding. It keeps values in a map and an ordered key index in
// a btree so range scans (KVStore.Range) don't require sorting on every
// call, the same tradeoff gyuho-db's mvcc treeIndex makes for revisions.
type KVStore struct {
	mu      sync.RWMutex
	values  map[string]string
	index   *btree.BTree
	results map[uuid.UUID]Result
}

// NewKVStore builds an empty store. degree 32 matches gyuho-db's mvcc
// treeIndex default.
func NewKVStore() *KVStore {
	return &KVStore{
		values:  make(map[string]string),
		index:   btree.New(32),
		results: make(map[uuid.UUID]Result),
	}
}

// Apply implements apply.StateMachine: command decode failures are dropped
// rather than propagated, since a bad command that made it past the log
// can no longer be rejected (spec §4.6 committed entries are applied
// unconditionally).
func (s *KVStore) Apply(index int64, command []byte) {
	cmd, err := Decode(command)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.results[cmd.ID]; seen {
		return
	}

	switch cmd.Kind {
	case cmdSet:
		if _, exists := s.values[cmd.Key]; !exists {
			s.index.ReplaceOrInsert(kvItem{key: cmd.Key})
		}
		s.values[cmd.Key] = cmd.Value
		s.results[cmd.ID] = Result{Found: true, Value: cmd.Value}
	case cmdGet:
		value, found := s.values[cmd.Key]
		s.results[cmd.ID] = Result{Found: found, Value: value}
	}
}

// Get reads the current value for key directly, bypassing the commit
// pipeline. Callers needing linearizability should gate this behind
// raft.Server.IsLeader's read barrier first.
func (s *KVStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// ResultFor returns the recorded outcome of a previously applied command,
// letting a client that resubmits after a dropped response recover the
// original answer without double-applying.
func (s *KVStore) ResultFor(id uuid.UUID) (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	return r, ok
}

// Range returns every key in [start, end) in sorted order, backed by the
// btree index.
func (s *KVStore) Range(start, end string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	s.index.AscendRange(kvItem{key: start}, kvItem{key: end}, func(item btree.Item) bool {
		keys = append(keys, item.(kvItem).key)
		return true
	})
	return keys
}
