package store

import (
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/dkirilov/raftcore/raft"
)

var (
	hardStateBucket = []byte("hardstate")
	logBucket       = []byte("log")

	keyTerm     = []byte("term")
	keyVotedFor = []byte("voted_for")
)

// BoltStore persists term, votedFor, and the log in a bbolt file: one
// bucket for hard state, one bucket for the log keyed by big-endian index.
// This replaces a hand-rolled fixed-width binary encoding with an embedded
// KV store, the same role go.etcd.io/bbolt plays for gyuho-db/mvcc/backend.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (creating if absent) a bbolt-backed store at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(hardStateBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(logBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: init buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Save durably writes term, votedFor, and the full log inside a single
// transaction: spec §6 requires all three to land together before any RPC
// response that depends on them is sent.
func (s *BoltStore) Save(term uint64, votedFor uint64, log []raft.Entry) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		hs := tx.Bucket(hardStateBucket)
		if err := hs.Put(keyTerm, encodeUint64(term)); err != nil {
			return err
		}
		if err := hs.Put(keyVotedFor, encodeUint64(votedFor)); err != nil {
			return err
		}

		if err := tx.DeleteBucket(logBucket); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		logs, err := tx.CreateBucket(logBucket)
		if err != nil {
			return err
		}
		for idx, e := range log {
			if err := logs.Put(encodeUint64(uint64(idx)), encodeEntry(e)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	return nil
}

// Load reads back the most recently saved term, votedFor, and log.
func (s *BoltStore) Load() (uint64, uint64, []raft.Entry, error) {
	var term, votedFor uint64
	var log []raft.Entry

	err := s.db.View(func(tx *bbolt.Tx) error {
		hs := tx.Bucket(hardStateBucket)
		term = decodeUint64(hs.Get(keyTerm))
		votedFor = decodeUint64(hs.Get(keyVotedFor))

		logs := tx.Bucket(logBucket)
		return logs.ForEach(func(k, v []byte) error {
			log = append(log, decodeEntry(v))
			return nil
		})
	})
	if err != nil {
		return 0, 0, nil, fmt.Errorf("store: load: %w", err)
	}
	return term, votedFor, log, nil
}

// Close releases the underlying bbolt file handle.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// encodeEntry lays out an entry as [term(8) | len(command)(4) | command].
func encodeEntry(e raft.Entry) []byte {
	buf := make([]byte, 8+4+len(e.Command))
	binary.BigEndian.PutUint64(buf[0:8], e.Term)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(e.Command)))
	copy(buf[12:], e.Command)
	return buf
}

func decodeEntry(b []byte) raft.Entry {
	term := binary.BigEndian.Uint64(b[0:8])
	n := binary.BigEndian.Uint32(b[8:12])
	command := make([]byte, n)
	copy(command, b[12:12+n])
	return raft.Entry{Term: term, Command: command}
}
