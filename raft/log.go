package raft

// NoIndex is the sentinel meaning "before the log begins" (spec §3).
const NoIndex int64 = -1

// Entry is a single immutable (term, command) pair at a fixed index.
type Entry struct {
	Term    uint64
	Command []byte
}

// Log is an ordered, contiguous (no-holes) sequence of entries, indexed
// from 0. The zero value is an empty log.
type Log struct {
	entries []Entry
}

// NewLog returns an empty log, or one seeded from a restored slice
// (NewServer passes Config.Restored.Log, as loaded from a store.Store on
// restart).
func NewLog(restored []Entry) *Log {
	return &Log{entries: restored}
}

// Len returns the number of entries in the log.
func (l *Log) Len() int64 {
	return int64(len(l.entries))
}

// LastIndex returns the index of the last entry, or NoIndex if the log is
// empty.
func (l *Log) LastIndex() int64 {
	return l.Len() - 1
}

// LastTerm returns the term of the last entry, or NoIndex's term
// equivalent (0) is wrong here — an empty log's last term is NoIndex per
// spec §4.3's up-to-date comparison, so callers compare against NoIndex
// explicitly via this helper.
func (l *Log) LastTerm() int64 {
	if l.Len() == 0 {
		return NoIndex
	}
	return int64(l.entries[l.Len()-1].Term)
}

// At returns the entry at idx. idx must be in [0, Len()).
func (l *Log) At(idx int64) Entry {
	return l.entries[idx]
}

// TermAt returns the term of the entry at idx, or NoIndex if idx is
// NoIndex (the "before the log begins" sentinel).
func (l *Log) TermAt(idx int64) int64 {
	if idx == NoIndex {
		return NoIndex
	}
	return int64(l.entries[idx].Term)
}

// Slice returns entries[from:], or nil if from is past the end.
func (l *Log) Slice(from int64) []Entry {
	if from >= l.Len() {
		return nil
	}
	out := make([]Entry, l.Len()-from)
	copy(out, l.entries[from:])
	return out
}

// Append unconditionally appends entries, without the continuity check
// that AppendEntries performs. ClientAppend goes through AppendEntries.
func (l *Log) Append(entries ...Entry) {
	l.entries = append(l.entries, entries...)
}

// All returns every entry currently in the log. Callers must not mutate the
// returned slice.
func (l *Log) All() []Entry {
	return l.entries
}

// AppendEntries implements spec §4.1's pure continuity-check / conflict-
// resolution / append algorithm.
//
//  1. Continuity check: prevIndex == NoIndex always passes; otherwise it
//     passes iff prevIndex < Len() and the term at prevIndex matches
//     prevTerm.
//  2. For each new entry placed at dst = prevIndex+1+k:
//     - dst >= Len(): append.
//     - term mismatch at dst: truncate to dst, then append this entry and
//       every entry after it in the batch.
//     - term match at dst: skip (already present by the log-matching
//       property); never truncate on a match.
//
// Replaying the same call after a first success is a no-op (idempotence).
// A call with zero entries is a pure continuity probe and never truncates.
func (l *Log) AppendEntries(prevIndex int64, prevTerm int64, entries []Entry) bool {
	if prevIndex != NoIndex {
		if prevIndex >= l.Len() {
			return false
		}
		if l.TermAt(prevIndex) != prevTerm {
			return false
		}
	}

	for k, e := range entries {
		dst := prevIndex + 1 + int64(k)
		switch {
		case dst >= l.Len():
			l.entries = append(l.entries, e)
		case l.entries[dst].Term != e.Term:
			l.entries = l.entries[:dst]
			l.entries = append(l.entries, entries[k:]...)
			return true
		default:
			// Same (index, term): already present, identical by the
			// match property. Skip without truncating.
		}
	}

	return true
}
