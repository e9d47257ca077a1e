package raft

import (
	pb "github.com/ridgekv/ridgekv/proto/eraftpb"
)

// RaftLog manages the log entries, its struct look like:
//
//  snapshot/first.....applied....committed....stabled.....last
//  --------|------------------------------------------------|
//                            log entries
//
// for simplicity, LogTerm is deprecated, but the LogTerm struct is still in
// eraftpb.proto.
type RaftLog struct {
	// storage contains all stable entries since the last snapshot.
	storage Storage

	// committed is the highest log position known to be in
	// stable storage on a quorum of nodes.
	committed uint64
	// applied is the highest log position that the application has
	// been instructed to apply to its state machine.
	// Invariant: applied <= committed
	applied uint64
	// log entries with index <= stabled are persisted to storage.
	// It is used to record the logs that are not persisted by storage yet.
	// Everytime handling `Ready`, the unstabled logs will be included.
	stabled uint64

	// entries hold all log entries that have not been compacted yet, the
	// entries before snapshot.Metadata.Index will be removed in the future.
	entries []pb.Entry

	// the incoming unstable snapshot, if any.
	pending_snapshot *pb.Snapshot

	// Your Data Here (2A).
}

// newLog returns log using the given storage. It recovers the log to the
// state that it just commits and applies the latest snapshot.
func newLog(storage Storage) *RaftLog {
	if storage == nil {
		panic("storage must not be nil")
	}
	firstIndex, err := storage.FirstIndex()
	if err != nil {
		panic(err)
	}
	lastIndex, err := storage.LastIndex()
	if err != nil {
		panic(err)
	}
	entries, err := storage.Entries(firstIndex, lastIndex+1)
	if err != nil && err != ErrUnavailable {
		panic(err)
	}
	return &RaftLog{
		storage:   storage,
		committed: firstIndex - 1,
		applied:   firstIndex - 1,
		stabled:   lastIndex,
		entries:   entries,
	}
}

// we need to compact the log entries in some point of time like
// storage compact stabled log entries prevent the log entries
// grow unlimitedly in memory
func (l *RaftLog) maybeCompact() {
	first, err := l.storage.FirstIndex()
	if err != nil {
		return
	}
	if len(l.entries) > 0 && first > l.firstIndex() {
		l.entries = l.entries[first-l.firstIndex():]
	}
}

func (l *RaftLog) firstIndex() uint64 {
	if len(l.entries) > 0 {
		return l.entries[0].Index
	}
	i, _ := l.storage.FirstIndex()
	return i
}

// unstableEntries return all the unstable entries, that is entries with
// index > l.stabled, that the caller should persist.
func (l *RaftLog) unstableEntries() []pb.Entry {
	if len(l.entries) == 0 {
		return nil
	}
	off := l.stabled + 1
	if off > l.LastIndex()+1 {
		return nil
	}
	first := l.entries[0].Index
	if off < first {
		return l.entries
	}
	return l.entries[off-first:]
}

// nextEnts returns all the committed but not applied entries.
func (l *RaftLog) nextEnts() (ents []pb.Entry) {
	off := max(l.applied+1, l.firstIndex())
	if l.committed+1 > off {
		ents, err := l.slice(off, l.committed+1)
		if err != nil {
			panic(err)
		}
		return ents
	}
	return nil
}

// LastIndex return the last index of the log entries.
func (l *RaftLog) LastIndex() uint64 {
	if n := len(l.entries); n != 0 {
		return l.entries[0].Index + uint64(n) - 1
	}
	if l.pending_snapshot != nil {
		return l.pending_snapshot.Metadata.Index
	}
	i, err := l.storage.LastIndex()
	if err != nil {
		panic(err)
	}
	return i
}

func (l *RaftLog) lastTerm() uint64 {
	t, err := l.Term(l.LastIndex())
	if err != nil {
		panic(err)
	}
	return t
}

// Term return the term of the entry in the given index.
func (l *RaftLog) Term(i uint64) (uint64, error) {
	if len(l.entries) > 0 && i >= l.entries[0].Index {
		last := l.entries[0].Index + uint64(len(l.entries)) - 1
		if i > last {
			return 0, ErrUnavailable
		}
		return l.entries[i-l.entries[0].Index].Term, nil
	}
	if l.pending_snapshot != nil && i == l.pending_snapshot.Metadata.Index {
		return l.pending_snapshot.Metadata.Term, nil
	}
	if l.pending_snapshot != nil && i < l.pending_snapshot.Metadata.Index {
		return 0, ErrCompacted
	}
	t, err := l.storage.Term(i)
	return t, err
}

func (l *RaftLog) zeroTermOnRangeErr(t uint64, err error) uint64 {
	if err == nil {
		return t
	}
	if err == ErrCompacted || err == ErrUnavailable {
		return 0
	}
	panic(err)
}

// Entries returns all the entries starting from lo.
func (l *RaftLog) Entries(lo uint64) ([]pb.Entry, error) {
	return l.slice(lo, l.LastIndex()+1)
}

func (l *RaftLog) slice(lo, hi uint64) ([]pb.Entry, error) {
	if lo > hi {
		panic("invalid slice bounds")
	}
	if lo == hi {
		return nil, nil
	}
	if len(l.entries) == 0 {
		return nil, ErrUnavailable
	}
	first := l.entries[0].Index
	last := first + uint64(len(l.entries)) - 1
	if lo < first {
		return nil, ErrCompacted
	}
	if hi > last+1 {
		return nil, ErrUnavailable
	}
	return l.entries[lo-first : hi-first], nil
}

func (l *RaftLog) isUpToDate(lasti, term uint64) bool {
	return term > l.lastTerm() || (term == l.lastTerm() && lasti >= l.LastIndex())
}

func (l *RaftLog) matchTerm(i, term uint64) bool {
	t, err := l.Term(i)
	if err != nil {
		return false
	}
	return t == term
}

// maybeAppend appends log entries starting after index, returning the new
// last index if successful, or (0,false) if the append was rejected because
// the leader's view of the follower's log did not match.
func (l *RaftLog) maybeAppend(index, logTerm, committed uint64, ents ...pb.Entry) (lastnewi uint64, ok bool) {
	if l.matchTerm(index, logTerm) {
		lastnewi = index + uint64(len(ents))
		ci := l.findConflict(ents)
		switch {
		case ci == 0:
		case ci <= l.committed:
			panic("entry conflict with committed entry")
		default:
			offset := index + 1
			l.append(ents[ci-offset:]...)
		}
		l.commitTo(min(committed, lastnewi))
		return lastnewi, true
	}
	return 0, false
}

// append appends es to the unstable log, truncating any conflicting tail,
// and returns the new last index.
func (l *RaftLog) append(ents ...pb.Entry) uint64 {
	if len(ents) == 0 {
		return l.LastIndex()
	}
	if after := ents[0].Index - 1; after < l.committed {
		panic("append entries before committed index")
	}
	l.truncateAndAppend(ents)
	return l.LastIndex()
}

func (l *RaftLog) truncateAndAppend(ents []pb.Entry) {
	after := ents[0].Index
	switch {
	case len(l.entries) == 0:
		l.entries = ents
	case after == l.entries[0].Index+uint64(len(l.entries)):
		l.entries = append(l.entries, ents...)
	case after <= l.entries[0].Index:
		l.entries = ents
		l.stabled = after - 1
	default:
		l.entries = append([]pb.Entry{}, l.entries[:after-l.entries[0].Index]...)
		l.entries = append(l.entries, ents...)
		if l.stabled >= after {
			l.stabled = after - 1
		}
	}
}

// findConflict finds the index of the conflict. It returns the first pair
// of conflicting entries between the existing entries and the given
// entries, if there are any. If there is no conflicting entries, and the
// existing entries contains all the given entries, zero will be returned.
func (l *RaftLog) findConflict(ents []pb.Entry) uint64 {
	for _, ne := range ents {
		if !l.matchTerm(ne.Index, ne.Term) {
			if ne.Index <= l.LastIndex() {
				// a conflicting entry found
			}
			return ne.Index
		}
	}
	return 0
}

func (l *RaftLog) commitTo(tocommit uint64) {
	if l.committed < tocommit {
		if l.LastIndex() < tocommit {
			panic("tocommit is out of range")
		}
		l.committed = tocommit
	}
}

func (l *RaftLog) appliedTo(i uint64) {
	if i == 0 {
		return
	}
	if l.committed < i || i < l.applied {
		panic("applied index is out of range")
	}
	l.applied = i
}

func (l *RaftLog) stableTo(i uint64) {
	if i > l.stabled {
		l.stabled = i
	}
}

// maybeCommit advances the commit index to maxIndex if it is possible at
// the given term, returning whether the commit index changed.
func (l *RaftLog) maybeCommit(maxIndex, term uint64) bool {
	if maxIndex > l.committed && l.zeroTermOnRangeErr(l.Term(maxIndex)) == term {
		l.commitTo(maxIndex)
		return true
	}
	return false
}

// snapshot returns the most recent snapshot of this log, used to send a
// peer that has fallen too far behind a full-state transfer.
func (l *RaftLog) snapshot() (pb.Snapshot, error) {
	if l.pending_snapshot != nil {
		return *l.pending_snapshot, nil
	}
	return l.storage.Snapshot()
}

// restore overwrites this log's state with the contents of a received
// snapshot.
func (l *RaftLog) restore(s pb.Snapshot) {
	l.committed = s.Metadata.Index
	l.applied = s.Metadata.Index
	l.stabled = s.Metadata.Index
	l.entries = nil
	l.pending_snapshot = &s
}
