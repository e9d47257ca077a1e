// Package mvcc is component G: the percolator-style two-phase-commit
// transaction engine layered over the KV-engine facade and key codec
// (spec.md §4.G). It never touches Raft; it is handed an already-open read
// view and write batch by the transactional store (component H) and stages
// mutations into them.
package mvcc

import "fmt"

// ErrWriteConflict is returned by prewrite when a newer commit already
// landed on the key than the prewriting transaction's start_ts.
type ErrWriteConflict struct {
	Key      []byte
	StartTs  uint64
	ConflictTs uint64
}

func (e *ErrWriteConflict) Error() string {
	return fmt.Sprintf("write conflict: key %x start_ts %d conflicts with commit_ts %d", e.Key, e.StartTs, e.ConflictTs)
}

// ErrKeyIsLocked is returned when a read or prewrite observes a foreign
// lock; the client is expected to resolve the primary and retry.
type ErrKeyIsLocked struct {
	Key     []byte
	Primary []byte
	StartTs uint64
}

func (e *ErrKeyIsLocked) Error() string {
	return fmt.Sprintf("key %x is locked: primary %x start_ts %d", e.Key, e.Primary, e.StartTs)
}

// ErrTxnLockNotFound is returned by commit when neither a matching lock nor
// a committed record for start_ts exists: the transaction must have been
// rolled back already, and committing it now is a client bug.
type ErrTxnLockNotFound struct {
	Key     []byte
	StartTs uint64
}

func (e *ErrTxnLockNotFound) Error() string {
	return fmt.Sprintf("txn lock not found: key %x start_ts %d", e.Key, e.StartTs)
}

// ErrAlreadyCommitted is returned by rollback when the transaction has
// already committed; CommitTs is the commit_ts it committed at.
type ErrAlreadyCommitted struct {
	CommitTs uint64
}

func (e *ErrAlreadyCommitted) Error() string {
	return fmt.Sprintf("already committed at %d", e.CommitTs)
}
