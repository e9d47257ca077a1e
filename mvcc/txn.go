package mvcc

import (
	"bytes"

	"github.com/Connor1996/badger"
	"github.com/pingcap/errors"

	"github.com/ridgekv/ridgekv/codec"
	"github.com/ridgekv/ridgekv/engine_util"
	"github.com/ridgekv/ridgekv/proto/kvrpcpb"
)

// loadLock reads the current lock record for key, or nil if unlocked.
// Grounded on original_source/src/storage/mvcc/txn.rs's MvccSnapshot::load_lock.
func loadLock(txn *badger.Txn, key []byte) (*kvrpcpb.MetaLock, error) {
	val, err := engine_util.GetCFFromTxn(txn, engine_util.CfLock, codec.LockKey(key))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	lock := new(kvrpcpb.MetaLock)
	if err := lock.Unmarshal(val); err != nil {
		return nil, errors.Trace(err)
	}
	return lock, nil
}

// loadMeta reads one page of key's meta chain, or an empty page if that
// index has never been written (the common case: a brand-new key's head
// page at FirstMetaIndex).
func loadMeta(txn *badger.Txn, key []byte, index uint64) (*kvrpcpb.Meta, error) {
	val, err := engine_util.GetCFFromTxn(txn, engine_util.CfWrite, codec.MetaPageKey(key, index))
	if err == badger.ErrKeyNotFound {
		return &kvrpcpb.Meta{}, nil
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	meta := new(kvrpcpb.Meta)
	if err := meta.Unmarshal(val); err != nil {
		return nil, errors.Trace(err)
	}
	return meta, nil
}

// newestItem returns the newest MetaItem recorded for key (the head page's
// first entry), or nil if the key has never been committed.
func newestItem(txn *badger.Txn, key []byte) (*kvrpcpb.MetaItem, error) {
	head, err := loadMeta(txn, key, codec.FirstMetaIndex)
	if err != nil {
		return nil, err
	}
	if len(head.Items) == 0 {
		return nil, nil
	}
	return head.Items[0], nil
}

// findCommitTs walks key's whole meta chain looking for the commit record
// of startTs, used by commit/rollback to recognize an already-resolved
// transaction (spec.md §4.G commit/rollback idempotence).
func findCommitTs(txn *badger.Txn, key []byte, startTs uint64) (commitTs uint64, found bool, err error) {
	index := codec.FirstMetaIndex
	for {
		meta, err := loadMeta(txn, key, index)
		if err != nil {
			return 0, false, err
		}
		for _, it := range meta.Items {
			if it.StartTs == startTs {
				return it.CommitTs, true, nil
			}
		}
		if !meta.HasNext {
			return 0, false, nil
		}
		index = meta.NextIndex
	}
}

// visibleStartTs walks key's meta chain for the newest item whose commit_ts
// is at most ts; it returns that item's start_ts, which is also the suffix
// the value was staged under (spec.md §4.G "snapshot read").
func visibleStartTs(txn *badger.Txn, key []byte, ts uint64) (startTs uint64, found bool, err error) {
	index := codec.FirstMetaIndex
	for {
		meta, err := loadMeta(txn, key, index)
		if err != nil {
			return 0, false, err
		}
		for _, it := range meta.Items {
			if it.CommitTs <= ts {
				return it.StartTs, true, nil
			}
		}
		if !meta.HasNext {
			return 0, false, nil
		}
		index = meta.NextIndex
	}
}

// Txn is one percolator-style transaction: a consistent read view captured
// at start_ts plus a write batch that stages this operation's mutations.
// It is handed to the transactional store (component H) already holding
// both; mvcc never opens an engine transaction or write batch itself.
// Grounded on original_source/src/storage/mvcc/txn.rs's MvccTxn.
type Txn struct {
	txn     *badger.Txn
	wb      *engine_util.WriteBatch
	startTs uint64
}

func NewTxn(txn *badger.Txn, wb *engine_util.WriteBatch, startTs uint64) *Txn {
	return &Txn{txn: txn, wb: wb, startTs: startTs}
}

func (t *Txn) StartTs() uint64 { return t.startTs }

// Get reads the value visible to this transaction's own start_ts: its
// uncommitted write if one is staged under this key, else the newest
// committed version at or before start_ts (read-your-own-writes plus
// snapshot isolation).
func (t *Txn) Get(key []byte) ([]byte, error) {
	lock, err := loadLock(t.txn, key)
	if err != nil {
		return nil, err
	}
	if lock != nil && lock.StartTs == t.startTs {
		if lock.LockType == kvrpcpb.LockType_ReadOnly {
			return nil, nil
		}
		return getValue(t.txn, key, t.startTs)
	}
	return snapshotGet(t.txn, key, t.startTs)
}

// Prewrite stages the first phase of 2PC for one mutation (spec.md §4.G).
func (t *Txn) Prewrite(mutation *kvrpcpb.Mutation, primary []byte) error {
	key := mutation.Key

	latest, err := newestItem(t.txn, key)
	if err != nil {
		return err
	}
	if latest != nil && latest.CommitTs >= t.startTs {
		return &ErrWriteConflict{Key: key, StartTs: t.startTs, ConflictTs: latest.CommitTs}
	}

	lock, err := loadLock(t.txn, key)
	if err != nil {
		return err
	}
	if lock != nil {
		if lock.StartTs == t.startTs {
			// Idempotent retry of a prewrite already staged.
			return nil
		}
		return &ErrKeyIsLocked{Key: key, Primary: lock.Primary, StartTs: lock.StartTs}
	}

	lockType := kvrpcpb.LockType_ReadWrite
	if mutation.Op == kvrpcpb.MutationOp_Lock {
		lockType = kvrpcpb.LockType_ReadOnly
	}
	newLock := &kvrpcpb.MetaLock{Primary: primary, StartTs: t.startTs, LockType: lockType}
	lockVal, err := newLock.Marshal()
	if err != nil {
		return errors.Trace(err)
	}
	t.wb.SetCF(engine_util.CfLock, codec.LockKey(key), lockVal)

	if mutation.Op == kvrpcpb.MutationOp_Put {
		t.wb.SetCF(engine_util.CfDefault, codec.EncodeKeyWithTs(key, t.startTs), mutation.Value)
	}
	return nil
}

// Commit resolves the second phase of 2PC for key at commitTs.
func (t *Txn) Commit(key []byte, commitTs uint64) error {
	lock, err := loadLock(t.txn, key)
	if err != nil {
		return err
	}
	if lock != nil && lock.StartTs == t.startTs {
		if lock.LockType == kvrpcpb.LockType_ReadWrite {
			head, err := loadMeta(t.txn, key, codec.FirstMetaIndex)
			if err != nil {
				return err
			}
			overflow, overflowIndex := pushItem(head, &kvrpcpb.MetaItem{StartTs: t.startTs, CommitTs: commitTs})
			if overflow != nil {
				val, err := overflow.Marshal()
				if err != nil {
					return errors.Trace(err)
				}
				t.wb.SetCF(engine_util.CfWrite, codec.MetaPageKey(key, overflowIndex), val)
			}
			val, err := head.Marshal()
			if err != nil {
				return errors.Trace(err)
			}
			t.wb.SetCF(engine_util.CfWrite, codec.MetaPageKey(key, codec.FirstMetaIndex), val)
		}
		t.wb.DeleteCF(engine_util.CfLock, codec.LockKey(key))
		return nil
	}

	// No matching lock: either never locked, or already resolved by a
	// previous attempt at this same commit. Either way it is only a
	// success if start_ts shows up as committed already.
	if _, found, err := findCommitTs(t.txn, key, t.startTs); err != nil {
		return err
	} else if found {
		return nil
	}
	return &ErrTxnLockNotFound{Key: key, StartTs: t.startTs}
}

// Rollback undoes a not-yet-committed prewrite of key.
func (t *Txn) Rollback(key []byte) error {
	lock, err := loadLock(t.txn, key)
	if err != nil {
		return err
	}
	if lock != nil && lock.StartTs == t.startTs {
		t.wb.DeleteCF(engine_util.CfDefault, codec.EncodeKeyWithTs(key, t.startTs))
		t.wb.DeleteCF(engine_util.CfLock, codec.LockKey(key))
		return nil
	}

	if commitTs, found, err := findCommitTs(t.txn, key, t.startTs); err != nil {
		return err
	} else if found {
		return &ErrAlreadyCommitted{CommitTs: commitTs}
	}
	return nil
}

// CommitThenGet commits key at commitTs then returns the version visible at
// getTs, folding the two RPCs a client would otherwise need into one. The
// commit is only staged in the write batch, so when it resolves this
// transaction's own lock the read accounts for it here rather than through
// the engine view, which still holds that lock.
func (t *Txn) CommitThenGet(key []byte, commitTs, getTs uint64) ([]byte, error) {
	lock, err := loadLock(t.txn, key)
	if err != nil {
		return nil, err
	}
	if err := t.Commit(key, commitTs); err != nil {
		return nil, err
	}
	if lock == nil || lock.StartTs != t.startTs {
		return snapshotGet(t.txn, key, getTs)
	}
	if lock.LockType == kvrpcpb.LockType_ReadWrite && commitTs <= getTs {
		return getValue(t.txn, key, t.startTs)
	}
	startTs, found, err := visibleStartTs(t.txn, key, getTs)
	if err != nil || !found {
		return nil, err
	}
	return getValue(t.txn, key, startTs)
}

// RollbackThenGet rolls back this transaction's own write to key then
// returns the version that was visible before it (at start_ts). As with
// CommitThenGet, the lock the rollback removes is ignored by the read.
func (t *Txn) RollbackThenGet(key []byte) ([]byte, error) {
	lock, err := loadLock(t.txn, key)
	if err != nil {
		return nil, err
	}
	if err := t.Rollback(key); err != nil {
		if _, ok := err.(*ErrAlreadyCommitted); !ok {
			return nil, err
		}
	}
	if lock == nil || lock.StartTs != t.startTs {
		return snapshotGet(t.txn, key, t.startTs)
	}
	startTs, found, err := visibleStartTs(t.txn, key, t.startTs)
	if err != nil || !found {
		return nil, err
	}
	return getValue(t.txn, key, startTs)
}

// getValue reads the raw value this transaction staged for key, used by
// Get's read-your-own-writes path.
func getValue(txn *badger.Txn, key []byte, startTs uint64) ([]byte, error) {
	val, err := engine_util.GetCFFromTxn(txn, engine_util.CfDefault, codec.EncodeKeyWithTs(key, startTs))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	return val, nil
}

// snapshotGet implements spec.md §4.G's "snapshot read at ts": a foreign
// lock at or before ts blocks the read, otherwise the newest committed
// version at or before ts is returned, or nil if no such version exists
// (either never written, or the visible version was a delete).
func snapshotGet(txn *badger.Txn, key []byte, ts uint64) ([]byte, error) {
	lock, err := loadLock(txn, key)
	if err != nil {
		return nil, err
	}
	if lock != nil && lock.StartTs <= ts {
		return nil, &ErrKeyIsLocked{Key: key, Primary: lock.Primary, StartTs: lock.StartTs}
	}

	startTs, found, err := visibleStartTs(txn, key, ts)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return getValue(txn, key, startTs)
}

// Snapshot is a read-only view at a fixed ts, used by the transactional
// store's get/batch_get/scan/reverse_scan operations, which need no write
// batch (spec.md §4.H).
type Snapshot struct {
	txn *badger.Txn
	ts  uint64
}

func NewSnapshot(txn *badger.Txn, ts uint64) *Snapshot {
	return &Snapshot{txn: txn, ts: ts}
}

func (s *Snapshot) Ts() uint64 { return s.ts }

func (s *Snapshot) Get(key []byte) ([]byte, error) {
	return snapshotGet(s.txn, key, s.ts)
}

// Cursor walks raw keys in a region in either direction, resolving each to
// its visible value at the snapshot's ts (spec.md §4.G "MVCC cursor").
type Cursor struct {
	snap    *Snapshot
	iter    engine_util.DBIterator
	reverse bool
}

func NewCursor(snap *Snapshot, startKey []byte, reverse bool) *Cursor {
	var it engine_util.DBIterator
	if reverse {
		it = engine_util.NewReverseCFIterator(engine_util.CfDefault, snap.txn)
	} else {
		it = engine_util.NewCFIterator(engine_util.CfDefault, snap.txn)
	}
	if len(startKey) == 0 {
		it.Rewind()
	} else if reverse {
		// Largest key in startKey's version block, so a reverse seek's
		// "largest key <= target" rule cannot skip past an existing
		// version of startKey into an earlier raw key.
		it.Seek(codec.EncodeKeyWithTs(startKey, 0))
	} else {
		it.Seek(codec.EncodeKeyWithTs(startKey, codec.MaxTs))
	}
	return &Cursor{snap: snap, iter: it, reverse: reverse}
}

func (c *Cursor) Close() { c.iter.Close() }

// Next returns the next raw key (in the cursor's direction) with a version
// visible at the snapshot's ts, skipping keys whose newest visible version
// is a delete or that have no version at or before ts at all. ok is false
// once the underlying keyspace is exhausted.
func (c *Cursor) Next() (key, value []byte, ok bool, err error) {
	for c.iter.Valid() {
		rawKey, _ := codec.DecodeKeyWithTs(c.iter.Item().Key())
		val, found, gerr := c.resolve(rawKey)
		if gerr != nil {
			return nil, nil, false, gerr
		}
		c.advancePast(rawKey)
		if found {
			return rawKey, val, true, nil
		}
	}
	return nil, nil, false, nil
}

func (c *Cursor) resolve(rawKey []byte) (value []byte, found bool, err error) {
	val, err := snapshotGet(c.snap.txn, rawKey, c.snap.ts)
	if err != nil {
		return nil, false, err
	}
	return val, val != nil, nil
}

// advancePast re-seeks the iterator just past rawKey's whole version run,
// the "append ts = +∞ and seek forward again" rule from spec.md §4.G. It
// seeks to the boundary of rawKey's version block, then walks off any
// remaining entries of rawKey one at a time — cheap, since a key rarely
// carries more than a handful of live versions.
func (c *Cursor) advancePast(rawKey []byte) {
	if c.reverse {
		c.iter.Seek(codec.EncodeKeyWithTs(rawKey, codec.MaxTs))
	} else {
		c.iter.Seek(append(codec.EncodeKeyWithTs(rawKey, 0), 0x00))
	}
	for c.iter.Valid() {
		k, _ := codec.DecodeKeyWithTs(c.iter.Item().Key())
		if !bytes.Equal(k, rawKey) {
			return
		}
		c.iter.Next()
	}
}
