package mvcc

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/Connor1996/badger"
	"github.com/stretchr/testify/require"

	"github.com/ridgekv/ridgekv/engine_util"
	"github.com/ridgekv/ridgekv/proto/kvrpcpb"
)

// openTestDB opens a throwaway badger instance for one test, grounded on the
// same badger.DefaultOptions(dir) shape engine_util's store bootstrap uses.
func openTestDB(t *testing.T) (*badger.DB, func()) {
	dir, err := ioutil.TempDir("", "ridgekv-mvcc-test")
	require.NoError(t, err)
	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	db, err := badger.Open(opts)
	require.NoError(t, err)
	return db, func() {
		db.Close()
		os.RemoveAll(dir)
	}
}

func withTxn(t *testing.T, db *badger.DB, f func(txn *badger.Txn, wb *engine_util.WriteBatch)) {
	txn := db.NewTransaction(true)
	defer txn.Discard()
	wb := new(engine_util.WriteBatch)
	f(txn, wb)
	require.NoError(t, wb.WriteToDB(db))
}

func put(t *testing.T, db *badger.DB, key, value []byte, startTs, commitTs uint64) {
	withTxn(t, db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
		mtxn := NewTxn(txn, wb, startTs)
		require.NoError(t, mtxn.Prewrite(&kvrpcpb.Mutation{Op: kvrpcpb.MutationOp_Put, Key: key, Value: value}, key))
	})
	withTxn(t, db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
		mtxn := NewTxn(txn, wb, startTs)
		require.NoError(t, mtxn.Commit(key, commitTs))
	})
}

func del(t *testing.T, db *badger.DB, key []byte, startTs, commitTs uint64) {
	withTxn(t, db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
		mtxn := NewTxn(txn, wb, startTs)
		require.NoError(t, mtxn.Prewrite(&kvrpcpb.Mutation{Op: kvrpcpb.MutationOp_Del, Key: key}, key))
	})
	withTxn(t, db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
		mtxn := NewTxn(txn, wb, startTs)
		require.NoError(t, mtxn.Commit(key, commitTs))
	})
}

func get(t *testing.T, db *badger.DB, key []byte, ts uint64) []byte {
	txn := db.NewTransaction(false)
	defer txn.Discard()
	val, err := NewSnapshot(txn, ts).Get(key)
	require.NoError(t, err)
	return val
}

func TestGetSeesNewestVersionAtOrBeforeTs(t *testing.T) {
	db, cleanup := openTestDB(t)
	defer cleanup()

	put(t, db, []byte("x"), []byte("v1"), 5, 10)
	del(t, db, []byte("x"), 15, 20)

	require.Equal(t, []byte("v1"), get(t, db, []byte("x"), 17))
	require.Nil(t, get(t, db, []byte("x"), 23))
	require.Nil(t, get(t, db, []byte("x"), 3))
}

func TestPrewriteConflictsWithNewerCommit(t *testing.T) {
	db, cleanup := openTestDB(t)
	defer cleanup()

	put(t, db, []byte("x"), []byte("v1"), 5, 10)

	txn := db.NewTransaction(true)
	defer txn.Discard()
	wb := new(engine_util.WriteBatch)
	mtxn := NewTxn(txn, wb, 8)
	err := mtxn.Prewrite(&kvrpcpb.Mutation{Op: kvrpcpb.MutationOp_Put, Key: []byte("x"), Value: []byte("v2")}, []byte("x"))
	require.Error(t, err)
	_, ok := err.(*ErrWriteConflict)
	require.True(t, ok)
}

func TestPrewriteLockedByAnotherTxnIsReported(t *testing.T) {
	db, cleanup := openTestDB(t)
	defer cleanup()

	withTxn(t, db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
		mtxn := NewTxn(txn, wb, 5)
		require.NoError(t, mtxn.Prewrite(&kvrpcpb.Mutation{Op: kvrpcpb.MutationOp_Put, Key: []byte("x"), Value: []byte("v1")}, []byte("x")))
	})

	txn := db.NewTransaction(true)
	defer txn.Discard()
	wb := new(engine_util.WriteBatch)
	mtxn := NewTxn(txn, wb, 9)
	err := mtxn.Prewrite(&kvrpcpb.Mutation{Op: kvrpcpb.MutationOp_Put, Key: []byte("x"), Value: []byte("v2")}, []byte("x"))
	require.Error(t, err)
	locked, ok := err.(*ErrKeyIsLocked)
	require.True(t, ok)
	require.Equal(t, []byte("x"), locked.Primary)
	require.Equal(t, uint64(5), locked.StartTs)

	// a snapshot read at or after the lock's start_ts must also be blocked.
	roTxn := db.NewTransaction(false)
	defer roTxn.Discard()
	_, err = NewSnapshot(roTxn, 9).Get([]byte("x"))
	require.Error(t, err)
	require.IsType(t, &ErrKeyIsLocked{}, err)
}

func TestRollbackUndoesPrewrite(t *testing.T) {
	db, cleanup := openTestDB(t)
	defer cleanup()

	withTxn(t, db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
		mtxn := NewTxn(txn, wb, 5)
		require.NoError(t, mtxn.Prewrite(&kvrpcpb.Mutation{Op: kvrpcpb.MutationOp_Put, Key: []byte("x"), Value: []byte("v1")}, []byte("x")))
	})
	withTxn(t, db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
		mtxn := NewTxn(txn, wb, 5)
		require.NoError(t, mtxn.Rollback([]byte("x")))
	})

	require.Nil(t, get(t, db, []byte("x"), 100))

	// once rolled back, a write by a later transaction is free to proceed.
	put(t, db, []byte("x"), []byte("v2"), 10, 11)
	require.Equal(t, []byte("v2"), get(t, db, []byte("x"), 100))
}

func TestRollbackOfAlreadyCommittedTxnFails(t *testing.T) {
	db, cleanup := openTestDB(t)
	defer cleanup()

	put(t, db, []byte("x"), []byte("v1"), 5, 10)

	withTxn(t, db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
		mtxn := NewTxn(txn, wb, 5)
		err := mtxn.Rollback([]byte("x"))
		require.Error(t, err)
		already, ok := err.(*ErrAlreadyCommitted)
		require.True(t, ok)
		require.Equal(t, uint64(10), already.CommitTs)
	})
}

func TestCommitWithoutLockOrPriorCommitFails(t *testing.T) {
	db, cleanup := openTestDB(t)
	defer cleanup()

	withTxn(t, db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
		mtxn := NewTxn(txn, wb, 5)
		err := mtxn.Commit([]byte("x"), 10)
		require.Error(t, err)
		require.IsType(t, &ErrTxnLockNotFound{}, err)
	})
}

func TestCommitThenGetFoldsCommitAndRead(t *testing.T) {
	db, cleanup := openTestDB(t)
	defer cleanup()

	withTxn(t, db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
		mtxn := NewTxn(txn, wb, 5)
		require.NoError(t, mtxn.Prewrite(&kvrpcpb.Mutation{Op: kvrpcpb.MutationOp_Put, Key: []byte("x"), Value: []byte("v1")}, []byte("x")))
	})

	var val []byte
	withTxn(t, db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
		mtxn := NewTxn(txn, wb, 5)
		var err error
		val, err = mtxn.CommitThenGet([]byte("x"), 10, 100)
		require.NoError(t, err)
	})
	require.Equal(t, []byte("v1"), val)
}

func TestRollbackThenGetReturnsPriorVersion(t *testing.T) {
	db, cleanup := openTestDB(t)
	defer cleanup()

	put(t, db, []byte("x"), []byte("v1"), 5, 10)

	withTxn(t, db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
		mtxn := NewTxn(txn, wb, 20)
		require.NoError(t, mtxn.Prewrite(&kvrpcpb.Mutation{Op: kvrpcpb.MutationOp_Put, Key: []byte("x"), Value: []byte("v2")}, []byte("x")))
	})

	var val []byte
	withTxn(t, db, func(txn *badger.Txn, wb *engine_util.WriteBatch) {
		mtxn := NewTxn(txn, wb, 20)
		var err error
		val, err = mtxn.RollbackThenGet([]byte("x"))
		require.NoError(t, err)
	})
	require.Equal(t, []byte("v1"), val)
}

func TestCursorForwardSkipsDeletedKeysAndRespectsTs(t *testing.T) {
	db, cleanup := openTestDB(t)
	defer cleanup()

	put(t, db, []byte("a"), []byte("a1"), 1, 2)
	put(t, db, []byte("b"), []byte("b1"), 1, 2)
	del(t, db, []byte("b"), 5, 6)
	put(t, db, []byte("c"), []byte("c1"), 1, 2)

	txn := db.NewTransaction(false)
	defer txn.Discard()
	snap := NewSnapshot(txn, 100)
	cursor := NewCursor(snap, nil, false)
	defer cursor.Close()

	var keys []string
	for {
		k, v, ok, err := cursor.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		keys = append(keys, string(k)+"="+string(v))
	}
	require.Equal(t, []string{"a=a1", "c=c1"}, keys)
}

func TestCursorReverseStartsAtOrBeforeStartKey(t *testing.T) {
	db, cleanup := openTestDB(t)
	defer cleanup()

	put(t, db, []byte("a"), []byte("a1"), 1, 2)
	put(t, db, []byte("b"), []byte("b1"), 1, 2)
	put(t, db, []byte("c"), []byte("c1"), 1, 2)

	txn := db.NewTransaction(false)
	defer txn.Discard()
	snap := NewSnapshot(txn, 100)
	cursor := NewCursor(snap, []byte("b"), true)
	defer cursor.Close()

	var keys []string
	for {
		k, _, ok, err := cursor.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		keys = append(keys, string(k))
	}
	require.Equal(t, []string{"b", "a"}, keys)
}

func TestMetaSplitsAcrossPagesAndStaysReadable(t *testing.T) {
	db, cleanup := openTestDB(t)
	defer cleanup()

	// Enough commits against one key to push the head page past
	// MetaSplitSize and force an overflow page to be allocated.
	for ts := uint64(1); ts <= 30; ts++ {
		put(t, db, []byte("hot"), []byte("value-at-this-version"), ts*2, ts*2+1)
	}

	txn := db.NewTransaction(false)
	defer txn.Discard()
	head, err := loadMeta(txn, []byte("hot"), 0)
	require.NoError(t, err)
	require.True(t, head.HasNext, "head page should have split into an overflow page")

	require.Equal(t, []byte("value-at-this-version"), get(t, db, []byte("hot"), 1000))

	startTs, found, err := visibleStartTs(txn, []byte("hot"), 5)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(4), startTs)
}
