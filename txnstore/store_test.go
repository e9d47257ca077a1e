package txnstore

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/Connor1996/badger"
	"github.com/stretchr/testify/require"

	"github.com/ridgekv/ridgekv/engine_util"
	"github.com/ridgekv/ridgekv/proto/kvrpcpb"
)

// fakeEngine writes straight to a local badger instance, standing in for a
// single-node RaftEngine so these tests exercise TxnStore's locking and
// mvcc wiring without standing up a whole raftstore (grounded on
// original_source/src/storage/txn/store.rs's tests, which likewise drive
// TxnStore against a bare engine with no real Raft underneath).
type fakeEngine struct {
	db *badger.DB
}

func (e *fakeEngine) Reader(ctx *kvrpcpb.Context) (*badger.Txn, func(), error) {
	txn := e.db.NewTransaction(false)
	return txn, txn.Discard, nil
}

func (e *fakeEngine) Write(ctx *kvrpcpb.Context, wb *engine_util.WriteBatch) error {
	return wb.WriteToDB(e.db)
}

func newTestStore(t *testing.T) (*TxnStore, func()) {
	dir, err := ioutil.TempDir("", "ridgekv-txnstore-test")
	require.NoError(t, err)
	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	db, err := badger.Open(opts)
	require.NoError(t, err)

	store := NewTxnStore(&fakeEngine{db: db})
	return store, func() {
		db.Close()
		os.RemoveAll(dir)
	}
}

func mutPut(key, value string) *kvrpcpb.Mutation {
	return &kvrpcpb.Mutation{Op: kvrpcpb.MutationOp_Put, Key: []byte(key), Value: []byte(value)}
}

func TestTxnStoreGetAfterCommit(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	prewrite := store.Prewrite(&kvrpcpb.PrewriteRequest{
		Context:      &kvrpcpb.Context{},
		Mutations:    []*kvrpcpb.Mutation{mutPut("k1", "v1")},
		PrimaryLock:  []byte("k1"),
		StartVersion: 5,
	})
	require.Empty(t, prewrite.Errors)

	commit := store.Commit(&kvrpcpb.CommitRequest{
		Context:       &kvrpcpb.Context{},
		StartVersion:  5,
		Keys:          [][]byte{[]byte("k1")},
		CommitVersion: 10,
	})
	require.Nil(t, commit.Error)

	get := store.Get(&kvrpcpb.GetRequest{Context: &kvrpcpb.Context{}, Key: []byte("k1"), Version: 100})
	require.Nil(t, get.Error)
	require.Equal(t, []byte("v1"), get.Value)
	require.False(t, get.NotFound)
}

func TestTxnStoreGetBeforeCommitIsNotFound(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	get := store.Get(&kvrpcpb.GetRequest{Context: &kvrpcpb.Context{}, Key: []byte("k1"), Version: 1})
	require.Nil(t, get.Error)
	require.True(t, get.NotFound)
}

func TestTxnStorePrewriteConflictingKeyIsLocked(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	prewrite := store.Prewrite(&kvrpcpb.PrewriteRequest{
		Context:      &kvrpcpb.Context{},
		Mutations:    []*kvrpcpb.Mutation{mutPut("k1", "v1")},
		PrimaryLock:  []byte("k1"),
		StartVersion: 5,
	})
	require.Empty(t, prewrite.Errors)

	second := store.Prewrite(&kvrpcpb.PrewriteRequest{
		Context:      &kvrpcpb.Context{},
		Mutations:    []*kvrpcpb.Mutation{mutPut("k1", "v2")},
		PrimaryLock:  []byte("k1"),
		StartVersion: 9,
	})
	require.Len(t, second.Errors, 1)
	require.NotNil(t, second.Errors[0].Locked)
	require.Equal(t, []byte("k1"), second.Errors[0].Locked.PrimaryLock)
	require.Equal(t, uint64(5), second.Errors[0].Locked.LockVersion)
}

func TestTxnStoreBatchRollbackFreesKeyForOtherWriters(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	store.Prewrite(&kvrpcpb.PrewriteRequest{
		Context:      &kvrpcpb.Context{},
		Mutations:    []*kvrpcpb.Mutation{mutPut("k1", "v1")},
		PrimaryLock:  []byte("k1"),
		StartVersion: 5,
	})

	rollback := store.BatchRollback(&kvrpcpb.BatchRollbackRequest{
		Context:      &kvrpcpb.Context{},
		Keys:         [][]byte{[]byte("k1")},
		StartVersion: 5,
	})
	require.Nil(t, rollback.Error)

	prewrite := store.Prewrite(&kvrpcpb.PrewriteRequest{
		Context:      &kvrpcpb.Context{},
		Mutations:    []*kvrpcpb.Mutation{mutPut("k1", "v2")},
		PrimaryLock:  []byte("k1"),
		StartVersion: 9,
	})
	require.Empty(t, prewrite.Errors)
}

func TestTxnStoreCleanupOfCommittedTxnReportsCommitVersion(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	store.Prewrite(&kvrpcpb.PrewriteRequest{
		Context:      &kvrpcpb.Context{},
		Mutations:    []*kvrpcpb.Mutation{mutPut("k1", "v1")},
		PrimaryLock:  []byte("k1"),
		StartVersion: 5,
	})
	store.Commit(&kvrpcpb.CommitRequest{
		Context:       &kvrpcpb.Context{},
		StartVersion:  5,
		Keys:          [][]byte{[]byte("k1")},
		CommitVersion: 10,
	})

	cleanup2 := store.Cleanup(&kvrpcpb.CleanupRequest{Context: &kvrpcpb.Context{}, Key: []byte("k1"), StartVersion: 5})
	require.Nil(t, cleanup2.Error)
	require.Equal(t, uint64(10), cleanup2.CommitVersion)
}

func TestTxnStoreScanReturnsCommittedKeysInOrder(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	for i, k := range []string{"a", "b", "c"} {
		ts := uint64(i*2 + 1)
		store.Prewrite(&kvrpcpb.PrewriteRequest{
			Context:      &kvrpcpb.Context{},
			Mutations:    []*kvrpcpb.Mutation{mutPut(k, k+"1")},
			PrimaryLock:  []byte(k),
			StartVersion: ts,
		})
		store.Commit(&kvrpcpb.CommitRequest{
			Context:       &kvrpcpb.Context{},
			StartVersion:  ts,
			Keys:          [][]byte{[]byte(k)},
			CommitVersion: ts + 1,
		})
	}

	scan := store.Scan(&kvrpcpb.ScanRequest{Context: &kvrpcpb.Context{}, Limit: 10, Version: 100})
	require.Len(t, scan.Pairs, 3)
	require.Equal(t, []byte("a"), scan.Pairs[0].Key)
	require.Equal(t, []byte("b"), scan.Pairs[1].Key)
	require.Equal(t, []byte("c"), scan.Pairs[2].Key)
}

func TestTxnStoreCommitThenGetAndRollbackThenGet(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	store.Prewrite(&kvrpcpb.PrewriteRequest{
		Context:      &kvrpcpb.Context{},
		Mutations:    []*kvrpcpb.Mutation{mutPut("k1", "v1")},
		PrimaryLock:  []byte("k1"),
		StartVersion: 5,
	})
	resp := store.CommitThenGet(&kvrpcpb.CommitThenGetRequest{
		Context:       &kvrpcpb.Context{},
		Key:           []byte("k1"),
		LockVersion:   5,
		CommitVersion: 10,
		GetVersion:    100,
	})
	require.Nil(t, resp.Error)
	require.Equal(t, []byte("v1"), resp.Value)

	store.Prewrite(&kvrpcpb.PrewriteRequest{
		Context:      &kvrpcpb.Context{},
		Mutations:    []*kvrpcpb.Mutation{mutPut("k1", "v2")},
		PrimaryLock:  []byte("k1"),
		StartVersion: 20,
	})
	rbg := store.RollbackThenGet(&kvrpcpb.RollbackThenGetRequest{
		Context:     &kvrpcpb.Context{},
		Key:         []byte("k1"),
		LockVersion: 20,
	})
	require.Nil(t, rbg.Error)
	require.Equal(t, []byte("v1"), rbg.Value)
}

// The key set names "a" twice; Lock must take each distinct shard once, or
// the second acquisition of the same shard would deadlock. The acquisition
// order itself is not observed here.
func TestShardMutexLocksDistinctKeysInCanonicalOrder(t *testing.T) {
	m := NewShardMutex()
	unlock := m.Lock([][]byte{[]byte("a"), []byte("b"), []byte("a")})
	unlock()
}
