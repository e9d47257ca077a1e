package txnstore

import (
	"github.com/ridgekv/ridgekv/engine_util"
	"github.com/ridgekv/ridgekv/mvcc"
	"github.com/ridgekv/ridgekv/proto/kvrpcpb"
)

// TxnStore wraps the mvcc engine for concurrent clients (spec.md §4.H):
// every operation locks the shards covering its keys, opens one consistent
// read view plus one write batch, runs the mvcc logic against them, and —
// if anything was staged — proposes the batch through the engine. Grounded
// on original_source/src/storage/txn/store.rs's TxnStore/SnapshotStore.
type TxnStore struct {
	engine Engine
	locks  *ShardMutex
}

func NewTxnStore(engine Engine) *TxnStore {
	return &TxnStore{engine: engine, locks: NewShardMutex()}
}

// keyError classifies an mvcc error into the client-facing KeyError shape,
// matching spec.md §7's per-kind client action.
func keyError(err error) *kvrpcpb.KeyError {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case *mvcc.ErrKeyIsLocked:
		return &kvrpcpb.KeyError{Locked: &kvrpcpb.LockInfo{PrimaryLock: e.Primary, LockVersion: e.StartTs, Key: e.Key}}
	case *mvcc.ErrWriteConflict:
		return &kvrpcpb.KeyError{Retryable: err.Error()}
	case *mvcc.ErrAlreadyCommitted:
		return &kvrpcpb.KeyError{AlreadyExist: true, Abort: err.Error()}
	default:
		return &kvrpcpb.KeyError{Abort: err.Error()}
	}
}

func abortResponse(err error) *kvrpcpb.KeyError {
	return &kvrpcpb.KeyError{Abort: err.Error()}
}

func (s *TxnStore) Get(req *kvrpcpb.GetRequest) *kvrpcpb.GetResponse {
	txn, closeTxn, err := s.engine.Reader(req.Context)
	if err != nil {
		return &kvrpcpb.GetResponse{Error: abortResponse(err)}
	}
	defer closeTxn()

	val, err := mvcc.NewSnapshot(txn, req.Version).Get(req.Key)
	if err != nil {
		return &kvrpcpb.GetResponse{Error: keyError(err)}
	}
	return &kvrpcpb.GetResponse{Value: val, NotFound: val == nil}
}

func (s *TxnStore) BatchGet(req *kvrpcpb.BatchGetRequest) *kvrpcpb.BatchGetResponse {
	txn, closeTxn, err := s.engine.Reader(req.Context)
	if err != nil {
		return &kvrpcpb.BatchGetResponse{}
	}
	defer closeTxn()

	snap := mvcc.NewSnapshot(txn, req.Version)
	pairs := make([]*kvrpcpb.KvPair, 0, len(req.Keys))
	for _, k := range req.Keys {
		val, err := snap.Get(k)
		if err != nil {
			pairs = append(pairs, &kvrpcpb.KvPair{Key: k, Error: keyError(err)})
			continue
		}
		if val == nil {
			continue
		}
		pairs = append(pairs, &kvrpcpb.KvPair{Key: k, Value: val})
	}
	return &kvrpcpb.BatchGetResponse{Pairs: pairs}
}

func (s *TxnStore) scan(ctx *kvrpcpb.Context, startKey []byte, limit uint32, version uint64, reverse bool) []*kvrpcpb.KvPair {
	txn, closeTxn, err := s.engine.Reader(ctx)
	if err != nil {
		return nil
	}
	defer closeTxn()

	snap := mvcc.NewSnapshot(txn, version)
	cursor := mvcc.NewCursor(snap, startKey, reverse)
	defer cursor.Close()

	pairs := make([]*kvrpcpb.KvPair, 0, limit)
	for uint32(len(pairs)) < limit {
		key, val, ok, err := cursor.Next()
		if err != nil {
			pairs = append(pairs, &kvrpcpb.KvPair{Error: keyError(err)})
			continue
		}
		if !ok {
			break
		}
		pairs = append(pairs, &kvrpcpb.KvPair{Key: key, Value: val})
	}
	return pairs
}

func (s *TxnStore) Scan(req *kvrpcpb.ScanRequest) *kvrpcpb.ScanResponse {
	return &kvrpcpb.ScanResponse{Pairs: s.scan(req.Context, req.StartKey, req.Limit, req.Version, req.Reverse)}
}

func mutationKeys(mutations []*kvrpcpb.Mutation) [][]byte {
	keys := make([][]byte, len(mutations))
	for i, m := range mutations {
		keys[i] = m.Key
	}
	return keys
}

// Prewrite stages the first phase of 2PC. A foreign-lock conflict on one
// mutation is reported per-key and does not abort its siblings; any other
// failure aborts the whole request without writing anything (spec.md §4.G).
func (s *TxnStore) Prewrite(req *kvrpcpb.PrewriteRequest) *kvrpcpb.PrewriteResponse {
	unlock := s.locks.Lock(mutationKeys(req.Mutations))
	defer unlock()

	txn, closeTxn, err := s.engine.Reader(req.Context)
	if err != nil {
		return &kvrpcpb.PrewriteResponse{Errors: []*kvrpcpb.KeyError{abortResponse(err)}}
	}
	defer closeTxn()

	wb := new(engine_util.WriteBatch)
	mtxn := mvcc.NewTxn(txn, wb, req.StartVersion)

	var errs []*kvrpcpb.KeyError
	for _, m := range req.Mutations {
		if err := mtxn.Prewrite(m, req.PrimaryLock); err != nil {
			if _, ok := err.(*mvcc.ErrKeyIsLocked); ok {
				errs = append(errs, keyError(err))
				continue
			}
			return &kvrpcpb.PrewriteResponse{Errors: []*kvrpcpb.KeyError{keyError(err)}}
		}
	}
	if err := s.engine.Write(req.Context, wb); err != nil {
		return &kvrpcpb.PrewriteResponse{Errors: []*kvrpcpb.KeyError{abortResponse(err)}}
	}
	return &kvrpcpb.PrewriteResponse{Errors: errs}
}

func (s *TxnStore) Commit(req *kvrpcpb.CommitRequest) *kvrpcpb.CommitResponse {
	unlock := s.locks.Lock(req.Keys)
	defer unlock()

	txn, closeTxn, err := s.engine.Reader(req.Context)
	if err != nil {
		return &kvrpcpb.CommitResponse{Error: abortResponse(err)}
	}
	defer closeTxn()

	wb := new(engine_util.WriteBatch)
	mtxn := mvcc.NewTxn(txn, wb, req.StartVersion)
	for _, k := range req.Keys {
		if err := mtxn.Commit(k, req.CommitVersion); err != nil {
			return &kvrpcpb.CommitResponse{Error: keyError(err)}
		}
	}
	if err := s.engine.Write(req.Context, wb); err != nil {
		return &kvrpcpb.CommitResponse{Error: abortResponse(err)}
	}
	return &kvrpcpb.CommitResponse{}
}

// Cleanup rolls back a single key, reporting the commit_ts instead of
// failing when the transaction had already committed (spec.md §4.G
// rollback idempotence).
func (s *TxnStore) Cleanup(req *kvrpcpb.CleanupRequest) *kvrpcpb.CleanupResponse {
	unlock := s.locks.Lock([][]byte{req.Key})
	defer unlock()

	txn, closeTxn, err := s.engine.Reader(req.Context)
	if err != nil {
		return &kvrpcpb.CleanupResponse{Error: abortResponse(err)}
	}
	defer closeTxn()

	wb := new(engine_util.WriteBatch)
	mtxn := mvcc.NewTxn(txn, wb, req.StartVersion)
	resp := &kvrpcpb.CleanupResponse{}
	if err := mtxn.Rollback(req.Key); err != nil {
		if already, ok := err.(*mvcc.ErrAlreadyCommitted); ok {
			resp.CommitVersion = already.CommitTs
		} else {
			resp.Error = keyError(err)
			return resp
		}
	}
	if err := s.engine.Write(req.Context, wb); err != nil {
		resp.Error = abortResponse(err)
	}
	return resp
}

func (s *TxnStore) BatchRollback(req *kvrpcpb.BatchRollbackRequest) *kvrpcpb.BatchRollbackResponse {
	unlock := s.locks.Lock(req.Keys)
	defer unlock()

	txn, closeTxn, err := s.engine.Reader(req.Context)
	if err != nil {
		return &kvrpcpb.BatchRollbackResponse{Error: abortResponse(err)}
	}
	defer closeTxn()

	wb := new(engine_util.WriteBatch)
	mtxn := mvcc.NewTxn(txn, wb, req.StartVersion)
	for _, k := range req.Keys {
		if err := mtxn.Rollback(k); err != nil {
			if _, ok := err.(*mvcc.ErrAlreadyCommitted); !ok {
				return &kvrpcpb.BatchRollbackResponse{Error: keyError(err)}
			}
		}
	}
	if err := s.engine.Write(req.Context, wb); err != nil {
		return &kvrpcpb.BatchRollbackResponse{Error: abortResponse(err)}
	}
	return &kvrpcpb.BatchRollbackResponse{}
}

func (s *TxnStore) CommitThenGet(req *kvrpcpb.CommitThenGetRequest) *kvrpcpb.CommitThenGetResponse {
	unlock := s.locks.Lock([][]byte{req.Key})
	defer unlock()

	txn, closeTxn, err := s.engine.Reader(req.Context)
	if err != nil {
		return &kvrpcpb.CommitThenGetResponse{Error: abortResponse(err)}
	}
	defer closeTxn()

	wb := new(engine_util.WriteBatch)
	mtxn := mvcc.NewTxn(txn, wb, req.LockVersion)
	val, err := mtxn.CommitThenGet(req.Key, req.CommitVersion, req.GetVersion)
	if err != nil {
		return &kvrpcpb.CommitThenGetResponse{Error: keyError(err)}
	}
	if err := s.engine.Write(req.Context, wb); err != nil {
		return &kvrpcpb.CommitThenGetResponse{Error: abortResponse(err)}
	}
	return &kvrpcpb.CommitThenGetResponse{Value: val}
}

func (s *TxnStore) RollbackThenGet(req *kvrpcpb.RollbackThenGetRequest) *kvrpcpb.RollbackThenGetResponse {
	unlock := s.locks.Lock([][]byte{req.Key})
	defer unlock()

	txn, closeTxn, err := s.engine.Reader(req.Context)
	if err != nil {
		return &kvrpcpb.RollbackThenGetResponse{Error: abortResponse(err)}
	}
	defer closeTxn()

	wb := new(engine_util.WriteBatch)
	mtxn := mvcc.NewTxn(txn, wb, req.LockVersion)
	val, err := mtxn.RollbackThenGet(req.Key)
	if err != nil {
		return &kvrpcpb.RollbackThenGetResponse{Error: keyError(err)}
	}
	if err := s.engine.Write(req.Context, wb); err != nil {
		return &kvrpcpb.RollbackThenGetResponse{Error: abortResponse(err)}
	}
	return &kvrpcpb.RollbackThenGetResponse{Value: val}
}
