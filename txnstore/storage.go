// Package txnstore is component H: the transactional store that wraps the
// mvcc engine for concurrent clients, shard-locking the keys one operation
// touches and proposing its resulting mutations through the owning region's
// Raft group (spec.md §4.H). Grounded on
// original_source/src/storage/txn/store.rs's TxnStore/SnapshotStore/
// StoreScanner.
package txnstore

import (
	"github.com/Connor1996/badger"
	"github.com/pingcap/errors"

	"github.com/ridgekv/ridgekv/engine_util"
	"github.com/ridgekv/ridgekv/proto/kvrpcpb"
	"github.com/ridgekv/ridgekv/proto/raft_cmdpb"
	"github.com/ridgekv/ridgekv/raftstore"
)

// Engine is the storage substrate mvcc transactions read through and stage
// writes against. Reads are a direct local snapshot of this node's KV
// engine: the same simplification every TinyKV-derived raftstore makes,
// since only the current leader is expected to answer promptly, and a read
// taken while stale just surfaces to the client as a routing error on the
// next write. Writes never touch the engine directly — they replicate
// through Raft via Store.Propose and land in the same atomic apply batch
// the raw Put/Delete commands already use (spec.md §4.C).
type Engine interface {
	Reader(ctx *kvrpcpb.Context) (txn *badger.Txn, closeTxn func(), err error)
	Write(ctx *kvrpcpb.Context, wb *engine_util.WriteBatch) error
}

// RaftEngine adapts a raftstore.Store to Engine.
type RaftEngine struct {
	store *raftstore.Store
}

func NewRaftEngine(store *raftstore.Store) *RaftEngine {
	return &RaftEngine{store: store}
}

func (e *RaftEngine) Reader(ctx *kvrpcpb.Context) (*badger.Txn, func(), error) {
	txn := e.store.Engines().Kv.NewTransaction(false)
	return txn, txn.Discard, nil
}

// Write translates wb's staged entries into raw Put/Delete requests and
// proposes them as one RaftCmdRequest, so they apply atomically in the
// same order every other replica sees them.
func (e *RaftEngine) Write(ctx *kvrpcpb.Context, wb *engine_util.WriteBatch) error {
	entries := wb.Entries()
	if len(entries) == 0 {
		return nil
	}
	req := &raft_cmdpb.RaftCmdRequest{
		Header:   ctx.Peer,
		Requests: make([]*raft_cmdpb.Request, 0, len(entries)),
	}
	for _, ent := range entries {
		if ent.Delete {
			req.Requests = append(req.Requests, &raft_cmdpb.Request{
				CmdType: raft_cmdpb.CmdType_Delete,
				Delete:  &raft_cmdpb.DeleteRequest{Cf: ent.Cf, Key: ent.Key},
			})
			continue
		}
		req.Requests = append(req.Requests, &raft_cmdpb.Request{
			CmdType: raft_cmdpb.CmdType_Put,
			Put:     &raft_cmdpb.PutRequest{Cf: ent.Cf, Key: ent.Key, Value: ent.Value},
		})
	}

	resp := e.store.Propose(req)
	if resp.Header != nil && resp.Header.Error != nil {
		return errors.New(resp.Header.Error.Message)
	}
	return nil
}
