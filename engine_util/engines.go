// Package engine_util is component A of the design: it abstracts snapshot,
// cursor, column families and atomic write-batches over the underlying
// badger LSM-tree engine, so the rest of the module never touches *badger.DB
// directly. Two physical badger instances back every store: Kv (region
// metadata, user data, MVCC locks/versions) and Raft (the raft log and
// local/apply state), matching spec.md §6's separate "meta/raft/data" and
// "raft/{region}/{log_index}" key spaces.
package engine_util

import (
	"github.com/Connor1996/badger"
	"github.com/juju/errors"
)

// Column families, matching the three namespaces spec.md §6 names: CfDefault
// holds versioned MVCC values (raw_key⊕ts → value); CfLock holds the current
// MetaLock per raw key; CfWrite holds the meta-page chain (raw_key⊕meta_index
// → encoded Meta{items, next_index}) that records which versions were
// actually committed.
const (
	CfDefault = "default"
	CfLock    = "lock"
	CfWrite   = "write"
)

// CFs lists every column family that must exist in the Kv engine.
var CFs = []string{CfDefault, CfLock, CfWrite}

// Engines bundles the two physical badger databases a store opens.
type Engines struct {
	Kv       *badger.DB
	Raft     *badger.DB
	KvPath   string
	RaftPath string
}

func NewEngines(kv, raft *badger.DB, kvPath, raftPath string) *Engines {
	return &Engines{Kv: kv, Raft: raft, KvPath: kvPath, RaftPath: raftPath}
}

func (en *Engines) Close() error {
	if err := en.Kv.Close(); err != nil {
		return errors.Annotate(err, "close kv engine")
	}
	if err := en.Raft.Close(); err != nil {
		return errors.Annotate(err, "close raft engine")
	}
	return nil
}

// cfKey namespaces a key by column family, the way badger (which has no
// native CF concept) is made to emulate one: "cf_key".
func cfKey(cf string, key []byte) []byte {
	b := make([]byte, 0, len(cf)+1+len(key))
	b = append(b, cf...)
	b = append(b, '_')
	b = append(b, key...)
	return b
}

// GetCF reads the newest value of key in column family cf from db.
func GetCF(db *badger.DB, cf string, key []byte) (val []byte, err error) {
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cfKey(cf, key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	return
}

// GetCFFromTxn reads within an already-open badger transaction, used by the
// MVCC snapshot reader so every read in one apply/txn sees one consistent
// view (spec.md §4.A "snapshot must reflect exactly one consistent state").
func GetCFFromTxn(txn *badger.Txn, cf string, key []byte) ([]byte, error) {
	item, err := txn.Get(cfKey(cf, key))
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func PutCF(db *badger.DB, cf string, key, val []byte) error {
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set(cfKey(cf, key), val)
	})
}

func DeleteCF(db *badger.DB, cf string, key []byte) error {
	return db.Update(func(txn *badger.Txn) error {
		return txn.Delete(cfKey(cf, key))
	})
}

// ErrKeyNotFound is returned (via badger.ErrKeyNotFound in real use) when a
// get finds nothing. Re-exported so callers need not import badger directly.
var ErrKeyNotFound = badger.ErrKeyNotFound
