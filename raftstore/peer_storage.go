package raftstore

import (
	"bytes"
	"fmt"

	"github.com/Connor1996/badger"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"

	"github.com/ridgekv/ridgekv/codec"
	"github.com/ridgekv/ridgekv/engine_util"
	"github.com/ridgekv/ridgekv/proto/eraftpb"
	"github.com/ridgekv/ridgekv/proto/metapb"
	rspb "github.com/ridgekv/ridgekv/proto/raft_serverpb"
	"github.com/ridgekv/ridgekv/raft"
)

// ApplySnapResult carries the before/after region of a peer that just
// finished applying a snapshot, so the store scheduler can update its
// region routing table.
type ApplySnapResult struct {
	PrevRegion *metapb.Region
	Region     *metapb.Region
}

// PeerStorage is the raft.Storage implementation backing one region's Raft
// group: it persists the log, hard state and region metadata across the
// Raft and Kv engines, and knows how to apply an incoming snapshot
// (spec.md §4.A/§4.F).
type PeerStorage struct {
	Engines *engine_util.Engines

	region    *metapb.Region
	peerID    uint64
	raftState rspb.RaftLocalState
	applyState rspb.RaftApplyState

	snapMgr *SnapManager
	Tag     string
}

func NewPeerStorage(engines *engine_util.Engines, region *metapb.Region, snapMgr *SnapManager, peerID uint64, tag string) (*PeerStorage, error) {
	log.Debug(fmt.Sprintf("%s creating storage for %v", tag, region))
	raftState, err := loadRaftLocalState(engines, region.Id)
	if err != nil {
		return nil, err
	}
	applyState, err := loadApplyState(engines, region.Id)
	if err != nil {
		return nil, err
	}
	return &PeerStorage{
		Engines:    engines,
		region:     region,
		peerID:     peerID,
		raftState:  raftState,
		applyState: applyState,
		snapMgr:    snapMgr,
		Tag:        tag,
	}, nil
}

func loadRaftLocalState(engines *engine_util.Engines, regionID uint64) (rspb.RaftLocalState, error) {
	val, err := engine_util.GetCF(engines.Raft, engine_util.CfDefault, codec.RaftLocalStateKey(regionID))
	if err == badger.ErrKeyNotFound {
		return rspb.RaftLocalState{HardState: &eraftpb.HardState{}}, nil
	}
	if err != nil {
		return rspb.RaftLocalState{}, err
	}
	var st rspb.RaftLocalState
	if err := st.Unmarshal(val); err != nil {
		return rspb.RaftLocalState{}, err
	}
	return st, nil
}

func loadApplyState(engines *engine_util.Engines, regionID uint64) (rspb.RaftApplyState, error) {
	val, err := engine_util.GetCF(engines.Kv, engine_util.CfDefault, codec.RaftApplyStateKey(regionID))
	if err == badger.ErrKeyNotFound {
		return rspb.RaftApplyState{TruncatedState: &rspb.RaftTruncatedState{}}, nil
	}
	if err != nil {
		return rspb.RaftApplyState{}, err
	}
	var st rspb.RaftApplyState
	if err := st.Unmarshal(val); err != nil {
		return rspb.RaftApplyState{}, err
	}
	return st, nil
}

func (ps *PeerStorage) Region() *metapb.Region { return ps.region }

func (ps *PeerStorage) SetRegion(region *metapb.Region) { ps.region = region }

func (ps *PeerStorage) isInitialized() bool {
	return len(ps.region.GetPeers()) > 0
}

func (ps *PeerStorage) AppliedIndex() uint64 { return ps.applyState.AppliedIndex }

func (ps *PeerStorage) truncatedIndex() uint64 { return ps.applyState.TruncatedState.Index }

func (ps *PeerStorage) truncatedTerm() uint64 { return ps.applyState.TruncatedState.Term }

// --- raft.Storage ---

func (ps *PeerStorage) InitialState() (eraftpb.HardState, eraftpb.ConfState, error) {
	hs := *ps.raftState.HardState
	var cs eraftpb.ConfState
	for _, p := range ps.region.GetPeers() {
		cs.Nodes = append(cs.Nodes, p.GetId())
	}
	return hs, cs, nil
}

func (ps *PeerStorage) Entries(lo, hi uint64) ([]eraftpb.Entry, error) {
	if lo <= ps.truncatedIndex() {
		return nil, raft.ErrCompacted
	}
	var ents []eraftpb.Entry
	prefix := codec.RaftLogPrefix(ps.region.Id)
	err := ps.Engines.Raft.View(func(txn *badger.Txn) error {
		it := engine_util.NewCFIterator(engine_util.CfDefault, txn)
		defer it.Close()
		for it.Seek(codec.RaftLogKey(ps.region.Id, lo)); it.Valid(); it.Next() {
			key := it.Item().Key()
			if !bytes.HasPrefix(key, prefix) {
				break
			}
			val, err := it.Item().Value()
			if err != nil {
				return err
			}
			var e eraftpb.Entry
			if err := e.Unmarshal(val); err != nil {
				return err
			}
			if e.Index >= hi {
				break
			}
			ents = append(ents, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if uint64(len(ents)) != hi-lo {
		return nil, raft.ErrUnavailable
	}
	return ents, nil
}

func (ps *PeerStorage) Term(i uint64) (uint64, error) {
	if i == ps.truncatedIndex() {
		return ps.truncatedTerm(), nil
	}
	ents, err := ps.Entries(i, i+1)
	if err != nil {
		return 0, err
	}
	if len(ents) == 0 {
		return 0, raft.ErrUnavailable
	}
	return ents[0].Term, nil
}

func (ps *PeerStorage) LastIndex() (uint64, error) {
	return ps.raftState.LastIndex, nil
}

func (ps *PeerStorage) FirstIndex() (uint64, error) {
	return ps.truncatedIndex() + 1, nil
}

func (ps *PeerStorage) Snapshot() (eraftpb.Snapshot, error) {
	if ps.snapMgr == nil {
		return eraftpb.Snapshot{}, raft.ErrSnapshotTemporarilyUnavailable
	}
	return ps.snapMgr.Generate(ps.Engines, ps.region, ps.applyState)
}

// clearMeta removes this peer's region/apply/raft local state from kvWB and
// raftWB, staged but not yet written: used by Destroy.
func (ps *PeerStorage) clearMeta(kvWB, raftWB *engine_util.WriteBatch) error {
	kvWB.DeleteCF(engine_util.CfDefault, codec.RegionStateKey(ps.region.Id))
	raftWB.DeleteCF(engine_util.CfDefault, codec.RaftLocalStateKey(ps.region.Id))
	kvWB.DeleteCF(engine_util.CfDefault, codec.RaftApplyStateKey(ps.region.Id))
	return ps.Engines.Raft.View(func(txn *badger.Txn) error {
		it := engine_util.NewCFIterator(engine_util.CfDefault, txn)
		defer it.Close()
		prefix := codec.RaftLogPrefix(ps.region.Id)
		for it.Seek(prefix); it.Valid(); it.Next() {
			key := it.Item().Key()
			if !bytes.HasPrefix(key, prefix) {
				break
			}
			raftWB.DeleteCF(engine_util.CfDefault, append([]byte{}, key...))
		}
		return nil
	})
}

// ClearData removes this region's user data range from the Kv engine;
// called only once the region is confirmed Tombstone and snapshots cannot
// reference it any more.
func (ps *PeerStorage) ClearData() {
	start := codec.DataKey(ps.region.StartKey)
	end := codec.DataKey(ps.region.EndKey)
	if len(ps.region.EndKey) == 0 {
		end = nil
	}
	if err := deleteRangeCF(ps.Engines.Kv, engine_util.CfDefault, start, end); err != nil {
		log.Error(fmt.Sprintf("%s failed to clear data: %v", ps.Tag, err))
	}
	if err := deleteRangeCF(ps.Engines.Kv, engine_util.CfLock, start, end); err != nil {
		log.Error(fmt.Sprintf("%s failed to clear lock data: %v", ps.Tag, err))
	}
}

func deleteRangeCF(db *badger.DB, cf string, start, end []byte) error {
	var keys [][]byte
	err := db.View(func(txn *badger.Txn) error {
		it := engine_util.NewCFIterator(cf, txn)
		defer it.Close()
		for it.Seek(start); it.Valid(); it.Next() {
			k := it.Item().KeyCopy(nil)
			if end != nil && compareBytes(k, end) >= 0 {
				break
			}
			keys = append(keys, k)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(append([]byte(cf+"_"), k...)); err != nil {
				return err
			}
		}
		return nil
	})
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}

// SaveReadyState persists a Ready's entries and hard state to one atomic
// raftWB. When the Ready carries a snapshot, the region metadata and apply
// state it implies are written to the Kv engine in a separate batch, so
// that part is not atomic with the raftWB write.
func (ps *PeerStorage) SaveReadyState(ready *raft.Ready) (*ApplySnapResult, error) {
	raftWB := new(engine_util.WriteBatch)
	var result *ApplySnapResult
	var err error
	if !ready.Snapshot.IsEmpty() {
		result, err = ps.applySnapshot(&ready.Snapshot, raftWB)
		if err != nil {
			return nil, err
		}
	}
	if len(ready.Entries) > 0 {
		if err := ps.appendEntries(ready.Entries, raftWB); err != nil {
			return nil, err
		}
	}
	if !ready.HardState.IsEmpty() {
		hs := ready.HardState
		ps.raftState.HardState = &hs
	}
	if err := raftWB.SetMeta(codec.RaftLocalStateKey(ps.region.Id), &ps.raftState); err != nil {
		return nil, err
	}
	raftWB.MustWriteToDB(ps.Engines.Raft)
	return result, nil
}

func (ps *PeerStorage) appendEntries(entries []eraftpb.Entry, raftWB *engine_util.WriteBatch) error {
	for i := range entries {
		if err := raftWB.SetMeta(codec.RaftLogKey(ps.region.Id, entries[i].Index), &entries[i]); err != nil {
			return err
		}
	}
	lastIndex := entries[len(entries)-1].Index
	if lastIndex < ps.raftState.LastIndex {
		// truncate stale entries left over from a leader change
		for i := lastIndex + 1; i <= ps.raftState.LastIndex; i++ {
			raftWB.DeleteCF(engine_util.CfDefault, codec.RaftLogKey(ps.region.Id, i))
		}
	}
	ps.raftState.LastIndex = lastIndex
	ps.raftState.LastTerm = entries[len(entries)-1].Term
	return nil
}

// applySnapshot installs a received snapshot's data into the Kv engine and
// resets this peer's metadata to describe the snapshot's region.
func (ps *PeerStorage) applySnapshot(snap *eraftpb.Snapshot, raftWB *engine_util.WriteBatch) (*ApplySnapResult, error) {
	var snapData rspb.RaftSnapshotData
	if err := snapData.Unmarshal(snap.Data); err != nil {
		return nil, errors.Annotate(err, "unmarshal snapshot data")
	}
	prevRegion := ps.region

	if ps.isInitialized() {
		ps.ClearData()
	}

	if err := ps.snapMgr.Apply(ps.Engines, snapData.Region, snap); err != nil {
		return nil, errors.Annotate(err, "apply snapshot data")
	}

	ps.region = snapData.Region
	ps.raftState.LastIndex = snap.Metadata.Index
	ps.raftState.LastTerm = snap.Metadata.Term
	ps.applyState.AppliedIndex = snap.Metadata.Index
	ps.applyState.TruncatedState = &rspb.RaftTruncatedState{Index: snap.Metadata.Index, Term: snap.Metadata.Term}

	kvWB := new(engine_util.WriteBatch)
	if err := WriteRegionState(kvWB, ps.region, rspb.PeerState_Normal); err != nil {
		return nil, err
	}
	if err := kvWB.SetMeta(codec.RaftApplyStateKey(ps.region.Id), &ps.applyState); err != nil {
		return nil, err
	}
	kvWB.MustWriteToDB(ps.Engines.Kv)

	return &ApplySnapResult{PrevRegion: prevRegion, Region: ps.region}, nil
}

// WriteRegionState stages region's RegionLocalState (with the given
// PeerState) into wb.
func WriteRegionState(wb *engine_util.WriteBatch, region *metapb.Region, state rspb.PeerState) error {
	regionState := &rspb.RegionLocalState{State: state, Region: region}
	return wb.SetMeta(codec.RegionStateKey(region.Id), regionState)
}
