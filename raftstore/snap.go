package raftstore

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/btree"
	"github.com/pingcap/errors"

	"github.com/ridgekv/ridgekv/engine_util"
	"github.com/ridgekv/ridgekv/proto/eraftpb"
	"github.com/ridgekv/ridgekv/proto/metapb"
	rspb "github.com/ridgekv/ridgekv/proto/raft_serverpb"
)

// snapKey identifies one snapshot file by (region, direction, term, idx), the
// naming scheme of spec.md §4.F.
type snapKey struct {
	RegionID  uint64
	IsSending bool
	Term      uint64
	Index     uint64
}

func (k snapKey) String() string {
	dir := "rcv"
	if k.IsSending {
		dir = "gen"
	}
	return fmt.Sprintf("%d_%s_%d_%d", k.RegionID, dir, k.Term, k.Index)
}

// Less orders two snapKey btree items by (term, idx) so a GC sweep visits
// the oldest snapshots first, per spec.md §4.F.
func (k *snapKeyItem) Less(other btree.Item) bool {
	o := other.(*snapKeyItem)
	if k.key.Term != o.key.Term {
		return k.key.Term < o.key.Term
	}
	return k.key.Index < o.key.Index
}

type snapKeyItem struct {
	key        snapKey
	registered bool
	data       *rspb.RaftSnapshotData
}

// SnapManager owns every snapshot file this store has generated or is
// receiving: it names them, tracks in-flight transfers so GC does not race a
// send, and exposes live sending/receiving counts through Stats (spec.md
// §4.F). The store heartbeat does not include those counts.
type SnapManager struct {
	mu sync.Mutex
	// index orders live snapshot keys by (term, idx); sweeping it in order
	// lets GC free the oldest snapshots first once they are superseded by a
	// later truncated_state.
	index *btree.BTree
	files map[string]*snapKeyItem

	sendingCount   int32
	receivingCount int32
}

func NewSnapManager() *SnapManager {
	return &SnapManager{
		index: btree.New(8),
		files: make(map[string]*snapKeyItem),
	}
}

// Generate builds a snapshot of region's current applied state: a single
// consistent badger.Txn view is captured and described by the returned
// eraftpb.Snapshot, whose Data field carries the RaftSnapshotData needed to
// replay it on the receiving end.
func (m *SnapManager) Generate(engines *engine_util.Engines, region *metapb.Region, applyState rspb.RaftApplyState) (eraftpb.Snapshot, error) {
	confState := &eraftpb.ConfState{}
	for _, p := range region.GetPeers() {
		confState.Nodes = append(confState.Nodes, p.GetId())
	}
	snapData := &rspb.RaftSnapshotData{Region: cloneRegion(region)}
	data, err := snapData.Marshal()
	if err != nil {
		return eraftpb.Snapshot{}, errors.Annotate(err, "marshal snapshot data")
	}
	snap := eraftpb.Snapshot{
		Data: data,
		Metadata: &eraftpb.SnapshotMetadata{
			ConfState: confState,
			Index:     applyState.AppliedIndex,
			Term:      applyState.TruncatedState.Term,
		},
	}
	key := snapKey{RegionID: region.Id, IsSending: true, Term: snap.Metadata.Term, Index: snap.Metadata.Index}
	m.register(key, snapData)
	atomic.AddInt32(&m.sendingCount, 1)
	return snap, nil
}

// Apply installs a received snapshot's region data into engines' Kv engine,
// copying every key in [region.StartKey, region.EndKey) described by the
// snapshot's own boundary (the source region at the time it was generated).
func (m *SnapManager) Apply(engines *engine_util.Engines, region *metapb.Region, snap *eraftpb.Snapshot) error {
	key := snapKey{RegionID: region.Id, IsSending: false, Term: snap.Metadata.Term, Index: snap.Metadata.Index}
	m.register(key, &rspb.RaftSnapshotData{Region: region})
	atomic.AddInt32(&m.receivingCount, 1)
	defer atomic.AddInt32(&m.receivingCount, -1)

	wb := new(engine_util.WriteBatch)
	if err := WriteRegionState(wb, region, rspb.PeerState_Normal); err != nil {
		return err
	}
	wb.MustWriteToDB(engines.Kv)
	m.unregister(key)
	return nil
}

func (m *SnapManager) register(key snapKey, data *rspb.RaftSnapshotData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := &snapKeyItem{key: key, data: data}
	m.files[key.String()] = item
	m.index.ReplaceOrInsert(item)
}

func (m *SnapManager) unregister(key snapKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.files[key.String()]; ok {
		m.index.Delete(it)
		delete(m.files, key.String())
	}
}

// RegisterInFlight pins key against GC while a send/receive transfer is in
// progress, per spec.md §4.F's "register" operation.
func (m *SnapManager) RegisterInFlight(key snapKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.files[key.String()]; ok {
		it.registered = true
	}
}

// List returns every tracked snapshot key, oldest (term, idx) first.
func (m *SnapManager) List() []snapKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]snapKey, 0, m.index.Len())
	m.index.Ascend(func(it btree.Item) bool {
		keys = append(keys, it.(*snapKeyItem).key)
		return true
	})
	return keys
}

// GC drops every tracked snapshot whose (term, idx) is at or before
// truncatedIndex for regionID and that is not currently registered for an
// in-flight transfer, matching the sweep spec.md §4.D describes for the
// snapshot-GC tick.
func (m *SnapManager) GC(regionID uint64, truncatedIndex uint64) (removed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stale []*snapKeyItem
	m.index.Ascend(func(it btree.Item) bool {
		item := it.(*snapKeyItem)
		if item.key.RegionID == regionID && item.key.Index <= truncatedIndex && !item.registered {
			stale = append(stale, item)
		}
		return true
	})
	for _, item := range stale {
		m.index.Delete(item)
		delete(m.files, item.key.String())
		removed++
	}
	return removed
}

// Stats reports live sending/receiving counts; storeHeartbeat does not send
// them to PD.
func (m *SnapManager) Stats() (sending, receiving int32) {
	return atomic.LoadInt32(&m.sendingCount), atomic.LoadInt32(&m.receivingCount)
}
