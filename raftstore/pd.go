package raftstore

import (
	"fmt"

	units "github.com/docker/go-units"
	"github.com/pingcap/log"

	"github.com/ridgekv/ridgekv/proto/metapb"
	"github.com/ridgekv/ridgekv/proto/raft_cmdpb"
)

// PDClient is the placement-driver facing half of the store's ambient
// traffic: region/store heartbeats and split id allocation. A real
// deployment backs this with an RPC client to the PD cluster; tests and the
// single-node bootstrap path can run with a nil PDClient, in which case
// heartbeats are skipped and split-check results are dropped without
// proposing a split.
type PDClient interface {
	// AskSplit allocates a fresh region id and one new peer id per existing
	// peer in region, the input the Split admin command needs.
	AskSplit(region *metapb.Region, splitKey []byte) (newRegionID uint64, newPeerIDs []uint64, err error)
	// RegionHeartbeat reports a leader's view of its region to PD.
	RegionHeartbeat(region *metapb.Region, leader *metapb.Peer, approxSize uint64)
	// StoreHeartbeat reports this store's aggregate capacity/usage to PD.
	StoreHeartbeat(storeID uint64, capacity, available uint64)
}

// heartbeatPD reports p's current region state to PD, if a PDClient is
// configured and p is the leader. It reports only the region, the leader
// peer and the region's approximate size; no capacity figures are sent
// here (spec.md §4.D's "PD heartbeat" tick).
func (s *Store) heartbeatPD(p *peer) {
	if s.pdClient == nil {
		return
	}
	if !p.IsLeader() {
		return
	}
	region := p.Region()
	var approxSize uint64
	if p.ApproximateSize != nil {
		approxSize = *p.ApproximateSize
	}
	s.pdClient.RegionHeartbeat(region, p.Meta, approxSize)
	log.Debug(fmt.Sprintf("%v heartbeat region size=%s", p.Tag, units.BytesSize(float64(approxSize))))
}

// storeHeartbeat reports aggregate store capacity; Store.Tick calls it
// every storeHeartbeatEveryTick base ticks, the slower
// PdStoreHeartbeatTickInterval cadence (spec.md §6 "capacity").
func (s *Store) storeHeartbeat() {
	if s.pdClient == nil {
		return
	}
	capacity := s.cfg.Capacity
	if capacity == 0 {
		capacity = units.GiB * 100
	}
	s.pdClient.StoreHeartbeat(s.id, capacity, capacity)
}

// adminSplitRequest builds the Split AdminRequest a leader sends to itself
// once PD has allocated ids for the new sibling region (spec.md §4.C
// "Split").
func adminSplitRequest(region *metapb.Region, splitKey []byte, newRegionID uint64, newPeerIDs []uint64) *raft_cmdpb.RaftCmdRequest {
	return &raft_cmdpb.RaftCmdRequest{
		Header: &raft_cmdpb.RaftRequestHeader{RegionId: region.Id, RegionEpoch: region.RegionEpoch},
		AdminRequest: &raft_cmdpb.AdminRequest{
			CmdType: raft_cmdpb.AdminCmdType_Split,
			Split: &raft_cmdpb.SplitRequest{
				SplitKey:    splitKey,
				NewRegionId: newRegionID,
				NewPeerIds:  newPeerIDs,
			},
		},
	}
}
