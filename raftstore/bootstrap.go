package raftstore

import (
	"github.com/ridgekv/ridgekv/engine_util"
	"github.com/ridgekv/ridgekv/proto/metapb"
	rspb "github.com/ridgekv/ridgekv/proto/raft_serverpb"
)

// BootstrapFirstRegion is run once, by whichever store starts a brand new
// cluster: it writes the single region spanning the whole keyspace
// ([]byte{}, []byte{}), hosted by one voter on this store, and creates its
// peer. Every later region is the product of a split of this one (spec.md
// §3 "region lifecycle").
func (s *Store) BootstrapFirstRegion(regionID, peerID uint64) (*metapb.Region, error) {
	region := &metapb.Region{
		Id:          regionID,
		RegionEpoch: &metapb.RegionEpoch{ConfVer: 1, Version: 1},
		Peers:       []*metapb.Peer{{Id: peerID, StoreId: s.id}},
	}
	wb := new(engine_util.WriteBatch)
	if err := WriteRegionState(wb, region, rspb.PeerState_Normal); err != nil {
		return nil, err
	}
	if err := wb.WriteToDB(s.engines.Kv); err != nil {
		return nil, err
	}
	if _, err := s.CreatePeer(region); err != nil {
		return nil, err
	}
	return region, nil
}

// IsEmpty reports whether this store hosts no region yet, the condition
// that decides between BootstrapFirstRegion (new cluster) and Bootstrap
// (restart, or a store joining an existing cluster via conf change).
func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers) == 0
}
