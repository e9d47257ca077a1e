// Package raftstore is component C/D/E/F: the region Peer and its
// Applier, the store scheduler event loop, background workers, and the
// snapshot manager that together turn Raft readiness into durable side
// effects (spec.md §4.C-F).
package raftstore

import (
	"fmt"

	"github.com/ridgekv/ridgekv/proto/eraftpb"
	"github.com/ridgekv/ridgekv/proto/metapb"
	"github.com/ridgekv/ridgekv/proto/raft_cmdpb"
)

// InvalidID is never a legitimate peer or store id.
const InvalidID uint64 = 0

// ErrNotLeader is returned when a request reaches a peer that is not the
// current leader of its region.
type ErrNotLeader struct {
	RegionId uint64
	Leader   *metapb.Peer
}

func (e *ErrNotLeader) Error() string {
	return fmt.Sprintf("region %d is not leader, leader is %v", e.RegionId, e.Leader)
}

// ErrRegionNotFound is returned when a request names a region this store
// does not host.
type ErrRegionNotFound struct {
	RegionId uint64
}

func (e *ErrRegionNotFound) Error() string {
	return fmt.Sprintf("region %d not found", e.RegionId)
}

// ErrStaleEpoch carries the region's latest known epoch so the client can
// refresh its routing table and retry, per spec.md §4.C's epoch check.
type ErrStaleEpoch struct {
	Message   string
	NewRegion *metapb.Region
}

func (e *ErrStaleEpoch) Error() string { return e.Message }

// ErrStaleCommand is returned to a pending proposal when the peer stepped
// down before the entry committed: the request must be retried, as the new
// leader may or may not have executed it.
type ErrStaleCommand struct{}

func (e *ErrStaleCommand) Error() string { return "stale command" }

// ErrDuplicatedUuid is returned when a propose's uuid is already pending.
type ErrDuplicatedUuid struct {
	RegionId uint64
}

func (e *ErrDuplicatedUuid) Error() string {
	return fmt.Sprintf("region %d duplicated propose uuid", e.RegionId)
}

// ErrKeyNotInRegion is returned when a data command names a key outside the
// region's [start, end) boundary, per spec.md §4.C "Exec: data commands".
type ErrKeyNotInRegion struct {
	Key    []byte
	Region *metapb.Region
}

func (e *ErrKeyNotInRegion) Error() string {
	return fmt.Sprintf("key %x is not in region %v", e.Key, e.Region)
}

// checkKeyInRegion validates key falls within region's boundary.
func checkKeyInRegion(key []byte, region *metapb.Region) error {
	if bytesCompare(key, region.StartKey) >= 0 && (len(region.EndKey) == 0 || bytesCompare(key, region.EndKey) < 0) {
		return nil
	}
	return &ErrKeyNotInRegion{Key: key, Region: region}
}

func bytesCompare(a, b []byte) int {
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

// BindRespError fills resp.Header.Error with err's message text; the error
// type itself is not carried in the response.
func BindRespError(resp *raft_cmdpb.RaftCmdResponse, err error) {
	if resp.Header == nil {
		resp.Header = &raft_cmdpb.RaftResponseHeader{}
	}
	resp.Header.Error = &raft_cmdpb.Error{Message: err.Error()}
}

func ErrResp(err error) *raft_cmdpb.RaftCmdResponse {
	resp := &raft_cmdpb.RaftCmdResponse{Header: &raft_cmdpb.RaftResponseHeader{}}
	BindRespError(resp, err)
	return resp
}

func ErrRespStaleCommand(term uint64) *raft_cmdpb.RaftCmdResponse {
	resp := ErrResp(&ErrStaleCommand{})
	resp.Header.CurrentTerm = term
	return resp
}

func ErrRespRegionNotFound(regionID uint64) *raft_cmdpb.RaftCmdResponse {
	return ErrResp(&ErrRegionNotFound{RegionId: regionID})
}

// FindPeer returns the Peer entry of region hosted on storeID, or nil.
func FindPeer(region *metapb.Region, storeID uint64) *metapb.Peer {
	for _, p := range region.GetPeers() {
		if p.GetStoreId() == storeID {
			return p
		}
	}
	return nil
}

// RemovePeer removes, in place, the peer of region hosted on storeID.
func RemovePeer(region *metapb.Region, storeID uint64) {
	peers := region.GetPeers()
	for i, p := range peers {
		if p.GetStoreId() == storeID {
			region.Peers = append(peers[:i], peers[i+1:]...)
			return
		}
	}
}

// checkRegionEpoch runs the propose/apply-time epoch check described in
// spec.md §4.C: write/read requires from.version >= latest.version,
// conf-change requires from.conf_ver >= latest.conf_ver, split requires
// version, transfer-leader requires both, compact-log and invalid skip the
// check entirely.
func checkRegionEpoch(req *raft_cmdpb.RaftCmdRequest, region *metapb.Region, includeRegion bool) error {
	checkVer, checkConfVer := false, false
	if req.AdminRequest == nil {
		checkVer = true
	} else {
		switch req.AdminRequest.CmdType {
		case raft_cmdpb.AdminCmdType_CompactLog, raft_cmdpb.AdminCmdType_InvalidAdmin:
			// no check
		case raft_cmdpb.AdminCmdType_ChangePeer:
			checkConfVer = true
		case raft_cmdpb.AdminCmdType_Split:
			checkVer = true
		case raft_cmdpb.AdminCmdType_TransferLeader:
			checkVer = true
			checkConfVer = true
		}
	}
	if !checkVer && !checkConfVer {
		return nil
	}
	if req.Header == nil || req.Header.RegionEpoch == nil {
		return fmt.Errorf("missing region epoch in request header")
	}
	fromEpoch := req.Header.RegionEpoch
	latestEpoch := region.RegionEpoch

	stale := false
	if checkVer && fromEpoch.Version < latestEpoch.Version {
		stale = true
	}
	if checkConfVer && fromEpoch.ConfVer < latestEpoch.ConfVer {
		stale = true
	}
	if !stale {
		return nil
	}
	errStale := &ErrStaleEpoch{
		Message: fmt.Sprintf("region %d epoch stale, request epoch %v, latest epoch %v", region.Id, fromEpoch, latestEpoch),
	}
	if includeRegion {
		errStale.NewRegion = region
	}
	return errStale
}

// isInitialMsg reports whether m is a message type that may establish
// communication with a not-yet-created peer (RequestVote or Heartbeat),
// the only two message types that carry the sender's region boundary keys.
func isInitialMsg(m *eraftpb.Message) bool {
	return m.MsgType == eraftpb.MessageType_MsgRequestVote || m.MsgType == eraftpb.MessageType_MsgHeartbeat
}

func cloneRegion(r *metapb.Region) *metapb.Region {
	data, err := r.Marshal()
	if err != nil {
		panic(err)
	}
	clone := &metapb.Region{}
	if err := clone.Unmarshal(data); err != nil {
		panic(err)
	}
	return clone
}
