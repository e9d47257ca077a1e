// Package raft_serverpb defines the persisted layout of §6 (RegionLocalState,
// RaftApplyState) and the inter-store Raft message envelope (RaftMessage).
package raft_serverpb

import (
	fmt "fmt"

	proto "github.com/gogo/protobuf/proto"

	"github.com/ridgekv/ridgekv/proto/eraftpb"
	"github.com/ridgekv/ridgekv/proto/metapb"
)

type PeerState int32

const (
	PeerState_Normal    PeerState = 0
	PeerState_Applying  PeerState = 1
	PeerState_Tombstone PeerState = 2
)

func (s PeerState) String() string {
	switch s {
	case PeerState_Normal:
		return "Normal"
	case PeerState_Applying:
		return "Applying"
	case PeerState_Tombstone:
		return "Tombstone"
	}
	return "Unknown"
}

// RegionLocalState is persisted at codec.RegionStateKey(region_id) in the Kv
// engine.
type RegionLocalState struct {
	State  PeerState      `protobuf:"varint,1,opt,name=state,enum=raft_serverpb.PeerState" json:"state,omitempty"`
	Region *metapb.Region `protobuf:"bytes,2,opt,name=region" json:"region,omitempty"`
}

func (m *RegionLocalState) Reset()         { *m = RegionLocalState{} }
func (m *RegionLocalState) String() string { return fmt.Sprintf("%+v", *m) }
func (*RegionLocalState) ProtoMessage()    {}
func (m *RegionLocalState) Marshal() ([]byte, error)   { return proto.Marshal(m) }
func (m *RegionLocalState) Unmarshal(data []byte) error { return proto.Unmarshal(data, m) }

// RaftTruncatedState is the (index, term) of the last log entry that has
// been compacted away.
type RaftTruncatedState struct {
	Index uint64 `protobuf:"varint,1,opt,name=index" json:"index,omitempty"`
	Term  uint64 `protobuf:"varint,2,opt,name=term" json:"term,omitempty"`
}

func (m *RaftTruncatedState) Reset()         { *m = RaftTruncatedState{} }
func (m *RaftTruncatedState) String() string { return fmt.Sprintf("%+v", *m) }
func (*RaftTruncatedState) ProtoMessage()    {}

// RaftApplyState is persisted at codec.RaftApplyStateKey(region_id) in the
// Kv engine, in the SAME atomic write batch as the user mutations of the
// entry it describes.
type RaftApplyState struct {
	AppliedIndex   uint64              `protobuf:"varint,1,opt,name=applied_index,json=appliedIndex" json:"applied_index,omitempty"`
	TruncatedState *RaftTruncatedState `protobuf:"bytes,2,opt,name=truncated_state,json=truncatedState" json:"truncated_state,omitempty"`
}

func (m *RaftApplyState) Reset()         { *m = RaftApplyState{} }
func (m *RaftApplyState) String() string { return fmt.Sprintf("%+v", *m) }
func (*RaftApplyState) ProtoMessage()    {}
func (m *RaftApplyState) Marshal() ([]byte, error)   { return proto.Marshal(m) }
func (m *RaftApplyState) Unmarshal(data []byte) error { return proto.Unmarshal(data, m) }

// RaftLocalState tracks the last index/term written to the raft log and
// the current HardState, persisted at codec.RaftLocalStateKey(region_id) in
// the Raft engine.
type RaftLocalState struct {
	HardState *eraftpb.HardState `protobuf:"bytes,1,opt,name=hard_state,json=hardState" json:"hard_state,omitempty"`
	LastIndex uint64             `protobuf:"varint,2,opt,name=last_index,json=lastIndex" json:"last_index,omitempty"`
	LastTerm  uint64             `protobuf:"varint,3,opt,name=last_term,json=lastTerm" json:"last_term,omitempty"`
}

func (m *RaftLocalState) Reset()         { *m = RaftLocalState{} }
func (m *RaftLocalState) String() string { return fmt.Sprintf("%+v", *m) }
func (*RaftLocalState) ProtoMessage()    {}
func (m *RaftLocalState) Marshal() ([]byte, error)   { return proto.Marshal(m) }
func (m *RaftLocalState) Unmarshal(data []byte) error { return proto.Unmarshal(data, m) }

// RaftSnapshotData is the header embedded in a snapshot file alongside the
// (cf,key,value) data stream: enough to reconstruct the region.
type RaftSnapshotData struct {
	Region *metapb.Region `protobuf:"bytes,1,opt,name=region" json:"region,omitempty"`
}

func (m *RaftSnapshotData) Reset()         { *m = RaftSnapshotData{} }
func (m *RaftSnapshotData) String() string { return fmt.Sprintf("%+v", *m) }
func (*RaftSnapshotData) ProtoMessage()    {}
func (m *RaftSnapshotData) Marshal() ([]byte, error)   { return proto.Marshal(m) }
func (m *RaftSnapshotData) Unmarshal(data []byte) error { return proto.Unmarshal(data, m) }

// RaftMessage is the per-store envelope transporting one embedded Raft
// consensus Message between two peers of the same region.
type RaftMessage struct {
	RegionId    uint64              `protobuf:"varint,1,opt,name=region_id,json=regionId" json:"region_id,omitempty"`
	FromPeer    *metapb.Peer        `protobuf:"bytes,2,opt,name=from_peer,json=fromPeer" json:"from_peer,omitempty"`
	ToPeer      *metapb.Peer        `protobuf:"bytes,3,opt,name=to_peer,json=toPeer" json:"to_peer,omitempty"`
	Message     *eraftpb.Message    `protobuf:"bytes,4,opt,name=message" json:"message,omitempty"`
	RegionEpoch *metapb.RegionEpoch `protobuf:"bytes,5,opt,name=region_epoch,json=regionEpoch" json:"region_epoch,omitempty"`
	IsTombstone bool                `protobuf:"varint,6,opt,name=is_tombstone,json=isTombstone" json:"is_tombstone,omitempty"`
	StartKey    []byte              `protobuf:"bytes,7,opt,name=start_key,json=startKey" json:"start_key,omitempty"`
	EndKey      []byte              `protobuf:"bytes,8,opt,name=end_key,json=endKey" json:"end_key,omitempty"`
}

func (m *RaftMessage) Reset()         { *m = RaftMessage{} }
func (m *RaftMessage) String() string { return fmt.Sprintf("%+v", *m) }
func (*RaftMessage) ProtoMessage()    {}
func (m *RaftMessage) Marshal() ([]byte, error)   { return proto.Marshal(m) }
func (m *RaftMessage) Unmarshal(data []byte) error { return proto.Unmarshal(data, m) }

func (m *RaftMessage) GetRegionEpoch() *metapb.RegionEpoch {
	if m != nil {
		return m.RegionEpoch
	}
	return nil
}
func (m *RaftMessage) GetIsTombstone() bool {
	if m != nil {
		return m.IsTombstone
	}
	return false
}

// Initialized reports whether r fully describes an established region (used
// to distinguish a just-created placeholder peer from an initialized one).
func (s *RegionLocalState) Initialized() bool {
	return s != nil && s.Region != nil && len(s.Region.Peers) > 0
}

// Done is the empty acknowledgement sent back on the Raft message stream.
type Done struct{}

func (m *Done) Reset()         { *m = Done{} }
func (m *Done) String() string { return "Done{}" }
func (*Done) ProtoMessage()    {}
