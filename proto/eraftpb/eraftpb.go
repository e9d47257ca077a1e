// Package eraftpb defines the wire messages of the embedded Raft consensus
// core (package raft): log entries, the inter-peer Message envelope,
// persisted HardState, Snapshot and its metadata, and ConfChange.
package eraftpb

import (
	fmt "fmt"

	proto "github.com/gogo/protobuf/proto"
)

type EntryType int32

const (
	EntryType_EntryNormal     EntryType = 0
	EntryType_EntryConfChange EntryType = 1
)

var EntryType_name = map[int32]string{
	0: "EntryNormal",
	1: "EntryConfChange",
}

func (t EntryType) String() string { return EntryType_name[int32(t)] }

type MessageType int32

const (
	MessageType_MsgHup            MessageType = 0
	MessageType_MsgBeat           MessageType = 1
	MessageType_MsgPropose        MessageType = 2
	MessageType_MsgAppend         MessageType = 3
	MessageType_MsgAppendResponse MessageType = 4
	MessageType_MsgRequestVote    MessageType = 5
	MessageType_MsgRequestVoteResponse MessageType = 6
	MessageType_MsgSnapshot       MessageType = 7
	MessageType_MsgHeartbeat      MessageType = 8
	MessageType_MsgHeartbeatResponse MessageType = 9
	MessageType_MsgTransferLeader MessageType = 11
	MessageType_MsgTimeoutNow     MessageType = 12
)

var MessageType_name = map[int32]string{
	0:  "MsgHup",
	1:  "MsgBeat",
	2:  "MsgPropose",
	3:  "MsgAppend",
	4:  "MsgAppendResponse",
	5:  "MsgRequestVote",
	6:  "MsgRequestVoteResponse",
	7:  "MsgSnapshot",
	8:  "MsgHeartbeat",
	9:  "MsgHeartbeatResponse",
	11: "MsgTransferLeader",
	12: "MsgTimeoutNow",
}

func (t MessageType) String() string { return MessageType_name[int32(t)] }

type ConfChangeType int32

const (
	ConfChangeType_AddNode    ConfChangeType = 0
	ConfChangeType_RemoveNode ConfChangeType = 1
)

var ConfChangeType_name = map[int32]string{0: "AddNode", 1: "RemoveNode"}

func (t ConfChangeType) String() string { return ConfChangeType_name[int32(t)] }

// Entry is one Raft log entry.
type Entry struct {
	EntryType EntryType `protobuf:"varint,1,opt,name=entry_type,json=entryType,enum=eraftpb.EntryType" json:"entry_type,omitempty"`
	Term      uint64    `protobuf:"varint,2,opt,name=term" json:"term,omitempty"`
	Index     uint64    `protobuf:"varint,3,opt,name=index" json:"index,omitempty"`
	Data      []byte    `protobuf:"bytes,4,opt,name=data" json:"data,omitempty"`
}

func (m *Entry) Reset()         { *m = Entry{} }
func (m *Entry) String() string { return fmt.Sprintf("%+v", *m) }
func (*Entry) ProtoMessage()    {}
func (m *Entry) Marshal() ([]byte, error)   { return proto.Marshal(m) }
func (m *Entry) Unmarshal(data []byte) error { return proto.Unmarshal(data, m) }

// SnapshotMetadata describes the ConfState and (index,term) a snapshot was
// taken at.
type SnapshotMetadata struct {
	ConfState *ConfState `protobuf:"bytes,1,opt,name=conf_state,json=confState" json:"conf_state,omitempty"`
	Index     uint64     `protobuf:"varint,2,opt,name=index" json:"index,omitempty"`
	Term      uint64     `protobuf:"varint,3,opt,name=term" json:"term,omitempty"`
}

func (m *SnapshotMetadata) Reset()         { *m = SnapshotMetadata{} }
func (m *SnapshotMetadata) String() string { return fmt.Sprintf("%+v", *m) }
func (*SnapshotMetadata) ProtoMessage()    {}
func (m *SnapshotMetadata) Marshal() ([]byte, error)   { return proto.Marshal(m) }
func (m *SnapshotMetadata) Unmarshal(data []byte) error { return proto.Unmarshal(data, m) }
func (m *SnapshotMetadata) GetIndex() uint64 {
	if m != nil {
		return m.Index
	}
	return 0
}
func (m *SnapshotMetadata) GetTerm() uint64 {
	if m != nil {
		return m.Term
	}
	return 0
}

// Snapshot carries an opaque Data payload (the region's engine data, encoded
// by raftstore/snap) plus the metadata above.
type Snapshot struct {
	Data     []byte            `protobuf:"bytes,1,opt,name=data" json:"data,omitempty"`
	Metadata *SnapshotMetadata `protobuf:"bytes,2,opt,name=metadata" json:"metadata,omitempty"`
}

func (m *Snapshot) Reset()         { *m = Snapshot{} }
func (m *Snapshot) String() string { return fmt.Sprintf("%+v", *m) }
func (*Snapshot) ProtoMessage()    {}
func (m *Snapshot) Marshal() ([]byte, error)   { return proto.Marshal(m) }
func (m *Snapshot) Unmarshal(data []byte) error { return proto.Unmarshal(data, m) }
func (m *Snapshot) GetMetadata() *SnapshotMetadata {
	if m != nil {
		return m.Metadata
	}
	return nil
}
func (m *Snapshot) GetData() []byte {
	if m != nil {
		return m.Data
	}
	return nil
}

func (m *Snapshot) IsEmpty() bool {
	return m == nil || m.Metadata == nil || m.Metadata.Index == 0
}

// ConfState is the set of voter node IDs recorded in a snapshot.
type ConfState struct {
	Nodes []uint64 `protobuf:"varint,1,rep,name=nodes" json:"nodes,omitempty"`
}

func (m *ConfState) Reset()         { *m = ConfState{} }
func (m *ConfState) String() string { return fmt.Sprintf("%+v", *m) }
func (*ConfState) ProtoMessage()    {}
func (m *ConfState) Marshal() ([]byte, error)   { return proto.Marshal(m) }
func (m *ConfState) Unmarshal(data []byte) error { return proto.Unmarshal(data, m) }

// HardState is the subset of Raft state that must be persisted before a
// response is sent: the current term, vote and commit index.
type HardState struct {
	Term   uint64 `protobuf:"varint,1,opt,name=term" json:"term,omitempty"`
	Vote   uint64 `protobuf:"varint,2,opt,name=vote" json:"vote,omitempty"`
	Commit uint64 `protobuf:"varint,3,opt,name=commit" json:"commit,omitempty"`
}

func (m *HardState) Reset()         { *m = HardState{} }
func (m *HardState) String() string { return fmt.Sprintf("%+v", *m) }
func (*HardState) ProtoMessage()    {}
func (m *HardState) Marshal() ([]byte, error)   { return proto.Marshal(m) }
func (m *HardState) Unmarshal(data []byte) error { return proto.Unmarshal(data, m) }

func (a HardState) Equal(b HardState) bool {
	return a.Term == b.Term && a.Vote == b.Vote && a.Commit == b.Commit
}

func (hs HardState) IsEmpty() bool {
	return hs.Term == 0 && hs.Vote == 0 && hs.Commit == 0
}

// Message is the envelope for every inter-peer Raft RPC: votes, appends,
// heartbeats, snapshots and their responses.
type Message struct {
	MsgType      MessageType `protobuf:"varint,1,opt,name=msg_type,json=msgType,enum=eraftpb.MessageType" json:"msg_type,omitempty"`
	To           uint64      `protobuf:"varint,2,opt,name=to" json:"to,omitempty"`
	From         uint64      `protobuf:"varint,3,opt,name=from" json:"from,omitempty"`
	Term         uint64      `protobuf:"varint,4,opt,name=term" json:"term,omitempty"`
	LogTerm      uint64      `protobuf:"varint,5,opt,name=log_term,json=logTerm" json:"log_term,omitempty"`
	Index        uint64      `protobuf:"varint,6,opt,name=index" json:"index,omitempty"`
	Entries      []*Entry    `protobuf:"bytes,7,rep,name=entries" json:"entries,omitempty"`
	Commit       uint64      `protobuf:"varint,8,opt,name=commit" json:"commit,omitempty"`
	Snapshot     *Snapshot   `protobuf:"bytes,9,opt,name=snapshot" json:"snapshot,omitempty"`
	Reject       bool        `protobuf:"varint,10,opt,name=reject" json:"reject,omitempty"`
	RejectHint   uint64      `protobuf:"varint,11,opt,name=reject_hint,json=rejectHint" json:"reject_hint,omitempty"`
}

func (m *Message) Reset()         { *m = Message{} }
func (m *Message) String() string { return fmt.Sprintf("%+v", *m) }
func (*Message) ProtoMessage()    {}
func (m *Message) Marshal() ([]byte, error)   { return proto.Marshal(m) }
func (m *Message) Unmarshal(data []byte) error { return proto.Unmarshal(data, m) }

// ConfChange is the special log entry that adds or removes a peer.
type ConfChange struct {
	ChangeType ConfChangeType `protobuf:"varint,1,opt,name=change_type,json=changeType,enum=eraftpb.ConfChangeType" json:"change_type,omitempty"`
	NodeId     uint64         `protobuf:"varint,2,opt,name=node_id,json=nodeId" json:"node_id,omitempty"`
	Context    []byte         `protobuf:"bytes,3,opt,name=context" json:"context,omitempty"`
}

func (m *ConfChange) Reset()         { *m = ConfChange{} }
func (m *ConfChange) String() string { return fmt.Sprintf("%+v", *m) }
func (*ConfChange) ProtoMessage()    {}
func (m *ConfChange) Marshal() ([]byte, error)   { return proto.Marshal(m) }
func (m *ConfChange) Unmarshal(data []byte) error { return proto.Unmarshal(data, m) }
