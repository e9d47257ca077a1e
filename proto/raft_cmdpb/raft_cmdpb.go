// Package raft_cmdpb defines the client request/response surface described
// in spec.md §6: RaftCmdRequest/Response, the data-op Requests
// (Get/Seek/Put/Delete/Snap), the admin ops (ChangePeer/Split/CompactLog/
// TransferLeader) and the out-of-Raft status ops.
package raft_cmdpb

import (
	fmt "fmt"

	proto "github.com/gogo/protobuf/proto"

	"github.com/ridgekv/ridgekv/proto/eraftpb"
	"github.com/ridgekv/ridgekv/proto/metapb"
)

type CmdType int32

const (
	CmdType_Invalid CmdType = 0
	CmdType_Get     CmdType = 1
	CmdType_Put     CmdType = 2
	CmdType_Delete  CmdType = 3
	CmdType_Snap    CmdType = 4
	CmdType_Seek    CmdType = 5
)

type AdminCmdType int32

const (
	AdminCmdType_InvalidAdmin  AdminCmdType = 0
	AdminCmdType_ChangePeer    AdminCmdType = 1
	AdminCmdType_Split         AdminCmdType = 2
	AdminCmdType_CompactLog    AdminCmdType = 3
	AdminCmdType_TransferLeader AdminCmdType = 4
)

type StatusCmdType int32

const (
	StatusCmdType_InvalidStatus StatusCmdType = 0
	StatusCmdType_RegionLeader  StatusCmdType = 1
	StatusCmdType_RegionDetail  StatusCmdType = 2
)

// --- Request header ---

type RaftRequestHeader struct {
	RegionId    uint64             `protobuf:"varint,1,opt,name=region_id,json=regionId" json:"region_id,omitempty"`
	Peer        *metapb.Peer       `protobuf:"bytes,2,opt,name=peer" json:"peer,omitempty"`
	RegionEpoch *metapb.RegionEpoch `protobuf:"bytes,3,opt,name=region_epoch,json=regionEpoch" json:"region_epoch,omitempty"`
	Uuid        []byte             `protobuf:"bytes,4,opt,name=uuid" json:"uuid,omitempty"`
}

func (m *RaftRequestHeader) Reset()         { *m = RaftRequestHeader{} }
func (m *RaftRequestHeader) String() string { return fmt.Sprintf("%+v", *m) }
func (*RaftRequestHeader) ProtoMessage()    {}

// --- data op requests ---

type GetRequest struct {
	Cf  string `protobuf:"bytes,1,opt,name=cf" json:"cf,omitempty"`
	Key []byte `protobuf:"bytes,2,opt,name=key" json:"key,omitempty"`
}

func (m *GetRequest) GetCf() string  { if m != nil { return m.Cf }; return "" }
func (m *GetRequest) GetKey() []byte { if m != nil { return m.Key }; return nil }

type GetResponse struct {
	Value []byte `protobuf:"bytes,1,opt,name=value" json:"value,omitempty"`
}

type PutRequest struct {
	Cf    string `protobuf:"bytes,1,opt,name=cf" json:"cf,omitempty"`
	Key   []byte `protobuf:"bytes,2,opt,name=key" json:"key,omitempty"`
	Value []byte `protobuf:"bytes,3,opt,name=value" json:"value,omitempty"`
}

func (m *PutRequest) GetCf() string    { if m != nil { return m.Cf }; return "" }
func (m *PutRequest) GetKey() []byte   { if m != nil { return m.Key }; return nil }
func (m *PutRequest) GetValue() []byte { if m != nil { return m.Value }; return nil }

type PutResponse struct{}

type DeleteRequest struct {
	Cf  string `protobuf:"bytes,1,opt,name=cf" json:"cf,omitempty"`
	Key []byte `protobuf:"bytes,2,opt,name=key" json:"key,omitempty"`
}

func (m *DeleteRequest) GetCf() string  { if m != nil { return m.Cf }; return "" }
func (m *DeleteRequest) GetKey() []byte { if m != nil { return m.Key }; return nil }

type DeleteResponse struct{}

type SeekRequest struct {
	Cf  string `protobuf:"bytes,1,opt,name=cf" json:"cf,omitempty"`
	Key []byte `protobuf:"bytes,2,opt,name=key" json:"key,omitempty"`
}

type SeekResponse struct {
	Key   []byte `protobuf:"bytes,1,opt,name=key" json:"key,omitempty"`
	Value []byte `protobuf:"bytes,2,opt,name=value" json:"value,omitempty"`
}

type SnapRequest struct{}

type SnapResponse struct {
	Region *metapb.Region `protobuf:"bytes,1,opt,name=region" json:"region,omitempty"`
}

type Request struct {
	CmdType CmdType        `protobuf:"varint,1,opt,name=cmd_type,json=cmdType,enum=raft_cmdpb.CmdType" json:"cmd_type,omitempty"`
	Get     *GetRequest    `protobuf:"bytes,2,opt,name=get" json:"get,omitempty"`
	Put     *PutRequest    `protobuf:"bytes,3,opt,name=put" json:"put,omitempty"`
	Delete  *DeleteRequest `protobuf:"bytes,4,opt,name=delete" json:"delete,omitempty"`
	Snap    *SnapRequest   `protobuf:"bytes,5,opt,name=snap" json:"snap,omitempty"`
	Seek    *SeekRequest   `protobuf:"bytes,6,opt,name=seek" json:"seek,omitempty"`
}

func (m *Request) GetGet() *GetRequest       { if m != nil { return m.Get }; return nil }
func (m *Request) GetPut() *PutRequest       { if m != nil { return m.Put }; return nil }
func (m *Request) GetDelete() *DeleteRequest { if m != nil { return m.Delete }; return nil }
func (m *Request) GetSnap() *SnapRequest     { if m != nil { return m.Snap }; return nil }
func (m *Request) GetSeek() *SeekRequest     { if m != nil { return m.Seek }; return nil }

type Response struct {
	CmdType CmdType       `protobuf:"varint,1,opt,name=cmd_type,json=cmdType,enum=raft_cmdpb.CmdType" json:"cmd_type,omitempty"`
	Get     *GetResponse  `protobuf:"bytes,2,opt,name=get" json:"get,omitempty"`
	Put     *PutResponse  `protobuf:"bytes,3,opt,name=put" json:"put,omitempty"`
	Delete  *DeleteResponse `protobuf:"bytes,4,opt,name=delete" json:"delete,omitempty"`
	Snap    *SnapResponse `protobuf:"bytes,5,opt,name=snap" json:"snap,omitempty"`
	Seek    *SeekResponse `protobuf:"bytes,6,opt,name=seek" json:"seek,omitempty"`
}

// --- admin ---

type ChangePeerRequest struct {
	ChangeType eraftpb.ConfChangeType `protobuf:"varint,1,opt,name=change_type,json=changeType,enum=eraftpb.ConfChangeType" json:"change_type,omitempty"`
	Peer       *metapb.Peer           `protobuf:"bytes,2,opt,name=peer" json:"peer,omitempty"`
}

func (m *ChangePeerRequest) GetChangeType() eraftpb.ConfChangeType { if m != nil { return m.ChangeType }; return 0 }
func (m *ChangePeerRequest) GetPeer() *metapb.Peer                 { if m != nil { return m.Peer }; return nil }

type ChangePeerResponse struct {
	Region *metapb.Region `protobuf:"bytes,1,opt,name=region" json:"region,omitempty"`
}

type SplitRequest struct {
	SplitKey    []byte   `protobuf:"bytes,1,opt,name=split_key,json=splitKey" json:"split_key,omitempty"`
	NewRegionId uint64   `protobuf:"varint,2,opt,name=new_region_id,json=newRegionId" json:"new_region_id,omitempty"`
	NewPeerIds  []uint64 `protobuf:"varint,3,rep,name=new_peer_ids,json=newPeerIds" json:"new_peer_ids,omitempty"`
}

type SplitResponse struct {
	Regions []*metapb.Region `protobuf:"bytes,1,rep,name=regions" json:"regions,omitempty"`
}

type CompactLogRequest struct {
	CompactIndex uint64 `protobuf:"varint,1,opt,name=compact_index,json=compactIndex" json:"compact_index,omitempty"`
	CompactTerm  uint64 `protobuf:"varint,2,opt,name=compact_term,json=compactTerm" json:"compact_term,omitempty"`
}

type CompactLogResponse struct{}

type TransferLeaderRequest struct {
	Peer *metapb.Peer `protobuf:"bytes,1,opt,name=peer" json:"peer,omitempty"`
}

type TransferLeaderResponse struct{}

type AdminRequest struct {
	CmdType        AdminCmdType           `protobuf:"varint,1,opt,name=cmd_type,json=cmdType,enum=raft_cmdpb.AdminCmdType" json:"cmd_type,omitempty"`
	ChangePeer     *ChangePeerRequest     `protobuf:"bytes,2,opt,name=change_peer,json=changePeer" json:"change_peer,omitempty"`
	Split          *SplitRequest          `protobuf:"bytes,3,opt,name=split" json:"split,omitempty"`
	CompactLog     *CompactLogRequest     `protobuf:"bytes,4,opt,name=compact_log,json=compactLog" json:"compact_log,omitempty"`
	TransferLeader *TransferLeaderRequest `protobuf:"bytes,5,opt,name=transfer_leader,json=transferLeader" json:"transfer_leader,omitempty"`
}

type AdminResponse struct {
	CmdType        AdminCmdType            `protobuf:"varint,1,opt,name=cmd_type,json=cmdType,enum=raft_cmdpb.AdminCmdType" json:"cmd_type,omitempty"`
	ChangePeer     *ChangePeerResponse     `protobuf:"bytes,2,opt,name=change_peer,json=changePeer" json:"change_peer,omitempty"`
	Split          *SplitResponse          `protobuf:"bytes,3,opt,name=split" json:"split,omitempty"`
	CompactLog     *CompactLogResponse     `protobuf:"bytes,4,opt,name=compact_log,json=compactLog" json:"compact_log,omitempty"`
	TransferLeader *TransferLeaderResponse `protobuf:"bytes,5,opt,name=transfer_leader,json=transferLeader" json:"transfer_leader,omitempty"`
}

// --- status (handled outside raft) ---

type RegionLeaderRequest struct{}
type RegionLeaderResponse struct {
	Leader *metapb.Peer `protobuf:"bytes,1,opt,name=leader" json:"leader,omitempty"`
}

type RegionDetailRequest struct{}
type RegionDetailResponse struct {
	Region *metapb.Region `protobuf:"bytes,1,opt,name=region" json:"region,omitempty"`
	Leader *metapb.Peer   `protobuf:"bytes,2,opt,name=leader" json:"leader,omitempty"`
}

type StatusRequest struct {
	CmdType      StatusCmdType        `protobuf:"varint,1,opt,name=cmd_type,json=cmdType,enum=raft_cmdpb.StatusCmdType" json:"cmd_type,omitempty"`
	RegionLeader *RegionLeaderRequest `protobuf:"bytes,2,opt,name=region_leader,json=regionLeader" json:"region_leader,omitempty"`
	RegionDetail *RegionDetailRequest `protobuf:"bytes,3,opt,name=region_detail,json=regionDetail" json:"region_detail,omitempty"`
}

type StatusResponse struct {
	CmdType      StatusCmdType         `protobuf:"varint,1,opt,name=cmd_type,json=cmdType,enum=raft_cmdpb.StatusCmdType" json:"cmd_type,omitempty"`
	RegionLeader *RegionLeaderResponse `protobuf:"bytes,2,opt,name=region_leader,json=regionLeader" json:"region_leader,omitempty"`
	RegionDetail *RegionDetailResponse `protobuf:"bytes,3,opt,name=region_detail,json=regionDetail" json:"region_detail,omitempty"`
}

// --- error response header ---

type Error struct {
	Message string `protobuf:"bytes,1,opt,name=message" json:"message,omitempty"`
}

type RaftResponseHeader struct {
	Error       *Error              `protobuf:"bytes,1,opt,name=error" json:"error,omitempty"`
	CurrentTerm uint64              `protobuf:"varint,2,opt,name=current_term,json=currentTerm" json:"current_term,omitempty"`
}

// --- top level ---

type RaftCmdRequest struct {
	Header       *RaftRequestHeader `protobuf:"bytes,1,opt,name=header" json:"header,omitempty"`
	Requests     []*Request         `protobuf:"bytes,2,rep,name=requests" json:"requests,omitempty"`
	AdminRequest *AdminRequest      `protobuf:"bytes,3,opt,name=admin_request,json=adminRequest" json:"admin_request,omitempty"`
	StatusRequest *StatusRequest    `protobuf:"bytes,4,opt,name=status_request,json=statusRequest" json:"status_request,omitempty"`
}

func (m *RaftCmdRequest) Reset()         { *m = RaftCmdRequest{} }
func (m *RaftCmdRequest) String() string { return fmt.Sprintf("%+v", *m) }
func (*RaftCmdRequest) ProtoMessage()    {}
func (m *RaftCmdRequest) Marshal() ([]byte, error)   { return proto.Marshal(m) }
func (m *RaftCmdRequest) Unmarshal(data []byte) error { return proto.Unmarshal(data, m) }

func (m *RaftCmdRequest) GetHeader() *RaftRequestHeader { if m != nil { return m.Header }; return nil }
func (m *RaftCmdRequest) GetRequests() []*Request       { if m != nil { return m.Requests }; return nil }

type RaftCmdResponse struct {
	Header        *RaftResponseHeader `protobuf:"bytes,1,opt,name=header" json:"header,omitempty"`
	Responses     []*Response         `protobuf:"bytes,2,rep,name=responses" json:"responses,omitempty"`
	AdminResponse *AdminResponse      `protobuf:"bytes,3,opt,name=admin_response,json=adminResponse" json:"admin_response,omitempty"`
	StatusResponse *StatusResponse    `protobuf:"bytes,4,opt,name=status_response,json=statusResponse" json:"status_response,omitempty"`
}

func (m *RaftCmdResponse) Reset()         { *m = RaftCmdResponse{} }
func (m *RaftCmdResponse) String() string { return fmt.Sprintf("%+v", *m) }
func (*RaftCmdResponse) ProtoMessage()    {}
func (m *RaftCmdResponse) Marshal() ([]byte, error)   { return proto.Marshal(m) }
func (m *RaftCmdResponse) Unmarshal(data []byte) error { return proto.Unmarshal(data, m) }
