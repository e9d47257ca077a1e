// Package kvrpcpb defines the MVCC wire format named in spec.md §3/§6
// (MetaLock, MetaItem, Meta) and the client request/response pairs for the
// transactional store operations of §4.H (prewrite/commit/rollback/...).
package kvrpcpb

import (
	fmt "fmt"

	proto "github.com/gogo/protobuf/proto"

	"github.com/ridgekv/ridgekv/proto/raft_cmdpb"
)

type LockType int32

const (
	LockType_ReadWrite LockType = 0
	LockType_ReadOnly  LockType = 1
)

func (t LockType) String() string {
	if t == LockType_ReadOnly {
		return "ReadOnly"
	}
	return "ReadWrite"
}

// MetaLock is the current lock record for a key under 2PC. At most one
// exists per raw key (spec.md §3 invariant), stored in the lock CF.
type MetaLock struct {
	Primary  []byte   `protobuf:"bytes,1,opt,name=primary" json:"primary,omitempty"`
	StartTs  uint64   `protobuf:"varint,2,opt,name=start_ts,json=startTs" json:"start_ts,omitempty"`
	LockType LockType `protobuf:"varint,3,opt,name=lock_type,json=lockType,enum=kvrpcpb.LockType" json:"lock_type,omitempty"`
}

func (m *MetaLock) Reset()         { *m = MetaLock{} }
func (m *MetaLock) String() string { return fmt.Sprintf("%+v", *m) }
func (*MetaLock) ProtoMessage()    {}
func (m *MetaLock) Marshal() ([]byte, error)   { return proto.Marshal(m) }
func (m *MetaLock) Unmarshal(data []byte) error { return proto.Unmarshal(data, m) }

// MetaItem is one committed-version record within a meta page: newest items
// come first within a page, strictly decreasing commit_ts across the chain.
type MetaItem struct {
	StartTs  uint64 `protobuf:"varint,1,opt,name=start_ts,json=startTs" json:"start_ts,omitempty"`
	CommitTs uint64 `protobuf:"varint,2,opt,name=commit_ts,json=commitTs" json:"commit_ts,omitempty"`
}

func (m *MetaItem) Reset()         { *m = MetaItem{} }
func (m *MetaItem) String() string { return fmt.Sprintf("%+v", *m) }
func (*MetaItem) ProtoMessage()    {}

// Meta is one page of the meta chain for a raw key: an ordered list of
// MetaItems (newest first) plus an optional pointer to the overflow page.
type Meta struct {
	Items     []*MetaItem `protobuf:"bytes,1,rep,name=items" json:"items,omitempty"`
	NextIndex uint64      `protobuf:"varint,2,opt,name=next_index,json=nextIndex" json:"next_index,omitempty"`
	HasNext   bool        `protobuf:"varint,3,opt,name=has_next,json=hasNext" json:"has_next,omitempty"`
}

func (m *Meta) Reset()         { *m = Meta{} }
func (m *Meta) String() string { return fmt.Sprintf("%+v", *m) }
func (*Meta) ProtoMessage()    {}
func (m *Meta) Marshal() ([]byte, error)   { return proto.Marshal(m) }
func (m *Meta) Unmarshal(data []byte) error { return proto.Unmarshal(data, m) }

// --- client request/response pairs for the transactional store (§4.H) ---

type Context struct {
	RegionId    uint64                       `protobuf:"varint,1,opt,name=region_id,json=regionId" json:"region_id,omitempty"`
	Peer        *raft_cmdpb.RaftRequestHeader `protobuf:"bytes,2,opt,name=peer" json:"peer,omitempty"`
}

type Mutation struct {
	Op    MutationOp `protobuf:"varint,1,opt,name=op,enum=kvrpcpb.MutationOp" json:"op,omitempty"`
	Key   []byte     `protobuf:"bytes,2,opt,name=key" json:"key,omitempty"`
	Value []byte     `protobuf:"bytes,3,opt,name=value" json:"value,omitempty"`
}

type MutationOp int32

const (
	MutationOp_Put  MutationOp = 0
	MutationOp_Del  MutationOp = 1
	MutationOp_Lock MutationOp = 2
)

type KeyError struct {
	Locked       *LockInfo `protobuf:"bytes,1,opt,name=locked" json:"locked,omitempty"`
	Retryable    string    `protobuf:"bytes,2,opt,name=retryable" json:"retryable,omitempty"`
	Abort        string    `protobuf:"bytes,3,opt,name=abort" json:"abort,omitempty"`
	AlreadyExist bool      `protobuf:"varint,4,opt,name=already_exist,json=alreadyExist" json:"already_exist,omitempty"`
}

type LockInfo struct {
	PrimaryLock []byte `protobuf:"bytes,1,opt,name=primary_lock,json=primaryLock" json:"primary_lock,omitempty"`
	LockVersion uint64 `protobuf:"varint,2,opt,name=lock_version,json=lockVersion" json:"lock_version,omitempty"`
	Key         []byte `protobuf:"bytes,3,opt,name=key" json:"key,omitempty"`
}

type KvPair struct {
	Error *KeyError `protobuf:"bytes,1,opt,name=error" json:"error,omitempty"`
	Key   []byte    `protobuf:"bytes,2,opt,name=key" json:"key,omitempty"`
	Value []byte    `protobuf:"bytes,3,opt,name=value" json:"value,omitempty"`
}

type GetRequest struct {
	Context *Context `protobuf:"bytes,1,opt,name=context" json:"context,omitempty"`
	Key     []byte   `protobuf:"bytes,2,opt,name=key" json:"key,omitempty"`
	Version uint64   `protobuf:"varint,3,opt,name=version" json:"version,omitempty"`
}

type GetResponse struct {
	Error    *KeyError `protobuf:"bytes,1,opt,name=error" json:"error,omitempty"`
	Value    []byte    `protobuf:"bytes,2,opt,name=value" json:"value,omitempty"`
	NotFound bool      `protobuf:"varint,3,opt,name=not_found,json=notFound" json:"not_found,omitempty"`
}

type BatchGetRequest struct {
	Context *Context `protobuf:"bytes,1,opt,name=context" json:"context,omitempty"`
	Keys    [][]byte `protobuf:"bytes,2,rep,name=keys" json:"keys,omitempty"`
	Version uint64   `protobuf:"varint,3,opt,name=version" json:"version,omitempty"`
}

type BatchGetResponse struct {
	Pairs []*KvPair `protobuf:"bytes,1,rep,name=pairs" json:"pairs,omitempty"`
}

type ScanRequest struct {
	Context *Context `protobuf:"bytes,1,opt,name=context" json:"context,omitempty"`
	StartKey []byte  `protobuf:"bytes,2,opt,name=start_key,json=startKey" json:"start_key,omitempty"`
	Limit    uint32  `protobuf:"varint,3,opt,name=limit" json:"limit,omitempty"`
	Version  uint64  `protobuf:"varint,4,opt,name=version" json:"version,omitempty"`
	Reverse  bool    `protobuf:"varint,5,opt,name=reverse" json:"reverse,omitempty"`
}

type ScanResponse struct {
	Pairs []*KvPair `protobuf:"bytes,1,rep,name=pairs" json:"pairs,omitempty"`
}

type PrewriteRequest struct {
	Context      *Context    `protobuf:"bytes,1,opt,name=context" json:"context,omitempty"`
	Mutations    []*Mutation `protobuf:"bytes,2,rep,name=mutations" json:"mutations,omitempty"`
	PrimaryLock  []byte      `protobuf:"bytes,3,opt,name=primary_lock,json=primaryLock" json:"primary_lock,omitempty"`
	StartVersion uint64      `protobuf:"varint,4,opt,name=start_version,json=startVersion" json:"start_version,omitempty"`
}

type PrewriteResponse struct {
	Errors []*KeyError `protobuf:"bytes,1,rep,name=errors" json:"errors,omitempty"`
}

type CommitRequest struct {
	Context       *Context `protobuf:"bytes,1,opt,name=context" json:"context,omitempty"`
	StartVersion  uint64   `protobuf:"varint,2,opt,name=start_version,json=startVersion" json:"start_version,omitempty"`
	Keys          [][]byte `protobuf:"bytes,3,rep,name=keys" json:"keys,omitempty"`
	CommitVersion uint64   `protobuf:"varint,4,opt,name=commit_version,json=commitVersion" json:"commit_version,omitempty"`
}

type CommitResponse struct {
	Error *KeyError `protobuf:"bytes,1,opt,name=error" json:"error,omitempty"`
}

type CleanupRequest struct {
	Context      *Context `protobuf:"bytes,1,opt,name=context" json:"context,omitempty"`
	Key          []byte   `protobuf:"bytes,2,opt,name=key" json:"key,omitempty"`
	StartVersion uint64   `protobuf:"varint,3,opt,name=start_version,json=startVersion" json:"start_version,omitempty"`
}

type CleanupResponse struct {
	Error        *KeyError `protobuf:"bytes,1,opt,name=error" json:"error,omitempty"`
	CommitVersion uint64   `protobuf:"varint,2,opt,name=commit_version,json=commitVersion" json:"commit_version,omitempty"`
}

type BatchRollbackRequest struct {
	Context      *Context `protobuf:"bytes,1,opt,name=context" json:"context,omitempty"`
	Keys         [][]byte `protobuf:"bytes,2,rep,name=keys" json:"keys,omitempty"`
	StartVersion uint64   `protobuf:"varint,3,opt,name=start_version,json=startVersion" json:"start_version,omitempty"`
}

type BatchRollbackResponse struct {
	Error *KeyError `protobuf:"bytes,1,opt,name=error" json:"error,omitempty"`
}

// CommitThenGetRequest folds a commit and the immediately following read
// into a single round trip (spec.md §4.G commit_then_get).
type CommitThenGetRequest struct {
	Context       *Context `protobuf:"bytes,1,opt,name=context" json:"context,omitempty"`
	Key           []byte   `protobuf:"bytes,2,opt,name=key" json:"key,omitempty"`
	LockVersion   uint64   `protobuf:"varint,3,opt,name=lock_version,json=lockVersion" json:"lock_version,omitempty"`
	CommitVersion uint64   `protobuf:"varint,4,opt,name=commit_version,json=commitVersion" json:"commit_version,omitempty"`
	GetVersion    uint64   `protobuf:"varint,5,opt,name=get_version,json=getVersion" json:"get_version,omitempty"`
}

type CommitThenGetResponse struct {
	Error *KeyError `protobuf:"bytes,1,opt,name=error" json:"error,omitempty"`
	Value []byte    `protobuf:"bytes,2,opt,name=value" json:"value,omitempty"`
}

// RollbackThenGetRequest folds a rollback of this client's own pending
// write and the read of what it overwrote into a single round trip
// (spec.md §4.G rollback_then_get).
type RollbackThenGetRequest struct {
	Context     *Context `protobuf:"bytes,1,opt,name=context" json:"context,omitempty"`
	Key         []byte   `protobuf:"bytes,2,opt,name=key" json:"key,omitempty"`
	LockVersion uint64   `protobuf:"varint,3,opt,name=lock_version,json=lockVersion" json:"lock_version,omitempty"`
}

type RollbackThenGetResponse struct {
	Error *KeyError `protobuf:"bytes,1,opt,name=error" json:"error,omitempty"`
	Value []byte    `protobuf:"bytes,2,opt,name=value" json:"value,omitempty"`
}
