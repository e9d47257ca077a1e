package raftstore

import (
	"github.com/ridgekv/ridgekv/proto/eraftpb"
	"github.com/ridgekv/ridgekv/proto/metapb"
	"github.com/ridgekv/ridgekv/proto/raft_cmdpb"
)

// Callback lets a proposer block on a command's eventual RaftCmdResponse
// without the store's event loop itself blocking: Done is invoked exactly
// once, either when the entry commits and applies or when it is abandoned
// (stale term, region removed, epoch stale).
type Callback struct {
	done chan *raft_cmdpb.RaftCmdResponse

	// cleanup, if set, runs once right before Done delivers resp — used to
	// release the propose-time bookkeeping (e.g. a pending uuid) tied to
	// this callback's lifetime, always from the event-loop goroutine.
	cleanup func()
}

func NewCallback() *Callback {
	return &Callback{done: make(chan *raft_cmdpb.RaftCmdResponse, 1)}
}

func (c *Callback) Done(resp *raft_cmdpb.RaftCmdResponse) {
	if c == nil {
		return
	}
	if c.cleanup != nil {
		c.cleanup()
		c.cleanup = nil
	}
	select {
	case c.done <- resp:
	default:
	}
}

func (c *Callback) Wait() *raft_cmdpb.RaftCmdResponse {
	return <-c.done
}

// proposal is one client command awaiting its raft log entry's commit,
// indexed by the (index, term) the entry was proposed at so a leadership
// change can recognize and fail proposals that will never apply.
type proposal struct {
	isConfChange bool
	uuid         []byte
	index        uint64
	term         uint64
	cb           *Callback
}

// msgType distinguishes the kinds of work the store's event loop
// multiplexes over its single select, per spec.md §4.D.
type msgType int

const (
	msgTypeRaftMessage msgType = iota
	msgTypeRaftCmd
	msgTypeTick
	msgTypeApplyRes
	msgTypeSplitRegion
	msgTypeRegionApproximateSize
	msgTypeGcSnap
)

// Msg is the single envelope type the store's router passes between
// goroutines: peers, background workers and the gRPC server all communicate
// exclusively by sending Msg values, never by touching peer state directly.
type Msg struct {
	Type     msgType
	RegionID uint64
	Data     interface{}
}

func NewPeerMsg(t msgType, regionID uint64, data interface{}) Msg {
	return Msg{Type: t, RegionID: regionID, Data: data}
}

// MsgRaftCmd carries one client request plus the callback to resolve once
// it applies (or is abandoned).
type MsgRaftCmd struct {
	Request  *raft_cmdpb.RaftCmdRequest
	Callback *Callback
}

// MsgApplyRes reports the exec results the applier produced for one batch
// of committed entries, consumed by the store to update its region routing
// table (conf-change/split) and by the peer to advance compaction state.
type MsgApplyRes struct {
	RegionID     uint64
	ApplyState   uint64 // applied index, for quick reference in logs
	ExecResults  []execResult
	SizeDiffHint uint64
}

// execResult is one of execResultChangePeer / execResultCompactLog /
// execResultSplitRegion, produced by the applier's admin-command execution
// and consumed by the store scheduler to update routing (spec.md §4.C
// "Exec: admin commands").
type execResult interface{}

type execResultChangePeer struct {
	confChange *eraftpb.ConfChange
	peer       *metapb.Peer
	region     *metapb.Region
}

type execResultCompactLog struct {
	truncatedIndex uint64
	firstIndex     uint64
}

type execResultSplitRegion struct {
	regions []*metapb.Region
	derived *metapb.Region
}

// RequestPolicy classifies a proposed RaftCmdRequest so propose() knows
// which path to route it down (spec.md §4.C's propose contract).
type RequestPolicy int

const (
	RequestPolicyProposeNormal RequestPolicy = iota
	RequestPolicyProposeTransferLeader
	RequestPolicyProposeConfChange
	RequestPolicyInvalid
)
