package raftstore

import (
	"fmt"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"

	"github.com/ridgekv/ridgekv/engine_util"
	"github.com/ridgekv/ridgekv/proto/eraftpb"
	"github.com/ridgekv/ridgekv/proto/metapb"
	"github.com/ridgekv/ridgekv/proto/raft_cmdpb"
	rspb "github.com/ridgekv/ridgekv/proto/raft_serverpb"
	"github.com/ridgekv/ridgekv/raft"
)

// Transport sends one raft message to the store that hosts msg.GetToPeer(),
// over whatever wire the server package wires up (gRPC in production, an
// in-memory channel in tests).
type Transport interface {
	Send(msg *rspb.RaftMessage) error
}

func notifyStaleReq(term uint64, cb *Callback) {
	cb.Done(ErrRespStaleCommand(term))
}

func notifyReqRegionRemoved(regionID uint64, cb *Callback) {
	cb.Done(ErrRespRegionNotFound(regionID))
}

// createPeer builds a peer this store is actively creating (bootstrap,
// split, or conf-change add where the full region is already known).
func createPeer(storeID uint64, cfg *Config, engines *engine_util.Engines, snapMgr *SnapManager, region *metapb.Region) (*peer, error) {
	metaPeer := FindPeer(region, storeID)
	if metaPeer == nil {
		return nil, errors.Errorf("find no peer for store %d in region %v", storeID, region)
	}
	log.Info(fmt.Sprintf("region %v create peer with ID %d", region, metaPeer.Id))
	return NewPeer(storeID, cfg, engines, snapMgr, region, metaPeer)
}

// replicatePeer builds a peer this store learned about only as a raft
// message target: the region boundary is unknown until a snapshot arrives.
func replicatePeer(storeID uint64, cfg *Config, engines *engine_util.Engines, snapMgr *SnapManager, regionID uint64, metaPeer *metapb.Peer) (*peer, error) {
	log.Info(fmt.Sprintf("[region %v] replicates peer with ID %d", regionID, metaPeer.GetId()))
	region := &metapb.Region{Id: regionID, RegionEpoch: &metapb.RegionEpoch{}}
	return NewPeer(storeID, cfg, engines, snapMgr, region, metaPeer)
}

// peer is the Raft-driven state machine of one region replica: it owns a
// raft.RawNode, the storage backing it, and the bookkeeping needed to
// propose client commands and turn Ready values into durable side effects
// (spec.md §4.C).
type peer struct {
	stopped bool

	ticker *ticker

	Meta     *metapb.Peer
	regionId uint64

	RaftGroup   *raft.RawNode
	peerStorage *PeerStorage

	applyProposals []*proposal
	pendingUuids   map[string]struct{}

	peerCache             map[uint64]*metapb.Peer
	PeersStartPendingTime map[uint64]time.Time

	SizeDiffHint    uint64
	ApproximateSize *uint64

	Tag string

	LastApplyingIdx  uint64
	LastCompactedIdx uint64

	snapMgr *SnapManager
}

func NewPeer(storeID uint64, cfg *Config, engines *engine_util.Engines, snapMgr *SnapManager, region *metapb.Region, meta *metapb.Peer) (*peer, error) {
	if meta.GetId() == InvalidID {
		return nil, fmt.Errorf("invalid peer id")
	}
	tag := fmt.Sprintf("[region %v] %v", region.GetId(), meta.GetId())

	ps, err := NewPeerStorage(engines, region, snapMgr, meta.GetId(), tag)
	if err != nil {
		return nil, err
	}
	appliedIndex := ps.AppliedIndex()

	raftCfg := &raft.Config{
		ID:            meta.GetId(),
		ElectionTick:  cfg.RaftElectionTimeoutTicks,
		HeartbeatTick: cfg.RaftHeartbeatTicks,
		Applied:       appliedIndex,
		Storage:       ps,
	}
	raftGroup, err := raft.NewRawNode(raftCfg)
	if err != nil {
		return nil, err
	}

	p := &peer{
		Meta:                  meta,
		regionId:              region.GetId(),
		RaftGroup:             raftGroup,
		peerStorage:           ps,
		pendingUuids:          make(map[string]struct{}),
		peerCache:             make(map[uint64]*metapb.Peer),
		PeersStartPendingTime: make(map[uint64]time.Time),
		Tag:                   tag,
		LastApplyingIdx:       appliedIndex,
		ticker:                newTicker(region.GetId(), cfg),
		snapMgr:               snapMgr,
	}

	if len(region.GetPeers()) == 1 && region.GetPeers()[0].GetStoreId() == storeID {
		if err := p.RaftGroup.Campaign(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *peer) insertPeerCache(peer *metapb.Peer)     { p.peerCache[peer.GetId()] = peer }
func (p *peer) removePeerCache(peerID uint64)         { delete(p.peerCache, peerID) }
func (p *peer) getPeerFromCache(peerID uint64) *metapb.Peer {
	if peer, ok := p.peerCache[peerID]; ok {
		return peer
	}
	for _, peer := range p.peerStorage.Region().GetPeers() {
		if peer.GetId() == peerID {
			p.insertPeerCache(peer)
			return peer
		}
	}
	return nil
}

func (p *peer) nextProposalIndex() uint64 {
	lastIndex, _ := p.peerStorage.LastIndex()
	return lastIndex + 1
}

func (p *peer) MaybeDestroy() bool {
	if p.stopped {
		log.Info(fmt.Sprintf("%v is being destroyed, skip", p.Tag))
		return false
	}
	return true
}

// Destroy marks the region Tombstone, clears its data, and fails every
// pending proposal, matching spec.md §4.C's conf-change-remove path.
func (p *peer) Destroy(engines *engine_util.Engines, keepData bool) error {
	start := time.Now()
	region := p.Region()
	log.Info(fmt.Sprintf("%v begin to destroy", p.Tag))

	kvWB := new(engine_util.WriteBatch)
	raftWB := new(engine_util.WriteBatch)
	if err := p.peerStorage.clearMeta(kvWB, raftWB); err != nil {
		return err
	}
	if err := WriteRegionState(kvWB, region, rspb.PeerState_Tombstone); err != nil {
		return err
	}
	if err := kvWB.WriteToDB(engines.Kv); err != nil {
		return err
	}
	if err := raftWB.WriteToDB(engines.Raft); err != nil {
		return err
	}

	if p.peerStorage.isInitialized() && !keepData {
		p.peerStorage.ClearData()
	}

	for _, prop := range p.applyProposals {
		notifyReqRegionRemoved(region.Id, prop.cb)
	}
	p.applyProposals = nil
	p.stopped = true

	log.Info(fmt.Sprintf("%v destroy itself, takes %v", p.Tag, time.Since(start)))
	return nil
}

func (p *peer) isInitialized() bool { return p.peerStorage.isInitialized() }
func (p *peer) storeID() uint64     { return p.Meta.StoreId }
func (p *peer) Region() *metapb.Region { return p.peerStorage.Region() }
func (p *peer) SetRegion(region *metapb.Region) { p.peerStorage.SetRegion(region) }
func (p *peer) PeerId() uint64 { return p.Meta.GetId() }
func (p *peer) LeaderId() uint64 { return p.RaftGroup.Raft.Lead }
func (p *peer) IsLeader() bool { return p.RaftGroup.Raft.State == raft.StateLeader }
func (p *peer) Term() uint64 { return p.RaftGroup.Raft.Term }

func (p *peer) Send(trans Transport, msgs []eraftpb.Message) {
	for _, msg := range msgs {
		if err := p.sendRaftMessage(msg, trans); err != nil {
			log.Debug(fmt.Sprintf("%v send message err: %v", p.Tag, err))
		}
	}
}

func (p *peer) sendRaftMessage(msg eraftpb.Message, trans Transport) error {
	sendMsg := &rspb.RaftMessage{
		RegionId: p.regionId,
		RegionEpoch: &metapb.RegionEpoch{
			ConfVer: p.Region().RegionEpoch.ConfVer,
			Version: p.Region().RegionEpoch.Version,
		},
	}
	fromPeer := *p.Meta
	toPeer := p.getPeerFromCache(msg.To)
	if toPeer == nil {
		return fmt.Errorf("failed to lookup recipient peer %v in region %v", msg.To, p.regionId)
	}
	sendMsg.FromPeer = &fromPeer
	sendMsg.ToPeer = toPeer
	if isInitialMsg(&msg) {
		sendMsg.StartKey = append([]byte{}, p.Region().StartKey...)
		sendMsg.EndKey = append([]byte{}, p.Region().EndKey...)
	}
	sendMsg.Message = &msg
	return trans.Send(sendMsg)
}

// CollectPendingPeers returns peers that have fallen behind the truncated
// index. heartbeatPD does not include them in its report.
func (p *peer) CollectPendingPeers() []*metapb.Peer {
	pending := make([]*metapb.Peer, 0, len(p.Region().GetPeers()))
	truncatedIdx := p.peerStorage.truncatedIndex()
	for id, progress := range p.RaftGroup.GetProgress() {
		if id == p.Meta.GetId() {
			continue
		}
		if progress.Match < truncatedIdx {
			if peer := p.getPeerFromCache(id); peer != nil {
				pending = append(pending, peer)
				if _, ok := p.PeersStartPendingTime[id]; !ok {
					now := time.Now()
					p.PeersStartPendingTime[id] = now
					log.Debug(fmt.Sprintf("%v peer %v start pending at %v", p.Tag, id, now))
				}
			}
		}
	}
	return pending
}

func (p *peer) clearPeersStartPendingTime() {
	for id := range p.PeersStartPendingTime {
		delete(p.PeersStartPendingTime, id)
	}
}

func (p *peer) ReadyToHandlePendingSnap() bool {
	return p.LastApplyingIdx == p.peerStorage.AppliedIndex()
}

func (p *peer) HasPendingSnapshot() bool {
	return p.RaftGroup.Raft.GetSnap() != nil
}

func (p *peer) TakeApplyProposals() *MsgApplyProposal {
	if len(p.applyProposals) == 0 {
		return nil
	}
	props := p.applyProposals
	p.applyProposals = nil
	return &MsgApplyProposal{Id: p.PeerId(), RegionId: p.regionId, Props: props}
}

// MsgApplyProposal hands the applier the proposals awaiting a decision on
// the entries about to be applied: the applier matches each entry's
// (index, term) against this list to find the callback to resolve.
type MsgApplyProposal struct {
	Id       uint64
	RegionId uint64
	Props    []*proposal
}

// HandleRaftReady drains one round of p.RaftGroup.Ready(), persists it,
// ships outbound messages, and schedules committed entries for apply —
// spec.md §4.C's handle-ready pipeline, steps 1-5.
func (p *peer) HandleRaftReady(router *Router, trans Transport) (*ApplySnapResult, error) {
	if p.stopped {
		return nil, nil
	}
	if p.HasPendingSnapshot() && !p.ReadyToHandlePendingSnap() {
		log.Debug(fmt.Sprintf("%v is not ready to apply snapshot, applied %v last_applying %v",
			p.Tag, p.peerStorage.AppliedIndex(), p.LastApplyingIdx))
		return nil, nil
	}
	if !p.RaftGroup.HasReady() {
		return nil, nil
	}

	log.Debug(fmt.Sprintf("%v handle raft ready", p.Tag))
	ready := p.RaftGroup.Ready()

	if p.IsLeader() {
		p.Send(trans, ready.Messages)
		ready.Messages = ready.Messages[:0]
	}

	applySnapResult, err := p.peerStorage.SaveReadyState(&ready)
	if err != nil {
		return nil, errors.Annotate(err, "save ready state")
	}
	if !p.IsLeader() {
		p.Send(trans, ready.Messages)
	}

	if applySnapResult != nil {
		p.regionId = applySnapResult.Region.Id
		router.send(p.regionId, NewPeerMsg(msgTypeApplyRes, p.regionId, &MsgApplyRes{RegionID: p.regionId}))
		p.LastApplyingIdx = p.peerStorage.truncatedIndex()
	} else if len(ready.CommittedEntries) > 0 {
		entries := ready.CommittedEntries
		p.LastApplyingIdx = entries[len(entries)-1].Index
		router.send(p.regionId, NewPeerMsg(msgTypeApplyRes, p.regionId, &MsgApplyCommitted{
			regionId: p.regionId,
			term:     p.Term(),
			entries:  entries,
			proposal: p.TakeApplyProposals(),
		}))
	}

	p.RaftGroup.Advance(ready)
	return applySnapResult, nil
}

// MsgApplyCommitted hands the applier a contiguous run of newly-committed
// entries (plus whatever proposals were pending for them) to execute.
type MsgApplyCommitted struct {
	regionId uint64
	term     uint64
	entries  []eraftpb.Entry
	proposal *MsgApplyProposal
}

// inspect classifies req so propose routes it correctly (spec.md §4.C).
func (p *peer) inspect(req *raft_cmdpb.RaftCmdRequest) RequestPolicy {
	if req.AdminRequest != nil {
		switch req.AdminRequest.CmdType {
		case raft_cmdpb.AdminCmdType_TransferLeader:
			return RequestPolicyProposeTransferLeader
		case raft_cmdpb.AdminCmdType_ChangePeer:
			return RequestPolicyProposeConfChange
		}
	}
	return RequestPolicyProposeNormal
}

// propose validates req (leader check, epoch check) and, for normal and
// conf-change commands, appends it to the raft log; transfer-leader is
// handled locally without going through the log at all (spec.md §4.C).
func (p *peer) propose(cfg *Config, cb *Callback, req *raft_cmdpb.RaftCmdRequest) {
	if !p.IsLeader() {
		leader := p.getPeerFromCache(p.LeaderId())
		cb.Done(ErrResp(&ErrNotLeader{RegionId: p.regionId, Leader: leader}))
		return
	}
	if err := checkRegionEpoch(req, p.Region(), true); err != nil {
		cb.Done(ErrResp(err))
		return
	}
	if uuid := req.Header.Uuid; len(uuid) > 0 {
		key := string(uuid)
		if _, dup := p.pendingUuids[key]; dup {
			cb.Done(ErrResp(&ErrDuplicatedUuid{RegionId: p.regionId}))
			return
		}
		p.pendingUuids[key] = struct{}{}
		cb.cleanup = func() { delete(p.pendingUuids, key) }
	}

	switch p.inspect(req) {
	case RequestPolicyProposeTransferLeader:
		p.proposeTransferLeader(cfg, req, cb)
	case RequestPolicyProposeConfChange:
		p.proposeConfChange(cfg, req, cb)
	default:
		p.proposeNormal(req, cb)
	}
}

func (p *peer) proposeNormal(req *raft_cmdpb.RaftCmdRequest, cb *Callback) {
	data, err := req.Marshal()
	if err != nil {
		cb.Done(ErrResp(err))
		return
	}
	proposeIndex := p.nextProposalIndex()
	if err := p.RaftGroup.Propose(data); err != nil {
		cb.Done(ErrResp(err))
		return
	}
	if p.nextProposalIndex() == proposeIndex {
		// the proposal was silently dropped (e.g. not leader any more)
		cb.Done(ErrResp(&ErrStaleCommand{}))
		return
	}
	p.applyProposals = append(p.applyProposals, &proposal{index: proposeIndex, term: p.Term(), cb: cb})
}

// TransferLeaderAllowLogLag bounds how far behind the transferee's matched
// index may trail this peer's last log index before a transfer-leader
// request is refused instead of risking a stalled new leader (spec.md §4.C
// "TransferLeader").
func (p *peer) proposeTransferLeader(cfg *Config, req *raft_cmdpb.RaftCmdRequest, cb *Callback) {
	transferee := req.AdminRequest.TransferLeader.Peer.GetId()
	progress, ok := p.RaftGroup.GetProgress()[transferee]
	if !ok {
		cb.Done(ErrResp(fmt.Errorf("transfer leader target %d not found in progress", transferee)))
		return
	}
	lastIndex, err := p.peerStorage.LastIndex()
	if err != nil {
		cb.Done(ErrResp(err))
		return
	}
	if lastIndex-progress.Match > cfg.TransferLeaderAllowLogLag {
		cb.Done(ErrResp(fmt.Errorf("transfer leader target %d is too far behind (lag %d)", transferee, lastIndex-progress.Match)))
		return
	}
	log.Info(fmt.Sprintf("%v transfer leader to %v", p.Tag, transferee))
	p.RaftGroup.TransferLeader(transferee)
	cb.Done(&raft_cmdpb.RaftCmdResponse{
		Header: &raft_cmdpb.RaftResponseHeader{},
		AdminResponse: &raft_cmdpb.AdminResponse{
			CmdType:        raft_cmdpb.AdminCmdType_TransferLeader,
			TransferLeader: &raft_cmdpb.TransferLeaderResponse{},
		},
	})
}

func (p *peer) proposeConfChange(cfg *Config, req *raft_cmdpb.RaftCmdRequest, cb *Callback) {
	if p.RaftGroup.Raft.PendingConfIndex > p.peerStorage.AppliedIndex() {
		log.Info(fmt.Sprintf("%v there is a pending conf change, try later", p.Tag))
		cb.Done(ErrResp(fmt.Errorf("pending conf change in progress")))
		return
	}
	cc := eraftpb.ConfChange{
		ChangeType: req.AdminRequest.ChangePeer.ChangeType,
		NodeId:     req.AdminRequest.ChangePeer.Peer.Id,
	}
	data, err := req.Marshal()
	if err != nil {
		cb.Done(ErrResp(err))
		return
	}
	cc.Context = data

	log.Info(fmt.Sprintf("%v propose conf change %v peer %v", p.Tag, cc.ChangeType, cc.NodeId))
	proposeIndex := p.nextProposalIndex()
	if err := p.RaftGroup.ProposeConfChange(cc); err != nil {
		cb.Done(ErrResp(err))
		return
	}
	if p.nextProposalIndex() == proposeIndex {
		cb.Done(ErrResp(&ErrStaleCommand{}))
		return
	}
	p.applyProposals = append(p.applyProposals, &proposal{isConfChange: true, index: proposeIndex, term: p.Term(), cb: cb})
}
