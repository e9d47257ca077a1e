package raftstore

import (
	"bytes"
	"fmt"

	"github.com/Connor1996/badger"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"

	"github.com/ridgekv/ridgekv/codec"
	"github.com/ridgekv/ridgekv/engine_util"
	"github.com/ridgekv/ridgekv/proto/eraftpb"
	"github.com/ridgekv/ridgekv/proto/metapb"
	"github.com/ridgekv/ridgekv/proto/raft_cmdpb"
	rspb "github.com/ridgekv/ridgekv/proto/raft_serverpb"
)

// pendingCmd is one proposal waiting to be matched against the committed
// entry it produced, so its callback can be resolved with that entry's
// result (spec.md §4.C "Committed-entry application").
type pendingCmd struct {
	index uint64
	term  uint64
	cb    *Callback
}

type pendingCmdQueue struct {
	normals    []pendingCmd
	confChange *pendingCmd
}

func (q *pendingCmdQueue) popNormal(term uint64) *pendingCmd {
	if len(q.normals) == 0 {
		return nil
	}
	cmd := &q.normals[0]
	if cmd.term > term {
		return nil
	}
	q.normals = q.normals[1:]
	return cmd
}

func (q *pendingCmdQueue) appendNormal(cmd pendingCmd) { q.normals = append(q.normals, cmd) }

func (q *pendingCmdQueue) takeConfChange() *pendingCmd {
	cmd := q.confChange
	q.confChange = nil
	return cmd
}

func (q *pendingCmdQueue) setConfChange(cmd *pendingCmd) { q.confChange = cmd }

func notifyRegionRemoved(regionID, peerID uint64, cmd pendingCmd) {
	log.Debug(fmt.Sprintf("region %d is removed, peerID %d, index %d, term %d", regionID, peerID, cmd.index, cmd.term))
	cmd.cb.Done(ErrRespRegionNotFound(regionID))
}

func notifyStaleCommand(regionID, peerID, term uint64, cmd pendingCmd) {
	log.Info(fmt.Sprintf("command is stale, skip. regionID %d, peerID %d, index %d, term %d", regionID, peerID, cmd.index, cmd.term))
	cmd.cb.Done(ErrRespStaleCommand(term))
}

type applyResultType int

const (
	applyResultTypeNone applyResultType = iota
	applyResultTypeExecResult
)

type applyResult struct {
	tp   applyResultType
	data interface{}
}

// applier turns one region's committed Raft log entries into atomic engine
// mutations: it is the one place write/delete/admin commands actually touch
// the Kv engine (spec.md §4.C "Exec: data/admin commands").
type applier struct {
	id     uint64
	term   uint64
	region *metapb.Region
	tag    string

	pendingRemove bool
	pendingCmds   pendingCmdQueue
	applyState    rspb.RaftApplyState
	sizeDiffHint  uint64
}

func newApplierFromPeer(p *peer) *applier {
	return &applier{
		tag:        fmt.Sprintf("[region %d] %d", p.Region().GetId(), p.PeerId()),
		id:         p.PeerId(),
		term:       p.Term(),
		region:     p.Region(),
		applyState: p.peerStorage.applyState,
	}
}

func (a *applier) destroy() {
	log.Info(fmt.Sprintf("%s remove applier", a.tag))
	for _, cmd := range a.pendingCmds.normals {
		notifyRegionRemoved(a.region.Id, a.id, cmd)
	}
	a.pendingCmds.normals = nil
	if cmd := a.pendingCmds.takeConfChange(); cmd != nil {
		notifyRegionRemoved(a.region.Id, a.id, *cmd)
	}
}

// registerProposals absorbs the proposals this peer made for the entries
// about to be applied, so findCallback can resolve each entry's cb.
func (a *applier) registerProposals(props []*proposal) {
	if a.pendingRemove {
		for _, p := range props {
			notifyStaleCommand(a.region.Id, a.id, a.term, pendingCmd{index: p.index, term: p.term, cb: p.cb})
		}
		return
	}
	for _, p := range props {
		cmd := pendingCmd{index: p.index, term: p.term, cb: p.cb}
		if p.isConfChange {
			if confCmd := a.pendingCmds.takeConfChange(); confCmd != nil {
				notifyStaleCommand(a.region.Id, a.id, a.term, *confCmd)
			}
			a.pendingCmds.setConfChange(&cmd)
		} else {
			a.pendingCmds.appendNormal(cmd)
		}
	}
}

// applyContext batches one or more appliers' writes into a single engine
// commit, matching spec.md §4.C's "all mutations from one round of
// committed entries land in one atomic batch".
type applyContext struct {
	engines *engine_util.Engines
	wb      *engine_util.WriteBatch
	index   uint64
	term    uint64
}

func newApplyContext(engines *engine_util.Engines) *applyContext {
	return &applyContext{engines: engines, wb: new(engine_util.WriteBatch)}
}

// handleCommittedEntries applies entries in order, matching each against
// proposals to resolve callbacks, and returns the admin-command exec
// results the store scheduler must react to (conf-change/split/compact-log
// routing updates).
func (a *applier) handleCommittedEntries(ac *applyContext, entries []eraftpb.Entry, props []*proposal) (*MsgApplyRes, error) {
	if len(entries) == 0 || a.pendingRemove {
		return nil, nil
	}
	a.term = entries[len(entries)-1].Term
	a.registerProposals(props)

	var results []execResult
	for i := range entries {
		entry := &entries[i]
		if a.pendingRemove {
			break
		}
		expectedIndex := a.applyState.AppliedIndex + 1
		if expectedIndex != entry.Index {
			panic(fmt.Sprintf("%s expect index %d, but got %d", a.tag, expectedIndex, entry.Index))
		}
		var res applyResult
		switch entry.EntryType {
		case eraftpb.EntryType_EntryNormal:
			res = a.handleRaftEntryNormal(ac, entry)
		case eraftpb.EntryType_EntryConfChange:
			res = a.handleRaftEntryConfChange(ac, entry)
		}
		if res.tp == applyResultTypeExecResult {
			results = append(results, res.data)
		}
	}

	if !a.pendingRemove {
		if err := ac.wb.SetMeta(codec.RaftApplyStateKey(a.region.Id), &a.applyState); err != nil {
			return nil, err
		}
	}
	ac.wb.MustWriteToDB(ac.engines.Kv)
	ac.wb.Reset()

	return &MsgApplyRes{RegionID: a.region.Id, ApplyState: a.applyState.AppliedIndex, ExecResults: results, SizeDiffHint: a.sizeDiffHint}, nil
}

func (a *applier) handleRaftEntryNormal(ac *applyContext, entry *eraftpb.Entry) applyResult {
	index, term := entry.Index, entry.Term
	if len(entry.Data) > 0 {
		cmd := new(raft_cmdpb.RaftCmdRequest)
		if err := cmd.Unmarshal(entry.Data); err != nil {
			panic(err)
		}
		return a.processRaftCmd(ac, index, term, cmd)
	}
	// an empty entry is the no-op a newly elected leader appends; it just
	// advances applied_index and flushes stale proposals left over from
	// earlier terms.
	a.applyState.AppliedIndex = index
	for {
		cmd := a.pendingCmds.popNormal(term - 1)
		if cmd == nil {
			break
		}
		cmd.cb.Done(ErrRespStaleCommand(term))
	}
	return applyResult{}
}

func (a *applier) handleRaftEntryConfChange(ac *applyContext, entry *eraftpb.Entry) applyResult {
	index, term := entry.Index, entry.Term
	confChange := new(eraftpb.ConfChange)
	if err := confChange.Unmarshal(entry.Data); err != nil {
		panic(err)
	}
	cmd := new(raft_cmdpb.RaftCmdRequest)
	if err := cmd.Unmarshal(confChange.Context); err != nil {
		panic(err)
	}
	result := a.processRaftCmd(ac, index, term, cmd)
	switch result.tp {
	case applyResultTypeNone:
		return applyResult{tp: applyResultTypeExecResult, data: &execResultChangePeer{confChange: new(eraftpb.ConfChange)}}
	case applyResultTypeExecResult:
		cp := result.data.(*execResultChangePeer)
		cp.confChange = confChange
		return applyResult{tp: applyResultTypeExecResult, data: cp}
	default:
		panic("unreachable")
	}
}

func (a *applier) findCallback(index, term uint64, isConfChange bool) *Callback {
	if isConfChange {
		cmd := a.pendingCmds.takeConfChange()
		if cmd == nil {
			return nil
		}
		if cmd.index == index && cmd.term == term {
			return cmd.cb
		}
		notifyStaleCommand(a.region.Id, a.id, term, *cmd)
		return nil
	}
	for {
		head := a.pendingCmds.popNormal(term)
		if head == nil {
			break
		}
		if head.index == index && head.term == term {
			return head.cb
		}
		notifyStaleCommand(a.region.Id, a.id, term, *head)
	}
	return nil
}

func (a *applier) processRaftCmd(ac *applyContext, index, term uint64, cmd *raft_cmdpb.RaftCmdRequest) applyResult {
	if index == 0 {
		panic(fmt.Sprintf("%s process raft cmd needs a non-zero index", a.tag))
	}
	isConfChange := cmd.AdminRequest != nil && cmd.AdminRequest.CmdType == raft_cmdpb.AdminCmdType_ChangePeer
	resp, result := a.applyRaftCmd(ac, index, term, cmd)
	log.Debug(fmt.Sprintf("applied command. region_id %d, peer_id %d, index %d", a.region.Id, a.id, index))
	if resp.Header == nil {
		resp.Header = &raft_cmdpb.RaftResponseHeader{}
	}
	resp.Header.CurrentTerm = term
	if cb := a.findCallback(index, term, isConfChange); cb != nil {
		cb.Done(resp)
	}
	return result
}

func (a *applier) applyRaftCmd(ac *applyContext, index, term uint64, req *raft_cmdpb.RaftCmdRequest) (*raft_cmdpb.RaftCmdResponse, applyResult) {
	ac.index, ac.term = index, term
	ac.wb.SetSafePoint()
	resp, result, err := a.execRaftCmd(ac, req)
	if err != nil {
		ac.wb.RollbackToSafePoint()
		if _, ok := err.(*ErrStaleEpoch); ok {
			log.Debug(fmt.Sprintf("epoch not match region_id %d, peer_id %d, err %v", a.region.Id, a.id, err))
		} else {
			log.Error(fmt.Sprintf("execute raft command region_id %d, peer_id %d, err %v", a.region.Id, a.id, err))
		}
		resp = ErrResp(err)
		result = applyResult{}
	}
	a.applyState.AppliedIndex = index
	if result.tp == applyResultTypeExecResult {
		switch x := result.data.(type) {
		case *execResultChangePeer:
			a.region = x.region
		case *execResultSplitRegion:
			a.region = x.derived
		}
	}
	return resp, result
}

func (a *applier) execRaftCmd(ac *applyContext, req *raft_cmdpb.RaftCmdRequest) (*raft_cmdpb.RaftCmdResponse, applyResult, error) {
	if err := checkRegionEpoch(req, a.region, false); err != nil {
		return nil, applyResult{}, err
	}
	if req.AdminRequest != nil {
		return a.execAdminCmd(ac, req)
	}
	return a.execNormalCmd(ac, req)
}

func (a *applier) execAdminCmd(ac *applyContext, req *raft_cmdpb.RaftCmdRequest) (*raft_cmdpb.RaftCmdResponse, applyResult, error) {
	adminReq := req.AdminRequest
	cmdType := adminReq.CmdType
	if cmdType != raft_cmdpb.AdminCmdType_CompactLog {
		log.Info(fmt.Sprintf("%s execute admin command. term %d, index %d, type %v", a.tag, ac.term, ac.index, cmdType))
	}
	var adminResp *raft_cmdpb.AdminResponse
	var result applyResult
	var err error
	switch cmdType {
	case raft_cmdpb.AdminCmdType_ChangePeer:
		adminResp, result, err = a.execChangePeer(ac, adminReq)
	case raft_cmdpb.AdminCmdType_Split:
		adminResp, result, err = a.execSplit(ac, adminReq)
	case raft_cmdpb.AdminCmdType_CompactLog:
		adminResp, result, err = a.execCompactLog(ac, adminReq)
	case raft_cmdpb.AdminCmdType_TransferLeader:
		err = errors.New("transfer leader won't execute")
	default:
		err = errors.New("unsupported admin command type")
	}
	if err != nil {
		return nil, applyResult{}, err
	}
	adminResp.CmdType = cmdType
	return &raft_cmdpb.RaftCmdResponse{Header: &raft_cmdpb.RaftResponseHeader{}, AdminResponse: adminResp}, result, nil
}

func (a *applier) execNormalCmd(ac *applyContext, req *raft_cmdpb.RaftCmdRequest) (*raft_cmdpb.RaftCmdResponse, applyResult, error) {
	requests := req.GetRequests()
	resps := make([]*raft_cmdpb.Response, 0, len(requests))
	for _, r := range requests {
		var resp *raft_cmdpb.Response
		var err error
		switch r.CmdType {
		case raft_cmdpb.CmdType_Put:
			resp, err = a.handlePut(ac, r.GetPut())
		case raft_cmdpb.CmdType_Delete:
			resp, err = a.handleDelete(ac, r.GetDelete())
		case raft_cmdpb.CmdType_Get:
			resp, err = a.handleGet(ac, r.GetGet())
		case raft_cmdpb.CmdType_Snap:
			resp = &raft_cmdpb.Response{CmdType: raft_cmdpb.CmdType_Snap, Snap: &raft_cmdpb.SnapResponse{Region: a.region}}
		default:
			err = fmt.Errorf("invalid cmd type %v", r.CmdType)
		}
		if err != nil {
			return nil, applyResult{}, err
		}
		resps = append(resps, resp)
	}
	return &raft_cmdpb.RaftCmdResponse{Header: &raft_cmdpb.RaftResponseHeader{}, Responses: resps}, applyResult{}, nil
}

func (a *applier) handlePut(ac *applyContext, req *raft_cmdpb.PutRequest) (*raft_cmdpb.Response, error) {
	key, value := req.GetKey(), req.GetValue()
	if err := checkKeyInRegion(key, a.region); err != nil {
		return nil, err
	}
	cf := req.GetCf()
	if cf == "" {
		cf = engine_util.CfDefault
	}
	ac.wb.SetCF(cf, key, value)
	a.sizeDiffHint += uint64(len(key) + len(value))
	return &raft_cmdpb.Response{CmdType: raft_cmdpb.CmdType_Put, Put: &raft_cmdpb.PutResponse{}}, nil
}

func (a *applier) handleDelete(ac *applyContext, req *raft_cmdpb.DeleteRequest) (*raft_cmdpb.Response, error) {
	key := req.GetKey()
	if err := checkKeyInRegion(key, a.region); err != nil {
		return nil, err
	}
	cf := req.GetCf()
	if cf == "" {
		cf = engine_util.CfDefault
	}
	ac.wb.DeleteCF(cf, key)
	if a.sizeDiffHint > uint64(len(key)) {
		a.sizeDiffHint -= uint64(len(key))
	}
	return &raft_cmdpb.Response{CmdType: raft_cmdpb.CmdType_Delete, Delete: &raft_cmdpb.DeleteResponse{}}, nil
}

func (a *applier) handleGet(ac *applyContext, req *raft_cmdpb.GetRequest) (*raft_cmdpb.Response, error) {
	key := req.GetKey()
	if err := checkKeyInRegion(key, a.region); err != nil {
		return nil, err
	}
	cf := req.GetCf()
	if cf == "" {
		cf = engine_util.CfDefault
	}
	val, err := engine_util.GetCF(ac.engines.Kv, cf, key)
	if err == badger.ErrKeyNotFound {
		err = nil
		val = nil
	}
	if err != nil {
		return nil, err
	}
	return &raft_cmdpb.Response{CmdType: raft_cmdpb.CmdType_Get, Get: &raft_cmdpb.GetResponse{Value: val}}, nil
}

func (a *applier) execChangePeer(ac *applyContext, req *raft_cmdpb.AdminRequest) (*raft_cmdpb.AdminResponse, applyResult, error) {
	request := req.ChangePeer
	peer := request.Peer
	storeID := peer.StoreId
	region := cloneRegion(a.region)
	log.Info(fmt.Sprintf("%s exec ConfChange, peer_id %d, type %v, epoch %v", a.tag, peer.Id, request.ChangeType, region.RegionEpoch))

	region.RegionEpoch.ConfVer++
	switch request.ChangeType {
	case eraftpb.ConfChangeType_AddNode:
		if p := FindPeer(region, storeID); p != nil {
			return nil, applyResult{}, fmt.Errorf("%s can't add duplicated peer, peer %v, region %v", a.tag, p, a.region)
		}
		region.Peers = append(region.Peers, peer)
	case eraftpb.ConfChangeType_RemoveNode:
		if FindPeer(region, storeID) == nil {
			return nil, applyResult{}, fmt.Errorf("%s removing missing peer, peer %v, region %v", a.tag, peer, a.region)
		}
		RemovePeer(region, storeID)
		if a.id == peer.Id {
			a.pendingRemove = true
		}
	}
	state := rspb.PeerState_Normal
	if a.pendingRemove {
		state = rspb.PeerState_Tombstone
	}
	if err := WriteRegionState(ac.wb, region, state); err != nil {
		return nil, applyResult{}, err
	}
	resp := &raft_cmdpb.AdminResponse{ChangePeer: &raft_cmdpb.ChangePeerResponse{Region: region}}
	result := applyResult{tp: applyResultTypeExecResult, data: &execResultChangePeer{region: region, peer: peer}}
	return resp, result, nil
}

func (a *applier) execSplit(ac *applyContext, req *raft_cmdpb.AdminRequest) (*raft_cmdpb.AdminResponse, applyResult, error) {
	splitReq := req.Split
	derived := cloneRegion(a.region)

	splitKey := splitReq.SplitKey
	if len(splitKey) == 0 {
		return nil, applyResult{}, errors.New("missing split key")
	}
	if bytes.Compare(splitKey, derived.StartKey) <= 0 {
		return nil, applyResult{}, fmt.Errorf("invalid split request: %v", splitReq)
	}
	if len(splitReq.NewPeerIds) != len(derived.Peers) {
		return nil, applyResult{}, fmt.Errorf("invalid new peer id count, need %d but got %d", len(derived.Peers), len(splitReq.NewPeerIds))
	}
	if err := checkKeyInRegion(splitKey, a.region); err != nil {
		return nil, applyResult{}, err
	}

	log.Info(fmt.Sprintf("%s split region %v at key %x", a.tag, a.region, splitKey))
	derived.RegionEpoch.Version++

	// The origin region keeps [start_key, split_key); the new region takes
	// [split_key, end_key) — original_source/src/raftstore/store/peer.rs's
	// split always assigns the new id to the right-hand half.
	newRegion := &metapb.Region{
		Id:          splitReq.NewRegionId,
		RegionEpoch: &metapb.RegionEpoch{Version: derived.RegionEpoch.Version, ConfVer: derived.RegionEpoch.ConfVer},
		StartKey:    splitKey,
		EndKey:      derived.EndKey,
	}
	newRegion.Peers = make([]*metapb.Peer, len(derived.Peers))
	for j := range newRegion.Peers {
		newRegion.Peers[j] = &metapb.Peer{Id: splitReq.NewPeerIds[j], StoreId: derived.Peers[j].StoreId}
	}
	if err := WriteRegionState(ac.wb, newRegion, rspb.PeerState_Normal); err != nil {
		return nil, applyResult{}, err
	}
	if err := writeInitialApplyState(ac.wb, newRegion.Id); err != nil {
		return nil, applyResult{}, err
	}
	derived.EndKey = splitKey
	if err := WriteRegionState(ac.wb, derived, rspb.PeerState_Normal); err != nil {
		return nil, applyResult{}, err
	}

	regions := []*metapb.Region{newRegion, derived}
	resp := &raft_cmdpb.AdminResponse{Split: &raft_cmdpb.SplitResponse{Regions: regions}}
	result := applyResult{tp: applyResultTypeExecResult, data: &execResultSplitRegion{regions: regions, derived: derived}}
	return resp, result, nil
}

func (a *applier) execCompactLog(ac *applyContext, req *raft_cmdpb.AdminRequest) (*raft_cmdpb.AdminResponse, applyResult, error) {
	compactIndex := req.CompactLog.CompactIndex
	resp := new(raft_cmdpb.AdminResponse)
	firstIndex := a.applyState.TruncatedState.Index + 1
	if compactIndex <= firstIndex {
		log.Debug(fmt.Sprintf("%s compact index <= first index, no need to compact", a.tag))
		return resp, applyResult{}, nil
	}
	if req.CompactLog.CompactTerm == 0 {
		return nil, applyResult{}, errors.New("command format is outdated, please upgrade leader")
	}
	if compactIndex <= a.applyState.TruncatedState.Index || compactIndex > a.applyState.AppliedIndex {
		return resp, applyResult{}, nil
	}
	log.Debug(fmt.Sprintf("%s compact log entries prior to %d", a.tag, compactIndex))
	a.applyState.TruncatedState.Index = compactIndex
	a.applyState.TruncatedState.Term = req.CompactLog.CompactTerm

	result := applyResult{tp: applyResultTypeExecResult, data: &execResultCompactLog{truncatedIndex: compactIndex, firstIndex: firstIndex}}
	return resp, result, nil
}

func writeInitialApplyState(wb *engine_util.WriteBatch, regionID uint64) error {
	state := &rspb.RaftApplyState{TruncatedState: &rspb.RaftTruncatedState{}}
	return wb.SetMeta(codec.RaftApplyStateKey(regionID), state)
}
