package raftstore

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/Connor1996/badger"
	"github.com/petar/GoLLRB/llrb"
	"github.com/pingcap/log"

	"github.com/ridgekv/ridgekv/codec"
	"github.com/ridgekv/ridgekv/engine_util"
	"github.com/ridgekv/ridgekv/proto/eraftpb"
	"github.com/ridgekv/ridgekv/proto/metapb"
	"github.com/ridgekv/ridgekv/proto/raft_cmdpb"
	rspb "github.com/ridgekv/ridgekv/proto/raft_serverpb"
)

// regionRange is one entry of the store's region_ranges index: regions are
// ordered by their (exclusive) end key so a point lookup for "which region
// owns this key" is a single AscendGreaterOrEqual probe (spec.md §4.D).
type regionRange struct {
	endKey   []byte
	regionID uint64
}

func (r *regionRange) Less(than llrb.Item) bool {
	o := than.(*regionRange)
	if len(r.endKey) == 0 {
		return false // the last region's endKey (empty = +inf) sorts highest
	}
	if len(o.endKey) == 0 {
		return true
	}
	return bytes.Compare(r.endKey, o.endKey) < 0
}

// Router is the single gateway every producer (transport, clients,
// background workers, ticks) sends Msg values through; the store's event
// loop is the only consumer, preserving the "no peer touched from any other
// thread" invariant of spec.md §5 — callers never reach into a peer
// directly, they enqueue a Msg and let Store.Run dispatch it.
type Router struct {
	inbox chan Msg
}

func NewRouter() *Router {
	return &Router{inbox: make(chan Msg, 4096)}
}

// send enqueues msg on the store's single inbox; the event loop dispatches
// it once popped, so no producer goroutine blocks on a slow peer.
func (r *Router) send(regionID uint64, msg Msg) {
	msg.RegionID = regionID
	select {
	case r.inbox <- msg:
	default:
		log.Warn(fmt.Sprintf("router inbox full, dropping message for region %d", regionID))
	}
}

// Store owns every peer on this node and runs the single event loop that
// drives them: message routing, ready-drain, and timer ticks (spec.md
// §4.D).
type Store struct {
	id uint64

	cfg      *Config
	engines  *engine_util.Engines
	trans    Transport
	snapMgr  *SnapManager
	router   *Router
	pdClient PDClient

	splitCheckWorker *worker
	compactWorker    *worker

	mu      sync.Mutex
	peers   map[uint64]*peer
	ranges  *llrb.LLRB
	tickers map[uint64]*ticker

	tickCount              uint64
	storeHeartbeatEveryTick uint64

	stopCh chan struct{}
}

func NewStore(storeID uint64, cfg *Config, engines *engine_util.Engines, trans Transport) *Store {
	everyTick := uint64(1)
	if cfg.RaftBaseTickInterval > 0 {
		everyTick = uint64(cfg.PdStoreHeartbeatTickInterval / cfg.RaftBaseTickInterval)
		if everyTick == 0 {
			everyTick = 1
		}
	}
	return &Store{
		id:                      storeID,
		cfg:                     cfg,
		engines:                 engines,
		trans:                   trans,
		snapMgr:                 NewSnapManager(),
		router:                  NewRouter(),
		splitCheckWorker:        newWorker("split-check", 8),
		compactWorker:           newWorker("raftlog-gc", 8),
		peers:                   make(map[uint64]*peer),
		ranges:                  llrb.New(),
		tickers:                 make(map[uint64]*ticker),
		storeHeartbeatEveryTick: everyTick,
		stopCh:                  make(chan struct{}),
	}
}

// SetPDClient wires the store's PD-facing heartbeat and split-id-allocation
// client; omitted in single-node tests, where heartbeats are simply skipped.
func (s *Store) SetPDClient(pd PDClient) { s.pdClient = pd }

// Bootstrap scans the Kv engine's meta namespace for every region this
// store hosts (RegionLocalState written by a prior run) and spins up a
// peer for each, the restart path of spec.md §3's region lifecycle.
func (s *Store) Bootstrap() error {
	var states []*rspb.RegionLocalState
	err := s.engines.Kv.View(func(txn *badger.Txn) error {
		it := engine_util.NewCFIterator(engine_util.CfDefault, txn)
		defer it.Close()
		min, max := codec.RegionMetaMinKey(), codec.RegionMetaMaxKey()
		for it.Seek(min); it.Valid(); it.Next() {
			key := it.Item().Key()
			if bytes.Compare(key, max) > 0 {
				break
			}
			val, err := it.Item().Value()
			if err != nil {
				return err
			}
			st := &rspb.RegionLocalState{}
			if err := st.Unmarshal(val); err != nil {
				return err
			}
			states = append(states, st)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, st := range states {
		if st.State == rspb.PeerState_Tombstone {
			continue
		}
		if _, err := s.CreatePeer(st.Region); err != nil {
			log.Error(fmt.Sprintf("bootstrap region %d failed: %v", st.Region.Id, err))
		}
	}
	return nil
}

func (s *Store) addPeer(p *peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[p.regionId] = p
	s.tickers[p.regionId] = p.ticker
	region := p.Region()
	if region.GetId() != 0 {
		s.ranges.ReplaceOrInsert(&regionRange{endKey: append([]byte{}, region.EndKey...), regionID: region.Id})
	}
}

func (s *Store) removePeer(regionID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.peers[regionID]; ok {
		s.ranges.Delete(&regionRange{endKey: p.Region().EndKey, regionID: regionID})
	}
	delete(s.peers, regionID)
	delete(s.tickers, regionID)
}

// findRegion returns the region owning key, by probing region_ranges for
// the first range whose end key is > key.
func (s *Store) findRegion(key []byte) *peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *peer
	s.ranges.AscendGreaterOrEqual(&regionRange{endKey: key}, func(item llrb.Item) bool {
		rr := item.(*regionRange)
		if len(rr.endKey) != 0 && bytes.Compare(rr.endKey, key) <= 0 {
			return true
		}
		found = s.peers[rr.regionID]
		return false
	})
	return found
}

// CreatePeer creates and registers a new peer for region (bootstrap, split
// child, or conf-change add on a store that already knows the full region).
func (s *Store) CreatePeer(region *metapb.Region) (*peer, error) {
	p, err := createPeer(s.id, s.cfg, s.engines, s.snapMgr, region)
	if err != nil {
		return nil, err
	}
	s.addPeer(p)
	return p, nil
}

// Stop halts the event loop.
func (s *Store) Stop() { close(s.stopCh) }

// Engines exposes the underlying KV/Raft badger engines so a layer above
// raftstore (the transactional store, component H) can open its own
// consistent read views without routing a read through the event loop —
// reads are local-snapshot reads, only writes replicate through Propose.
func (s *Store) Engines() *engine_util.Engines { return s.engines }

// StoreID returns this node's store id, used to build request headers.
func (s *Store) StoreID() uint64 { return s.id }

// RegionIDs returns every region id this store currently hosts a peer for.
func (s *Store) RegionIDs() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint64, 0, len(s.peers))
	for id := range s.peers {
		ids = append(ids, id)
	}
	return ids
}

// IsLeader reports whether this store's peer for regionID is currently the
// raft leader.
func (s *Store) IsLeader(regionID uint64) bool {
	s.mu.Lock()
	p, ok := s.peers[regionID]
	s.mu.Unlock()
	return ok && p.IsLeader()
}

// LocalPeer returns the metapb.Peer entry this store holds for regionID, or
// nil if the region is not hosted here.
func (s *Store) LocalPeer(regionID uint64) *metapb.Peer {
	s.mu.Lock()
	p, ok := s.peers[regionID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return p.Meta
}

// Propose routes a client command to the peer that owns its key range and
// blocks (via the returned Callback) for the eventual response.
func (s *Store) Propose(req *raft_cmdpb.RaftCmdRequest) *raft_cmdpb.RaftCmdResponse {
	cb := NewCallback()
	s.router.send(req.Header.RegionId, Msg{Type: msgTypeRaftCmd, Data: &MsgRaftCmd{Request: req, Callback: cb}})
	return cb.Wait()
}

// HandleRaftMessage is the Transport-facing entry point (gRPC handler or
// test harness): it validates the message is addressed to this store, then
// hands off to the event loop, which alone is allowed to touch peer state
// (spec.md §5).
func (s *Store) HandleRaftMessage(msg *rspb.RaftMessage) error {
	if msg.ToPeer.GetStoreId() != s.id {
		return fmt.Errorf("message to store %d but this is store %d", msg.ToPeer.GetStoreId(), s.id)
	}
	s.router.send(msg.RegionId, Msg{Type: msgTypeRaftMessage, Data: msg})
	return nil
}

// routeRaftMessage implements spec.md §4.D's six-step inbound message
// routing contract; it only ever runs on the event-loop goroutine.
func (s *Store) routeRaftMessage(msg *rspb.RaftMessage) {
	regionID := msg.RegionId

	s.mu.Lock()
	p, ok := s.peers[regionID]
	s.mu.Unlock()

	if !ok {
		if !isInitialMsg(msg.Message) {
			log.Debug(fmt.Sprintf("region %d not found, ignoring non-initial message", regionID))
			return
		}
		if existing := s.findRegion(msg.StartKey); existing != nil && existing.regionId != regionID {
			log.Debug(fmt.Sprintf("region %d overlaps existing region %d, dropping snapshot", regionID, existing.regionId))
			return
		}
		newPeer, err := replicatePeer(s.id, s.cfg, s.engines, s.snapMgr, regionID, msg.ToPeer)
		if err != nil {
			log.Error(fmt.Sprintf("replicate peer for region %d failed: %v", regionID, err))
			return
		}
		s.addPeer(newPeer)
		p = newPeer
	}

	p.insertPeerCache(msg.FromPeer)
	if err := p.RaftGroup.Step(*msg.Message); err != nil {
		log.Error(fmt.Sprintf("%v step message failed: %v", p.Tag, err))
		return
	}
	s.drainReady(p)
}

// drainReady runs handle-ready for one peer; committed entries are posted
// back through the router as MsgApplyCommitted and applied by dispatchApply
// on a later turn of the same event-loop goroutine, matching §5's
// single-threaded cooperative model: there is no separate apply worker, so
// raft-ready handling and entry application never race each other.
func (s *Store) drainReady(p *peer) {
	applySnapResult, err := p.HandleRaftReady(s.router, s.trans)
	if err != nil {
		log.Error(fmt.Sprintf("%v handle raft ready failed: %v", p.Tag, err))
		return
	}
	if applySnapResult != nil {
		s.mu.Lock()
		s.ranges.ReplaceOrInsert(&regionRange{endKey: applySnapResult.Region.EndKey, regionID: applySnapResult.Region.Id})
		s.mu.Unlock()
	}
}

// dispatchApply executes one MsgApplyCommitted against the peer's applier
// and interprets the ExecResults per spec.md §4.D's "Ready drain" list.
func (s *Store) dispatchApply(p *peer, committed *MsgApplyCommitted) {
	ap := newApplierFromPeer(p)
	ac := newApplyContext(s.engines)
	res, err := ap.handleCommittedEntries(ac, committed.entries, propsOf(committed.proposal))
	if err != nil {
		log.Error(fmt.Sprintf("%v apply committed entries failed: %v", p.Tag, err))
		return
	}
	p.peerStorage.applyState = ap.applyState
	if res == nil {
		return
	}
	for _, er := range res.ExecResults {
		s.onExecResult(p, er)
	}
}

func propsOf(mp *MsgApplyProposal) []*proposal {
	if mp == nil {
		return nil
	}
	return mp.Props
}

func (s *Store) onExecResult(p *peer, res execResult) {
	switch r := res.(type) {
	case *execResultChangePeer:
		// A nil region means the admin command itself failed to execute
		// (see applier.handleRaftEntryConfChange); Raft still needs the
		// (no-op) conf change fed back so its pending-conf tracking clears,
		// but there is no new region/peer state to install.
		p.RaftGroup.ApplyConfChange(*r.confChange)
		if r.region == nil {
			return
		}
		p.SetRegion(r.region)
		s.heartbeatPD(p)
		if r.confChange.ChangeType == eraftpb.ConfChangeType_RemoveNode && r.peer.Id == p.PeerId() {
			if err := p.Destroy(s.engines, false); err != nil {
				log.Error(fmt.Sprintf("%v destroy failed: %v", p.Tag, err))
			}
			s.removePeer(p.regionId)
		}
	case *execResultSplitRegion:
		wasLeader := p.IsLeader()
		for _, region := range r.regions {
			if region.Id == p.regionId {
				continue
			}
			newPeer, err := s.CreatePeer(region)
			if err != nil {
				log.Error(fmt.Sprintf("create split peer %d failed: %v", region.Id, err))
				continue
			}
			if wasLeader && len(region.Peers) >= 2 {
				newPeer.RaftGroup.Campaign()
			}
			s.heartbeatPD(newPeer)
		}
		s.mu.Lock()
		s.ranges.ReplaceOrInsert(&regionRange{endKey: r.derived.EndKey, regionID: r.derived.Id})
		s.mu.Unlock()
		s.heartbeatPD(p)
	case *execResultCompactLog:
		log.Debug(fmt.Sprintf("%v compacted raft log to index %d", p.Tag, r.truncatedIndex))
		s.snapMgr.GC(p.regionId, r.truncatedIndex)
		s.scheduleLogGC(p.regionId, r.truncatedIndex, r.firstIndex)
	}
}

// Run is the store's single event-loop goroutine: it dispatches Router
// messages and fires peer ticks until Stop is called.
func (s *Store) Run() {
	for {
		select {
		case <-s.stopCh:
			return
		case msg := <-s.router.inbox:
			s.handleMsg(msg)
		}
	}
}

func (s *Store) handleMsg(msg Msg) {
	if msg.Type == msgTypeRaftMessage {
		s.routeRaftMessage(msg.Data.(*rspb.RaftMessage))
		return
	}

	s.mu.Lock()
	p, ok := s.peers[msg.RegionID]
	s.mu.Unlock()
	if !ok {
		return
	}
	switch msg.Type {
	case msgTypeRaftCmd:
		cmd := msg.Data.(*MsgRaftCmd)
		p.propose(s.cfg, cmd.Callback, cmd.Request)
		s.drainReady(p)
	case msgTypeTick:
		s.drainReady(p)
	case msgTypeApplyRes:
		switch d := msg.Data.(type) {
		case *MsgApplyCommitted:
			s.dispatchApply(p, d)
		}
	case msgTypeSplitRegion:
		s.handleSplitCheckResult(msg.Data.(*splitCheckResult))
	}
}

// Tick fires the base Raft clock plus whichever slower ticks (GC,
// split-check, heartbeat) are due this round, for every peer not currently
// applying a snapshot (spec.md §4.D "Ticks").
func (s *Store) Tick() {
	s.tickCount++
	if s.storeHeartbeatEveryTick > 0 && s.tickCount%s.storeHeartbeatEveryTick == 0 {
		s.storeHeartbeat()
	}

	s.mu.Lock()
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		if p.HasPendingSnapshot() {
			continue
		}
		for _, due := range p.ticker.tickClock() {
			switch due {
			case PeerTickRaft:
				p.RaftGroup.Tick()
			case PeerTickRaftLogGC:
				s.maybeProposeCompactLog(p)
			case PeerTickSplitRegionCheck:
				s.maybeScheduleSplitCheck(p)
			case PeerTickPdHeartbeat:
				s.heartbeatPD(p)
			}
		}
		s.router.send(p.regionId, Msg{Type: msgTypeTick})
	}
}

// maybeProposeCompactLog implements the leader-only raft-log GC tick of
// spec.md §4.D.
func (s *Store) maybeProposeCompactLog(p *peer) {
	if !p.IsLeader() {
		return
	}
	firstIndex := p.peerStorage.truncatedIndex() + 1
	appliedIndex := p.peerStorage.AppliedIndex()
	var compactIdx uint64
	if appliedIndex-firstIndex >= s.cfg.RaftLogGCCountLimit {
		compactIdx = appliedIndex
	} else {
		minMatch := appliedIndex
		for id, progress := range p.RaftGroup.GetProgress() {
			if id == p.PeerId() {
				continue
			}
			if progress.Match < minMatch {
				minMatch = progress.Match
			}
		}
		if minMatch > firstIndex+s.cfg.RaftLogGCThreshold {
			compactIdx = minMatch
		} else {
			return
		}
	}
	term, err := p.peerStorage.Term(compactIdx)
	if err != nil {
		return
	}
	req := &raft_cmdpb.RaftCmdRequest{
		Header: &raft_cmdpb.RaftRequestHeader{RegionId: p.regionId, RegionEpoch: p.Region().RegionEpoch},
		AdminRequest: &raft_cmdpb.AdminRequest{
			CmdType:    raft_cmdpb.AdminCmdType_CompactLog,
			CompactLog: &raft_cmdpb.CompactLogRequest{CompactIndex: compactIdx, CompactTerm: term},
		},
	}
	p.propose(s.cfg, NewCallback(), req)
}
