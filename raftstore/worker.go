package raftstore

import (
	"bytes"
	"fmt"
	"sync/atomic"

	"github.com/Connor1996/badger"
	"github.com/pingcap/log"

	"github.com/ridgekv/ridgekv/codec"
	"github.com/ridgekv/ridgekv/engine_util"
	"github.com/ridgekv/ridgekv/proto/metapb"
)

// worker is the single-goroutine-plus-bounded-queue shape spec.md §4.E
// describes for every background job (split-check, snapshot, compaction,
// PD): a worker never touches peer state directly, it only ever posts a
// result back onto the store's Router. busy lets the scheduler skip
// enqueuing a new split-check while the previous one is still running.
type worker struct {
	name  string
	tasks chan func()
	busy  int32
}

func newWorker(name string, queueSize int) *worker {
	w := &worker{name: name, tasks: make(chan func(), queueSize)}
	go w.run()
	return w
}

func (w *worker) run() {
	for task := range w.tasks {
		task()
	}
}

// trySchedule enqueues task unless the queue is full, in which case the job
// is dropped and logged — the same back-pressure behavior as the store's
// Router, since a stalled worker must never block the event loop.
func (w *worker) trySchedule(task func()) bool {
	select {
	case w.tasks <- task:
		return true
	default:
		log.Warn(fmt.Sprintf("worker %s queue full, dropping task", w.name))
		return false
	}
}

func (w *worker) isBusy() bool { return atomic.LoadInt32(&w.busy) == 1 }
func (w *worker) setBusy(v bool) {
	if v {
		atomic.StoreInt32(&w.busy, 1)
	} else {
		atomic.StoreInt32(&w.busy, 0)
	}
}

// splitCheckResult is posted back to the store once a split-check scan
// completes; an empty SplitKey means the region did not cross
// region_split_size and needs no split.
type splitCheckResult struct {
	RegionID uint64
	SplitKey []byte
}

// maybeScheduleSplitCheck implements spec.md §4.D's split-region-check
// tick: leader-only, skipped while a prior check for this region is still
// in flight, and only actually enqueued once size_diff_hint crosses the
// configured threshold.
func (s *Store) maybeScheduleSplitCheck(p *peer) {
	if !p.IsLeader() {
		return
	}
	if p.SizeDiffHint < s.cfg.RegionCheckSizeDiff {
		return
	}
	if s.splitCheckWorker.isBusy() {
		return
	}
	region := p.Region()
	s.splitCheckWorker.setBusy(true)
	s.splitCheckWorker.trySchedule(func() {
		defer s.splitCheckWorker.setBusy(false)
		splitKey, err := scanSplitKey(s.engines, region, s.cfg.RegionSplitSize)
		if err != nil {
			log.Error(fmt.Sprintf("split check region %d failed: %v", region.Id, err))
			return
		}
		s.router.send(region.Id, Msg{Type: msgTypeSplitRegion, Data: &splitCheckResult{RegionID: region.Id, SplitKey: splitKey}})
	})
}

// scanSplitKey walks region's data keys in order, accumulating approximate
// byte size, and returns the raw key at which the region's size first
// crosses splitSize — the scan a split-check worker runs off the event-loop
// goroutine, per spec.md §4.E.
func scanSplitKey(engines *engine_util.Engines, region *metapb.Region, splitSize uint64) ([]byte, error) {
	start := codec.DataKey(region.StartKey)
	var end []byte
	if len(region.EndKey) > 0 {
		end = codec.DataKey(region.EndKey)
	}
	var size uint64
	var splitKey []byte
	err := engines.Kv.View(func(txn *badger.Txn) error {
		it := engine_util.NewCFIterator(engine_util.CfDefault, txn)
		defer it.Close()
		for it.Seek(start); it.Valid(); it.Next() {
			key := it.Item().Key()
			if end != nil && bytes.Compare(key, end) >= 0 {
				break
			}
			val, err := it.Item().Value()
			if err != nil {
				return err
			}
			size += uint64(len(key) + len(val))
			if splitKey == nil && size >= splitSize {
				rawKey, _ := codec.DecodeKeyWithTs(key)
				splitKey = append([]byte{}, rawKey...)
			}
		}
		return nil
	})
	return splitKey, err
}

// handleSplitCheckResult turns a completed split-check into an AskSplit
// request to PD and proposes the Split admin command with the ids PD
// returns. Without a PD client the result is dropped and no split is
// proposed.
func (s *Store) handleSplitCheckResult(res *splitCheckResult) {
	if len(res.SplitKey) == 0 {
		return
	}
	s.mu.Lock()
	p, ok := s.peers[res.RegionID]
	s.mu.Unlock()
	if !ok || !p.IsLeader() {
		return
	}
	if s.pdClient == nil {
		return
	}
	newRegionID, newPeerIDs, err := s.pdClient.AskSplit(p.Region(), res.SplitKey)
	if err != nil {
		log.Error(fmt.Sprintf("ask split for region %d failed: %v", res.RegionID, err))
		return
	}
	req := adminSplitRequest(p.Region(), res.SplitKey, newRegionID, newPeerIDs)
	p.propose(s.cfg, NewCallback(), req)
}

// compactWorker physically removes raft log entries up to (and including)
// truncatedIndex once the applier's CompactLog exec result has made them
// safe to discard; deletion is asynchronous so it never blocks the apply
// path that updated truncated_state (spec.md §4.C "CompactLog").
func (s *Store) scheduleLogGC(regionID, truncatedIndex, firstIndex uint64) {
	s.compactWorker.trySchedule(func() {
		wb := new(engine_util.WriteBatch)
		for idx := firstIndex; idx <= truncatedIndex; idx++ {
			wb.DeleteCF(engine_util.CfDefault, codec.RaftLogKey(regionID, idx))
		}
		wb.MustWriteToDB(s.engines.Raft)
	})
}
