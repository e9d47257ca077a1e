package raftstore

import "time"

// PeerTick enumerates the periodic jobs a peer's ticker schedules into the
// store's event loop (spec.md §4.D "timer ticks").
type PeerTick int

const (
	PeerTickRaft PeerTick = iota
	PeerTickRaftLogGC
	PeerTickSplitRegionCheck
	PeerTickPdHeartbeat
)

var allPeerTicks = [...]PeerTick{PeerTickRaft, PeerTickRaftLogGC, PeerTickSplitRegionCheck, PeerTickPdHeartbeat}

// ticker tracks, per peer, how many base-tick intervals remain before each
// PeerTick fires again, so a fast base tick (raft) and slow ticks (GC,
// split-check, heartbeat) can share one timer without each peer running
// four goroutines.
type ticker struct {
	regionID uint64
	tick     int
	schedules [len(allPeerTicks)]int
}

func newTicker(regionID uint64, cfg *Config) *ticker {
	t := &ticker{regionID: regionID}
	t.schedules[PeerTickRaft] = 1
	t.schedules[PeerTickRaftLogGC] = durationToTicks(cfg.RaftLogGCTickInterval, cfg.RaftBaseTickInterval)
	t.schedules[PeerTickSplitRegionCheck] = durationToTicks(cfg.SplitRegionCheckTickInterval, cfg.RaftBaseTickInterval)
	t.schedules[PeerTickPdHeartbeat] = durationToTicks(cfg.PdHeartbeatTickInterval, cfg.RaftBaseTickInterval)
	return t
}

func durationToTicks(d, base time.Duration) int {
	if base <= 0 {
		return 1
	}
	n := int(d / base)
	if n < 1 {
		n = 1
	}
	return n
}

// tickClock advances the shared base clock by one and returns every
// PeerTick that is due this round.
func (t *ticker) tickClock() []PeerTick {
	t.tick++
	var due []PeerTick
	for _, pt := range allPeerTicks {
		if interval := t.schedules[pt]; interval > 0 && t.tick%interval == 0 {
			due = append(due, pt)
		}
	}
	return due
}
