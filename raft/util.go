package raft

import (
	pb "github.com/ridgekv/ridgekv/proto/eraftpb"
)

func min(a, b uint64) uint64 {
	if a > b {
		return b
	}
	return a
}

func max(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

type uint64Slice []uint64

func (s uint64Slice) Len() int           { return len(s) }
func (s uint64Slice) Less(i, j int) bool { return s[i] < s[j] }
func (s uint64Slice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// IsEmptyHardState reports whether st carries no information at all, the
// all-zero value returned before any term/vote/commit has ever been set.
func IsEmptyHardState(st pb.HardState) bool {
	return st.Term == 0 && st.Vote == 0 && st.Commit == 0
}

// IsEmptySnap reports whether sp is the sentinel "no snapshot" value.
func IsEmptySnap(sp *pb.Snapshot) bool {
	return sp == nil || sp.Metadata == nil || sp.Metadata.Index == 0
}

// nodes returns a sorted slice of the IDs of all known nodes of the raft
// group, used only for logging.
func nodes(r *Raft) []uint64 {
	nodes := make([]uint64, 0, len(r.Prs))
	for id := range r.Prs {
		nodes = append(nodes, id)
	}
	sortUint64(nodes)
	return nodes
}

func sortUint64(s []uint64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
