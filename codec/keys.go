// Package codec is component B: it maps logical entities (region metadata,
// region-local raft state, user data) to byte keys in three disjoint
// prefixes, and encodes the per-key-per-version composite keys the MVCC
// layer scans. Everything here is pure encode/decode; it never touches an
// engine.
package codec

import (
	"encoding/binary"
	"math"

	"github.com/ridgekv/ridgekv/proto/metapb"
)

// Top-level namespaces. metaPrefix and dataPrefix keys, and the raftPrefix
// apply-state key, live in the Kv engine; the raftPrefix log entries and
// local state live in the Raft engine (engine_util.Engines.Raft).
var (
	metaPrefix = []byte("meta_")
	raftPrefix = []byte("raft_")
	dataPrefix = []byte("data_")
)

func appendUint64(prefix []byte, v uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], v)
	return buf
}

// RegionMetaPrefixKey returns the key under which a region's RegionLocalState
// is stored, meta_{region_id}.
func RegionMetaPrefixKey(regionID uint64) []byte {
	return appendUint64(metaPrefix, regionID)
}

// RegionMetaMinKey and RegionMetaMaxKey bound the [min, max) range that, when
// scanned, yields every region's local state in region_id order.
func RegionMetaMinKey() []byte { return appendUint64(metaPrefix, 0) }
func RegionMetaMaxKey() []byte { return appendUint64(metaPrefix, math.MaxUint64) }

// RegionStateKey is the key of a region's persisted RegionLocalState.
func RegionStateKey(regionID uint64) []byte {
	return RegionMetaPrefixKey(regionID)
}

// raft-local state: RaftLocalStateKey is kept in the Raft engine,
// RaftApplyStateKey in the Kv engine.
func raftRegionKey(regionID uint64, suffix string) []byte {
	k := appendUint64(raftPrefix, regionID)
	return append(k, []byte("_"+suffix)...)
}

func RaftLocalStateKey(regionID uint64) []byte { return raftRegionKey(regionID, "local") }
func RaftApplyStateKey(regionID uint64) []byte { return raftRegionKey(regionID, "apply") }

// RaftLogKey orders log entries by (region_id, log_index) so that a range
// scan over one region's log prefix yields entries in index order.
func RaftLogKey(regionID, logIndex uint64) []byte {
	k := appendUint64(raftPrefix, regionID)
	k = append(k, []byte("_log_")...)
	return appendUint64(k, logIndex)
}

// RaftLogPrefix bounds the range of all log entries of one region; used by
// log compaction and truncation.
func RaftLogPrefix(regionID uint64) []byte {
	k := appendUint64(raftPrefix, regionID)
	return append(k, []byte("_log_")...)
}

// RawStartKey and RawEndKey extract a region's raw (un-namespaced) boundary
// keys, the range handed to engine_util cursors.
func RawStartKey(r *metapb.Region) []byte { return r.StartKey }
func RawEndKey(r *metapb.Region) []byte   { return r.EndKey }

// DataKey namespaces a raw user key into the data prefix, preserving the raw
// key's lexicographic order: for any a < b, DataKey(a) < DataKey(b).
func DataKey(raw []byte) []byte {
	k := make([]byte, 0, len(dataPrefix)+len(raw))
	k = append(k, dataPrefix...)
	k = append(k, raw...)
	return k
}

// DecodeDataKey strips the data prefix back off. It does not check that key
// carries the prefix: it drops the first len(dataPrefix) bytes and panics
// only if key is shorter than that; callers only ever decode keys they know
// came from DataKey.
func DecodeDataKey(key []byte) []byte {
	return key[len(dataPrefix):]
}

// tsSuffixLen is the width of the inverted-timestamp suffix appended to a
// composite versioned key.
const tsSuffixLen = 8

// invertTs maps a commit timestamp to the byte string that sorts versions in
// descending-timestamp order within one raw key's version chain: the larger
// ts, the smaller the encoded suffix, so seeking with ts = math.MaxUint64
// (spec.md's "+∞") lands on the newest committed version first.
func invertTs(ts uint64) uint64 { return math.MaxUint64 - ts }

// EncodeKeyWithTs builds the composite key data_{raw}{inverted_ts} under
// which the MVCC layer stores each version's value: all versions of one raw
// key sort contiguously, newest first.
func EncodeKeyWithTs(raw []byte, ts uint64) []byte {
	k := DataKey(raw)
	suffix := make([]byte, tsSuffixLen)
	binary.BigEndian.PutUint64(suffix, invertTs(ts))
	return append(k, suffix...)
}

// DecodeKeyWithTs splits a composite key back into its raw key and
// timestamp. It panics if key is shorter than a namespaced key with a ts
// suffix, which would indicate caller error, not user input.
func DecodeKeyWithTs(key []byte) (raw []byte, ts uint64) {
	withoutPrefix := DecodeDataKey(key)
	n := len(withoutPrefix) - tsSuffixLen
	raw = withoutPrefix[:n]
	inverted := binary.BigEndian.Uint64(withoutPrefix[n:])
	ts = math.MaxUint64 - inverted
	return
}

// TruncateTs strips the timestamp suffix off a composite key built by
// EncodeKeyWithTs, leaving the namespaced-but-unversioned data key.
func TruncateTs(key []byte) []byte {
	return key[:len(key)-tsSuffixLen]
}

// MaxTs is the sentinel passed to EncodeKeyWithTs/seek to mean "the newest
// version, whatever it is" (spec.md's "+∞").
const MaxTs uint64 = math.MaxUint64
