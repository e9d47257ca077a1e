package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataKeyPreservesOrder(t *testing.T) {
	a := DataKey([]byte("a"))
	b := DataKey([]byte("b"))
	assert.True(t, bytes.Compare(a, b) < 0)

	raw := DecodeDataKey(a)
	assert.Equal(t, []byte("a"), raw)
}

func TestEncodeKeyWithTsOrdersNewestFirst(t *testing.T) {
	raw := []byte("row1")
	older := EncodeKeyWithTs(raw, 10)
	newer := EncodeKeyWithTs(raw, 20)

	// newest version must sort before older versions of the same raw key.
	assert.True(t, bytes.Compare(newer, older) < 0)

	decodedRaw, ts := DecodeKeyWithTs(newer)
	assert.Equal(t, raw, decodedRaw)
	assert.Equal(t, uint64(20), ts)
}

func TestEncodeKeyWithTsMaxTsLandsFirst(t *testing.T) {
	raw := []byte("row2")
	v1 := EncodeKeyWithTs(raw, 5)
	v2 := EncodeKeyWithTs(raw, 9)
	infinity := EncodeKeyWithTs(raw, MaxTs)

	assert.True(t, bytes.Compare(infinity, v2) < 0)
	assert.True(t, bytes.Compare(infinity, v1) < 0)
}

func TestTruncateTs(t *testing.T) {
	raw := []byte("row3")
	versioned := EncodeKeyWithTs(raw, 42)
	assert.Equal(t, DataKey(raw), TruncateTs(versioned))
}

func TestRegionMetaKeyOrdering(t *testing.T) {
	k1 := RegionMetaPrefixKey(1)
	k2 := RegionMetaPrefixKey(2)
	k100 := RegionMetaPrefixKey(100)
	assert.True(t, bytes.Compare(k1, k2) < 0)
	assert.True(t, bytes.Compare(k2, k100) < 0)
	assert.True(t, bytes.Compare(RegionMetaMinKey(), k1) < 0)
	assert.True(t, bytes.Compare(k100, RegionMetaMaxKey()) < 0)
}

func TestRaftLogKeyOrdersByIndex(t *testing.T) {
	k5 := RaftLogKey(1, 5)
	k6 := RaftLogKey(1, 6)
	assert.True(t, bytes.Compare(k5, k6) < 0)
	assert.True(t, bytes.HasPrefix(k5, RaftLogPrefix(1)))
}
