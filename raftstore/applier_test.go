package raftstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgekv/ridgekv/proto/metapb"
	"github.com/ridgekv/ridgekv/proto/raft_cmdpb"
)

func newTestApplier() *applier {
	return &applier{
		tag:    "test",
		region: &metapb.Region{Id: 1, StartKey: []byte{}, EndKey: []byte{}},
	}
}

// TestHandlePutIncrementsSizeDiffHintOnce guards against the source's
// double-increment (§9): a single put must grow sizeDiffHint by exactly
// len(key)+len(value).
func TestHandlePutIncrementsSizeDiffHintOnce(t *testing.T) {
	a := newTestApplier()
	ac := newApplyContext(nil)

	_, err := a.handlePut(ac, &raft_cmdpb.PutRequest{Key: []byte("x"), Value: []byte("value")})
	require.NoError(t, err)
	require.Equal(t, uint64(len("x")+len("value")), a.sizeDiffHint)

	_, err = a.handlePut(ac, &raft_cmdpb.PutRequest{Key: []byte("y"), Value: []byte("v2")})
	require.NoError(t, err)
	require.Equal(t, uint64(len("x")+len("value")+len("y")+len("v2")), a.sizeDiffHint)
}

func TestHandleDeleteDecrementsSizeDiffHintWithoutUnderflow(t *testing.T) {
	a := newTestApplier()
	a.sizeDiffHint = 3
	ac := newApplyContext(nil)

	_, err := a.handleDelete(ac, &raft_cmdpb.DeleteRequest{Key: []byte("abcdef")})
	require.NoError(t, err)
	require.Equal(t, uint64(3), a.sizeDiffHint, "delete must not underflow a hint smaller than the key")
}

func TestHandlePutRejectsKeyOutsideRegion(t *testing.T) {
	a := &applier{tag: "test", region: &metapb.Region{Id: 1, StartKey: []byte("m"), EndKey: []byte("z")}}
	ac := newApplyContext(nil)

	_, err := a.handlePut(ac, &raft_cmdpb.PutRequest{Key: []byte("a"), Value: []byte("v")})
	require.Error(t, err)
}
