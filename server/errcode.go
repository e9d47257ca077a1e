package server

import (
	"github.com/pingcap/errcode"

	"github.com/ridgekv/ridgekv/mvcc"
	"github.com/ridgekv/ridgekv/raftstore"
)

// These codes classify store-level errors, distinct from the per-request
// KeyError shape kvrpcpb responses carry. Neither the status endpoint nor
// the RPC handlers report them.
var (
	notLeaderCode     = errcode.NotFoundCode.Child("state.not_leader")
	staleEpochCode    = errcode.InvalidInputCode.Child("state.stale_epoch")
	regionMissingCode = errcode.NotFoundCode.Child("state.region_not_found")
	lockedCode        = errcode.InvalidInputCode.Child("state.key_locked")
	writeConflictCode = errcode.InvalidInputCode.Child("state.write_conflict")
)

type codedError struct {
	error
	code errcode.Code
}

func (e codedError) Code() errcode.Code { return e.code }

// classify maps an internal raftstore/mvcc error to an errcode.ErrorCode,
// from which errcode.HTTPStatus derives an HTTP status. Nothing in the
// repository calls it.
func classify(err error) errcode.ErrorCode {
	switch err.(type) {
	case *raftstore.ErrNotLeader:
		return codedError{err, notLeaderCode}
	case *raftstore.ErrStaleEpoch:
		return codedError{err, staleEpochCode}
	case *raftstore.ErrRegionNotFound:
		return codedError{err, regionMissingCode}
	case *mvcc.ErrKeyIsLocked:
		return codedError{err, lockedCode}
	case *mvcc.ErrWriteConflict:
		return codedError{err, writeConflictCode}
	default:
		return codedError{err, errcode.InternalCode}
	}
}
