// Package server wires a raftstore.Store and a txnstore.TxnStore to the
// outside world: the gRPC Cmd/Raft service of spec.md §6, a small status
// HTTP endpoint, and the opentracing spans every inbound RPC carries.
package server

import (
	"context"
	"fmt"
	"net"

	"github.com/opentracing/opentracing-go"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/ridgekv/ridgekv/proto/kvrpcpb"
	"github.com/ridgekv/ridgekv/proto/raft_cmdpb"
	"github.com/ridgekv/ridgekv/proto/raft_servicepb"
	rspb "github.com/ridgekv/ridgekv/proto/raft_serverpb"
	"github.com/ridgekv/ridgekv/raftstore"
	"github.com/ridgekv/ridgekv/txnstore"
)

// Server is the gRPC frontend of one store: RaftCmdRequests are proposed
// through the Store, raw transactional requests (Get/Prewrite/Commit/...)
// are served straight off TxnStore, and inbound Raft messages are handed to
// the Store's router (spec.md §4.D "HandleRaftMessage").
type Server struct {
	store *raftstore.Store
	txn   *txnstore.TxnStore
	grpc  *grpc.Server
}

func New(store *raftstore.Store, txn *txnstore.TxnStore) *Server {
	s := &Server{store: store, txn: txn}
	s.grpc = grpc.NewServer()
	s.grpc.RegisterService(&raft_servicepb.ServiceDesc, s)
	return s
}

// Serve blocks accepting connections on addr until the listener errors or
// Stop is called.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	log.Info("server listening", zap.String("addr", addr))
	return s.grpc.Serve(lis)
}

func (s *Server) Stop() { s.grpc.GracefulStop() }

// Cmd proposes a raw RaftCmdRequest through the store and waits for it to
// apply. It never reads from TxnStore; transactional operations arrive on
// their own RPCs below.
func (s *Server) Cmd(ctx context.Context, req *raft_cmdpb.RaftCmdRequest) (*raft_cmdpb.RaftCmdResponse, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Server.Cmd")
	defer span.Finish()
	return s.store.Propose(req), nil
}

// Raft consumes a client-streamed sequence of inbound RaftMessages (one
// store's outbound messages to this store) and acks with a single Done once
// the stream closes, per raft_servicepb's client-streaming Raft RPC.
func (s *Server) Raft(stream raft_servicepb.RidgeKv_RaftServer) error {
	span, _ := opentracing.StartSpanFromContext(stream.Context(), "Server.Raft")
	defer span.Finish()
	for {
		msg, err := stream.Recv()
		if err != nil {
			if cleanErr := raft_servicepb.EOFAsDone(err); cleanErr != nil {
				return cleanErr
			}
			break
		}
		if err := s.store.HandleRaftMessage(msg); err != nil {
			log.Warn("handle raft message failed", zap.Error(err))
		}
	}
	return stream.SendAndClose(&rspb.Done{})
}

// Get/BatchGet/Scan/Prewrite/Commit/Cleanup/BatchRollback/CommitThenGet/
// RollbackThenGet expose txnstore.TxnStore directly; these are not routed
// through raft_servicepb.Cmd because they carry their own request/response
// shapes (kvrpcpb), matching the percolator client contract of spec.md §4.H.
func (s *Server) Get(ctx context.Context, req *kvrpcpb.GetRequest) (*kvrpcpb.GetResponse, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Server.Get")
	defer span.Finish()
	return s.txn.Get(req), nil
}

func (s *Server) BatchGet(ctx context.Context, req *kvrpcpb.BatchGetRequest) (*kvrpcpb.BatchGetResponse, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Server.BatchGet")
	defer span.Finish()
	return s.txn.BatchGet(req), nil
}

func (s *Server) Scan(ctx context.Context, req *kvrpcpb.ScanRequest) (*kvrpcpb.ScanResponse, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Server.Scan")
	defer span.Finish()
	return s.txn.Scan(req), nil
}

func (s *Server) Prewrite(ctx context.Context, req *kvrpcpb.PrewriteRequest) (*kvrpcpb.PrewriteResponse, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Server.Prewrite")
	defer span.Finish()
	return s.txn.Prewrite(req), nil
}

func (s *Server) Commit(ctx context.Context, req *kvrpcpb.CommitRequest) (*kvrpcpb.CommitResponse, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Server.Commit")
	defer span.Finish()
	return s.txn.Commit(req), nil
}

func (s *Server) Cleanup(ctx context.Context, req *kvrpcpb.CleanupRequest) (*kvrpcpb.CleanupResponse, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Server.Cleanup")
	defer span.Finish()
	return s.txn.Cleanup(req), nil
}

func (s *Server) BatchRollback(ctx context.Context, req *kvrpcpb.BatchRollbackRequest) (*kvrpcpb.BatchRollbackResponse, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Server.BatchRollback")
	defer span.Finish()
	return s.txn.BatchRollback(req), nil
}

func (s *Server) CommitThenGet(ctx context.Context, req *kvrpcpb.CommitThenGetRequest) (*kvrpcpb.CommitThenGetResponse, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Server.CommitThenGet")
	defer span.Finish()
	return s.txn.CommitThenGet(req), nil
}

func (s *Server) RollbackThenGet(ctx context.Context, req *kvrpcpb.RollbackThenGetRequest) (*kvrpcpb.RollbackThenGetResponse, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Server.RollbackThenGet")
	defer span.Finish()
	return s.txn.RollbackThenGet(req), nil
}
