// Package raft_servicepb defines the gRPC service surface of spec.md §6:
// Cmd (client RaftCmdRequest/Response) and Raft (inter-store RaftMessage
// stream). The service descriptor is hand-assembled rather than
// protoc-generated, following the same gogo/protobuf Marshal/Unmarshal
// convention as the rest of proto/.
package raft_servicepb

import (
	"context"
	"io"

	grpc "google.golang.org/grpc"

	"github.com/ridgekv/ridgekv/proto/kvrpcpb"
	"github.com/ridgekv/ridgekv/proto/raft_cmdpb"
	"github.com/ridgekv/ridgekv/proto/raft_serverpb"
)

// RidgeKvServer is the interface a store's gRPC frontend implements: Cmd and
// Raft carry region-routed raft traffic, the rest are the percolator-style
// transactional operations of spec.md §4.H, each with its own request/
// response shape.
type RidgeKvServer interface {
	Cmd(context.Context, *raft_cmdpb.RaftCmdRequest) (*raft_cmdpb.RaftCmdResponse, error)
	Raft(RidgeKv_RaftServer) error

	Get(context.Context, *kvrpcpb.GetRequest) (*kvrpcpb.GetResponse, error)
	BatchGet(context.Context, *kvrpcpb.BatchGetRequest) (*kvrpcpb.BatchGetResponse, error)
	Scan(context.Context, *kvrpcpb.ScanRequest) (*kvrpcpb.ScanResponse, error)
	Prewrite(context.Context, *kvrpcpb.PrewriteRequest) (*kvrpcpb.PrewriteResponse, error)
	Commit(context.Context, *kvrpcpb.CommitRequest) (*kvrpcpb.CommitResponse, error)
	Cleanup(context.Context, *kvrpcpb.CleanupRequest) (*kvrpcpb.CleanupResponse, error)
	BatchRollback(context.Context, *kvrpcpb.BatchRollbackRequest) (*kvrpcpb.BatchRollbackResponse, error)
	CommitThenGet(context.Context, *kvrpcpb.CommitThenGetRequest) (*kvrpcpb.CommitThenGetResponse, error)
	RollbackThenGet(context.Context, *kvrpcpb.RollbackThenGetRequest) (*kvrpcpb.RollbackThenGetResponse, error)
}

type RidgeKv_RaftServer interface {
	Send(*raft_serverpb.Done) error
	Recv() (*raft_serverpb.RaftMessage, error)
	grpc.ServerStream
}

type RidgeKv_RaftClient interface {
	Send(*raft_serverpb.RaftMessage) error
	CloseAndRecv() (*raft_serverpb.Done, error)
	grpc.ClientStream
}

func _RidgeKv_Cmd_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(raft_cmdpb.RaftCmdRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RidgeKvServer).Cmd(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/raft_servicepb.RidgeKv/Cmd"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RidgeKvServer).Cmd(ctx, req.(*raft_cmdpb.RaftCmdRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _RidgeKv_Get_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(kvrpcpb.GetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RidgeKvServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/raft_servicepb.RidgeKv/Get"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RidgeKvServer).Get(ctx, req.(*kvrpcpb.GetRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _RidgeKv_BatchGet_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(kvrpcpb.BatchGetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RidgeKvServer).BatchGet(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/raft_servicepb.RidgeKv/BatchGet"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RidgeKvServer).BatchGet(ctx, req.(*kvrpcpb.BatchGetRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _RidgeKv_Scan_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(kvrpcpb.ScanRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RidgeKvServer).Scan(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/raft_servicepb.RidgeKv/Scan"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RidgeKvServer).Scan(ctx, req.(*kvrpcpb.ScanRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _RidgeKv_Prewrite_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(kvrpcpb.PrewriteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RidgeKvServer).Prewrite(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/raft_servicepb.RidgeKv/Prewrite"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RidgeKvServer).Prewrite(ctx, req.(*kvrpcpb.PrewriteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _RidgeKv_Commit_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(kvrpcpb.CommitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RidgeKvServer).Commit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/raft_servicepb.RidgeKv/Commit"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RidgeKvServer).Commit(ctx, req.(*kvrpcpb.CommitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _RidgeKv_Cleanup_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(kvrpcpb.CleanupRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RidgeKvServer).Cleanup(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/raft_servicepb.RidgeKv/Cleanup"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RidgeKvServer).Cleanup(ctx, req.(*kvrpcpb.CleanupRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _RidgeKv_BatchRollback_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(kvrpcpb.BatchRollbackRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RidgeKvServer).BatchRollback(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/raft_servicepb.RidgeKv/BatchRollback"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RidgeKvServer).BatchRollback(ctx, req.(*kvrpcpb.BatchRollbackRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _RidgeKv_CommitThenGet_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(kvrpcpb.CommitThenGetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RidgeKvServer).CommitThenGet(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/raft_servicepb.RidgeKv/CommitThenGet"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RidgeKvServer).CommitThenGet(ctx, req.(*kvrpcpb.CommitThenGetRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _RidgeKv_RollbackThenGet_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(kvrpcpb.RollbackThenGetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RidgeKvServer).RollbackThenGet(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/raft_servicepb.RidgeKv/RollbackThenGet"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RidgeKvServer).RollbackThenGet(ctx, req.(*kvrpcpb.RollbackThenGetRequest))
	}
	return interceptor(ctx, in, info, handler)
}

type ridgeKvRaftServer struct {
	grpc.ServerStream
}

func (x *ridgeKvRaftServer) Send(m *raft_serverpb.Done) error { return x.ServerStream.SendMsg(m) }
func (x *ridgeKvRaftServer) Recv() (*raft_serverpb.RaftMessage, error) {
	m := new(raft_serverpb.RaftMessage)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _RidgeKv_Raft_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(RidgeKvServer).Raft(&ridgeKvRaftServer{stream})
}

// ServiceDesc is registered against a *grpc.Server in server.New.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "raft_servicepb.RidgeKv",
	HandlerType: (*RidgeKvServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Cmd", Handler: _RidgeKv_Cmd_Handler},
		{MethodName: "Get", Handler: _RidgeKv_Get_Handler},
		{MethodName: "BatchGet", Handler: _RidgeKv_BatchGet_Handler},
		{MethodName: "Scan", Handler: _RidgeKv_Scan_Handler},
		{MethodName: "Prewrite", Handler: _RidgeKv_Prewrite_Handler},
		{MethodName: "Commit", Handler: _RidgeKv_Commit_Handler},
		{MethodName: "Cleanup", Handler: _RidgeKv_Cleanup_Handler},
		{MethodName: "BatchRollback", Handler: _RidgeKv_BatchRollback_Handler},
		{MethodName: "CommitThenGet", Handler: _RidgeKv_CommitThenGet_Handler},
		{MethodName: "RollbackThenGet", Handler: _RidgeKv_RollbackThenGet_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Raft", Handler: _RidgeKv_Raft_Handler, ClientStreams: true},
	},
	Metadata: "raft_servicepb.proto",
}

// EOFAsDone lets a Raft stream handler treat client half-close the same as a
// clean shutdown of the message flow.
func EOFAsDone(err error) error {
	if err == io.EOF {
		return nil
	}
	return err
}
