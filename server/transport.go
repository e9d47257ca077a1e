package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/pingcap/log"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/ridgekv/ridgekv/proto/raft_servicepb"
	rspb "github.com/ridgekv/ridgekv/proto/raft_serverpb"
)

// Resolver maps a store id to its gRPC dial address; a real deployment
// backs this with the PD client's store list, tests with a static map.
type Resolver interface {
	StoreAddr(storeID uint64) (string, bool)
}

// GRPCTransport implements raftstore.Transport by dialing (and caching) a
// client-streaming Raft RPC to every peer store it has sent a message to,
// matching spec.md §4.D's "forward raft messages over the Transport".
type GRPCTransport struct {
	resolve Resolver

	mu      sync.Mutex
	streams map[uint64]raft_servicepb.RidgeKv_RaftClient
	conns   map[uint64]*grpc.ClientConn
}

func NewGRPCTransport(resolve Resolver) *GRPCTransport {
	return &GRPCTransport{
		resolve: resolve,
		streams: make(map[uint64]raft_servicepb.RidgeKv_RaftClient),
		conns:   make(map[uint64]*grpc.ClientConn),
	}
}

func (t *GRPCTransport) Send(msg *rspb.RaftMessage) error {
	storeID := msg.ToPeer.GetStoreId()
	stream, err := t.streamTo(storeID)
	if err != nil {
		return err
	}
	if err := stream.Send(msg); err != nil {
		t.mu.Lock()
		delete(t.streams, storeID)
		t.mu.Unlock()
		return err
	}
	return nil
}

func (t *GRPCTransport) streamTo(storeID uint64) (raft_servicepb.RidgeKv_RaftClient, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.streams[storeID]; ok {
		return s, nil
	}
	addr, ok := t.resolve.StoreAddr(storeID)
	if !ok {
		return nil, fmt.Errorf("no known address for store %d", storeID)
	}
	conn, ok := t.conns[storeID]
	if !ok {
		var err error
		conn, err = grpc.Dial(addr, grpc.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("dial store %d at %s: %w", storeID, addr, err)
		}
		t.conns[storeID] = conn
		log.Info("dialed peer store", zap.Uint64("store_id", storeID), zap.String("addr", addr))
	}
	desc := &grpc.StreamDesc{StreamName: "Raft", ClientStreams: true}
	clientStream, err := conn.NewStream(context.Background(), desc, "/raft_servicepb.RidgeKv/Raft")
	if err != nil {
		return nil, err
	}
	stream := &ridgeKvRaftClient{clientStream}
	t.streams[storeID] = stream
	return stream, nil
}

// ridgeKvRaftClient adapts a generic grpc.ClientStream to
// raft_servicepb.RidgeKv_RaftClient, the client-side half of the hand
// assembled Raft streaming RPC.
type ridgeKvRaftClient struct {
	grpc.ClientStream
}

func (x *ridgeKvRaftClient) Send(m *rspb.RaftMessage) error {
	return x.ClientStream.SendMsg(m)
}

func (x *ridgeKvRaftClient) CloseAndRecv() (*rspb.Done, error) {
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	m := new(rspb.Done)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
