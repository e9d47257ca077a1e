// Package metapb describes the cluster metadata shared by every store: the
// region key-range/epoch/peer list, and the peer and store identities
// themselves. Wire-compatible with the gogo/protobuf reflection marshaler.
package metapb

import (
	fmt "fmt"

	proto "github.com/gogo/protobuf/proto"
)

// RegionEpoch tracks split/merge (Version) and membership (ConfVer) changes.
// checkRegionEpoch in raftstore/util.go rejects a request whose epoch is
// strictly older than the region's on the fields its command kind checks;
// an equal epoch is accepted.
type RegionEpoch struct {
	ConfVer uint64 `protobuf:"varint,1,opt,name=conf_ver,json=confVer" json:"conf_ver,omitempty"`
	Version uint64 `protobuf:"varint,2,opt,name=version" json:"version,omitempty"`
}

func (m *RegionEpoch) Reset()         { *m = RegionEpoch{} }
func (m *RegionEpoch) String() string { return fmt.Sprintf("%+v", *m) }
func (*RegionEpoch) ProtoMessage()    {}

func (m *RegionEpoch) Marshal() ([]byte, error)        { return proto.Marshal(m) }
func (m *RegionEpoch) Unmarshal(data []byte) error      { return proto.Unmarshal(data, m) }
func (m *RegionEpoch) GetConfVer() uint64 {
	if m != nil {
		return m.ConfVer
	}
	return 0
}
func (m *RegionEpoch) GetVersion() uint64 {
	if m != nil {
		return m.Version
	}
	return 0
}

// Peer is one replica of a region, on one store.
type Peer struct {
	Id      uint64 `protobuf:"varint,1,opt,name=id" json:"id,omitempty"`
	StoreId uint64 `protobuf:"varint,2,opt,name=store_id,json=storeId" json:"store_id,omitempty"`
}

func (m *Peer) Reset()         { *m = Peer{} }
func (m *Peer) String() string { return fmt.Sprintf("%+v", *m) }
func (*Peer) ProtoMessage()    {}

func (m *Peer) Marshal() ([]byte, error)   { return proto.Marshal(m) }
func (m *Peer) Unmarshal(data []byte) error { return proto.Unmarshal(data, m) }
func (m *Peer) GetId() uint64 {
	if m != nil {
		return m.Id
	}
	return 0
}
func (m *Peer) GetStoreId() uint64 {
	if m != nil {
		return m.StoreId
	}
	return 0
}

// Region is a contiguous key range [StartKey, EndKey) replicated by a Raft
// group. An empty StartKey/EndKey denotes -inf/+inf respectively.
type Region struct {
	Id          uint64       `protobuf:"varint,1,opt,name=id" json:"id,omitempty"`
	StartKey    []byte       `protobuf:"bytes,2,opt,name=start_key,json=startKey" json:"start_key,omitempty"`
	EndKey      []byte       `protobuf:"bytes,3,opt,name=end_key,json=endKey" json:"end_key,omitempty"`
	RegionEpoch *RegionEpoch `protobuf:"bytes,4,opt,name=region_epoch,json=regionEpoch" json:"region_epoch,omitempty"`
	Peers       []*Peer      `protobuf:"bytes,5,rep,name=peers" json:"peers,omitempty"`
}

func (m *Region) Reset()         { *m = Region{} }
func (m *Region) String() string { return fmt.Sprintf("%+v", *m) }
func (*Region) ProtoMessage()    {}

func (m *Region) Marshal() ([]byte, error)   { return proto.Marshal(m) }
func (m *Region) Unmarshal(data []byte) error { return proto.Unmarshal(data, m) }

func (m *Region) GetId() uint64 {
	if m != nil {
		return m.Id
	}
	return 0
}
func (m *Region) GetStartKey() []byte {
	if m != nil {
		return m.StartKey
	}
	return nil
}
func (m *Region) GetEndKey() []byte {
	if m != nil {
		return m.EndKey
	}
	return nil
}
func (m *Region) GetRegionEpoch() *RegionEpoch {
	if m != nil {
		return m.RegionEpoch
	}
	return nil
}
func (m *Region) GetPeers() []*Peer {
	if m != nil {
		return m.Peers
	}
	return nil
}

// Store is a node hosting many peers, addressable by the placement driver.
type Store struct {
	Id      uint64 `protobuf:"varint,1,opt,name=id" json:"id,omitempty"`
	Address string `protobuf:"bytes,2,opt,name=address" json:"address,omitempty"`
}

func (m *Store) Reset()         { *m = Store{} }
func (m *Store) String() string { return fmt.Sprintf("%+v", *m) }
func (*Store) ProtoMessage()    {}

func (m *Store) Marshal() ([]byte, error)   { return proto.Marshal(m) }
func (m *Store) Unmarshal(data []byte) error { return proto.Unmarshal(data, m) }
