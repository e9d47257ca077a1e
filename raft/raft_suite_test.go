// Copyright 2015 The etcd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package raft

import (
	"testing"

	. "github.com/pingcap/check"

	pb "github.com/ridgekv/ridgekv/proto/eraftpb"
)

func TestT(t *testing.T) {
	TestingT(t)
}

var _ = Suite(&raftSuite{})

type raftSuite struct{}

func newTestConfig(id uint64, peers []uint64, election, heartbeat int, storage Storage) *Config {
	return &Config{
		ID:            id,
		peers:         peers,
		ElectionTick:  election,
		HeartbeatTick: heartbeat,
		Storage:       storage,
	}
}

// three starts a 3-node cluster all in StateFollower, nobody elected yet.
func three() (*Raft, *Raft, *Raft) {
	peers := []uint64{1, 2, 3}
	r1 := newRaft(newTestConfig(1, peers, 10, 1, NewMemoryStorage()))
	r2 := newRaft(newTestConfig(2, peers, 10, 1, NewMemoryStorage()))
	r3 := newRaft(newTestConfig(3, peers, 10, 1, NewMemoryStorage()))
	return r1, r2, r3
}

func (s *raftSuite) TestStartsAsFollowerWithTermZero(c *C) {
	r := newRaft(newTestConfig(1, []uint64{1, 2, 3}, 10, 1, NewMemoryStorage()))
	c.Assert(r.State, Equals, StateFollower)
	c.Assert(r.Term, Equals, uint64(0))
}

// TestHupElectsSoloNode exercises spec.md's single-node quorum edge case:
// a lone voter's own vote is already a majority, so MsgHup must win the
// election in one step without any network round trip.
func (s *raftSuite) TestHupElectsSoloNode(c *C) {
	r := newRaft(newTestConfig(1, []uint64{1}, 10, 1, NewMemoryStorage()))
	c.Assert(r.Step(pb.Message{MsgType: pb.MessageType_MsgHup}), IsNil)
	c.Assert(r.State, Equals, StateLeader)
	c.Assert(r.Term, Equals, uint64(1))
}

func (s *raftSuite) TestCandidateNeedsMajorityToBecomeLeader(c *C) {
	r1, r2, r3 := three()
	c.Assert(r1.Step(pb.Message{MsgType: pb.MessageType_MsgHup}), IsNil)
	c.Assert(r1.State, Equals, StateCandidate)
	c.Assert(len(r1.msgs), Equals, 2)

	for _, m := range r1.msgs {
		c.Assert(m.MsgType, Equals, pb.MessageType_MsgRequestVote)
	}

	// r2 grants: with its own vote r1 has 2/3, a majority, and becomes
	// leader; r3's late grant leaves it leader.
	c.Assert(r1.Step(pb.Message{MsgType: pb.MessageType_MsgRequestVoteResponse, From: 2, Term: r1.Term}), IsNil)
	c.Assert(r1.State, Equals, StateLeader)
	c.Assert(r1.Step(pb.Message{MsgType: pb.MessageType_MsgRequestVoteResponse, From: 3, Term: r1.Term}), IsNil)
	c.Assert(r1.State, Equals, StateLeader)

	_, _ = r2, r3
}

func (s *raftSuite) TestCandidateStepsDownOnHigherTermAppend(c *C) {
	r := newRaft(newTestConfig(1, []uint64{1, 2, 3}, 10, 1, NewMemoryStorage()))
	c.Assert(r.Step(pb.Message{MsgType: pb.MessageType_MsgHup}), IsNil)
	c.Assert(r.State, Equals, StateCandidate)

	c.Assert(r.Step(pb.Message{MsgType: pb.MessageType_MsgAppend, From: 2, Term: r.Term + 1}), IsNil)
	c.Assert(r.State, Equals, StateFollower)
	c.Assert(r.Lead, Equals, uint64(2))
}

func (s *raftSuite) TestLeaderAppendsProposedEntryToOwnLog(c *C) {
	r := newRaft(newTestConfig(1, []uint64{1}, 10, 1, NewMemoryStorage()))
	c.Assert(r.Step(pb.Message{MsgType: pb.MessageType_MsgHup}), IsNil)
	c.Assert(r.State, Equals, StateLeader)

	before := r.RaftLog.LastIndex()
	c.Assert(r.Step(pb.Message{
		MsgType: pb.MessageType_MsgPropose,
		Entries: []*pb.Entry{{Data: []byte("put x=1")}},
	}), IsNil)
	c.Assert(r.RaftLog.LastIndex(), Equals, before+1)

	ents, err := r.RaftLog.Entries(before + 1)
	c.Assert(err, IsNil)
	c.Assert(len(ents), Equals, 1)
	c.Assert(string(ents[0].Data), Equals, "put x=1")
}

func (s *raftSuite) TestHeartbeatResetsFollowerElectionElapsed(c *C) {
	r := newRaft(newTestConfig(1, []uint64{1, 2}, 10, 1, NewMemoryStorage()))
	r.becomeFollower(1, 2)
	r.electionElapsed = 5

	c.Assert(r.Step(pb.Message{MsgType: pb.MessageType_MsgHeartbeat, From: 2, Term: 1}), IsNil)
	c.Assert(r.electionElapsed, Equals, 0)
	c.Assert(len(r.msgs), Equals, 1)
	c.Assert(r.msgs[0].MsgType, Equals, pb.MessageType_MsgHeartbeatResponse)
}

func (s *raftSuite) TestRaftLogRejectsAppendWithConflictingTerm(c *C) {
	storage := NewMemoryStorage()
	l := newLog(storage)
	l.append(pb.Entry{Index: 1, Term: 1}, pb.Entry{Index: 2, Term: 1})

	_, ok := l.maybeAppend(1, 2 /* wrong term for index 1 */, 2, pb.Entry{Index: 2, Term: 2})
	c.Assert(ok, Equals, false)
}

func (s *raftSuite) TestRaftLogAppliesAndCommits(c *C) {
	storage := NewMemoryStorage()
	l := newLog(storage)
	l.append(pb.Entry{Index: 1, Term: 1}, pb.Entry{Index: 2, Term: 1}, pb.Entry{Index: 3, Term: 1})
	c.Assert(l.maybeCommit(3, 1), Equals, true)
	l.appliedTo(2)
	c.Assert(l.applied, Equals, uint64(2))
	ents := l.nextEnts()
	c.Assert(len(ents), Equals, 1)
	c.Assert(ents[0].Index, Equals, uint64(3))
}
