// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tsdc

import (
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/time-coin/timecoin/blocks"
	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/snow/consensus/vfp"
	"github.com/time-coin/timecoin/snow/validators"
	"github.com/time-coin/timecoin/txs"
	"github.com/time-coin/timecoin/utils/logging"
	"github.com/time-coin/timecoin/utils/timer/mockable"
	"github.com/time-coin/timecoin/vrf"
)

const (
	testChainID     = 9
	testSlot        = uint64(11)
	testSlotSeconds = 600
)

type voterValidator struct {
	nodeID ids.NodeID
	pub    ed25519.PublicKey
	priv   ed25519.PrivateKey
	vrfKey *vrf.Key
}

type fakeTips struct {
	height uint64
	hash   ids.ID
}

func (f *fakeTips) Tip() (uint64, ids.ID) {
	return f.height, f.hash
}

type fakeVerifier struct {
	err error
}

func (f *fakeVerifier) VerifyBlockTxs(*blocks.Block) error {
	return f.err
}

type fakeCommitter struct {
	lock      sync.Mutex
	committed []*blocks.Block
}

func (f *fakeCommitter) Commit(blk *blocks.Block) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.committed = append(f.committed, blk)
	return nil
}

func (f *fakeCommitter) count() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.committed)
}

type fakeSender struct {
	lock  sync.Mutex
	votes []*BlockVote
}

func (f *fakeSender) BroadcastBlockVote(vote *BlockVote) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.votes = append(f.votes, vote)
}

func (f *fakeSender) phases() []Phase {
	f.lock.Lock()
	defer f.lock.Unlock()
	out := make([]Phase, len(f.votes))
	for i, v := range f.votes {
		out[i] = v.Phase
	}
	return out
}

type voterEnv struct {
	require   *require.Assertions
	vdrs      []voterValidator
	snapshots *vfp.Snapshots
	tips      *fakeTips
	verifier  *fakeVerifier
	committer *fakeCommitter
	sender    *fakeSender
	voter     *Voter
	slotClock *SlotClock
}

// newVoterEnv creates [n] equal-stake validators; the voter under test runs
// as vdrs[0].
func newVoterEnv(t *testing.T, n int, verifyErr error) *voterEnv {
	require := require.New(t)

	set := validators.NewSet()
	vdrs := make([]voterValidator, n)
	for i := range vdrs {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(err)
		vrfKey, err := vrf.NewKey(priv)
		require.NoError(err)
		vdrs[i] = voterValidator{
			nodeID: ids.NodeIDFromPublicKey(pub),
			pub:    pub,
			priv:   priv,
			vrfKey: vrfKey,
		}
		require.NoError(set.Add(vdrs[i].nodeID, pub, 100))
	}

	clock := &mockable.Clock{}
	clock.Set(time.Unix(int64(testSlot*testSlotSeconds), 0))
	slotClock := NewSlotClock(clock, testSlotSeconds*time.Second)

	snapshots := vfp.NewSnapshots()
	snapshots.Take(testSlot, set)

	tips := &fakeTips{height: 10, hash: ids.ID{0xaa}}
	verifier := &fakeVerifier{err: verifyErr}
	committer := &fakeCommitter{}
	sender := &fakeSender{}

	voter := NewVoter(
		testChainID,
		vdrs[0].nodeID,
		vdrs[0].priv,
		slotClock,
		snapshots,
		tips,
		verifier,
		committer,
		sender,
		logging.NoLog{},
		nil,
	)
	return &voterEnv{
		require:   require,
		vdrs:      vdrs,
		snapshots: snapshots,
		tips:      tips,
		verifier:  verifier,
		committer: committer,
		sender:    sender,
		voter:     voter,
		slotClock: slotClock,
	}
}

// proposal builds a valid signed proposal from [vdr] atop the current tip
func (e *voterEnv) proposal(vdr voterValidator) *blocks.Block {
	coinbase := &txs.Tx{
		Version:  txs.Version,
		Outputs:  []txs.Output{{Value: 5_000, PubKey: vdr.pub}},
		LockTime: e.tips.height + 1,
	}
	e.require.NoError(coinbase.Initialize())

	input := vrf.LeaderInput(e.tips.hash, testSlot)
	vrfOutput, vrfProof, err := vdr.vrfKey.Evaluate(input)
	e.require.NoError(err)

	blk := &blocks.Block{
		Header: blocks.Header{
			Version:     blocks.Version,
			Height:      e.tips.height + 1,
			PrevHash:    e.tips.hash,
			MerkleRoot:  blocks.MerkleRoot([]ids.ID{coinbase.ID()}),
			Timestamp:   e.slotClock.SlotTimestamp(testSlot),
			SlotIndex:   testSlot,
			Leader:      vdr.nodeID,
			VRFOutput:   vrfOutput,
			VRFProof:    vrfProof,
			BlockReward: Subsidy(e.tips.height + 1),
		},
		Txs: []*txs.Tx{coinbase},
	}
	e.require.NoError(blk.Initialize())
	blk.Sign(vdr.priv)
	e.require.NoError(blk.Initialize())
	return blk
}

func (e *voterEnv) vote(vdr voterValidator, phase Phase, blockHash ids.ID) *BlockVote {
	vote := &BlockVote{
		ChainID:   testChainID,
		Phase:     phase,
		BlockHash: blockHash,
		SlotIndex: testSlot,
		Voter:     vdr.nodeID,
	}
	vote.Sign(vdr.priv)
	return vote
}

func TestVoterHappyPathSingleSlot(t *testing.T) {
	e := newVoterEnv(t, 3, nil)

	blk := e.proposal(e.vdrs[1])
	e.require.NoError(e.voter.HandleProposal(blk))

	// our prepare vote was broadcast; state is Prepared with our 100 weight
	state, ok := e.voter.State(blk.ID())
	e.require.True(ok)
	e.require.Equal(StatePrepared, state)
	e.require.Equal([]Phase{PhasePrepare}, e.sender.phases())

	// V2's prepare pushes weight to 200 > 150: precommit fires
	e.require.NoError(e.voter.HandleVote(e.vote(e.vdrs[1], PhasePrepare, blk.ID())))

	// V2's precommit plus ours (self-applied) reach 200 > 150: finalize and commit
	e.require.NoError(e.voter.HandleVote(e.vote(e.vdrs[1], PhasePrecommit, blk.ID())))

	e.require.Equal(1, e.committer.count())
	e.require.Equal(blk.ID(), e.committer.committed[0].ID())
}

func TestVoterByzantineOneValidatorDead(t *testing.T) {
	// three validators, one never votes; 200 of 300 stake still finalizes
	e := newVoterEnv(t, 3, nil)

	blk := e.proposal(e.vdrs[0])
	e.require.NoError(e.voter.HandleProposal(blk))

	e.require.NoError(e.voter.HandleVote(e.vote(e.vdrs[1], PhasePrepare, blk.ID())))
	e.require.NoError(e.voter.HandleVote(e.vote(e.vdrs[1], PhasePrecommit, blk.ID())))

	e.require.Equal(1, e.committer.count())
}

func TestVoterMinorityCannotFinalize(t *testing.T) {
	// a lone validator of three never reaches a strict majority
	e := newVoterEnv(t, 3, nil)

	blk := e.proposal(e.vdrs[0])
	e.require.NoError(e.voter.HandleProposal(blk))

	// only our own prepare: 100*2 = 200 which is not > 300
	state, ok := e.voter.State(blk.ID())
	e.require.True(ok)
	e.require.Equal(StatePrepared, state)
	e.require.Equal(0, e.committer.count())
}

func TestVoterDuplicateVotesIdempotent(t *testing.T) {
	e := newVoterEnv(t, 5, nil)

	blk := e.proposal(e.vdrs[1])
	e.require.NoError(e.voter.HandleProposal(blk))

	// the same prepare vote over and over never crosses 2/5 of stake
	vote := e.vote(e.vdrs[1], PhasePrepare, blk.ID())
	for i := 0; i < 10; i++ {
		e.require.NoError(e.voter.HandleVote(vote))
	}
	state, _ := e.voter.State(blk.ID())
	e.require.Equal(StatePrepared, state)
}

func TestVoterRejectsBadTimestamp(t *testing.T) {
	e := newVoterEnv(t, 3, nil)

	blk := e.proposal(e.vdrs[1])
	blk.Header.Timestamp = e.slotClock.SlotTimestamp(testSlot) - 1
	e.require.NoError(blk.Initialize())
	blk.Sign(e.vdrs[1].priv)
	e.require.NoError(blk.Initialize())

	e.require.ErrorIs(e.voter.HandleProposal(blk), ErrBadTimestamp)
}

func TestVoterRejectsWrongParent(t *testing.T) {
	e := newVoterEnv(t, 3, nil)

	blk := e.proposal(e.vdrs[1])
	e.tips.hash = ids.ID{0xbb}
	e.require.ErrorIs(e.voter.HandleProposal(blk), ErrWrongParent)
}

func TestVoterRejectsTamperedVRF(t *testing.T) {
	e := newVoterEnv(t, 3, nil)

	blk := e.proposal(e.vdrs[1])
	blk.Header.VRFOutput[0] ^= 0xff
	e.require.NoError(blk.Initialize())
	blk.Sign(e.vdrs[1].priv)
	e.require.NoError(blk.Initialize())

	e.require.ErrorIs(e.voter.HandleProposal(blk), ErrBadVRF)
}

func TestVoterRejectsFailedBodyValidation(t *testing.T) {
	e := newVoterEnv(t, 3, blocks.ErrWrongMerkleRoot)

	blk := e.proposal(e.vdrs[1])
	e.require.ErrorIs(e.voter.HandleProposal(blk), blocks.ErrWrongMerkleRoot)

	state, ok := e.voter.State(blk.ID())
	e.require.True(ok)
	e.require.Equal(StateRejected, state)
	e.require.Empty(e.sender.phases())
}

func TestVoterLeaderTiebreakBetweenProposals(t *testing.T) {
	e := newVoterEnv(t, 3, nil)

	blkA := e.proposal(e.vdrs[1])
	blkB := e.proposal(e.vdrs[2])

	// order the two candidates by their actual lottery tickets
	winner, loser := blkA, blkB
	if vrf.CompareCandidates(
		blkA.Header.VRFOutput, blkA.Header.Leader,
		blkB.Header.VRFOutput, blkB.Header.Leader,
	) < 0 {
		winner, loser = blkB, blkA
	}

	// loser first: it is tracked, then dethroned when the winner arrives
	e.require.NoError(e.voter.HandleProposal(loser))
	e.require.NoError(e.voter.HandleProposal(winner))

	state, ok := e.voter.State(loser.ID())
	e.require.True(ok)
	e.require.Equal(StateRejected, state)
	state, ok = e.voter.State(winner.ID())
	e.require.True(ok)
	e.require.Equal(StatePrepared, state)

	// winner first: the loser is refused outright
	e2 := newVoterEnv(t, 3, nil)
	blkA2 := e2.proposal(e2.vdrs[1])
	blkB2 := e2.proposal(e2.vdrs[2])
	winner2, loser2 := blkA2, blkB2
	if vrf.CompareCandidates(
		blkA2.Header.VRFOutput, blkA2.Header.Leader,
		blkB2.Header.VRFOutput, blkB2.Header.Leader,
	) < 0 {
		winner2, loser2 = blkB2, blkA2
	}
	e2.require.NoError(e2.voter.HandleProposal(winner2))
	e2.require.ErrorIs(e2.voter.HandleProposal(loser2), ErrNotLeaderForSlot)
}

func TestVoterSlotExpiry(t *testing.T) {
	e := newVoterEnv(t, 3, nil)

	blk := e.proposal(e.vdrs[1])
	e.require.NoError(e.voter.HandleProposal(blk))

	e.voter.OnSlotExpired(testSlot)
	_, ok := e.voter.State(blk.ID())
	e.require.False(ok)

	// votes arriving after expiry are ignored
	e.require.NoError(e.voter.HandleVote(e.vote(e.vdrs[1], PhasePrepare, blk.ID())))
	e.require.Equal(0, e.committer.count())
}
