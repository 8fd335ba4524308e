// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tsdc

import (
	"crypto/ed25519"
	"errors"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/utils/wrappers"
)

// Phase distinguishes the two TSDC voting rounds
type Phase byte

const (
	PhasePrepare Phase = iota
	PhasePrecommit
)

func (p Phase) String() string {
	if p == PhasePrepare {
		return "prepare"
	}
	return "precommit"
}

var ErrInvalidBlockVoteSig = errors.New("block vote signature invalid")

// BlockVote is a PrepareVote or PrecommitVote for one proposal. The weight is
// resolved against the AVS snapshot of the block's slot, never trusted from
// the wire.
type BlockVote struct {
	ChainID   uint32     `json:"chainID"`
	Phase     Phase      `json:"phase"`
	BlockHash ids.ID     `json:"blockHash"`
	SlotIndex uint64     `json:"slotIndex"`
	Voter     ids.NodeID `json:"voter"`
	Signature []byte     `json:"signature"`
}

const maxBlockVoteSize = 192

func (v *BlockVote) signedBytes() []byte {
	p := wrappers.Packer{MaxSize: maxBlockVoteSize}
	p.PackInt(v.ChainID)
	p.PackByte(byte(v.Phase))
	p.PackFixedBytes(v.BlockHash.Bytes())
	p.PackLong(v.SlotIndex)
	p.PackFixedBytes(v.Voter.Bytes())
	return p.Bytes
}

func (v *BlockVote) Sign(key ed25519.PrivateKey) {
	v.Signature = ed25519.Sign(key, v.signedBytes())
}

func (v *BlockVote) VerifySignature(publicKey ed25519.PublicKey) error {
	if len(publicKey) != ed25519.PublicKeySize ||
		len(v.Signature) != ed25519.SignatureSize ||
		!ed25519.Verify(publicKey, v.signedBytes(), v.Signature) {
		return ErrInvalidBlockVoteSig
	}
	return nil
}

// Marshal returns the wire encoding
func (v *BlockVote) Marshal() ([]byte, error) {
	p := wrappers.Packer{MaxSize: maxBlockVoteSize}
	p.PackInt(v.ChainID)
	p.PackByte(byte(v.Phase))
	p.PackFixedBytes(v.BlockHash.Bytes())
	p.PackLong(v.SlotIndex)
	p.PackFixedBytes(v.Voter.Bytes())
	p.PackBytes(v.Signature)
	return p.Bytes, p.Err
}

// UnmarshalBlockVote parses a wire-encoded vote
func UnmarshalBlockVote(bytes []byte) (*BlockVote, error) {
	p := wrappers.Packer{Bytes: bytes, MaxSize: maxBlockVoteSize}
	v := &BlockVote{}
	v.ChainID = p.UnpackInt()
	v.Phase = Phase(p.UnpackByte())
	v.BlockHash, _ = ids.ToID(p.UnpackFixedBytes(ids.IDLen))
	v.SlotIndex = p.UnpackLong()
	v.Voter, _ = ids.ToNodeID(p.UnpackFixedBytes(ids.NodeIDLen))
	v.Signature = p.UnpackLimitedBytes(ed25519.SignatureSize)
	return v, p.Err
}
